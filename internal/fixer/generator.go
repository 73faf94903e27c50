// internal/fixer/generator.go
package fixer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/repomedic/api/schemas"
	"github.com/xkilldash9x/repomedic/internal/llmclient"
	"github.com/xkilldash9x/repomedic/internal/llmutil"
)

// contextRadius is the number of source lines gathered on each side of an
// error location.
const contextRadius = 5

// enrichedError is an ErrorRecord plus its numbered source context, as
// presented to the model.
type enrichedError struct {
	schemas.ErrorRecord
	SourceContext string `json:"sourceContext,omitempty"`
}

// Generator turns classified test errors into LLM fix proposals.
type Generator struct {
	logger *zap.Logger
	llm    schemas.LLMClient
}

// NewGenerator creates a fix generator on top of an LLM client.
func NewGenerator(logger *zap.Logger, llm schemas.LLMClient) *Generator {
	return &Generator{
		logger: logger.Named("fixer"),
		llm:    llm,
	}
}

// Generate produces one batch of fix proposals for the given classified
// errors. When every model is rate-limit exhausted, or the response carries
// no JSON array, it degrades to placeholder proposals that the patch applier
// will mark Skipped; other LLM failures propagate.
func (g *Generator) Generate(ctx context.Context, rawLog string, records []schemas.ErrorRecord, workDir string) ([]schemas.FixProposal, error) {
	if len(records) == 0 {
		return nil, nil
	}

	enriched := g.enrich(records, workDir)

	req := schemas.GenerationRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   buildUserPrompt(rawLog, enriched),
		Options: schemas.GenerationOptions{
			Temperature:     0.1,
			ForceJSONFormat: true,
		},
	}

	response, err := g.llm.Generate(ctx, req)
	if err != nil {
		if llmclient.IsRateLimited(err) {
			g.logger.Warn("All models exhausted; degrading to placeholder proposals", zap.Error(err))
			return g.placeholders(records), nil
		}
		return nil, fmt.Errorf("LLM generation failed: %w", err)
	}

	proposals, err := parseProposals(response)
	if err != nil {
		g.logger.Warn("LLM response carried no parseable JSON array; degrading to placeholder proposals",
			zap.Error(err), zap.String("response_prefix", truncate(response, 200)))
		return g.placeholders(records), nil
	}

	g.logger.Info("Fix proposals generated", zap.Int("errors", len(records)), zap.Int("proposals", len(proposals)))
	return proposals, nil
}

// enrich attaches ±contextRadius numbered source lines to every record that
// names a file and line within the tree.
func (g *Generator) enrich(records []schemas.ErrorRecord, workDir string) []enrichedError {
	enriched := make([]enrichedError, 0, len(records))
	for _, record := range records {
		e := enrichedError{ErrorRecord: record}
		if record.File != "" && record.Line > 0 {
			if ctx, err := readSourceContext(workDir, record.File, record.Line); err == nil {
				e.SourceContext = ctx
			} else {
				g.logger.Debug("Could not read source context",
					zap.String("file", record.File), zap.Error(err))
			}
		}
		enriched = append(enriched, e)
	}
	return enriched
}

// readSourceContext returns the numbered window around the target line.
func readSourceContext(workDir, file string, line int) (string, error) {
	raw, err := os.ReadFile(filepath.Join(workDir, filepath.FromSlash(file)))
	if err != nil {
		return "", err
	}
	lines := strings.Split(string(raw), "\n")

	start := max(0, line-1-contextRadius)
	end := min(len(lines), line+contextRadius)
	if start >= len(lines) {
		return "", fmt.Errorf("line %d is beyond the end of %s", line, file)
	}

	var b strings.Builder
	for i := start; i < end; i++ {
		fmt.Fprintf(&b, "%4d| %s\n", i+1, lines[i])
	}
	return b.String(), nil
}

// parseProposals extracts the first JSON array from the model output.
func parseProposals(response string) ([]schemas.FixProposal, error) {
	if _, ok := llmutil.FirstJSONArray(response); !ok {
		return nil, fmt.Errorf("response contains no JSON array")
	}
	proposals, err := llmutil.ParseJSONResponse[[]schemas.FixProposal](response)
	if err != nil {
		return nil, err
	}
	return *proposals, nil
}

// placeholders synthesizes one inapplicable proposal per error so the report
// still accounts for every failure when the LLM is unavailable.
func (g *Generator) placeholders(records []schemas.ErrorRecord) []schemas.FixProposal {
	proposals := make([]schemas.FixProposal, 0, len(records))
	for _, record := range records {
		proposals = append(proposals, schemas.FixProposal{
			File:          record.File,
			Line:          record.Line,
			Kind:          record.Kind,
			Description:   "Automatic fix unavailable: language model could not be reached",
			CommitMessage: synthesizeCommitMessage(record),
		})
	}
	return proposals
}

func synthesizeCommitMessage(record schemas.ErrorRecord) string {
	if record.File != "" {
		return fmt.Sprintf("Fix %s error in %s:%d", record.Kind, record.File, record.Line)
	}
	return fmt.Sprintf("Fix %s error", record.Kind)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
