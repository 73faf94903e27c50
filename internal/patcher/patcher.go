// internal/patcher/patcher.go
package patcher

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/repomedic/api/schemas"
)

const (
	reasonFileNotFound = "File not found"
	reasonCodeNotFound = "Original code not found"
)

// Patcher applies LLM fix proposals to a working tree.
type Patcher struct {
	logger *zap.Logger
}

// New creates a patch applier.
func New(logger *zap.Logger) *Patcher {
	return &Patcher{logger: logger.Named("patcher")}
}

// Apply attempts every proposal in input order against the working tree and
// returns one AppliedFix per proposal. A proposal missing file, original or
// fixed code is Skipped; one whose target cannot be located is Failed. A
// failed proposal never stops the iteration.
func (p *Patcher) Apply(workDir string, proposals []schemas.FixProposal) []schemas.AppliedFix {
	applied := make([]schemas.AppliedFix, 0, len(proposals))
	for _, proposal := range proposals {
		applied = append(applied, p.applyOne(workDir, proposal))
	}
	return applied
}

func (p *Patcher) applyOne(workDir string, proposal schemas.FixProposal) schemas.AppliedFix {
	fix := schemas.AppliedFix{FixProposal: proposal}

	if !proposal.Applicable() {
		fix.Status = schemas.FixStatusSkipped
		p.logger.Debug("Skipping incomplete proposal", zap.String("file", proposal.File))
		return fix
	}

	path := filepath.Join(workDir, filepath.FromSlash(proposal.File))
	raw, err := os.ReadFile(path)
	if err != nil {
		fix.Status = schemas.FixStatusFailed
		fix.Reason = reasonFileNotFound
		p.logger.Warn("Proposal targets a missing file", zap.String("file", proposal.File), zap.Error(err))
		return fix
	}
	content := string(raw)

	// Exact-match substitution first; the line anchor is the fallback for
	// proposals whose snippet drifted from the tree.
	if strings.Contains(content, proposal.OriginalCode) {
		updated := strings.Replace(content, proposal.OriginalCode, proposal.FixedCode, 1)
		if err := writeFileAtomic(path, updated); err != nil {
			fix.Status = schemas.FixStatusFailed
			fix.Reason = err.Error()
			return fix
		}
		fix.Status = schemas.FixStatusFixed
		p.logger.Info("Applied fix by exact match", zap.String("file", proposal.File), zap.Int("line", proposal.Line))
		return fix
	}

	if proposal.Line > 0 {
		lines := strings.Split(content, "\n")
		if proposal.Line <= len(lines) {
			lines[proposal.Line-1] = proposal.FixedCode
			if err := writeFileAtomic(path, strings.Join(lines, "\n")); err != nil {
				fix.Status = schemas.FixStatusFailed
				fix.Reason = err.Error()
				return fix
			}
			fix.Status = schemas.FixStatusFixed
			p.logger.Info("Applied fix by line anchor", zap.String("file", proposal.File), zap.Int("line", proposal.Line))
			return fix
		}
	}

	fix.Status = schemas.FixStatusFailed
	fix.Reason = reasonCodeNotFound
	p.logger.Warn("Original code not present in target", zap.String("file", proposal.File), zap.Int("line", proposal.Line))
	return fix
}

// writeFileAtomic replaces a file's content through a same-directory rename
// so readers never observe a half-written file.
func writeFileAtomic(path, content string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".repomedic-patch-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if info, err := os.Stat(path); err == nil {
		_ = os.Chmod(tmpName, info.Mode())
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace target file: %w", err)
	}
	return nil
}
