package fixer

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/repomedic/api/schemas"
	"github.com/xkilldash9x/repomedic/internal/llmclient"
)

// MockLLMClient is a testify mock of schemas.LLMClient.
type MockLLMClient struct {
	mock.Mock
}

func (m *MockLLMClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func syntaxRecord() schemas.ErrorRecord {
	return schemas.ErrorRecord{
		Kind:       schemas.ErrorKindSyntax,
		File:       "src/a.py",
		Line:       1,
		RawMessage: `File "src/a.py", line 1: SyntaxError`,
	}
}

func TestGenerate_NoErrorsNoCall(t *testing.T) {
	llm := new(MockLLMClient)
	g := NewGenerator(zap.NewNop(), llm)

	proposals, err := g.Generate(context.Background(), "all green", nil, t.TempDir())

	require.NoError(t, err)
	assert.Empty(t, proposals)
	llm.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func TestGenerate_ParsesProposals(t *testing.T) {
	llm := new(MockLLMClient)
	llm.On("Generate", mock.Anything, mock.Anything).Return(
		`[{"file":"src/a.py","line":1,"kind":"SYNTAX","description":"add colon","originalCode":"def f()","fixedCode":"def f():","commitMessage":"Fix syntax"}]`,
		nil,
	).Once()

	g := NewGenerator(zap.NewNop(), llm)
	proposals, err := g.Generate(context.Background(), "log", []schemas.ErrorRecord{syntaxRecord()}, t.TempDir())

	require.NoError(t, err)
	require.Len(t, proposals, 1)
	assert.Equal(t, "def f():", proposals[0].FixedCode)
	assert.True(t, proposals[0].Applicable())
}

func TestGenerate_PromptCarriesLogAndContext(t *testing.T) {
	workDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(workDir, "src"), 0o755))
	source := "def f()\n    return 1\n"
	require.NoError(t, os.WriteFile(filepath.Join(workDir, "src/a.py"), []byte(source), 0o644))

	var captured schemas.GenerationRequest
	llm := new(MockLLMClient)
	llm.On("Generate", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		captured = args.Get(1).(schemas.GenerationRequest)
	}).Return("[]", nil).Once()

	g := NewGenerator(zap.NewNop(), llm)
	_, err := g.Generate(context.Background(), "the raw log body", []schemas.ErrorRecord{syntaxRecord()}, workDir)
	require.NoError(t, err)

	assert.Contains(t, captured.UserPrompt, "the raw log body")
	assert.Contains(t, captured.UserPrompt, "def f()", "source context must be embedded")
	assert.Contains(t, captured.UserPrompt, "   1| ", "source context is line numbered")
	assert.True(t, captured.Options.ForceJSONFormat)
	assert.NotEmpty(t, captured.SystemPrompt)
}

func TestGenerate_DegradesOnRateLimitExhaustion(t *testing.T) {
	llm := new(MockLLMClient)
	llm.On("Generate", mock.Anything, mock.Anything).Return(
		"", &llmclient.APIError{StatusCode: http.StatusTooManyRequests, Body: "quota"},
	).Once()

	g := NewGenerator(zap.NewNop(), llm)
	records := []schemas.ErrorRecord{
		syntaxRecord(),
		{Kind: schemas.ErrorKindLogic, RawMessage: "AssertionError"},
	}
	proposals, err := g.Generate(context.Background(), "log", records, t.TempDir())

	require.NoError(t, err)
	require.Len(t, proposals, 2, "one placeholder per classified error")
	for _, p := range proposals {
		assert.False(t, p.Applicable(), "placeholders must be inapplicable")
		assert.NotEmpty(t, p.CommitMessage)
	}
	assert.Equal(t, "Fix SYNTAX error in src/a.py:1", proposals[0].CommitMessage)
}

func TestGenerate_DegradesOnNonJSONResponse(t *testing.T) {
	llm := new(MockLLMClient)
	llm.On("Generate", mock.Anything, mock.Anything).Return("I am sorry, I cannot help with that.", nil).Once()

	g := NewGenerator(zap.NewNop(), llm)
	proposals, err := g.Generate(context.Background(), "log", []schemas.ErrorRecord{syntaxRecord()}, t.TempDir())

	require.NoError(t, err)
	require.Len(t, proposals, 1)
	assert.False(t, proposals[0].Applicable())
}

func TestGenerate_PropagatesHardErrors(t *testing.T) {
	llm := new(MockLLMClient)
	hardErr := errors.New("connection refused")
	llm.On("Generate", mock.Anything, mock.Anything).Return("", hardErr).Once()

	g := NewGenerator(zap.NewNop(), llm)
	_, err := g.Generate(context.Background(), "log", []schemas.ErrorRecord{syntaxRecord()}, t.TempDir())

	require.Error(t, err)
	assert.ErrorIs(t, err, hardErr)
}

func TestReadSourceContext_Window(t *testing.T) {
	workDir := t.TempDir()
	var lines []string
	for i := 1; i <= 20; i++ {
		lines = append(lines, strings.Repeat("x", i))
	}
	require.NoError(t, os.WriteFile(filepath.Join(workDir, "f.txt"), []byte(strings.Join(lines, "\n")), 0o644))

	ctx, err := readSourceContext(workDir, "f.txt", 10)
	require.NoError(t, err)

	got := strings.Split(strings.TrimRight(ctx, "\n"), "\n")
	assert.Len(t, got, 11, "five lines each side plus the target")
	assert.True(t, strings.HasPrefix(got[0], "   5| "))
	assert.True(t, strings.HasPrefix(got[10], "  15| "))
}

func TestReadSourceContext_BeyondEOF(t *testing.T) {
	workDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(workDir, "f.txt"), []byte("one\ntwo"), 0o644))
	_, err := readSourceContext(workDir, "f.txt", 500)
	assert.Error(t, err)
}
