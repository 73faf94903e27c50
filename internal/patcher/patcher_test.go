package patcher

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/repomedic/api/schemas"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

func readFile(t *testing.T, dir, name string) string {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	return string(raw)
}

func TestApply_ExactMatch(t *testing.T) {
	dir := writeTree(t, map[string]string{"src/a.py": "def f()\n    return 1\n"})
	p := New(zap.NewNop())

	applied := p.Apply(dir, []schemas.FixProposal{{
		File:         "src/a.py",
		Line:         1,
		OriginalCode: "def f()",
		FixedCode:    "def f():",
	}})

	require.Len(t, applied, 1)
	assert.Equal(t, schemas.FixStatusFixed, applied[0].Status)
	assert.Equal(t, "def f():\n    return 1\n", readFile(t, dir, "src/a.py"))
}

func TestApply_ExactMatchReplacesFirstOccurrenceOnly(t *testing.T) {
	dir := writeTree(t, map[string]string{"a.js": "x = 1;\nx = 1;\n"})
	p := New(zap.NewNop())

	applied := p.Apply(dir, []schemas.FixProposal{{
		File: "a.js", OriginalCode: "x = 1;", FixedCode: "x = 2;",
	}})

	assert.Equal(t, schemas.FixStatusFixed, applied[0].Status)
	assert.Equal(t, "x = 2;\nx = 1;\n", readFile(t, dir, "a.js"))
}

func TestApply_LineAnchorFallback(t *testing.T) {
	dir := writeTree(t, map[string]string{"a.py": "one\ntwo\nthree"})
	p := New(zap.NewNop())

	applied := p.Apply(dir, []schemas.FixProposal{{
		File:         "a.py",
		Line:         2,
		OriginalCode: "not present anymore",
		FixedCode:    "TWO",
	}})

	assert.Equal(t, schemas.FixStatusFixed, applied[0].Status)
	assert.Equal(t, "one\nTWO\nthree", readFile(t, dir, "a.py"))
}

func TestApply_SkippedWhenIncomplete(t *testing.T) {
	dir := writeTree(t, map[string]string{"a.py": "content"})
	p := New(zap.NewNop())

	tests := []schemas.FixProposal{
		{OriginalCode: "x", FixedCode: "y"},
		{File: "a.py", FixedCode: "y"},
		{File: "a.py", OriginalCode: "x"},
	}
	for _, proposal := range tests {
		applied := p.Apply(dir, []schemas.FixProposal{proposal})
		assert.Equal(t, schemas.FixStatusSkipped, applied[0].Status)
	}
	// Skips never touch the tree.
	assert.Equal(t, "content", readFile(t, dir, "a.py"))
}

func TestApply_FileNotFound(t *testing.T) {
	dir := t.TempDir()
	p := New(zap.NewNop())

	applied := p.Apply(dir, []schemas.FixProposal{{
		File: "ghost.py", OriginalCode: "x", FixedCode: "y",
	}})

	assert.Equal(t, schemas.FixStatusFailed, applied[0].Status)
	assert.Equal(t, "File not found", applied[0].Reason)
}

func TestApply_OriginalNotFoundAndLineOutOfBounds(t *testing.T) {
	dir := writeTree(t, map[string]string{"a.py": "one\ntwo"})
	p := New(zap.NewNop())

	applied := p.Apply(dir, []schemas.FixProposal{{
		File: "a.py", Line: 99, OriginalCode: "missing", FixedCode: "y",
	}})

	assert.Equal(t, schemas.FixStatusFailed, applied[0].Status)
	assert.Equal(t, "Original code not found", applied[0].Reason)
	assert.Equal(t, "one\ntwo", readFile(t, dir, "a.py"), "failed proposals must leave the file untouched")
}

func TestApply_InputOrderLastWriteWins(t *testing.T) {
	dir := writeTree(t, map[string]string{"a.py": "line1\nline2"})
	p := New(zap.NewNop())

	applied := p.Apply(dir, []schemas.FixProposal{
		{File: "a.py", Line: 1, OriginalCode: "zzz", FixedCode: "first"},
		{File: "a.py", Line: 1, OriginalCode: "zzz", FixedCode: "second"},
	})

	assert.Equal(t, schemas.FixStatusFixed, applied[0].Status)
	assert.Equal(t, schemas.FixStatusFixed, applied[1].Status)
	assert.Equal(t, "second\nline2", readFile(t, dir, "a.py"))
}

// Patch safety: files not named by any Fixed proposal stay byte-identical.
func TestApply_UntargetedFilesUntouched(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"a.py": "target",
		"b.py": "bystander",
	})
	p := New(zap.NewNop())

	p.Apply(dir, []schemas.FixProposal{{File: "a.py", OriginalCode: "target", FixedCode: "patched"}})

	assert.Equal(t, "patched", readFile(t, dir, "a.py"))
	assert.Equal(t, "bystander", readFile(t, dir, "b.py"))
}
