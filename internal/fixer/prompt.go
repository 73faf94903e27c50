// internal/fixer/prompt.go
package fixer

import (
	"encoding/json"
	"fmt"
	"strings"
)

// rawLogLimit bounds how much of the raw test log reaches the prompt. The
// tail carries the failures.
const rawLogLimit = 20_000

const systemPrompt = `You are an expert polyglot software engineer performing automated bug fixing. You receive a raw test log and a list of classified errors with numbered source context. For every error, produce a precise, minimal fix.

Respond with ONLY a JSON array. Each element must have exactly these keys:
{
  "file": "path relative to the repository root",
  "line": 12,
  "kind": "SYNTAX|LINTING|LOGIC|TYPE_ERROR|IMPORT|INDENTATION|RUNTIME|UNKNOWN",
  "description": "one-sentence summary of the fix",
  "originalCode": "the exact code being replaced, copied verbatim from the source context",
  "fixedCode": "the replacement code",
  "commitMessage": "imperative commit message for this fix"
}

Rules:
1. originalCode must be copied character-for-character from the provided source context, without the line-number prefix.
2. Keep fixes minimal; never rewrite code that is not broken.
3. One element per error. If you cannot fix an error, still emit an element with your best description and empty originalCode/fixedCode.
4. Do not wrap the array in markdown fences or add commentary.`

// buildUserPrompt assembles the single prompt sent per iteration.
func buildUserPrompt(rawLog string, errors []enrichedError) string {
	encoded, err := json.MarshalIndent(errors, "", "  ")
	if err != nil {
		encoded = []byte("[]")
	}

	var b strings.Builder
	b.WriteString("## Raw test output\n```\n")
	b.WriteString(tailOf(rawLog, rawLogLimit))
	b.WriteString("\n```\n\n## Classified errors with source context\n")
	b.Write(encoded)
	b.WriteString("\n\nProduce the JSON array of fixes now.")
	return b.String()
}

func tailOf(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return fmt.Sprintf("[... %d bytes truncated ...]\n%s", len(s)-n, s[len(s)-n:])
}
