// internal/classify/classifier.go
package classify

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/xkilldash9x/repomedic/api/schemas"
)

// rule maps a trigger pattern to an error kind. Rules are walked in
// declaration order; the first match wins.
type rule struct {
	kind schemas.ErrorKind
	re   *regexp.Regexp
}

var rules = []rule{
	{schemas.ErrorKindSyntax, regexp.MustCompile(`(?i)(SyntaxError|unexpected token|invalid syntax|EOL while scanning)`)},
	{schemas.ErrorKindIndentation, regexp.MustCompile(`(?i)(IndentationError|unexpected indent|expected an indented block)`)},
	{schemas.ErrorKindTypeError, regexp.MustCompile(`(?i)(TypeError|type .* mismatch|cannot read propert)`)},
	{schemas.ErrorKindImport, regexp.MustCompile(`(?i)(ImportError|ModuleNotFoundError|Cannot find module|no module named)`)},
	{schemas.ErrorKindLogic, regexp.MustCompile(`(?i)(AssertionError|Expected .* to (equal|be|match)|assert)`)},
	{schemas.ErrorKindLinting, regexp.MustCompile(`(?i)(eslint|lint|prettier|warning.*rule)`)},
	{schemas.ErrorKindRuntime, regexp.MustCompile(`(?i)(ReferenceError|NameError|is not defined)`)},
}

var (
	// pythonLocationRegex matches `File "path/to/file.py", line 12`.
	pythonLocationRegex = regexp.MustCompile(`File "([^"]+)", line (\d+)`)
	// columnLocationRegex matches `path/to/file.js:12:5`, also inside stack
	// frames such as `at fn (path/to/file.js:12:5)`.
	columnLocationRegex = regexp.MustCompile(`([\w@./\\-]+\.\w+):(\d+):(\d+)`)
	// lineLocationRegex matches a bare `path/to/file.ext:12`.
	lineLocationRegex = regexp.MustCompile(`([\w@./\\-]+\.\w+):(\d+)`)
)

// Classify parses a raw test log into structured error records. Lines that
// match no rule and carry neither "Error" nor "FAIL" are discarded; matched
// records are deduplicated by (file, line, kind) preserving first-seen order.
func Classify(rawLog string) []schemas.ErrorRecord {
	var records []schemas.ErrorRecord
	seen := make(map[string]struct{})

	for _, line := range strings.Split(rawLog, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		record, ok := classifyLine(line)
		if !ok {
			continue
		}

		key := record.File + ":" + strconv.Itoa(record.Line) + ":" + string(record.Kind)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		records = append(records, record)
	}

	return records
}

func classifyLine(line string) (schemas.ErrorRecord, bool) {
	for _, r := range rules {
		if r.re.MatchString(line) {
			file, lineNum := extractLocation(line)
			return schemas.ErrorRecord{
				Kind:       r.kind,
				File:       file,
				Line:       lineNum,
				RawMessage: line,
			}, true
		}
	}

	// Unmatched lines are only interesting when they shout about failure.
	if !strings.Contains(line, "Error") && !strings.Contains(line, "FAIL") {
		return schemas.ErrorRecord{}, false
	}

	file, lineNum := extractLocation(line)
	return schemas.ErrorRecord{
		Kind:       schemas.ErrorKindUnknown,
		File:       file,
		Line:       lineNum,
		RawMessage: line,
	}, true
}

// extractLocation pulls a file path and line number out of a log line, trying
// the Python traceback form first, then column-bearing stack frames, then a
// bare path:line pair.
func extractLocation(line string) (string, int) {
	if m := pythonLocationRegex.FindStringSubmatch(line); m != nil {
		n, _ := strconv.Atoi(m[2])
		return m[1], n
	}
	if m := columnLocationRegex.FindStringSubmatch(line); m != nil {
		n, _ := strconv.Atoi(m[2])
		return m[1], n
	}
	if m := lineLocationRegex.FindStringSubmatch(line); m != nil {
		n, _ := strconv.Atoi(m[2])
		return m[1], n
	}
	return "", 0
}
