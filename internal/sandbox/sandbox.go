// internal/sandbox/sandbox.go
package sandbox

import (
	"strings"
)

// StreamLimit bounds each captured stream to its trailing bytes.
const StreamLimit = 50_000

// TimeoutMarker is the stderr content returned when a command exceeds its
// wall-clock budget.
const TimeoutMarker = "TIMEOUT: command exceeded time limit"

// TimeoutExitCode mirrors the conventional exit code of timeout(1).
const TimeoutExitCode = 124

// truncateTail keeps the last StreamLimit bytes of a stream. Test output puts
// the interesting failures at the end, so the head is the part to drop.
func truncateTail(s string) string {
	if len(s) <= StreamLimit {
		return s
	}
	return s[len(s)-StreamLimit:]
}

// joinCommand combines an optional install command with the test command the
// way a shell user would.
func JoinCommand(installCmd, testCmd string) string {
	installCmd = strings.TrimSpace(installCmd)
	testCmd = strings.TrimSpace(testCmd)
	if installCmd == "" {
		return testCmd
	}
	return installCmd + " && " + testCmd
}
