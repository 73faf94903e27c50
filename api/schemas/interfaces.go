// File: api/schemas/interfaces.go
// Capability interfaces shared across agents. Keeping them here breaks import
// cycles between the agents and their consumers.
package schemas

import (
	"context"
	"time"
)

// GenerationOptions tunes a single LLM generation.
type GenerationOptions struct {
	Temperature     float32
	MaxTokens       int
	ForceJSONFormat bool
}

// GenerationRequest is a provider-neutral LLM prompt.
type GenerationRequest struct {
	SystemPrompt string
	UserPrompt   string
	Options      GenerationOptions
}

// LLMClient is the single capability the fix generator depends on. The
// production binding wraps the Gemini HTTP API; test bindings return canned
// JSON.
type LLMClient interface {
	Generate(ctx context.Context, req GenerationRequest) (string, error)
}

// ExecSpec describes one command execution inside the sandbox.
type ExecSpec struct {
	// Image is the container image to run in. Ignored by the native executor.
	Image string
	// WorkDir is the host path of the working tree, mounted read-write.
	WorkDir string
	// Command is passed to `sh -c`.
	Command string
	// RunID scopes container names and labels to the owning run.
	RunID string
	// Timeout bounds the wall-clock execution time.
	Timeout time.Duration
}

// ExecResult is the outcome of a sandboxed execution. Streams are truncated
// to their trailing 50,000 bytes.
type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// SandboxExecutor runs a shell command in an isolated, resource-capped
// environment. Infrastructure failures surface as a non-zero exit code with
// the failure text on stderr, never as an error.
type SandboxExecutor interface {
	// Execute runs the command. The returned error is reserved for programmer
	// mistakes (empty spec); operational failures land in the result.
	Execute(ctx context.Context, spec ExecSpec) (ExecResult, error)
	// Name identifies the executor variant ("docker" or "native").
	Name() string
}

// EventPublisher accepts structured run events for fan-out.
type EventPublisher interface {
	Publish(ev Event)
}
