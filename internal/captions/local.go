package captions

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
)

// LocalEngine runs an in-process whisper model through a helper command that
// reads a WAV file and prints a JSON result on stdout:
//
//	{"language": "en", "segments": [{"start": 0.0, "end": 1.4, "text": "..."}]}
//
// Command failures are permanent (the retry policy applies to the remote
// path only; a local model does not rate-limit or flake per-request).
type LocalEngine struct {
	Command string
	Model   string

	// runner is swapped out by tests.
	runner func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewLocalEngine returns a LocalEngine invoking command with the given model.
func NewLocalEngine(command, model string) *LocalEngine {
	return &LocalEngine{Command: command, Model: model}
}

// WithRunner sets a custom command runner (for testing).
func (e *LocalEngine) WithRunner(runner func(ctx context.Context, name string, args ...string) ([]byte, error)) {
	e.runner = runner
}

// Transcribe implements Engine.
func (e *LocalEngine) Transcribe(ctx context.Context, wavPath, language string, task Task) (Result, error) {
	args := []string{"--audio", wavPath, "--task", string(task)}
	if e.Model != "" {
		args = append(args, "--model", e.Model)
	}
	if language != "" {
		args = append(args, "--language", language)
	}

	out, err := e.run(ctx, e.Command, args...)
	if err != nil {
		return Result{}, fmt.Errorf("local engine: %w", err)
	}

	var result Result
	if err := json.Unmarshal(out, &result); err != nil {
		return Result{}, fmt.Errorf("local engine: parse output: %w", err)
	}
	return result, nil
}

func (e *LocalEngine) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if e.runner != nil {
		return e.runner(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	out, err := cmd.Output()
	if err != nil {
		if ee, ok := err.(*exec.ExitError); ok {
			return nil, fmt.Errorf("%s: %s", name, strings.TrimSpace(string(ee.Stderr)))
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}
