// Package code runs code snippets detected in generated answers.
package code

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"
)

// Executor runs one code snippet and returns its combined output.
// Implementations must be safe for concurrent use.
type Executor interface {
	Execute(code string) (string, error)
}

// SubprocessExecutor runs snippets through an interpreter subprocess with a
// hard timeout. Output is truncated to MaxOutputBytes so a chatty snippet
// cannot flood the answer.
type SubprocessExecutor struct {
	// Command is the interpreter invocation; the snippet is piped to stdin.
	Command []string
	// Timeout bounds the subprocess (10s if zero).
	Timeout time.Duration
	// MaxOutputBytes caps the captured output (16KiB if zero).
	MaxOutputBytes int
}

// NewPythonExecutor returns an executor that pipes snippets to python3.
func NewPythonExecutor() *SubprocessExecutor {
	return &SubprocessExecutor{Command: []string{"python3", "-"}}
}

// Execute implements Executor.
func (e *SubprocessExecutor) Execute(code string) (string, error) {
	if len(e.Command) == 0 {
		return "", fmt.Errorf("no interpreter command configured")
	}
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	maxOut := e.MaxOutputBytes
	if maxOut <= 0 {
		maxOut = 16 * 1024
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, e.Command[0], e.Command[1:]...)
	cmd.Stdin = bytes.NewBufferString(code)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return "", fmt.Errorf("execution timed out after %s", timeout)
	}
	if err != nil {
		return "", fmt.Errorf("execution failed: %w (output: %s)", err, truncate(out.String(), 512))
	}
	return truncate(out.String(), maxOut), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "\n... (truncated)"
}
