// Package cmdutil runs external commands, primarily docker build and
// push, with timeouts and log-safe formatting.
package cmdutil

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"
)

// ExecOptions configures command execution.
type ExecOptions struct {
	// Dir is the working directory for the command.
	Dir string

	// Timeout is the maximum execution time.
	// If zero, no timeout is applied.
	Timeout time.Duration

	// Env contains environment variables for the command.
	// Each entry should be in the form "KEY=value".
	Env []string

	// Stdout and Stderr stream the command's output as it runs. When
	// either is set the output is not captured in the Result; long
	// docker builds are streamed straight to the terminal instead.
	Stdout io.Writer
	Stderr io.Writer
}

// Result contains the result of a command execution.
type Result struct {
	// Output is the combined stdout and stderr. Empty when the command
	// was run with streaming writers.
	Output []byte

	// ExitCode is the exit code of the command.
	ExitCode int

	// Duration is how long the command took to execute.
	Duration time.Duration
}

// Run executes a command with the given options.
// The command is provided as a slice of arguments (command and its arguments).
// Returns the result or an error if the command fails.
func Run(ctx context.Context, opts ExecOptions, cmdParts []string) (*Result, error) {
	if len(cmdParts) == 0 {
		return nil, fmt.Errorf("empty command")
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, cmdParts[0], cmdParts[1:]...)
	cmd.Dir = opts.Dir
	cmd.Env = opts.Env

	start := time.Now()

	var result Result
	var err error

	if opts.Stdout != nil || opts.Stderr != nil {
		cmd.Stdout = opts.Stdout
		cmd.Stderr = opts.Stderr
		err = cmd.Run()
	} else {
		result.Output, err = cmd.CombinedOutput()
	}

	result.Duration = time.Since(start)

	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}

	if err != nil {
		return &result, fmt.Errorf("command failed: %w", err)
	}

	return &result, nil
}

// FormatCommand formats command parts into a readable string for logging.
// Example: ["docker", "build", "-t", "my image"] -> "docker build -t 'my image'"
func FormatCommand(cmdParts []string) string {
	if len(cmdParts) == 0 {
		return "<empty command>"
	}

	// Quote arguments that contain spaces or special characters
	quoted := make([]string, len(cmdParts))
	for i, part := range cmdParts {
		if strings.ContainsAny(part, " \t\n\"'") {
			quoted[i] = shellquote.Join(part)
		} else {
			quoted[i] = part
		}
	}

	return strings.Join(quoted, " ")
}

// SanitizeOutput removes sensitive information from command output.
// This is useful for logging command output without exposing secrets.
func SanitizeOutput(output []byte, secrets []string) []byte {
	sanitized := string(output)
	for _, secret := range secrets {
		if secret != "" {
			sanitized = strings.ReplaceAll(sanitized, secret, "***REDACTED***")
		}
	}
	return []byte(sanitized)
}
