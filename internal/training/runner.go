package training

import (
	"context"
	"io"
	"os/exec"
)

// CommandRunner starts external processes.
type CommandRunner interface {
	Start(ctx context.Context, name string, args []string) (stdout, stderr io.ReadCloser, wait func() error, err error)
}

// ExecCommandRunner uses os/exec.
type ExecCommandRunner struct {
	// Dir is the working directory of started commands; empty means the current one.
	Dir string
}

// Start starts a command with piped output.
func (r ExecCommandRunner) Start(ctx context.Context, name string, args []string) (stdout, stderr io.ReadCloser, wait func() error, err error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = r.Dir

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, nil, err
	}

	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, nil, nil, err
	}

	if err := cmd.Start(); err != nil {
		return nil, nil, nil, err
	}

	return stdoutPipe, stderrPipe, cmd.Wait, nil
}
