package sandbox

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"
)

// Local runs commands directly on the host, scoped to the project
// directory. Intended for development; production sessions use the
// docker manager.
type Local struct {
	workDir string
}

var _ Manager = (*Local)(nil)

// NewLocal creates a Local manager with the given working directory.
func NewLocal(workDir string) *Local {
	return &Local{workDir: workDir}
}

func (l *Local) Exec(ctx context.Context, sessionID, command string, timeout time.Duration) (*Result, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command)
	cmd.Dir = l.workDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := &Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return nil, err
	}
	return res, nil
}

func (l *Local) Stop(ctx context.Context, sessionID string) error { return nil }

func (l *Local) Close() error { return nil }
