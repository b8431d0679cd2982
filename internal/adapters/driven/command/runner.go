// Package command runs external binaries for the document conversion and
// recognition adapters.
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/custodia-labs/tender-ingest/internal/core/ports/driven"
	"github.com/custodia-labs/tender-ingest/internal/logger"
)

// DefaultTimeout bounds a single subprocess when the caller's context has no deadline.
const DefaultTimeout = 2 * time.Minute

// maxStderr caps how much stderr is copied into an error message.
const maxStderr = 512

// Ensure Runner implements the interface.
var _ driven.CommandRunner = (*Runner)(nil)

// Runner executes commands with os/exec.
type Runner struct {
	timeout time.Duration
	log     *zap.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithTimeout sets the per-command timeout.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) {
		r.log = logger.OrNop(l)
	}
}

// NewRunner creates a Runner.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{timeout: DefaultTimeout, log: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes name with args. The command is killed when ctx is done or
// the runner timeout elapses, whichever comes first.
func (r *Runner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	r.log.Debug("command finished",
		zap.String("cmd", name),
		zap.Strings("args", args),
		zap.Duration("elapsed", time.Since(start)),
		zap.Error(err),
	)

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return stdout.Bytes(), fmt.Errorf("%s timed out after %s", name, r.timeout)
		}
		return stdout.Bytes(), fmt.Errorf("%s failed: %w: %s", name, err, trimStderr(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// LookPath resolves name on PATH.
func (r *Runner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

func trimStderr(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxStderr {
		s = s[:maxStderr] + "..."
	}
	return s
}
