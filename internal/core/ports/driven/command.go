package driven

import "context"

// CommandRunner executes an external binary and returns its stdout.
// Implementations must honour ctx cancellation and deadlines so a stuck
// subprocess only affects the document being processed.
type CommandRunner interface {
	// Run executes name with args and returns standard output.
	// A nonzero exit status is returned as an error that includes stderr.
	Run(ctx context.Context, name string, args ...string) ([]byte, error)

	// LookPath reports whether name resolves to an executable.
	LookPath(name string) (string, error)
}
