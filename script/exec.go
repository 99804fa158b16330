package script

import (
	"context"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// Executor runs lines on the local host instead of writing them out. Failed
// commands are logged and execution carries on.
type Executor struct {
	Logger *slog.Logger
	// Runs a command and returns its combined output
	Exec func(ctx context.Context, name string, args ...string) ([]byte, error)
	// Starts a command without waiting for it
	Start func(name string, args ...string) error
	Wait  func(ctx context.Context, d time.Duration) error
}

func NewExecutor(logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}

	return &Executor{
		Logger: logger,
		Exec: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).CombinedOutput()
		},
		Start: func(name string, args ...string) error {
			return exec.Command(name, args...).Start()
		},
		Wait: func(ctx context.Context, d time.Duration) error {
			timer := time.NewTimer(d)
			defer timer.Stop()

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
				return nil
			}
		},
	}
}

// argv returns the program and arguments to run for l. Lines that need the
// shell (redirections, raw text, background) go through sh -c.
func argv(l Line) (string, []string) {
	if l.Output != "" || l.Stderr != "" || l.Background ||
		(len(l.Args) == 1 && strings.ContainsAny(l.Args[0], " $|")) {
		return "sh", []string{"-c", l.String()}
	}
	return l.Args[0], l.Args[1:]
}

// Run executes lines in order. Only context cancellation stops it early.
func (e *Executor) Run(ctx context.Context, lines ...Line) error {
	for _, l := range lines {
		if err := ctx.Err(); err != nil {
			return err
		}

		if l.IsPause() {
			e.Logger.Debug("Waiting for settle time", "duration", l.Pause)
			if err := e.Wait(ctx, l.Pause); err != nil {
				return err
			}
			continue
		}

		if len(l.Args) == 0 {
			continue
		}

		name, args := argv(l)
		e.Logger.Info("Running", "command", l.String())

		if l.Background {
			if err := e.Start(name, args...); err != nil {
				e.Logger.Error("Couldn't start command", "command", l.String(), "error", err)
			}
			continue
		}

		out, err := e.Exec(ctx, name, args...)
		if len(out) > 0 {
			e.Logger.Debug("Command output", "command", l.String(), "output", string(out))
		}
		if err != nil {
			e.Logger.Warn("Command failed", "command", l.String(), "error", err)
		}
	}

	return nil
}

// Output runs a single command and returns its combined output.
func (e *Executor) Output(ctx context.Context, args ...string) ([]byte, error) {
	return e.Exec(ctx, args[0], args[1:]...)
}
