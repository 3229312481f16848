// Package zfs wraps the zfs CLI for the snapshot and backup commands.
//
// Design decisions:
//   - We shell out to `zfs` rather than using a Go binding because the ZFS
//     tools are universally present on the storage hosts and the parsable
//     output flags (-H -p -o) give a stable machine interface.
//   - Every invocation goes through a single Runner that distinguishes
//     read-only commands from mutating ones. In dry-run mode read-only
//     commands still execute (discovery must work to show a plan) while
//     mutating commands are logged and skipped.
//   - All errors from zfs commands are wrapped in model.CLIError with
//     ExitZFSError to enable proper CLI exit code handling.
package zfs

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/panzer1119/homelabctl/internal/model"
)

// Runner executes zfs commands with dry-run semantics and optional logging.
// The zero value is a live (non-dry-run), silent runner.
type Runner struct {
	// DryRun suppresses mutating commands. Read-only commands still run
	// so that planning output reflects the real pool state.
	DryRun bool

	// Logf receives human-readable progress lines ("Create snapshot ...").
	// Nil disables logging.
	Logf func(format string, args ...interface{})

	// execFn overrides command execution in tests. Nil runs the real
	// zfs binary.
	execFn func(ctx context.Context, args []string) (string, error)
}

// logf forwards to Logf if set, prefixing "[dry-run]" when a mutating
// action is being skipped.
func (r *Runner) logf(mutating bool, format string, args ...interface{}) {
	if r.Logf == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if r.DryRun && mutating {
		msg = "[dry-run] " + msg
	}
	r.Logf("%s", msg)
}

// runReadOnly executes a read-only zfs command and returns its stdout.
// Read-only commands execute even in dry-run mode.
func (r *Runner) runReadOnly(ctx context.Context, args ...string) (string, error) {
	return r.exec(ctx, args)
}

// runMutating executes a mutating zfs command, logging the given message.
// In dry-run mode the command is logged but not executed.
func (r *Runner) runMutating(ctx context.Context, message string, args ...string) error {
	r.logf(true, "%s", message)
	if r.DryRun {
		return nil
	}
	_, err := r.exec(ctx, args)
	return err
}

// exec dispatches to the injected exec function when set, the real zfs
// binary otherwise.
func (r *Runner) exec(ctx context.Context, args []string) (string, error) {
	if r.execFn != nil {
		return r.execFn(ctx, args)
	}
	return runZFS(ctx, args)
}

// runZFS runs `zfs <args>` and captures stdout. stderr is folded into the
// error so failures carry the zfs diagnostic ("dataset does not exist",
// "pool I/O is currently suspended", ...).
func runZFS(ctx context.Context, args []string) (string, error) {
	cmd := exec.CommandContext(ctx, "zfs", args...)

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return "", model.WrapCLIError(
			model.ExitZFSError,
			fmt.Sprintf("zfs %s failed: %s", strings.Join(args, " "), detail),
			err,
		)
	}
	return stdout.String(), nil
}

// parseTabular splits parsable zfs output (-H: tab-separated, no header)
// into rows of columns. Empty lines are skipped.
func parseTabular(output string) [][]string {
	var rows [][]string
	for _, line := range strings.Split(output, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		rows = append(rows, strings.Split(line, "\t"))
	}
	return rows
}
