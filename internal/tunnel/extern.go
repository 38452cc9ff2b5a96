// extern.go adapts the external authenticator command. The tool is opaque:
// the manager only sees argv, combined output, and the exit status.

package tunnel

import (
	"context"
	"fmt"
	"os/exec"
	"slices"
	"strings"
)

// Tools holds the argv for each authenticator operation. The environment
// identifier is appended to Login.
type Tools struct {
	Login  []string
	Status []string
	Logout []string
}

// DefaultTools returns the standard subcommand layout for the given
// authenticator binary.
func DefaultTools(bin string) Tools {
	return Tools{
		Login:  []string{bin, "login", "--environment"},
		Status: []string{bin, "session", "status"},
		Logout: []string{bin, "logout"},
	}
}

// RunLogin authenticates against the given environment.
func (t Tools) RunLogin(ctx context.Context, environment string) (string, error) {
	return runCommand(ctx, append(slices.Clone(t.Login), environment))
}

// RunStatus queries the external session status.
func (t Tools) RunStatus(ctx context.Context) (string, error) {
	return runCommand(ctx, t.Status)
}

// RunLogout revokes the external session.
func (t Tools) RunLogout(ctx context.Context) (string, error) {
	return runCommand(ctx, t.Logout)
}

// runCommand executes argv and returns its trimmed combined output. A
// non-zero exit is returned as the error alongside whatever the tool printed.
func runCommand(ctx context.Context, argv []string) (string, error) {
	if len(argv) == 0 {
		return "", fmt.Errorf("no command configured")
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	out, err := cmd.CombinedOutput()
	return strings.TrimSpace(string(out)), err
}

// diagnostic folds a tool's output and exit error into one human-readable
// line, preferring the tool's own text.
func diagnostic(out string, err error) string {
	if out != "" {
		return out
	}
	if err != nil {
		return err.Error()
	}
	return "no diagnostic output"
}
