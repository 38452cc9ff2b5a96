// Package launcher opens a visible terminal window for interactive SSO
// login. This is a fire-and-forget side effect with no tunnel state machine
// involvement: the window is never tracked and login completion is observed
// only through the authenticator's session status.
package launcher

import (
	"fmt"
	"os/exec"
	"runtime"
)

// OpenLoginTerminal spawns a terminal window running the authenticator's
// interactive login for the given environment. An error is returned only
// when the terminal itself cannot be started.
func OpenLoginTerminal(authTool, environment string) error {
	loginCmd := fmt.Sprintf("%s login --environment %s", authTool, environment)

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		script := fmt.Sprintf("tell application %q to do script %q", "Terminal", loginCmd)
		cmd = exec.Command("osascript", "-e", script)
	default:
		cmd = exec.Command("x-terminal-emulator", "-e", "sh", "-c", loginCmd)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("open login terminal: %w", err)
	}
	// Detach: reap in the background, outcome intentionally ignored.
	go cmd.Wait()
	return nil
}
