// manager.go owns the single tunnel session slot.
//
// Connect drives authenticate -> allocate port -> launch subprocess -> await
// confirmation, publishing a snapshot on every transition. The tunnel tool
// gives no ready signal, so a launch that survives ConfirmDelay without a
// failure event is treated as connected; the first of {stderr output, spawn
// error, process exit} commits the failure branch instead, through a one-shot
// cell so exactly one response path is taken.
//
// A generation counter guards the slot against stale subprocess events: every
// launch and teardown bumps the generation, and an event handler only acts
// when its captured generation is still current. This is what lets a new
// Connect replace a live tunnel without the old tunnel's exit event tearing
// the new one down.

package tunnel

import (
	"context"
	"fmt"
	"log"
	"os/exec"
	"slices"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/perimetra/tunnelgate/internal/audit"
	"github.com/perimetra/tunnelgate/internal/config"
	"github.com/perimetra/tunnelgate/internal/logutil"
	"github.com/perimetra/tunnelgate/internal/ports"
)

// Options configures a Manager.
type Options struct {
	Profiles map[string]config.Profile
	Tools    Tools

	// TunnelCommand is the argv prefix for the tunnel subprocess; the manager
	// appends localPort, remoteHost, remoteDBPort, and the bastion target.
	TunnelCommand []string
	Bastion       string
	RemoteDBPort  int

	ConfirmDelay  time.Duration
	PortScanCount int
}

// Manager serializes all mutations of the single tunnel session slot.
type Manager struct {
	opts  Options
	bcast *Broadcaster

	// connectMu serializes connect attempts. A later Connect replaces the
	// earlier tunnel rather than queueing behind it.
	connectMu sync.Mutex

	mu    sync.Mutex // guards the slot fields below
	state State
	env   string
	port  int
	cmd   *exec.Cmd
	gen   uint64
}

// NewManager creates a Manager in the Disconnected state.
func NewManager(opts Options, bcast *Broadcaster) *Manager {
	if opts.ConfirmDelay <= 0 {
		opts.ConfirmDelay = 5 * time.Second
	}
	if opts.PortScanCount <= 0 {
		opts.PortScanCount = 50
	}
	if opts.RemoteDBPort <= 0 {
		opts.RemoteDBPort = 3306
	}
	return &Manager{opts: opts, bcast: bcast, state: StateDisconnected}
}

// Connect establishes a tunnel to the named environment and returns the
// allocated local port. Any existing tunnel is torn down first. All failures
// are returned as *Failure with a stable code.
func (m *Manager) Connect(ctx context.Context, environment string) (int, error) {
	profile, ok := m.opts.Profiles[environment]
	if !ok {
		return 0, &Failure{CodeInvalidEnvironment, fmt.Sprintf("unknown environment %q", logutil.SanitizeForLog(environment))}
	}

	m.connectMu.Lock()
	defer m.connectMu.Unlock()

	attemptID := uuid.NewString()
	started := time.Now()
	audit.LogEvent(audit.Entry{AttemptID: attemptID, EventType: audit.EventConnectStarted, Environment: environment})

	// Replace, don't queue.
	if m.teardown("replaced by connect to " + environment) {
		log.Printf("Existing tunnel torn down before connecting to %s", environment)
	}

	fail := func(code Code, detail string) (int, error) {
		m.teardown("connect attempt aborted")
		audit.LogEvent(audit.Entry{
			AttemptID:   attemptID,
			EventType:   audit.EventConnectFailed,
			Environment: environment,
			Details:     string(code) + ": " + detail,
			DurationMs:  time.Since(started).Milliseconds(),
		})
		return 0, &Failure{code, detail}
	}

	m.setPhase(StateAuthenticating, environment)
	if out, err := m.opts.Tools.RunLogin(ctx, environment); err != nil {
		return fail(CodeAuthenticationFailed, diagnostic(out, err))
	}
	if out, err := m.opts.Tools.RunStatus(ctx); err != nil {
		return fail(CodeStatusQueryFailed, diagnostic(out, err))
	}

	m.setPhase(StateAllocating, environment)
	port, err := ports.Allocate(profile.PreferredPort, m.opts.PortScanCount)
	if err != nil {
		return fail(CodeNoPortAvailable, err.Error())
	}

	argv := append(slices.Clone(m.opts.TunnelCommand),
		strconv.Itoa(port), profile.RemoteHost, strconv.Itoa(m.opts.RemoteDBPort), m.opts.Bastion)
	cmd := exec.Command(argv[0], argv[1:]...)

	// One-shot failure cell: the first failure signal wins, the rest are
	// dropped. The confirmation timer below takes the other select branch.
	failCh := make(chan string, 1)
	signalFailure := func(diag string) {
		select {
		case failCh <- diag:
		default:
		}
	}

	gen := m.nextGeneration()
	cmd.Stderr = &stderrTap{manager: m, gen: gen, signal: signalFailure}

	if err := cmd.Start(); err != nil {
		return fail(CodeTunnelLaunchFailed, "spawn tunnel process: "+err.Error())
	}
	if m.beginLaunch(gen, cmd, environment, port) {
		log.Printf("Tunnel process started (pid %d): %s -> %s:%d via %s on local port %d",
			cmd.Process.Pid, environment, profile.RemoteHost, m.opts.RemoteDBPort, m.opts.Bastion, port)
	}

	go m.watchExit(gen, cmd, environment, signalFailure)

	select {
	case diag := <-failCh:
		m.teardownGeneration(gen, "launch failed")
		audit.LogEvent(audit.Entry{
			AttemptID:   attemptID,
			EventType:   audit.EventConnectFailed,
			Environment: environment,
			Details:     "TunnelLaunchFailed: " + diag,
			DurationMs:  time.Since(started).Milliseconds(),
		})
		return 0, &Failure{CodeTunnelLaunchFailed, diag}
	case <-time.After(m.opts.ConfirmDelay):
		if !m.confirm(gen) {
			// The slot was replaced or torn down while waiting.
			return 0, &Failure{CodeTunnelLaunchFailed, "tunnel was torn down before confirmation"}
		}
		audit.LogEvent(audit.Entry{
			AttemptID:   attemptID,
			EventType:   audit.EventConnectSucceeded,
			Environment: environment,
			Details:     fmt.Sprintf("local port %d", port),
			DurationMs:  time.Since(started).Milliseconds(),
		})
		log.Printf("Tunnel to %s confirmed on local port %d", environment, port)
		return port, nil
	}
}

// Disconnect tears down any active tunnel and revokes the external session.
// Idempotent: always succeeds, whether or not a tunnel was running. The
// logout command is best-effort; its failure is logged only.
func (m *Manager) Disconnect(ctx context.Context) {
	had := m.teardown("disconnect requested")
	if had {
		audit.LogEvent(audit.Entry{EventType: audit.EventDisconnected})
	}

	if out, err := m.opts.Tools.RunLogout(ctx); err != nil {
		log.Printf("Logout command failed (ignored): %v (%s)", err, logutil.SanitizeForLog(out))
	}
}

// Status returns the current snapshot. Never blocks on tunnel operations.
func (m *Manager) Status() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// snapshotLocked builds an immutable snapshot of the slot. Environment and
// LocalPort are emitted together only once a port has been allocated, so
// observers never see one without the other.
func (m *Manager) snapshotLocked() Snapshot {
	snap := Snapshot{
		Connected: m.state == StateConnected,
		State:     m.state.String(),
	}
	if m.env != "" && m.port != 0 {
		env, port := m.env, m.port
		snap.Environment = &env
		snap.LocalPort = &port
	}
	if m.cmd != nil && m.cmd.Process != nil {
		pid := m.cmd.Process.Pid
		snap.PID = &pid
	}
	return snap
}

// publish broadcasts the current snapshot to all observers.
func (m *Manager) publish() {
	m.bcast.Publish(m.Status())
}

// setPhase records an intermediate connect phase and broadcasts it.
func (m *Manager) setPhase(state State, environment string) {
	m.mu.Lock()
	m.state = state
	m.env = environment
	m.mu.Unlock()
	m.publish()
}

// nextGeneration invalidates all outstanding subprocess event handlers and
// returns the new current generation.
func (m *Manager) nextGeneration() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gen++
	return m.gen
}

// beginLaunch stores the launched subprocess in the slot and broadcasts the
// Launching state. A teardown can land in the window between the process
// starting and the slot storing it; the stale generation is detected here and
// the fresh process is killed instead of stored, so it cannot outlive the
// slot. Its exit is still reaped and surfaced by watchExit.
func (m *Manager) beginLaunch(gen uint64, cmd *exec.Cmd, environment string, port int) bool {
	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		m.killProcess(cmd)
		return false
	}
	m.state = StateLaunching
	m.env = environment
	m.port = port
	m.cmd = cmd
	m.mu.Unlock()
	m.publish()
	return true
}

// confirm promotes the slot to Connected if the generation is still current.
func (m *Manager) confirm(gen uint64) bool {
	m.mu.Lock()
	if m.gen != gen || m.cmd == nil {
		m.mu.Unlock()
		return false
	}
	m.state = StateConnected
	m.mu.Unlock()
	m.publish()
	return true
}

// teardown unconditionally clears the slot, killing any live subprocess.
// Returns false when there was nothing to tear down. The kill is
// fire-and-forget; the exit is reaped by the watchExit goroutine, whose
// captured generation is no longer current.
func (m *Manager) teardown(reason string) bool {
	m.mu.Lock()
	if m.state == StateDisconnected && m.cmd == nil && m.env == "" {
		m.mu.Unlock()
		return false
	}
	m.gen++
	tearing := m.tearingSnapshotLocked()
	cmd := m.clearLocked()
	m.mu.Unlock()

	if tearing != nil {
		m.bcast.Publish(*tearing)
	}
	m.killProcess(cmd)
	log.Printf("Tunnel torn down: %s", reason)
	m.publish()
	return true
}

// teardownGeneration clears the slot only if gen is still the current
// generation. Subprocess event handlers use this so a stale event cannot
// tear down a replacement tunnel.
func (m *Manager) teardownGeneration(gen uint64, reason string) bool {
	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return false
	}
	m.gen++
	tearing := m.tearingSnapshotLocked()
	cmd := m.clearLocked()
	m.mu.Unlock()

	if tearing != nil {
		m.bcast.Publish(*tearing)
	}
	m.killProcess(cmd)
	log.Printf("Tunnel torn down: %s", reason)
	m.publish()
	return true
}

// tearingSnapshotLocked returns a TearingDown snapshot when a live subprocess
// is about to be killed, nil otherwise. Caller holds m.mu.
func (m *Manager) tearingSnapshotLocked() *Snapshot {
	if m.cmd == nil {
		return nil
	}
	m.state = StateTearingDown
	snap := m.snapshotLocked()
	return &snap
}

// clearLocked resets the slot fields and returns the previous subprocess.
// Caller holds m.mu.
func (m *Manager) clearLocked() *exec.Cmd {
	cmd := m.cmd
	m.cmd = nil
	m.env = ""
	m.port = 0
	m.state = StateDisconnected
	return cmd
}

func (m *Manager) killProcess(cmd *exec.Cmd) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		log.Printf("Signal tunnel process %d: %v", cmd.Process.Pid, err)
	}
}

// watchExit reaps the subprocess and handles its exit event: signal the
// in-flight attempt (if any) and tear down the slot if still current.
func (m *Manager) watchExit(gen uint64, cmd *exec.Cmd, environment string, signalFailure func(string)) {
	err := cmd.Wait()
	diag := "tunnel process exited"
	if err != nil {
		diag = "tunnel process exited: " + err.Error()
	}
	signalFailure(diag)
	if m.teardownGeneration(gen, diag) {
		audit.LogEvent(audit.Entry{EventType: audit.EventProcessExited, Environment: environment, Details: diag})
	}
}

// stderrTap treats any output on the tunnel process's error stream as a
// failure signal: the subprocess protocol is silent on success, so stderr
// text means the launch went wrong.
type stderrTap struct {
	manager *Manager
	gen     uint64
	signal  func(string)

	mu    sync.Mutex
	fired bool
}

func (t *stderrTap) Write(p []byte) (int, error) {
	text := strings.TrimSpace(logutil.SanitizeForLog(string(p)))
	if text == "" {
		return len(p), nil
	}

	t.mu.Lock()
	first := !t.fired
	t.fired = true
	t.mu.Unlock()

	if first {
		t.signal(text)
		// Tear down off the exec copy goroutine so Write never blocks on
		// the process being reaped.
		go t.manager.teardownGeneration(t.gen, "tunnel process error: "+text)
	} else {
		log.Printf("Tunnel stderr: %s", text)
	}
	return len(p), nil
}
