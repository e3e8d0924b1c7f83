// Package tunnel manages SSH port-forward tunnels to remote inference
// hosts: launching the forwarder, verifying it came up, reusing a live
// tunnel across callers, and tearing it down.
package tunnel

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	pipelineerrors "github.com/videomoments/pipeline/errors"
	"github.com/videomoments/pipeline/log"
	"github.com/videomoments/pipeline/modelconfig"
	"github.com/videomoments/pipeline/subprocess"
)

// Policy selects how Connect treats an already-live tunnel on the target
// local port.
type Policy int

const (
	// ReuseIfAccessible is the orchestrator default: an already-reachable
	// local port is treated as a live tunnel and handed back as-is.
	ReuseIfAccessible Policy = iota
	// FreshCreate always tears down whatever is bound to the local port
	// and opens a new tunnel against the current config, so a changed
	// ssh_remote_host takes effect even if a stale tunnel still answers.
	FreshCreate
)

const (
	forkWait           = 5 * time.Second
	healthCheckTimeout = 3 * time.Second
	sigtermGrace       = 5 * time.Second
)

type tunnelProcess struct {
	cmd        *exec.Cmd
	localPort  int
	sshHost    string
	remoteHost string
	remotePort int
	createdRef int // caller count that believes they created this tunnel
}

// Manager owns the set of live tunnels, one per local port, shared by every
// caller in the process.
type Manager struct {
	mu      sync.Mutex
	tunnels map[int]*tunnelProcess
}

func NewManager() *Manager {
	return &Manager{tunnels: map[int]*tunnelProcess{}}
}

// Handle is returned by Connect. Release must be called exactly once.
type Handle struct {
	release func()
}

func (h Handle) Release() {
	if h.release != nil {
		h.release()
	}
}

// Ensure establishes or reuses the tunnel for cfg according to policy,
// returning a Handle whose Release tears the tunnel down only if this call
// was the one that created it.
func (m *Manager) Ensure(ctx context.Context, cfg modelconfig.ModelConfig, policy Policy) (Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.tunnels[cfg.SSHLocalPort]
	if ok {
		if policy == ReuseIfAccessible && portReachable(cfg.SSHLocalPort) {
			return Handle{release: func() {}}, nil
		}
		// Fresh-create, or a reuse candidate that turned out dead: tear
		// down whatever is there before relaunching.
		m.teardownLocked(existing)
		delete(m.tunnels, cfg.SSHLocalPort)
	} else if policy == ReuseIfAccessible && portReachable(cfg.SSHLocalPort) {
		// Nothing tracked by this process, but something else already
		// answers the port (e.g. a tunnel from a previous process run).
		return Handle{release: func() {}}, nil
	}

	proc, err := m.launchLocked(ctx, cfg)
	if err != nil {
		return Handle{}, err
	}
	m.tunnels[cfg.SSHLocalPort] = proc

	return Handle{release: func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if current, ok := m.tunnels[cfg.SSHLocalPort]; ok && current == proc {
			m.teardownLocked(current)
			delete(m.tunnels, cfg.SSHLocalPort)
		}
	}}, nil
}

func (m *Manager) launchLocked(ctx context.Context, cfg modelconfig.ModelConfig) (*tunnelProcess, error) {
	forward := fmt.Sprintf("%d:%s:%d", cfg.SSHLocalPort, cfg.SSHRemoteHost, cfg.SSHRemotePort)
	cmd := exec.CommandContext(ctx, "ssh",
		"-fN",
		"-o", "ExitOnForwardFailure=yes",
		"-o", "StrictHostKeyChecking=no",
		"-o", "ConnectTimeout=10",
		"-L", forward,
		cfg.SSHHost,
	)
	if err := subprocess.LogOutputs(cmd); err != nil {
		log.LogError(cfg.ModelKey, "failed to attach tunnel output streaming", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, pipelineerrors.New(pipelineerrors.TunnelUnavailable, "failed to launch ssh tunnel", err)
	}

	time.Sleep(forkWait)
	if !portReachable(cfg.SSHLocalPort) {
		_ = cmd.Process.Kill()
		return nil, pipelineerrors.New(pipelineerrors.TunnelUnavailable, fmt.Sprintf("tunnel to %s did not become reachable on port %d", cfg.SSHHost, cfg.SSHLocalPort), nil)
	}
	return &tunnelProcess{
		cmd:        cmd,
		localPort:  cfg.SSHLocalPort,
		sshHost:    cfg.SSHHost,
		remoteHost: cfg.SSHRemoteHost,
		remotePort: cfg.SSHRemotePort,
	}, nil
}

// teardownLocked kills the live tunnel. ssh -fN forks into the background
// and the foreground process this package started exits immediately once
// forwarding is up, so t.cmd.Process is already dead by the time teardown
// runs; signaling it is a no-op. The real, still-running ssh is found by
// scanning the process table for an "ssh" command line that names this
// tunnel's forward spec, the same way the original's _find_tunnel_process
// matches on cmdline substrings instead of a remembered PID.
func (m *Manager) teardownLocked(t *tunnelProcess) {
	if t.cmd != nil && t.cmd.Process != nil {
		_ = t.cmd.Process.Signal(syscall.SIGTERM)
	}

	proc, err := findTunnelProcess(t.sshHost, t.remoteHost, t.remotePort)
	if err != nil || proc == nil {
		return
	}

	_ = proc.Terminate()
	done := make(chan struct{})
	go func() {
		for portReachable(t.localPort) {
			time.Sleep(100 * time.Millisecond)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(sigtermGrace):
		_ = proc.Kill()
	}
}

// findTunnelProcess locates the backgrounded "ssh -L ..." process forwarding
// to remoteHost:remotePort over sshHost, matching on the command line the
// way psutil.process_iter cmdline matching does in the original.
func findTunnelProcess(sshHost, remoteHost string, remotePort int) (*process.Process, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, err
	}
	forward := ":" + remoteHost + ":" + strconv.Itoa(remotePort)
	for _, p := range procs {
		cmdline, err := p.Cmdline()
		if err != nil {
			continue
		}
		if !strings.Contains(cmdline, "ssh") {
			continue
		}
		if strings.Contains(cmdline, forward) && strings.Contains(cmdline, sshHost) {
			return p, nil
		}
	}
	return nil, nil
}

func portReachable(port int) bool {
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("localhost:%d", port), healthCheckTimeout)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
