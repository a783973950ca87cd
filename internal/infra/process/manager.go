// Package process is the exec-based ProcessManager. Spawning confirms before
// Start returns; unexpected exits are reported on the Exits channel so the
// service layer can apply the running-to-error transition.
package process

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"mcpreg/internal/domain"
)

const defaultStopGrace = 5 * time.Second

type Manager struct {
	logger    *zap.Logger
	stopGrace time.Duration
	exits     chan domain.ProcessExit

	mu    sync.Mutex
	procs map[domain.ServerID]*runningProc
}

type runningProc struct {
	cmd      *exec.Cmd
	done     chan error
	stopping bool
}

var _ domain.ProcessManager = (*Manager)(nil)

type Options struct {
	Logger    *zap.Logger
	StopGrace time.Duration
}

func NewManager(opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	grace := opts.StopGrace
	if grace <= 0 {
		grace = defaultStopGrace
	}
	return &Manager{
		logger:    logger.Named("process"),
		stopGrace: grace,
		exits:     make(chan domain.ProcessExit, 16),
		procs:     make(map[domain.ServerID]*runningProc),
	}
}

func (m *Manager) Start(ctx context.Context, server domain.Server) (domain.ProcessInfo, error) {
	if err := ctx.Err(); err != nil {
		return domain.ProcessInfo{}, domain.E(domain.CodeStartError, "process.start", "context done", err)
	}
	command, err := domain.NewCommand(server.Configuration.Command)
	if err != nil {
		return domain.ProcessInfo{}, err
	}

	// Reserve the slot before spawning so two concurrent starts of the same
	// server cannot both pass the tracked check.
	proc := &runningProc{done: make(chan error, 1)}
	m.mu.Lock()
	if _, exists := m.procs[server.ID]; exists {
		m.mu.Unlock()
		return domain.ProcessInfo{}, domain.E(domain.CodeStartError, "process.start",
			fmt.Sprintf("process for %s already tracked", server.Name), domain.ErrAlreadyRunning)
	}
	m.procs[server.ID] = proc
	m.mu.Unlock()

	cmd := exec.Command(command.String(), server.Configuration.Args...)
	if server.Configuration.WorkingDirectory != "" {
		cmd.Dir = server.Configuration.WorkingDirectory
	}
	cmd.Env = patchPATHIfNeeded(append(os.Environ(), formatEnv(server.Configuration.Environment)...))

	started := time.Now()
	if err := cmd.Start(); err != nil {
		m.mu.Lock()
		delete(m.procs, server.ID)
		m.mu.Unlock()
		m.logger.Error("spawn failed",
			zap.String("server", server.Name),
			zap.String("command", command.String()),
			zap.Error(err),
		)
		return domain.ProcessInfo{}, domain.E(domain.CodeStartError, "process.start",
			fmt.Sprintf("spawn %s", command), err)
	}

	m.mu.Lock()
	proc.cmd = cmd
	m.mu.Unlock()

	go m.monitor(server.ID, server.Name, proc)

	m.logger.Info("process started",
		zap.String("server", server.Name),
		zap.Int("pid", cmd.Process.Pid),
		zap.Duration("spawn", time.Since(started)),
	)
	return domain.ProcessInfo{PID: cmd.Process.Pid}, nil
}

// monitor waits for process exit and reports it unless a deliberate Stop is
// in flight.
func (m *Manager) monitor(id domain.ServerID, name string, proc *runningProc) {
	err := normalizeExitError(proc.cmd.Wait())
	proc.done <- err

	m.mu.Lock()
	tracked, stillTracked := m.procs[id]
	deliberate := stillTracked && tracked.stopping
	if stillTracked && tracked == proc {
		delete(m.procs, id)
	}
	m.mu.Unlock()

	if deliberate || !stillTracked {
		return
	}
	if err == nil {
		err = errors.New("process exited unexpectedly")
	}
	m.logger.Warn("unexpected exit", zap.String("server", name), zap.Error(err))
	select {
	case m.exits <- domain.ProcessExit{ServerID: id, Err: err, At: time.Now().UTC()}:
	default:
	}
}

func (m *Manager) Stop(ctx context.Context, server domain.Server, reason string) error {
	m.mu.Lock()
	proc, ok := m.procs[server.ID]
	if ok && proc.cmd == nil {
		// slot reserved by a Start whose spawn has not completed yet
		m.mu.Unlock()
		return domain.E(domain.CodeStopError, "process.stop",
			fmt.Sprintf("spawn in flight for %s", server.Name), nil)
	}
	if ok {
		proc.stopping = true
	}
	m.mu.Unlock()
	if !ok {
		return domain.E(domain.CodeStopError, "process.stop",
			fmt.Sprintf("no tracked process for %s", server.Name), domain.ErrNotRunning)
	}

	if err := proc.cmd.Process.Signal(os.Interrupt); err != nil {
		// already gone or signal unsupported; escalate straight to kill
		_ = proc.cmd.Process.Kill()
	}

	grace := m.stopGrace
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < grace {
			grace = remaining
		}
	}

	select {
	case <-proc.done:
	case <-time.After(grace):
		m.logger.Warn("grace period elapsed, killing",
			zap.String("server", server.Name),
			zap.String("reason", reason),
		)
		if err := proc.cmd.Process.Kill(); err != nil {
			return domain.E(domain.CodeStopError, "process.stop", fmt.Sprintf("kill %s", server.Name), err)
		}
		<-proc.done
	}

	m.mu.Lock()
	delete(m.procs, server.ID)
	m.mu.Unlock()

	m.logger.Info("process stopped",
		zap.String("server", server.Name),
		zap.String("reason", reason),
	)
	return nil
}

func (m *Manager) Exits() <-chan domain.ProcessExit {
	return m.exits
}

// normalizeExitError treats signal-terminated exits (code -1) as clean stops.
func normalizeExitError(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == -1 {
		return nil
	}
	return err
}

func formatEnv(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	keys := make([]string, 0, len(env))
	for key := range env {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		out = append(out, key+"="+env[key])
	}
	return out
}
