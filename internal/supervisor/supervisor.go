// internal/supervisor/supervisor.go
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrStopped       = errors.New("supervisor stopped")
	ErrForeignBridge = errors.New("bridge was not started by this supervisor and cannot be shut down")
	ErrStillRunning  = errors.New("bridge still answering after shutdown")
)

// ProbeFunc reports whether a bridge is answering.
type ProbeFunc func(ctx context.Context) bool

// ShutdownFunc asks a running bridge to exit. It is used for a bridge this
// supervisor adopted instead of spawning.
type ShutdownFunc func(ctx context.Context) error

const (
	goneTimeout = 10 * time.Second
	gonePoll    = 100 * time.Millisecond
)

// Supervisor runs the bridge as a child process and restarts it on demand.
type Supervisor struct {
	cmdline  []string
	probe    ProbeFunc
	shutdown ShutdownFunc
	out      io.Writer
	backoff time.Duration
	now     func() time.Time

	mu        sync.Mutex
	cmd       *exec.Cmd
	exited    chan struct{}
	lastSpawn time.Time
	stopped   bool
}

func New(cmdline []string, probe ProbeFunc, shutdown ShutdownFunc, out io.Writer, backoff time.Duration) *Supervisor {
	if probe == nil {
		probe = func(context.Context) bool { return false }
	}
	if out == nil {
		out = io.Discard
	}
	return &Supervisor{
		cmdline:  cmdline,
		probe:    probe,
		shutdown: shutdown,
		out:      out,
		backoff:  backoff,
		now:      time.Now,
	}
}

// Start spawns the bridge unless one is already answering.
func (s *Supervisor) Start(ctx context.Context) error {
	if s.probe(ctx) {
		zap.L().Info("🔗 Bridge already running, not spawning")
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spawnLocked()
}

// Ensure respawns the bridge when it is offline, at most once per backoff.
func (s *Supervisor) Ensure(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	if s.runningLocked() || s.now().Sub(s.lastSpawn) < s.backoff {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if s.probe(ctx) {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}
	if s.runningLocked() {
		return nil
	}
	zap.L().Warn("♻️ Bridge offline, respawning")
	return s.spawnLocked()
}

// Kill terminates the bridge and spawns a fresh one. A bridge that was
// adopted rather than spawned is asked to shut down and must stop answering
// before the replacement starts.
func (s *Supervisor) Kill(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}
	if s.runningLocked() {
		if err := s.killLocked(ctx); err != nil {
			return err
		}
		return s.spawnLocked()
	}
	if s.probe(ctx) {
		if err := s.shutdownForeign(ctx); err != nil {
			return err
		}
	}
	return s.spawnLocked()
}

func (s *Supervisor) shutdownForeign(ctx context.Context) error {
	if s.shutdown == nil {
		return ErrForeignBridge
	}
	if err := s.shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down bridge: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, goneTimeout)
	defer cancel()
	ticker := time.NewTicker(gonePoll)
	defer ticker.Stop()
	for s.probe(ctx) {
		select {
		case <-ctx.Done():
			return ErrStillRunning
		case <-ticker.C:
		}
	}
	// a probe cut short by the deadline is not an answer
	if ctx.Err() != nil {
		return ErrStillRunning
	}
	zap.L().Warn("💀 Adopted bridge shut down")
	return nil
}

// Stop kills the child process and disables respawning.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	return s.killLocked(ctx)
}

// Running reports whether a child spawned by this supervisor is alive.
func (s *Supervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runningLocked()
}

func (s *Supervisor) runningLocked() bool {
	if s.exited == nil {
		return false
	}
	select {
	case <-s.exited:
		return false
	default:
		return true
	}
}

func (s *Supervisor) spawnLocked() error {
	if len(s.cmdline) == 0 {
		return errors.New("no bridge command configured")
	}

	cmd := exec.Command(s.cmdline[0], s.cmdline[1:]...)
	cmd.Stdout = s.out
	cmd.Stderr = s.out
	s.lastSpawn = s.now()
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start bridge: %w", err)
	}

	exited := make(chan struct{})
	s.cmd = cmd
	s.exited = exited
	zap.L().Info("🚀 Bridge started", zap.Int("pid", cmd.Process.Pid), zap.Strings("cmd", s.cmdline))

	go func() {
		err := cmd.Wait()
		close(exited)
		if err != nil {
			zap.L().Warn("🛑 Bridge exited", zap.Int("pid", cmd.Process.Pid), zap.Error(err))
			return
		}
		zap.L().Info("🛑 Bridge exited", zap.Int("pid", cmd.Process.Pid))
	}()
	return nil
}

func (s *Supervisor) killLocked(ctx context.Context) error {
	if !s.runningLocked() {
		return nil
	}
	pid := s.cmd.Process.Pid
	if err := s.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to kill bridge: %w", err)
	}
	select {
	case <-s.exited:
		zap.L().Warn("💀 Bridge killed", zap.Int("pid", pid))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
