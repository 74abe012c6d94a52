package supervisor

import (
	"errors"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

const (
	// stopGracePeriod bounds how long Stop waits for the child to exit
	// after SIGTERM before escalating to SIGKILL.
	stopGracePeriod = 5 * time.Second
	restartPause    = time.Second
)

var ErrNoBinary = errors.New("engine binary not configured")

// State is the reported lifecycle state of the supervised engine.
type State string

const (
	StateStopped State = "stopped"
	StateRunning State = "running"
)

// Status is a point-in-time view of the supervised process.
type Status struct {
	State State `json:"state"`
	PID   int   `json:"pid,omitempty"`
}

// Supervisor runs the detection engine as a child process and keeps the
// dashboard's view of it current. All methods are safe for concurrent use.
type Supervisor struct {
	binary string
	args   []string
	log    zerolog.Logger

	mu    sync.Mutex
	cmd   *exec.Cmd
	state State
}

func New(binary string, args []string, log zerolog.Logger) *Supervisor {
	return &Supervisor{
		binary: binary,
		args:   args,
		log:    log.With().Str("component", "supervisor").Logger(),
		state:  StateStopped,
	}
}

// Start launches the engine. It is a no-op when the engine is already
// running.
func (s *Supervisor) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.refreshLocked() == StateRunning {
		return nil
	}
	return s.startLocked()
}

func (s *Supervisor) startLocked() error {
	if s.binary == "" {
		return ErrNoBinary
	}

	cmd := exec.Command(s.binary, s.args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return err
	}

	s.cmd = cmd
	s.state = StateRunning
	s.log.Info().Int("pid", cmd.Process.Pid).Str("binary", s.binary).Msg("engine started")

	// Reap the child so it never lingers as a zombie.
	go func() {
		cmd.Wait()
	}()

	return nil
}

// Stop terminates the engine with SIGTERM, escalating to SIGKILL when it
// does not exit within the grace period. Stopping a stopped engine is a
// no-op.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopLocked()
}

func (s *Supervisor) stopLocked() error {
	if s.refreshLocked() != StateRunning {
		return nil
	}

	pid := s.cmd.Process.Pid
	s.log.Info().Int("pid", pid).Msg("stopping engine")

	if err := s.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		// Already gone.
		s.cmd = nil
		s.state = StateStopped
		return nil
	}

	deadline := time.Now().Add(stopGracePeriod)
	for time.Now().Before(deadline) {
		if !s.aliveLocked() {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}

	if s.aliveLocked() {
		s.log.Warn().Int("pid", pid).Msg("engine did not exit in time, killing")
		s.cmd.Process.Kill()
	}

	s.cmd = nil
	s.state = StateStopped
	s.log.Info().Int("pid", pid).Msg("engine stopped")
	return nil
}

// Restart stops the engine if it runs, pauses briefly so the video device
// is released, and starts it again.
func (s *Supervisor) Restart() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.stopLocked(); err != nil {
		return err
	}
	time.Sleep(restartPause)
	return s.startLocked()
}

// Status reports the current engine state. The child is probed on every
// call, so a crashed engine is noticed lazily rather than through a
// monitor goroutine.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.refreshLocked()
	st := Status{State: state}
	if state == StateRunning {
		st.PID = s.cmd.Process.Pid
	}
	return st
}

// refreshLocked re-checks the child and reconciles recorded state with
// reality, logging only on transitions.
func (s *Supervisor) refreshLocked() State {
	if s.cmd == nil {
		return StateStopped
	}
	if !s.aliveLocked() {
		if s.state == StateRunning {
			s.log.Warn().Int("pid", s.cmd.Process.Pid).Msg("engine exited unexpectedly")
		}
		s.cmd = nil
		s.state = StateStopped
	}
	return s.state
}

// aliveLocked probes the child with signal 0.
func (s *Supervisor) aliveLocked() bool {
	if s.cmd == nil || s.cmd.Process == nil {
		return false
	}
	return s.cmd.Process.Signal(syscall.Signal(0)) == nil
}
