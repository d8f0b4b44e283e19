package supervisor

import (
	"bufio"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/prismarine/craftd/internal/apperr"
	"github.com/prismarine/craftd/internal/models"
	"github.com/prismarine/craftd/pkg/logger"
)

// TransitionFunc observes every status change the supervisor makes.
// The catalog mirrors transitions through this callback; nothing else
// mutates a server's status.
type TransitionFunc func(serverID string, status models.ServerStatus, detail string)

// PrepareFunc runs before the process is spawned (jar download, file
// provisioning). The server shows Downloading with the reported
// progress message while it runs.
type PrepareFunc func(progress func(message string)) error

// Options configures a Supervisor.
type Options struct {
	BasePath        string
	JavaBinary      string
	ReadyTimeout    time.Duration
	StopGracePeriod time.Duration
	BufferLines     int
	OnTransition    TransitionFunc

	// Command overrides the process factory. Nil means a java child
	// process in the server's folder.
	Command func(srv *models.ManagedServer) *exec.Cmd
}

// Supervisor owns the lifecycle of every managed child process. Commands
// against the same server id are serialized; different ids run fully in
// parallel.
type Supervisor struct {
	mu        sync.Mutex
	instances map[string]*instance
	opts      Options
}

type instance struct {
	id   string
	kind models.ServerKind
	name string

	// cmdMu serializes start/stop/restart for this id. A stop issued
	// while a start is in flight queues here until the start settles.
	cmdMu sync.Mutex

	stateMu       sync.RWMutex
	status        models.ServerStatus
	detail        string
	cmd           *exec.Cmd
	stdin         io.WriteCloser
	stopRequested bool
	exited        chan struct{}

	logs *RingBuffer

	subsMu sync.Mutex
	subs   map[chan string]struct{}
}

func New(opts Options) *Supervisor {
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = 120 * time.Second
	}
	if opts.StopGracePeriod <= 0 {
		opts.StopGracePeriod = 30 * time.Second
	}
	if opts.BufferLines <= 0 {
		opts.BufferLines = 1000
	}
	return &Supervisor{
		instances: make(map[string]*instance),
		opts:      opts,
	}
}

func (s *Supervisor) instanceFor(srv *models.ManagedServer) *instance {
	s.mu.Lock()
	defer s.mu.Unlock()

	inst, ok := s.instances[srv.ID]
	if !ok {
		inst = &instance{
			id:     srv.ID,
			kind:   srv.Kind,
			name:   srv.Name,
			status: models.StatusStopped,
			logs:   NewRingBuffer(s.opts.BufferLines),
			subs:   make(map[chan string]struct{}),
		}
		s.instances[srv.ID] = inst
	}
	return inst
}

func (s *Supervisor) get(id string) (*instance, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.instances[id]
	return inst, ok
}

// Status returns the live status of a server. A server the supervisor
// has never touched is Stopped.
func (s *Supervisor) Status(id string) (models.ServerStatus, string) {
	inst, ok := s.get(id)
	if !ok {
		return models.StatusStopped, ""
	}
	inst.stateMu.RLock()
	defer inst.stateMu.RUnlock()
	return inst.status, inst.detail
}

// IsActive reports whether the server is anywhere between Downloading
// and Stopping.
func (s *Supervisor) IsActive(id string) bool {
	st, _ := s.Status(id)
	switch st {
	case models.StatusDownloading, models.StatusStarting, models.StatusRunning, models.StatusStopping:
		return true
	}
	return false
}

// Start runs prepare (if any) under a Downloading status, spawns the
// process and waits for the ready marker or the ready timeout. Rejected
// with AlreadyActive unless the server is Stopped or Crashed.
func (s *Supervisor) Start(srv *models.ManagedServer, prepare PrepareFunc) error {
	inst := s.instanceFor(srv)
	inst.cmdMu.Lock()
	defer inst.cmdMu.Unlock()
	return s.startLocked(inst, srv, prepare)
}

// Stop sends the kind's graceful-shutdown command, waits up to the
// grace period and kills the process if still alive. Stop on a Stopped
// or Crashed server is a no-op success.
func (s *Supervisor) Stop(id string) error {
	inst, ok := s.get(id)
	if !ok {
		return nil
	}
	inst.cmdMu.Lock()
	defer inst.cmdMu.Unlock()
	return s.stopLocked(inst)
}

// Restart performs stop then start as one serialized operation.
func (s *Supervisor) Restart(srv *models.ManagedServer, prepare PrepareFunc) error {
	inst := s.instanceFor(srv)
	inst.cmdMu.Lock()
	defer inst.cmdMu.Unlock()

	if err := s.stopLocked(inst); err != nil {
		return err
	}
	return s.startLocked(inst, srv, prepare)
}

// SendCommand writes one line to the process's stdin. Fails with
// NotRunning unless the server is Running.
func (s *Supervisor) SendCommand(id, text string) error {
	inst, ok := s.get(id)
	if !ok {
		return apperr.New(apperr.KindNotRunning, "server %s is not running", id)
	}

	inst.stateMu.Lock()
	defer inst.stateMu.Unlock()

	if inst.status != models.StatusRunning || inst.stdin == nil {
		return apperr.New(apperr.KindNotRunning, "server %s is not running", id)
	}
	if _, err := fmt.Fprintln(inst.stdin, text); err != nil {
		return apperr.Wrap(apperr.KindInternal, err, "console write failed")
	}
	return nil
}

// Logs returns up to maxLines of the most recent console output, oldest
// first. Never blocks on the process.
func (s *Supervisor) Logs(id string, maxLines int) []string {
	inst, ok := s.get(id)
	if !ok {
		return nil
	}
	return inst.logs.Last(maxLines)
}

// Subscribe returns a channel receiving live console lines and a cancel
// function. Slow subscribers drop lines rather than stall the drain.
func (s *Supervisor) Subscribe(id string) (<-chan string, func(), error) {
	inst, ok := s.get(id)
	if !ok {
		return nil, nil, apperr.New(apperr.KindUnknownServer, "server %s has no console", id)
	}

	ch := make(chan string, 128)
	inst.subsMu.Lock()
	inst.subs[ch] = struct{}{}
	inst.subsMu.Unlock()

	cancel := func() {
		inst.subsMu.Lock()
		if _, ok := inst.subs[ch]; ok {
			delete(inst.subs, ch)
			close(ch)
		}
		inst.subsMu.Unlock()
	}
	return ch, cancel, nil
}

// Remove force-stops the server if needed and forgets the instance.
// Used by delete.
func (s *Supervisor) Remove(id string) error {
	inst, ok := s.get(id)
	if !ok {
		return nil
	}
	inst.cmdMu.Lock()
	err := s.stopLocked(inst)
	inst.cmdMu.Unlock()
	if err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.instances, id)
	s.mu.Unlock()
	return nil
}

func (s *Supervisor) startLocked(inst *instance, srv *models.ManagedServer, prepare PrepareFunc) error {
	inst.stateMu.RLock()
	status := inst.status
	inst.stateMu.RUnlock()

	switch status {
	case models.StatusStopped, models.StatusCrashed:
	default:
		return apperr.New(apperr.KindAlreadyActive, "server %s is %s", srv.Name, status)
	}

	if prepare != nil {
		s.transition(inst, models.StatusDownloading, "preparing server files")
		if err := prepare(func(msg string) {
			s.transition(inst, models.StatusDownloading, msg)
		}); err != nil {
			s.transition(inst, models.StatusStopped, "")
			return err
		}
	}

	s.transition(inst, models.StatusStarting, "")

	factory := s.opts.Command
	if factory == nil {
		factory = func(sv *models.ManagedServer) *exec.Cmd {
			return javaCommand(s.opts.JavaBinary, s.opts.BasePath, sv)
		}
	}
	cmd := factory(srv)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		s.transition(inst, models.StatusStopped, "")
		return apperr.Wrap(apperr.KindInternal, err, "failed to open console input")
	}

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		s.transition(inst, models.StatusStopped, "")
		return apperr.Wrap(apperr.KindInternal, err, "failed to spawn server process")
	}

	exited := make(chan struct{})
	ready := make(chan struct{})

	inst.stateMu.Lock()
	inst.cmd = cmd
	inst.stdin = stdin
	inst.stopRequested = false
	inst.exited = exited
	inst.stateMu.Unlock()

	go inst.drain(pr, ready)
	go func() {
		waitErr := cmd.Wait()
		pw.Close()
		close(exited)
		s.handleExit(inst, waitErr)
	}()

	logger.Info("Server process spawned", map[string]interface{}{
		"server_id": srv.ID,
		"name":      srv.Name,
		"kind":      string(srv.Kind),
		"pid":       cmd.Process.Pid,
	})

	select {
	case <-ready:
	case <-exited:
		s.transitionIf(inst, models.StatusStarting, models.StatusCrashed, "process exited during startup")
		return apperr.New(apperr.KindInternal, "server %s exited during startup", srv.Name)
	case <-time.After(s.opts.ReadyTimeout):
		// No marker within the window. Assume up; early commands may
		// still be ignored by the process.
		logger.Warn("Ready marker not seen before timeout", map[string]interface{}{
			"server_id": srv.ID,
		})
	}

	// The process may have printed the marker and died right after. The
	// exit handler races us for the Starting state; exactly one side
	// wins, so a dead process can never end up Running.
	if !s.transitionIf(inst, models.StatusStarting, models.StatusRunning, "") {
		return apperr.New(apperr.KindInternal, "server %s exited during startup", srv.Name)
	}
	return nil
}

func (s *Supervisor) stopLocked(inst *instance) error {
	inst.stateMu.Lock()
	switch inst.status {
	case models.StatusStopped, models.StatusCrashed:
		inst.stateMu.Unlock()
		return nil
	}
	inst.stopRequested = true
	stdin := inst.stdin
	cmd := inst.cmd
	exited := inst.exited
	inst.stateMu.Unlock()

	s.transition(inst, models.StatusStopping, "")

	if cmd == nil || cmd.Process == nil {
		s.transition(inst, models.StatusStopped, "")
		return nil
	}

	if stdin != nil {
		fmt.Fprintln(stdin, inst.kind.ShutdownCommand())
	}

	select {
	case <-exited:
	case <-time.After(s.opts.StopGracePeriod):
		logger.Warn("Grace period elapsed, killing process", map[string]interface{}{
			"server_id": inst.id,
		})
		_ = cmd.Process.Kill()
		<-exited
	}

	s.transition(inst, models.StatusStopped, "")
	return nil
}

// handleExit classifies a process exit the stop path did not ask for.
// The status check and the Crashed write happen under one lock so the
// start path cannot promote a dead process to Running in between.
func (s *Supervisor) handleExit(inst *instance, waitErr error) {
	detail := "process exited unexpectedly"
	if waitErr != nil {
		detail = waitErr.Error()
	}

	inst.stateMu.Lock()
	inst.cmd = nil
	inst.stdin = nil
	if inst.stopRequested {
		inst.stateMu.Unlock()
		return
	}
	switch inst.status {
	case models.StatusRunning:
	case models.StatusStarting:
		detail = "process exited during startup"
	default:
		inst.stateMu.Unlock()
		return
	}
	inst.status = models.StatusCrashed
	inst.detail = detail
	inst.stateMu.Unlock()

	logger.Error("Server crashed", waitErr, map[string]interface{}{
		"server_id": inst.id,
	})
	if s.opts.OnTransition != nil {
		s.opts.OnTransition(inst.id, models.StatusCrashed, detail)
	}
}

// transitionIf performs the transition only when the current status is
// from, returning whether it happened.
func (s *Supervisor) transitionIf(inst *instance, from, to models.ServerStatus, detail string) bool {
	inst.stateMu.Lock()
	if inst.status != from {
		inst.stateMu.Unlock()
		return false
	}
	inst.status = to
	inst.detail = detail
	inst.stateMu.Unlock()

	if s.opts.OnTransition != nil {
		s.opts.OnTransition(inst.id, to, detail)
	}
	return true
}

func (s *Supervisor) transition(inst *instance, status models.ServerStatus, detail string) {
	inst.stateMu.Lock()
	inst.status = status
	inst.detail = detail
	inst.stateMu.Unlock()

	if s.opts.OnTransition != nil {
		s.opts.OnTransition(inst.id, status, detail)
	}
}

// drain copies the process's combined output into the ring buffer and
// live subscribers, signalling ready on the kind's marker. One drain
// goroutine per process run; the process never stalls on a full pipe.
func (inst *instance) drain(r io.Reader, ready chan struct{}) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 256*1024)

	signaled := false
	for scanner.Scan() {
		line := scanner.Text()
		inst.logs.Append(line)
		inst.broadcast(line)
		if !signaled && matchesReady(line, inst.kind) {
			close(ready)
			signaled = true
		}
	}
}

func (inst *instance) broadcast(line string) {
	inst.subsMu.Lock()
	defer inst.subsMu.Unlock()
	for ch := range inst.subs {
		select {
		case ch <- line:
		default:
		}
	}
}
