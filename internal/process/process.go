package process

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

// killGrace bounds the wait after a hard kill.
const killGrace = 200 * time.Millisecond

// waitDelay bounds how long Wait keeps copying output after the process exits.
const waitDelay = 2 * time.Second

var (
	ErrAlreadyStarted = errors.New("process already started")
	ErrStopTimeout    = errors.New("process did not exit before timeout")
)

// Process is a single launched executable. It is started at most once; a
// dedicated goroutine reaps it and closes Done.
type Process struct {
	spec      Spec
	mu        sync.Mutex
	started   bool
	pid       int
	status    Status
	done      chan struct{}
	outCloser io.WriteCloser
	errCloser io.WriteCloser
	release   sync.Once
	signalFn  func(pid int, hard bool) error
}

func New(spec Spec) *Process {
	return &Process{spec: spec, done: make(chan struct{}), signalFn: signal}
}

// Spec returns the spec the process was created with.
func (p *Process) Spec() Spec { return p.spec }

// Start launches the process.
func (p *Process) Start() error {
	if err := p.spec.Validate(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return ErrAlreadyStarted
	}
	cmd := p.spec.BuildCommand()
	cmd.WaitDelay = waitDelay
	if p.spec.Log.Capturing() {
		outW, errW, err := p.spec.Log.ProcessWriters(p.spec.Name)
		if err != nil {
			return fmt.Errorf("open output logs: %w", err)
		}
		p.outCloser, p.errCloser = outW, errW
		if outW != nil {
			cmd.Stdout = outW
		}
		if errW != nil {
			cmd.Stderr = errW
		}
	}
	if err := cmd.Start(); err != nil {
		p.closeWriters()
		return err
	}
	p.started = true
	p.pid = cmd.Process.Pid
	p.status = Status{
		Name:      p.spec.Name,
		Running:   true,
		PID:       p.pid,
		Path:      p.spec.Path,
		Args:      append([]string(nil), p.spec.Args...),
		StartedAt: time.Now(),
	}
	go func() {
		err := cmd.Wait()
		p.mu.Lock()
		p.status.Running = false
		p.status.StoppedAt = time.Now()
		if err != nil {
			p.status.ExitErr = err.Error()
		}
		p.mu.Unlock()
		close(p.done)
	}()
	return nil
}

// PID returns the OS process id, or 0 before Start.
func (p *Process) PID() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pid
}

// Done is closed once the process has exited and been reaped.
func (p *Process) Done() <-chan struct{} { return p.done }

// Exited reports whether the process has been reaped.
func (p *Process) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Terminate asks the process to exit and waits up to wait. If it is still
// alive, a hard kill follows. Terminating an exited or never-started process
// is a no-op.
func (p *Process) Terminate(wait time.Duration) error {
	pid := p.PID()
	if pid == 0 || p.Exited() {
		return nil
	}
	termErr := p.signalFn(pid, false)
	if termErr == nil {
		select {
		case <-p.done:
			return nil
		case <-time.After(wait):
		}
	}
	if p.Exited() {
		return nil
	}
	killErr := p.signalFn(pid, true)
	select {
	case <-p.done:
		return nil
	case <-time.After(killGrace):
	}
	return errors.Join(ErrStopTimeout, termErr, killErr)
}

// Release frees resources held for the process output. It is safe to call
// more than once and from any goroutine. The OS handle itself is reaped by the
// waiter goroutine.
func (p *Process) Release() {
	p.release.Do(func() {
		p.mu.Lock()
		p.closeWriters()
		p.mu.Unlock()
	})
}

// Snapshot returns a copy of the current status. Resource usage is sampled
// while the process is running.
func (p *Process) Snapshot() Status {
	p.mu.Lock()
	s := p.status
	s.Args = append([]string(nil), p.status.Args...)
	p.mu.Unlock()
	if s.Running {
		s.MemoryRSS, s.CPUPercent = sample(s.PID)
	}
	return s
}

func (p *Process) closeWriters() {
	if p.outCloser != nil {
		_ = p.outCloser.Close()
		p.outCloser = nil
	}
	if p.errCloser != nil {
		_ = p.errCloser.Close()
		p.errCloser = nil
	}
}
