package poller

import (
	"context"
	"errors"
	"io/fs"
	"os/exec"
	"sync"
	"time"

	"github.com/stocky-devel/stocky/internal/events"
	"github.com/stocky-devel/stocky/internal/monitoring"
)

// ProcessStatus is the supervisor's view of its child.
type ProcessStatus int

const (
	NotStarted ProcessStatus = iota
	Running
	ConfigError
	CommandFailed
	Stopped
	Completed
)

func (s ProcessStatus) String() string {
	switch s {
	case Running:
		return "running"
	case ConfigError:
		return "config-error"
	case CommandFailed:
		return "command-failed"
	case Stopped:
		return "stopped"
	case Completed:
		return "completed"
	}
	return "not-started"
}

// ProcessSupervisor keeps an external helper command running, e.g. the one
// that binds a Bluetooth reader to its serial device. It never emits events;
// its state is read through Status.
//
// A failed run is relaunched on the next poll. A command that cannot be
// found or executed is a configuration error and is never retried; a
// command that exits zero has completed and is not relaunched.
type ProcessSupervisor struct {
	*Base
	argv []string

	mu       sync.Mutex
	status   ProcessStatus
	cmd      *exec.Cmd
	done     chan error
	exitCode int
}

// NewProcessSupervisor returns an active supervisor for argv.
func NewProcessSupervisor(name string, argv []string, interval time.Duration) *ProcessSupervisor {
	return &ProcessSupervisor{Base: NewBase("proc:"+name, interval, true), argv: argv}
}

// Status returns the current process status.
func (p *ProcessSupervisor) Status() ProcessStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// ExitCode returns the exit code of the last finished run.
func (p *ProcessSupervisor) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode
}

func (p *ProcessSupervisor) NextEvent(context.Context) (*events.Event, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.status {
	case ConfigError, Stopped, Completed:
		return nil, nil
	case Running:
		select {
		case err := <-p.done:
			p.reap(err)
		default:
		}
		return nil, nil
	}
	p.launch()
	return nil, nil
}

func (p *ProcessSupervisor) launch() {
	if len(p.argv) == 0 {
		monitoring.Errorf("%s: empty command", p.Name())
		p.status = ConfigError
		return
	}
	cmd := exec.Command(p.argv[0], p.argv[1:]...)
	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
			monitoring.Errorf("%s: cannot run %q: %v", p.Name(), p.argv[0], err)
			p.status = ConfigError
			return
		}
		monitoring.Warnf("%s: start failed: %v", p.Name(), err)
		p.status = CommandFailed
		return
	}
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	p.cmd, p.done, p.status = cmd, done, Running
	monitoring.Infof("%s: started pid %d", p.Name(), cmd.Process.Pid)
}

func (p *ProcessSupervisor) reap(err error) {
	p.exitCode = -1
	if st := p.cmd.ProcessState; st != nil {
		p.exitCode = st.ExitCode()
	}
	p.cmd, p.done = nil, nil
	if err == nil {
		p.status = Completed
		return
	}
	monitoring.Warnf("%s: exited with code %d: %v", p.Name(), p.exitCode, err)
	p.status = CommandFailed
}

// Stop kills a running child and stops supervision.
func (p *ProcessSupervisor) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd != nil {
		p.cmd.Process.Kill()
		<-p.done
		p.cmd, p.done = nil, nil
	}
	p.status = Stopped
	p.SetActive(false)
}
