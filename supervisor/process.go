package supervisor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/projecteru2/core/log"

	"github.com/projecteru2/modelforge/utils"
)

const (
	defaultStopGrace = 5 * time.Second
	maxLineBytes     = 1 << 20
)

// ErrSpawn wraps every failure to launch the program.
var ErrSpawn = errors.New("spawn process")

// Outcome is the single terminal state of a process.
type Outcome int

const (
	OutcomeRunning  Outcome = iota
	OutcomeExited           // exited with status 0
	OutcomeFailed           // non-zero exit, signal, or broken output
	OutcomeCanceled         // Cancel (or ctx) won the race
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRunning:
		return "running"
	case OutcomeExited:
		return "exited"
	case OutcomeFailed:
		return "failed"
	case OutcomeCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Stream names the pipe a line came from.
type Stream int

const (
	Stdout Stream = iota
	Stderr
)

// Line is one line of program output.
type Line struct {
	Stream Stream
	Text   string
}

// Command describes the program to run.
type Command struct {
	Binary    string
	Args      []string
	Dir       string
	Env       []string
	StopGrace time.Duration // SIGTERM to SIGKILL delay on Cancel
}

// Process is a running program in its own process group.
type Process struct {
	cmd   *exec.Cmd
	pipes []io.ReadCloser
	grace time.Duration

	lines      chan Line
	cancel     chan struct{}
	cancelOnce sync.Once
	done       chan struct{}

	outcome Outcome
	err     error
}

// Start launches c. The returned error wraps ErrSpawn; once Start succeeds
// the process always reaches exactly one terminal Outcome.
func Start(ctx context.Context, c Command) (*Process, error) {
	cmd := exec.Command(c.Binary, c.Args...) //nolint:gosec // operator-configured program
	cmd.Dir = c.Dir
	cmd.Env = c.Env
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdout pipe: %w", ErrSpawn, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stderr pipe: %w", ErrSpawn, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSpawn, c.Binary, err)
	}

	grace := c.StopGrace
	if grace <= 0 {
		grace = defaultStopGrace
	}
	p := &Process{
		cmd:    cmd,
		pipes:  []io.ReadCloser{stdout, stderr},
		grace:  grace,
		lines:  make(chan Line),
		cancel: make(chan struct{}),
		done:   make(chan struct{}),
	}
	log.WithFunc("supervisor.Start").Infof(ctx, "started %s (pid %d)", c.Binary, cmd.Process.Pid)

	var readers sync.WaitGroup
	readers.Add(2) //nolint:mnd
	go p.read(stdout, Stdout, &readers)
	go p.read(stderr, Stderr, &readers)

	exited := make(chan error, 1)
	go func() {
		readers.Wait()
		close(p.lines)
		exited <- cmd.Wait()
	}()
	go p.monitor(ctx, exited)
	return p, nil
}

// Pid of the group leader.
func (p *Process) Pid() int { return p.cmd.Process.Pid }

// Lines yields stdout and stderr lines in arrival order. It is closed when
// both streams end or Cancel unblocks the readers.
func (p *Process) Lines() <-chan Line { return p.lines }

// Cancel requests termination of the whole process group. Idempotent and
// non-blocking.
func (p *Process) Cancel() {
	p.cancelOnce.Do(func() { close(p.cancel) })
}

// Done is closed once the outcome is decided.
func (p *Process) Done() <-chan struct{} { return p.done }

// Wait blocks until the outcome is decided. err carries the exit status for
// OutcomeFailed.
func (p *Process) Wait() (Outcome, error) {
	<-p.done
	return p.outcome, p.err
}

func (p *Process) read(r io.Reader, stream Stream, wg *sync.WaitGroup) {
	defer wg.Done()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes) //nolint:mnd
	for sc.Scan() {
		select {
		case p.lines <- Line{Stream: stream, Text: sc.Text()}:
		case <-p.cancel:
			return
		}
	}
	if err := sc.Err(); err != nil && !errors.Is(err, os.ErrClosed) {
		select {
		case p.lines <- Line{Stream: Stderr, Text: fmt.Sprintf("read output: %v", err)}:
		case <-p.cancel:
		}
	}
}

// monitor races natural exit against cancellation. Whichever fires first
// fixes the outcome.
func (p *Process) monitor(ctx context.Context, exited <-chan error) {
	logger := log.WithFunc("supervisor.monitor")
	defer close(p.done)

	select {
	case err := <-exited:
		if err != nil {
			p.outcome, p.err = OutcomeFailed, err
		} else {
			p.outcome = OutcomeExited
		}
		logger.Infof(ctx, "pid %d %s", p.Pid(), p.outcome)
		return
	case <-p.cancel:
	case <-ctx.Done():
		p.Cancel()
	}

	// Terminate before closing the pipes so the group sees SIGTERM, not SIGPIPE.
	if err := utils.TerminateGroup(context.WithoutCancel(ctx), p.Pid(), p.grace); err != nil {
		logger.Warnf(ctx, "terminate pid %d: %v", p.Pid(), err)
	}
	for _, pipe := range p.pipes {
		_ = pipe.Close()
	}
	<-exited
	p.outcome = OutcomeCanceled
	logger.Infof(ctx, "pid %d %s", p.Pid(), p.outcome)
}
