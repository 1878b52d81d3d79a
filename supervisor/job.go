package supervisor

import (
	"context"
	"fmt"

	"github.com/projecteru2/core/log"

	"github.com/projecteru2/modelforge/notify"
	"github.com/projecteru2/modelforge/types"
)

// PostProcess runs after a natural, successful exit.
type PostProcess func(ctx context.Context) error

// Job ties a Process to its console and the notification hub.
type Job struct {
	proc    *Process
	console *Console
	done    chan struct{}
}

// Run starts c and pumps its output until the outcome is decided. Spawn
// failures are returned synchronously and leave console untouched.
func Run(ctx context.Context, c Command, console *Console, n notify.Notifier, post PostProcess) (*Job, error) {
	proc, err := Start(ctx, c)
	if err != nil {
		return nil, err
	}
	if n == nil {
		n = notify.Discard
	}
	j := &Job{proc: proc, console: console, done: make(chan struct{})}
	go j.pump(ctx, n, post)
	return j, nil
}

// Console returns the transcript the job writes to.
func (j *Job) Console() *Console { return j.console }

// Cancel terminates the program. Non-blocking.
func (j *Job) Cancel() { j.proc.Cancel() }

// Done is closed after the terminal event is recorded and post-processing
// (if any) has finished.
func (j *Job) Done() <-chan struct{} { return j.done }

// Outcome blocks until the process outcome is decided.
func (j *Job) Outcome() Outcome {
	o, _ := j.proc.Wait()
	return o
}

func (j *Job) pump(ctx context.Context, n notify.Notifier, post PostProcess) {
	logger := log.WithFunc("supervisor.pump")
	defer close(j.done)

	for line := range j.proc.Lines() {
		j.console.Append(types.LineEvent(line.Text))
		n.Notify(notify.NewConsoleOutput(line.Text))
	}

	outcome, err := j.proc.Wait()
	switch outcome {
	case OutcomeExited:
		j.console.Append(types.FinishedEvent())
		n.Notify(notify.Finished())
	case OutcomeFailed:
		msg := fmt.Sprintf("reconstruction failed: %v", err)
		j.console.Append(types.ErrorEvent(msg))
		n.Notify(notify.Error(msg))
	default:
		// Canceled runs belong to a phase that is already gone; the
		// transcript records it but the current observer is not told.
		j.console.Append(types.ErrorEvent("reconstruction canceled"))
	}
	logger.Infof(ctx, "reconstruction %s", outcome)

	if outcome != OutcomeExited || post == nil {
		return
	}
	if err := post(ctx); err != nil {
		logger.Warnf(ctx, "post-process: %v", err)
	}
}
