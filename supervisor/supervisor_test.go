package supervisor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/projecteru2/modelforge/notify"
	"github.com/projecteru2/modelforge/types"
)

func sh(script string) Command {
	return Command{Binary: "/bin/sh", Args: []string{"-c", script}, StopGrace: 200 * time.Millisecond}
}

type recorder struct {
	mu  sync.Mutex
	got []notify.Message
}

func (r *recorder) Notify(m notify.Message) {
	r.mu.Lock()
	r.got = append(r.got, m)
	r.mu.Unlock()
}

func (r *recorder) messages() []notify.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Message(nil), r.got...)
}

func collect(p *Process) []Line {
	var lines []Line
	for l := range p.Lines() {
		lines = append(lines, l)
	}
	return lines
}

func TestStartExited(t *testing.T) {
	p, err := Start(context.Background(), sh("echo one; echo two 1>&2; echo three"))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	lines := collect(p)
	outcome, err := p.Wait()
	if outcome != OutcomeExited || err != nil {
		t.Fatalf("Wait = %s, %v", outcome, err)
	}
	var texts []string
	stderr := 0
	for _, l := range lines {
		texts = append(texts, l.Text)
		if l.Stream == Stderr {
			stderr++
		}
	}
	if len(texts) != 3 || stderr != 1 {
		t.Errorf("lines = %v (stderr %d)", texts, stderr)
	}
}

func TestStartFailed(t *testing.T) {
	p, err := Start(context.Background(), sh("echo oops; exit 3"))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	collect(p)
	outcome, err := p.Wait()
	if outcome != OutcomeFailed || err == nil {
		t.Fatalf("Wait = %s, %v", outcome, err)
	}
}

func TestStartSpawnError(t *testing.T) {
	_, err := Start(context.Background(), Command{Binary: "/nonexistent/reconstruct"})
	if !errors.Is(err, ErrSpawn) {
		t.Fatalf("expected ErrSpawn, got %v", err)
	}
}

func TestCancelWithPendingOutput(t *testing.T) {
	p, err := Start(context.Background(), sh("trap '' TERM; while true; do echo spam; done"))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	// Nobody drains Lines: readers block on send and must still be released.
	p.Cancel()
	p.Cancel()

	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("process not terminated after Cancel")
	}
	if outcome, _ := p.Wait(); outcome != OutcomeCanceled {
		t.Errorf("outcome = %s, want canceled", outcome)
	}
	for range p.Lines() {
	}
}

func TestContextCancelTerminates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p, err := Start(ctx, sh("sleep 30"))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	cancel()
	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("process not terminated after ctx cancel")
	}
	if outcome, _ := p.Wait(); outcome != OutcomeCanceled {
		t.Errorf("outcome = %s, want canceled", outcome)
	}
}

func TestJobFinished(t *testing.T) {
	console := NewConsole()
	rec := &recorder{}
	posted := make(chan struct{}, 1)
	job, err := Run(context.Background(), sh("echo a; echo b"), console, rec, func(context.Context) error {
		posted <- struct{}{}
		return errors.New("packaging failed")
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	<-job.Done()

	events := console.Snapshot()
	if len(events) != 3 {
		t.Fatalf("console = %v", events)
	}
	if events[0] != types.LineEvent("a") || events[2].Kind != types.ConsoleFinished {
		t.Errorf("console = %v", events)
	}
	msgs := rec.messages()
	if last := msgs[len(msgs)-1]; last.Type != notify.TypeFinished {
		t.Errorf("last message = %v, want Finished", last)
	}
	select {
	case <-posted:
	default:
		t.Error("post-process not run on success")
	}
	if job.Outcome() != OutcomeExited {
		t.Errorf("outcome = %s", job.Outcome())
	}
}

func TestJobFailedSkipsPostProcess(t *testing.T) {
	console := NewConsole()
	rec := &recorder{}
	job, err := Run(context.Background(), sh("exit 1"), console, rec, func(context.Context) error {
		t.Error("post-process must not run on failure")
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	<-job.Done()
	events := console.Snapshot()
	if len(events) != 1 || events[0].Kind != types.ConsoleError {
		t.Errorf("console = %v", events)
	}
	msgs := rec.messages()
	if len(msgs) != 1 || msgs[0].Type != notify.TypeError {
		t.Errorf("messages = %v", msgs)
	}
}

func TestJobCanceledIsSilent(t *testing.T) {
	console := NewConsole()
	rec := &recorder{}
	job, err := Run(context.Background(), sh("echo started; sleep 30"), console, rec, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	job.Cancel()
	select {
	case <-job.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("job not done after Cancel")
	}
	for _, m := range rec.messages() {
		if m.Type == notify.TypeError || m.Type == notify.TypeFinished {
			t.Errorf("unexpected terminal notification %v", m)
		}
	}
	events := console.Snapshot()
	if last := events[len(events)-1]; last.Kind != types.ConsoleError || !strings.Contains(last.Text, "canceled") {
		t.Errorf("last console event = %v", last)
	}
}

func TestExpandArgs(t *testing.T) {
	got, err := ExpandArgs(
		[]string{"run.py", "--images", "{{.ImageDir}}", "--out={{.OutputDir}}"},
		ArgsData{ImageDir: "/in", OutputDir: "/out"},
	)
	if err != nil {
		t.Fatalf("ExpandArgs: %v", err)
	}
	want := []string{"run.py", "--images", "/in", "--out=/out"}
	if strings.Join(got, " ") != strings.Join(want, " ") {
		t.Errorf("ExpandArgs = %v, want %v", got, want)
	}
	if _, err := ExpandArgs([]string{"{{.Nope}}"}, ArgsData{}); err == nil {
		t.Error("expected error for unknown field")
	}
}
