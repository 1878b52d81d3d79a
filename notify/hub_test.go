package notify

import (
	"encoding/json"
	"strconv"
	"sync"
	"testing"
)

type recorder struct{ got []Message }

func (r *recorder) Deliver(m Message) { r.got = append(r.got, m) }

func TestNotifyWithoutObserver(t *testing.T) {
	h := NewHub()
	h.Notify(Finished())
	if h.Attached() {
		t.Error("expected no observer")
	}
}

func TestAttachReplaces(t *testing.T) {
	h := NewHub()
	a, b := &recorder{}, &recorder{}

	if prev := h.Attach(a); prev != nil {
		t.Errorf("first Attach displaced %v", prev)
	}
	h.Notify(ProgressChanged())
	if prev := h.Attach(b); prev != a {
		t.Error("second Attach should displace a")
	}
	h.Notify(ImageReady("x.jpg"))

	if len(a.got) != 1 || a.got[0].Type != TypeProgressChanged {
		t.Errorf("a got %v", a.got)
	}
	if len(b.got) != 1 || b.got[0].Body != "x.jpg" {
		t.Errorf("b got %v", b.got)
	}
}

func TestAttachDuringNotifyDeliversOnce(t *testing.T) {
	const (
		senders = 8
		each    = 500
	)
	h := NewHub()
	a, b := &recorder{}, &recorder{}
	h.Attach(a)

	var wg sync.WaitGroup
	start := make(chan struct{})
	for g := range senders {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for i := range each {
				h.Notify(NewConsoleOutput(strconv.Itoa(g*each + i)))
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-start
		h.Attach(b)
	}()
	close(start)
	wg.Wait()

	seen := make(map[string]int)
	for _, m := range append(append([]Message(nil), a.got...), b.got...) {
		seen[m.Body]++
	}
	if total := len(a.got) + len(b.got); total != senders*each {
		t.Errorf("delivered %d messages, want %d", total, senders*each)
	}
	for body, n := range seen {
		if n != 1 {
			t.Errorf("message %s delivered %d times", body, n)
		}
	}
	if len(seen) != senders*each {
		t.Errorf("distinct messages = %d, want %d", len(seen), senders*each)
	}
}

func TestDetachOnlyCurrent(t *testing.T) {
	h := NewHub()
	a, b := &recorder{}, &recorder{}
	h.Attach(a)
	h.Attach(b)

	if h.Detach(a) {
		t.Error("Detach of displaced observer should be a no-op")
	}
	if !h.Attached() {
		t.Fatal("b should still be attached")
	}
	if !h.Detach(b) {
		t.Error("Detach of current observer should succeed")
	}
	h.Notify(Finished())
	if len(b.got) != 0 {
		t.Errorf("detached observer received %v", b.got)
	}
}

func TestChanObserverDropsOnOverflow(t *testing.T) {
	c := NewChanObserver(1)
	c.Deliver(Finished())
	c.Deliver(Finished())
	if c.Dropped() != 1 {
		t.Errorf("Dropped = %d, want 1", c.Dropped())
	}
	c.Close()
	c.Close()
	c.Deliver(Finished())

	n := 0
	for range c.C() {
		n++
	}
	if n != 1 {
		t.Errorf("received %d messages, want 1", n)
	}
}

func TestMessageJSON(t *testing.T) {
	tests := []struct {
		msg  Message
		want string
	}{
		{NewConsoleOutput("line"), `{"type":"NewConsoleOutput","body":"line"}`},
		{Error("boom"), `{"type":"Error","body":"boom"}`},
		{Finished(), `{"type":"Finished"}`},
		{CaptureFinished(), `{"type":"CaptureFinished"}`},
	}
	for _, tt := range tests {
		got, err := json.Marshal(tt.msg)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if string(got) != tt.want {
			t.Errorf("Marshal = %s, want %s", got, tt.want)
		}
	}
}
