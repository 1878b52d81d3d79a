package peer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/projecteru2/modelforge/types"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL, 2*time.Second, 1024)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNewRejectsRelativeURL(t *testing.T) {
	for _, raw := range []string{"", "device:5000", "ftp://device", "/auftrag"} {
		if _, err := New(raw, time.Second, 1); !errors.Is(err, ErrInvalidURL) {
			t.Errorf("New(%q): expected ErrInvalidURL, got %v", raw, err)
		}
	}
}

func TestSubmitPlan(t *testing.T) {
	var got []int
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/auftrag" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))

	if err := c.SubmitPlan(context.Background(), types.Plan{20, 5}); err != nil {
		t.Fatalf("SubmitPlan: %v", err)
	}
	if len(got) != 2 || got[0] != 20 || got[1] != 5 {
		t.Errorf("Expected body [20 5], got %v", got)
	}
}

func TestSubmitPlanRetriesTransient(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	if err := c.SubmitPlan(context.Background(), types.Plan{1}); err != nil {
		t.Fatalf("SubmitPlan: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("Expected 3 attempts, got %d", calls.Load())
	}
}

func TestSubmitPlanRejectedIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "busy with another job", http.StatusConflict)
	}))

	err := c.SubmitPlan(context.Background(), types.Plan{1})
	var pe *Error
	if !errors.As(err, &pe) || pe.Kind != KindRejected || pe.Code != http.StatusConflict {
		t.Fatalf("Expected rejected *Error with 409, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("Expected 1 attempt, got %d", calls.Load())
	}
}

func TestProgress(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		want      types.Progress
		malformed bool
	}{
		{name: "ok", body: `{"round":1,"image_in_round":5}`, want: types.Progress{Round: 1, ImageInRound: 5}},
		{name: "zero", body: `{"round":0,"image_in_round":0}`},
		{name: "missing field", body: `{"round":1}`, malformed: true},
		{name: "not json", body: `<html>`, malformed: true},
		{name: "negative", body: `{"round":-1,"image_in_round":0}`, malformed: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/auftrag" {
					t.Errorf("unexpected path %s", r.URL.Path)
				}
				_, _ = io.WriteString(w, tt.body)
			}))
			got, err := c.Progress(context.Background())
			if tt.malformed {
				if !errors.Is(err, ErrMalformed) {
					t.Fatalf("Expected malformed error, got %v", err)
				}
				if IsRetryable(err) {
					t.Error("malformed errors are not retried by DoWithRetry")
				}
				return
			}
			if err != nil {
				t.Fatalf("Progress: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestReadyImagesAndFetch(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /aufnahme", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `["a.jpg","b.jpg"]`)
	})
	mux.HandleFunc("GET /aufnahme/{name}", func(w http.ResponseWriter, r *http.Request) {
		switch r.PathValue("name") {
		case "a.jpg":
			_, _ = io.WriteString(w, "AAAA")
		case "big.jpg":
			_, _ = w.Write(make([]byte, 2048))
		default:
			http.NotFound(w, r)
		}
	})
	c := newTestClient(t, mux)
	ctx := context.Background()

	ids, err := c.ReadyImages(ctx)
	if err != nil {
		t.Fatalf("ReadyImages: %v", err)
	}
	if len(ids) != 2 || ids[0] != "a.jpg" || ids[1] != "b.jpg" {
		t.Errorf("Expected [a.jpg b.jpg], got %v", ids)
	}

	data, err := c.FetchImage(ctx, "a.jpg")
	if err != nil {
		t.Fatalf("FetchImage: %v", err)
	}
	if string(data) != "AAAA" {
		t.Errorf("Expected AAAA, got %q", data)
	}

	if _, err := c.FetchImage(ctx, "missing.jpg"); err == nil {
		t.Error("Expected error for missing image")
	}
	if _, err := c.FetchImage(ctx, "big.jpg"); !errors.Is(err, ErrMalformed) {
		t.Errorf("Expected oversize image to be malformed, got %v", err)
	}
}

func TestTransportFailureIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(url, time.Second, 1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = c.Progress(context.Background())
	var pe *Error
	if !errors.As(err, &pe) || pe.Kind != KindTransient {
		t.Fatalf("Expected transient error, got %v", err)
	}
	if !IsRetryable(err) {
		t.Error("transport failures should be retryable")
	}
}

func TestDoWithRetryStopsOnContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var calls int
	err := DoWithRetry(ctx, func() error {
		calls++
		return &Error{Op: "x", Kind: KindTransient, Err: errors.New("down")}
	})
	if err == nil {
		t.Fatal("Expected error")
	}
	if calls != 1 {
		t.Errorf("Expected 1 call after cancel, got %d", calls)
	}
}

func TestCloseIdleConnections(t *testing.T) {
	var open atomic.Int32
	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	srv.Config.ConnState = func(_ net.Conn, st http.ConnState) {
		switch st {
		case http.StateNew:
			open.Add(1)
		case http.StateClosed, http.StateHijacked:
			open.Add(-1)
		}
	}
	srv.Start()
	t.Cleanup(srv.Close)

	c, err := New(srv.URL, 2*time.Second, 1024)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.ReadyImages(context.Background()); err != nil {
		t.Fatalf("ReadyImages: %v", err)
	}
	if n := open.Load(); n != 1 {
		t.Fatalf("open connections = %d, want 1 pooled", n)
	}
	c.CloseIdleConnections()
	deadline := time.Now().Add(2 * time.Second)
	for open.Load() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("open connections = %d after close", open.Load())
		}
		time.Sleep(5 * time.Millisecond)
	}
}
