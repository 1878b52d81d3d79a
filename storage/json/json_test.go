package json

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/projecteru2/modelforge/lock/flock"
)

type doc struct {
	Names map[string]int `json:"names"`
}

func (d *doc) Init() {
	if d.Names == nil {
		d.Names = make(map[string]int)
	}
}

func newTestStore(t *testing.T) (*Store[doc], string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.json")
	return New[doc](path, flock.New(filepath.Join(dir, "doc.lock"))), path
}

func TestMissingFileIsInitialized(t *testing.T) {
	s, _ := newTestStore(t)
	err := s.With(context.Background(), func(d *doc) error {
		if d.Names == nil {
			return errors.New("Init not called")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestUpdatePersistsWithDiscards(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	if err := s.Update(ctx, func(d *doc) error { d.Names["a"] = 1; return nil }); err != nil {
		t.Fatalf("Update: %v", err)
	}
	_ = s.With(ctx, func(d *doc) error { d.Names["b"] = 2; return nil })
	failed := errors.New("rejected")
	if err := s.Update(ctx, func(d *doc) error { d.Names["c"] = 3; return failed }); !errors.Is(err, failed) {
		t.Fatalf("Update error = %v", err)
	}

	var got map[string]int
	_ = s.Read(func(d *doc) error { got = d.Names; return nil })
	if len(got) != 1 || got["a"] != 1 {
		t.Errorf("names = %v, want only a", got)
	}
}

func TestPurge(t *testing.T) {
	ctx := context.Background()
	s, path := newTestStore(t)
	blobs := filepath.Join(filepath.Dir(path), "blobs")
	if err := os.MkdirAll(blobs, 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(blobs, "x.img"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := s.Update(ctx, func(d *doc) error { d.Names["a"] = 1; return nil }); err != nil {
		t.Fatal(err)
	}

	if err := s.Purge(ctx, blobs); err != nil {
		t.Fatalf("Purge: %v", err)
	}
	for _, p := range []string{path, blobs} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("%s still present: %v", p, err)
		}
	}
	if err := s.Purge(ctx, blobs); err != nil {
		t.Errorf("second Purge: %v", err)
	}
	_ = s.Read(func(d *doc) error {
		if len(d.Names) != 0 {
			t.Errorf("names after purge = %v", d.Names)
		}
		return nil
	})
}
