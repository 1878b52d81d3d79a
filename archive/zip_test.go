package archive

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/klauspost/compress/zip"
)

func TestZip(t *testing.T) {
	src := t.TempDir()
	if err := os.MkdirAll(filepath.Join(src, "textures"), 0o750); err != nil {
		t.Fatal(err)
	}
	files := map[string]string{
		"model.obj":          "v 0 0 0\n",
		"textures/color.png": "png-bytes",
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(src, name), []byte(body), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	dst := filepath.Join(t.TempDir(), "model.zip")
	size, err := Zip(context.Background(), src, dst)
	if err != nil {
		t.Fatalf("Zip: %v", err)
	}
	if size <= 0 {
		t.Errorf("size = %d", size)
	}

	zr, err := zip.OpenReader(dst)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer zr.Close() //nolint:errcheck

	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open %s: %v", f.Name, err)
		}
		body, _ := io.ReadAll(rc)
		_ = rc.Close()
		if string(body) != files[f.Name] {
			t.Errorf("%s = %q, want %q", f.Name, body, files[f.Name])
		}
	}
	sort.Strings(names)
	if len(names) != 2 || names[0] != "model.obj" || names[1] != "textures/color.png" {
		t.Errorf("entries = %v", names)
	}
}

func TestZipMissingSource(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "model.zip")
	if _, err := Zip(context.Background(), filepath.Join(t.TempDir(), "nope"), dst); !errors.Is(err, ErrEmptySource) {
		t.Fatalf("expected ErrEmptySource, got %v", err)
	}
	if _, err := os.Stat(dst); !os.IsNotExist(err) {
		t.Error("dst must not exist after failure")
	}
}

func TestZipEmptySource(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "model.zip")
	if _, err := Zip(context.Background(), t.TempDir(), dst); !errors.Is(err, ErrEmptySource) {
		t.Fatalf("expected ErrEmptySource, got %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("leftover files: %v", entries)
	}
}
