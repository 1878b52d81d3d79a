package utils

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/projecteru2/core/log"
)

// EnsureDirs creates all directories with 0o750 permissions.
func EnsureDirs(dirs ...string) error {
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// ValidFile returns true if path is a regular file with size > 0.
func ValidFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}

// ScanFileStems returns the names, minus suffix, of the regular files in dir
// ending in suffix. A missing dir yields nothing.
func ScanFileStems(dir, suffix string) []string {
	entries, _ := os.ReadDir(dir)
	var stems []string
	for _, e := range entries {
		if stem, ok := strings.CutSuffix(e.Name(), suffix); ok && e.Type().IsRegular() {
			stems = append(stems, stem)
		}
	}
	return stems
}

// ScanSubdirs returns the sorted names of the immediate subdirectories of dir.
func ScanSubdirs(dir string) []string {
	entries, _ := os.ReadDir(dir)
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)
	return names
}

// Unreferenced returns the candidates missing from refs, in candidate order.
func Unreferenced(candidates []string, refs map[string]struct{}) []string {
	var out []string
	for _, c := range candidates {
		if _, ok := refs[c]; !ok {
			out = append(out, c)
		}
	}
	return out
}

// PruneDir removes every entry of dir for which match returns true and
// reports how many went. Failures are joined; the rest are still attempted.
func PruneDir(ctx context.Context, dir string, match func(os.DirEntry) bool) (int, error) {
	logger := log.WithFunc("utils.PruneDir")
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", dir, err)
	}
	var (
		removed int
		errs    []error
	)
	for _, e := range entries {
		if !match(e) {
			continue
		}
		p := filepath.Join(dir, e.Name())
		if err := os.RemoveAll(p); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", p, err))
			continue
		}
		removed++
		logger.Infof(ctx, "removed %s", p)
	}
	return removed, errors.Join(errs...)
}

// LinkOrCopy hardlinks src to dst, falling back to a byte copy when the two
// paths live on different filesystems. An existing dst is replaced.
func LinkOrCopy(src, dst string) error {
	_ = os.Remove(dst)
	if err := os.Link(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src) //nolint:gosec // store-managed blob path
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close() //nolint:errcheck

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644) //nolint:gosec
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return out.Close()
}
