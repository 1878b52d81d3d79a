package images

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/projecteru2/core/log"
	"golang.org/x/sync/errgroup"

	"github.com/projecteru2/modelforge/config"
	"github.com/projecteru2/modelforge/lock"
	"github.com/projecteru2/modelforge/storage"
	"github.com/projecteru2/modelforge/types"
	"github.com/projecteru2/modelforge/utils"
)

var (
	// ErrNotFound is returned when a name is not in the store.
	ErrNotFound = errors.New("image not found")
	// ErrClosed is returned by Put after the store has been destroyed.
	ErrClosed = errors.New("image store closed")
)

// Store persists the captures of one workflow run. Blobs are content addressed
// by sha256; a flock-guarded JSON index maps local names to digests.
//
// The in-memory name set has its own mutex and is never held across disk or
// network I/O, so diffing against the device never waits on a download.
type Store struct {
	conf   *config.Config
	runID  string
	index  storage.Store[imageIndex]
	locker lock.Locker

	mu     sync.RWMutex
	names  map[string]Digest
	closed bool
}

// New opens (or creates) the image store of runID.
func New(ctx context.Context, conf *config.Config, runID string) (*Store, error) {
	if err := conf.EnsureImageDirs(runID); err != nil {
		return nil, fmt.Errorf("ensure dirs: %w", err)
	}
	index, locker := newIndexStore(conf.ImageIndexFile(runID), conf.ImageIndexLock(runID))
	s := &Store{
		conf:   conf,
		runID:  runID,
		index:  index,
		locker: locker,
		names:  make(map[string]Digest),
	}
	if err := index.With(ctx, func(idx *imageIndex) error {
		for name, entry := range idx.Images {
			if entry != nil && entry.Digest.Valid() && blobExists(conf.ImageBlobPath(runID, entry.Digest.Hex())) {
				s.names[name] = entry.Digest
			}
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("load index: %w", err)
	}
	log.WithFunc("images.New").Infof(ctx, "image store for run %s opened, %d images", runID, len(s.names))
	return s, nil
}

// LocalName derives the stored name from a device identifier: its final path segment.
func LocalName(remote string) string {
	return path.Base(strings.TrimRight(remote, "/"))
}

func validName(name string) error {
	if name == "" || name == "." || name == ".." || name == "/" || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid image name %q", name)
	}
	return nil
}

// Put stores data under the local name of remote. Writing an already stored
// name replaces its entry.
func (s *Store) Put(ctx context.Context, remote string, data []byte) error {
	name := LocalName(remote)
	if err := validName(name); err != nil {
		return err
	}
	if s.isClosed() {
		return ErrClosed
	}
	digest := DigestOf(data)
	blobPath := s.conf.ImageBlobPath(s.runID, digest.Hex())

	// Blob placement and index write happen under the same lock so GC never
	// sees an unreferenced blob between the two.
	if err := s.index.Update(ctx, func(idx *imageIndex) error {
		if !blobExists(blobPath) {
			if err := utils.AtomicWriteFile(blobPath, data, 0o444); err != nil { //nolint:gosec // blobs are world-readable
				return fmt.Errorf("write blob: %w", err)
			}
		}
		idx.Images[name] = &imageEntry{
			Remote:    remote,
			Digest:    digest,
			Size:      int64(len(data)),
			CreatedAt: time.Now(),
		}
		return nil
	}); err != nil {
		return fmt.Errorf("store %s: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.names[name] = digest
	return nil
}

// Has reports whether name is stored.
func (s *Store) Has(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.names[name]
	return ok
}

// Len is the number of stored images.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.names)
}

// Names returns the stored names, sorted.
func (s *Store) Names() []string {
	s.mu.RLock()
	names := make([]string, 0, len(s.names))
	for name := range s.names {
		names = append(names, name)
	}
	s.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Diff returns the device identifiers whose local name is not stored yet.
// Identifiers mapping to the same local name are reported once.
func (s *Store) Diff(remote []string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{}, len(remote))
	var missing []string
	for _, id := range remote {
		name := LocalName(id)
		if _, ok := s.names[name]; ok {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		missing = append(missing, id)
	}
	return missing
}

// Get reads the bytes stored under name.
func (s *Store) Get(_ context.Context, name string) ([]byte, error) {
	s.mu.RLock()
	digest, ok := s.names[name]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrNotFound)
	}
	data, err := os.ReadFile(s.conf.ImageBlobPath(s.runID, digest.Hex()))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	if !digest.Matches(data) {
		return nil, fmt.Errorf("%s (%s): %w", name, digest, ErrCorrupt)
	}
	return data, nil
}

// List returns index records of all stored images, sorted by name.
func (s *Store) List(ctx context.Context) ([]types.Image, error) {
	var result []types.Image
	err := s.index.With(ctx, func(idx *imageIndex) error {
		for name, entry := range idx.Images {
			if entry == nil {
				continue
			}
			result = append(result, types.Image{
				Name:      name,
				Digest:    entry.Digest.String(),
				Size:      entry.Size,
				CreatedAt: entry.CreatedAt,
			})
		}
		return nil
	})
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, err
}

// Export materialises every stored image as dir/{name} (hardlink, copy fallback)
// for the reconstruction program. Returns the number of exported images.
func (s *Store) Export(ctx context.Context, dir string) (int, error) {
	if err := utils.EnsureDirs(dir); err != nil {
		return 0, err
	}
	s.mu.RLock()
	snapshot := make(map[string]Digest, len(s.names))
	for name, d := range s.names {
		snapshot[name] = d
	}
	s.mu.RUnlock()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.conf.PoolSize)
	for name, digest := range snapshot {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return utils.LinkOrCopy(s.conf.ImageBlobPath(s.runID, digest.Hex()), filepath.Join(dir, name))
		})
	}
	if err := g.Wait(); err != nil {
		return 0, fmt.Errorf("export images: %w", err)
	}
	return len(snapshot), nil
}

// Destroy forgets every image and removes the store's directory. Later Put
// calls fail with ErrClosed.
func (s *Store) Destroy(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	clear(s.names)
	s.mu.Unlock()

	// The lock file lives in the db dir and stays; the run dir removal takes it.
	if err := s.index.Purge(ctx, s.conf.ImageBlobsDir(s.runID)); err != nil {
		return fmt.Errorf("destroy images of run %s: %w", s.runID, err)
	}
	return nil
}

func (s *Store) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// blobExists accepts zero-length blobs: a device may legitimately serve an empty capture.
func blobExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}
