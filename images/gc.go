package images

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/projecteru2/core/log"

	"github.com/projecteru2/modelforge/config"
	"github.com/projecteru2/modelforge/gc"
	"github.com/projecteru2/modelforge/lock"
	"github.com/projecteru2/modelforge/storage"
	"github.com/projecteru2/modelforge/utils"
)

const blobSuffix = ".img"

// gcSnapshot is the typed GC snapshot of one run's image store.
type gcSnapshot struct {
	refs  map[string]struct{} // digest hexes referenced by the index
	blobs []string            // digest hexes of blob files on disk
	temps []string            // stale temp file names left by interrupted writes
}

// GCModule returns the GC module of this store.
func (s *Store) GCModule() gc.Module[gcSnapshot] {
	return newGCModule(s.conf, s.runID, s.index, s.locker)
}

// RegisterGC registers this store with orch.
func (s *Store) RegisterGC(orch *gc.Orchestrator) {
	gc.Register(orch, s.GCModule())
}

// RegisterRunGC registers the image store of an existing run directory
// without opening it, for offline collection.
func RegisterRunGC(orch *gc.Orchestrator, conf *config.Config, runID string) {
	index, locker := newIndexStore(conf.ImageIndexFile(runID), conf.ImageIndexLock(runID))
	gc.Register(orch, newGCModule(conf, runID, index, locker))
}

func newGCModule(conf *config.Config, runID string, index storage.Store[imageIndex], locker lock.Locker) gc.Module[gcSnapshot] {
	blobsDir := conf.ImageBlobsDir(runID)
	return gc.Module[gcSnapshot]{
		Name:   "images/" + runID,
		Locker: locker,
		ReadDB: func(_ context.Context) (gcSnapshot, error) {
			var snap gcSnapshot
			if err := index.Read(func(idx *imageIndex) error {
				snap.refs = idx.referencedDigests()
				return nil
			}); err != nil {
				return snap, err
			}
			snap.blobs = utils.ScanFileStems(blobsDir, blobSuffix)
			snap.temps = utils.StaleTemps(blobsDir, time.Now().Add(-utils.StaleTempAge))
			return snap, nil
		},
		Resolve: func(snap gcSnapshot, _ map[string]any) []string {
			return append(utils.Unreferenced(snap.blobs, snap.refs), snap.temps...)
		},
		Collect: func(ctx context.Context, ids []string) error {
			logger := log.WithFunc("images.gc")
			var errs []error
			for _, id := range ids {
				name := id
				if !strings.HasPrefix(id, utils.TempPrefix) {
					name = id + blobSuffix
				}
				p := filepath.Join(blobsDir, name)
				if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
					errs = append(errs, err)
					continue
				}
				logger.Infof(ctx, "GC removed: %s", p)
			}
			return errors.Join(errs...)
		},
	}
}
