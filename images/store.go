package images

import (
	"time"

	"github.com/projecteru2/modelforge/lock"
	"github.com/projecteru2/modelforge/lock/flock"
	"github.com/projecteru2/modelforge/storage"
	storejson "github.com/projecteru2/modelforge/storage/json"
)

// imageIndex is the top-level structure of a run's images.json file.
type imageIndex struct {
	Images map[string]*imageEntry `json:"images"` // local name → entry
}

// Init implements storage.Initer. Called automatically by Store after loading.
func (idx *imageIndex) Init() {
	if idx.Images == nil {
		idx.Images = make(map[string]*imageEntry)
	}
}

// referencedDigests returns all digest hex strings referenced by any image.
func (idx *imageIndex) referencedDigests() map[string]struct{} {
	refs := make(map[string]struct{}, len(idx.Images))
	for _, entry := range idx.Images {
		if entry != nil {
			refs[entry.Digest.Hex()] = struct{}{}
		}
	}
	return refs
}

// imageEntry records one downloaded capture.
type imageEntry struct {
	Remote    string    `json:"remote"` // identifier as listed by the device
	Digest    Digest    `json:"digest"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// newIndexStore creates a JSON-backed index and returns it alongside the locker.
// Both use the same underlying flock so the locker can be handed to gc.Module
// while sharing the same cross-process lock file.
func newIndexStore(filePath, lockPath string) (storage.Store[imageIndex], lock.Locker) {
	locker := flock.New(lockPath)
	return storejson.New[imageIndex](filePath, locker), locker
}
