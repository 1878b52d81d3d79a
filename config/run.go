package config

import (
	"path/filepath"

	"github.com/projecteru2/modelforge/utils"
)

// EnsureRunDirs creates the static directories of one workflow run.
// The image store creates its own subdirectories.
func (c *Config) EnsureRunDirs(runID string) error {
	return utils.EnsureDirs(
		c.RunInputDir(runID),
		c.RunOutputDir(runID),
	)
}

// Derived path helpers. All run data lives under {RootDir}/runs/{runID}/.

func (c *Config) RunsDir() string               { return filepath.Join(c.RootDir, "runs") }
func (c *Config) RunDir(runID string) string    { return filepath.Join(c.RunsDir(), runID) }
func (c *Config) RunInputDir(id string) string  { return filepath.Join(c.RunDir(id), "input") }
func (c *Config) RunOutputDir(id string) string { return filepath.Join(c.RunDir(id), "output") }

// RunArtifactDir is where the reconstruction program leaves the model.
func (c *Config) RunArtifactDir(id string) string {
	return filepath.Join(c.RunOutputDir(id), c.Reconstruct.ArtifactDir)
}

// RunArchivePath is the packaged model handed out in the Complete phase.
func (c *Config) RunArchivePath(id string) string { return filepath.Join(c.RunDir(id), "model.zip") }

// EnsureImageDirs creates all required directories for a run's image store.
func (c *Config) EnsureImageDirs(runID string) error {
	return utils.EnsureDirs(
		c.ImageDBDir(runID),
		c.ImageBlobsDir(runID),
	)
}

func (c *Config) ImagesDir(id string) string     { return filepath.Join(c.RunDir(id), "images") }
func (c *Config) ImageDBDir(id string) string    { return filepath.Join(c.ImagesDir(id), "db") }
func (c *Config) ImageBlobsDir(id string) string { return filepath.Join(c.ImagesDir(id), "blobs") }
func (c *Config) ImageIndexFile(id string) string {
	return filepath.Join(c.ImageDBDir(id), "images.json")
}
func (c *Config) ImageIndexLock(id string) string {
	return filepath.Join(c.ImageDBDir(id), "images.lock")
}

func (c *Config) ImageBlobPath(runID, hex string) string {
	return filepath.Join(c.ImageBlobsDir(runID), hex+".img")
}
