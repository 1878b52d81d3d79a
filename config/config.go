package config

import (
	"fmt"
	"runtime"
	"time"

	units "github.com/docker/go-units"
	coretypes "github.com/projecteru2/core/types"
)

// Config holds global modelforge configuration.
type Config struct {
	// RootDir is the base directory for per-run data (images, output, archive).
	RootDir string `json:"root_dir" mapstructure:"root_dir"`
	// Listen is the address the HTTP API binds to.
	Listen string `json:"listen" mapstructure:"listen"`
	// PoolSize bounds concurrent image downloads.
	// Defaults to runtime.NumCPU() if zero.
	PoolSize int `json:"pool_size" mapstructure:"pool_size"`
	// PollInterval is the sync engine tick.
	PollInterval time.Duration `json:"poll_interval" mapstructure:"poll_interval"`
	// HTTPTimeout is the per-request timeout against the capture device.
	HTTPTimeout time.Duration `json:"http_timeout" mapstructure:"http_timeout"`
	// GCInterval is how often `serve` collects orphan blobs; zero disables it.
	GCInterval time.Duration `json:"gc_interval" mapstructure:"gc_interval"`
	// MaxImageSize caps a single downloaded image, in human units ("64MiB").
	MaxImageSize string `json:"max_image_size" mapstructure:"max_image_size"`

	Reconstruct ReconstructConfig `json:"reconstruct" mapstructure:"reconstruct"`

	// Log configuration, uses eru core's ServerLogConfig.
	Log coretypes.ServerLogConfig `json:"log" mapstructure:"log"`
}

// ReconstructConfig describes how the external reconstruction program is run.
type ReconstructConfig struct {
	Binary string `json:"binary" mapstructure:"binary"`
	// Args are text/template strings; {{.ImageDir}} and {{.OutputDir}} are expanded per run.
	Args []string `json:"args" mapstructure:"args"`
	// ArtifactDir is the directory, relative to the run output dir, that gets archived.
	ArtifactDir string `json:"artifact_dir" mapstructure:"artifact_dir"`
	// StopGrace is the SIGTERM→SIGKILL window on cancel.
	StopGrace time.Duration `json:"stop_grace" mapstructure:"stop_grace"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		RootDir:      "/var/lib/modelforge",
		Listen:       "0.0.0.0:8080",
		PoolSize:     runtime.NumCPU(),
		PollInterval: 3 * time.Second,  //nolint:mnd
		HTTPTimeout:  30 * time.Second, //nolint:mnd
		GCInterval:   10 * time.Minute, //nolint:mnd
		MaxImageSize: "256MiB",
		Reconstruct: ReconstructConfig{
			Binary:      "python3",
			Args:        []string{"run.py", "--images", "{{.ImageDir}}", "--project-path", "{{.OutputDir}}"},
			ArtifactDir: "odm_texturing",
			StopGrace:   5 * time.Second, //nolint:mnd
		},
		Log: coretypes.ServerLogConfig{
			Level:      "info",
			MaxSize:    500,
			MaxAge:     28,
			MaxBackups: 3,
		},
	}
}

// Normalize fills zero values left by partial config files and validates the rest.
func (c *Config) Normalize() error {
	def := DefaultConfig()
	if c.PoolSize <= 0 {
		c.PoolSize = runtime.NumCPU()
	}
	if c.PollInterval <= 0 {
		c.PollInterval = def.PollInterval
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = def.HTTPTimeout
	}
	if c.MaxImageSize == "" {
		c.MaxImageSize = def.MaxImageSize
	}
	if c.Reconstruct.StopGrace <= 0 {
		c.Reconstruct.StopGrace = def.Reconstruct.StopGrace
	}
	if c.RootDir == "" {
		return fmt.Errorf("root_dir is required")
	}
	if c.Reconstruct.Binary == "" {
		return fmt.Errorf("reconstruct.binary is required")
	}
	if _, err := c.MaxImageBytes(); err != nil {
		return err
	}
	return nil
}

// MaxImageBytes parses MaxImageSize.
func (c *Config) MaxImageBytes() (int64, error) {
	n, err := units.RAMInBytes(c.MaxImageSize)
	if err != nil {
		return 0, fmt.Errorf("invalid max_image_size %q: %w", c.MaxImageSize, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("invalid max_image_size %q: must be positive", c.MaxImageSize)
	}
	return n, nil
}
