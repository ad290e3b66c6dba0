//go:build cgofuse
// +build cgofuse

package fuse

import (
	"context"

	"github.com/s3treefs/s3treefs/internal/metrics"
	"github.com/s3treefs/s3treefs/internal/orchestrator"
)

// PlatformFileSystem is the mount lifecycle surface cmd/objecttreefs drives; this build tag
// switches the implementation to winfsp/cgofuse for Windows/macOS support.
type PlatformFileSystem interface {
	Mount(ctx context.Context) error
	Unmount() error
	IsMounted() bool
	GetStats() *FilesystemStats
}

// CreatePlatformMountManager wires the Orchestrator into the cgofuse adapter and its mount
// manager. A non-nil metrics collector is attached to the filesystem; pass nil to mount without
// metrics.
func CreatePlatformMountManager(orch *orchestrator.Orchestrator, config *MountConfig, collector *metrics.Collector) PlatformFileSystem {
	return NewCgoFuseMountManager(orch, config, collector)
}
