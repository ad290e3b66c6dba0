//go:build !cgofuse
// +build !cgofuse

package fuse

import (
	"context"

	"github.com/s3treefs/s3treefs/internal/metrics"
	"github.com/s3treefs/s3treefs/internal/orchestrator"
)

// PlatformFileSystem is the mount lifecycle surface cmd/objecttreefs drives, implemented
// differently per build tag: the default build mounts through go-fuse's raw kernel protocol,
// the cgofuse build tag switches to winfsp/cgofuse for Windows/macOS support.
type PlatformFileSystem interface {
	Mount(ctx context.Context) error
	Unmount() error
	IsMounted() bool
	GetStats() *FilesystemStats
}

// CreatePlatformMountManager wires the Orchestrator into the go-fuse raw adapter and its mount
// manager. A non-nil metrics collector is attached to the filesystem so Lookup, Read and Write
// report through it; pass nil to mount without metrics.
func CreatePlatformMountManager(orch *orchestrator.Orchestrator, config *MountConfig, collector *metrics.Collector) PlatformFileSystem {
	fuseConfig := &Config{
		MountPoint:  config.MountPoint,
		ReadOnly:    config.Options.ReadOnly,
		AllowOther:  config.Options.AllowOther,
		DefaultUID:  config.Permissions.UID,
		DefaultGID:  config.Permissions.GID,
		DefaultMode: config.Permissions.FileMode,
		CacheTTL:    config.Options.AttrTimeout,
	}

	filesystem := NewFileSystem(orch, fuseConfig)
	if collector != nil {
		filesystem.SetMetrics(collector)
	}
	return NewMountManager(filesystem, config)
}
