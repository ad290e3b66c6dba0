//go:build cgofuse
// +build cgofuse

package fuse

import (
	"context"
	"time"

	"github.com/s3treefs/s3treefs/internal/metrics"
	"github.com/s3treefs/s3treefs/internal/orchestrator"
)

// CgoFuseMountManager manages cgofuse-based mounts.
type CgoFuseMountManager struct {
	filesystem *CgoFuseFS
	config     *MountConfig
}

// NewCgoFuseMountManager creates a new cgofuse mount manager over an already-constructed
// Orchestrator. config and its Options and Permissions must be non-nil; the only default
// applied is a one-second CacheTTL when Options.AttrTimeout is zero.
func NewCgoFuseMountManager(orch *orchestrator.Orchestrator, config *MountConfig, collector *metrics.Collector) *CgoFuseMountManager {
	fuseConfig := &Config{
		MountPoint:  config.MountPoint,
		ReadOnly:    config.Options.ReadOnly,
		AllowOther:  config.Options.AllowOther,
		DefaultUID:  config.Permissions.UID,
		DefaultGID:  config.Permissions.GID,
		DefaultMode: config.Permissions.FileMode,
		CacheTTL:    config.Options.AttrTimeout,
	}
	if fuseConfig.CacheTTL == 0 {
		fuseConfig.CacheTTL = time.Second
	}

	filesystem := NewCgoFuseFS(orch, fuseConfig)
	if collector != nil {
		filesystem.SetMetrics(collector)
	}

	return &CgoFuseMountManager{
		filesystem: filesystem,
		config:     config,
	}
}

func (m *CgoFuseMountManager) Mount(ctx context.Context) error {
	return m.filesystem.Mount(ctx)
}

func (m *CgoFuseMountManager) Unmount() error {
	return m.filesystem.Unmount()
}

func (m *CgoFuseMountManager) IsMounted() bool {
	return m.filesystem.IsMounted()
}

func (m *CgoFuseMountManager) GetStats() *FilesystemStats {
	return m.filesystem.GetStats()
}
