package orchestrator

import (
	"context"
	"time"

	"github.com/s3treefs/s3treefs/internal/tree"
	"github.com/s3treefs/s3treefs/pkg/errors"
)

// OpenDirState is the per-open directory handle: a snapshot buffer populated on the first
// successful fill and reused for subsequent paging reads against the same open (§4.5.1 steps
// 2-3).
type OpenDirState struct {
	Snapshot []byte
	filled   bool
}

// OpenDir implements the upward "opendir" operation: allocates per-open state; no network
// traffic.
func (o *Orchestrator) OpenDir(ino tree.Ino) (*OpenDirState, error) {
	o.tree.Lock()
	defer o.tree.Unlock()
	if _, err := o.resolveDir(ino); err != nil {
		return nil, err
	}
	return &OpenDirState{}, nil
}

// ReleaseDir implements the upward "releasedir" operation: drops per-open state. No collaborator
// action is required since the directory buffer owns no backend resource.
func (o *Orchestrator) ReleaseDir(*OpenDirState) {}

// FillDirBuf implements §4.5.1. appender is the FUSE adapter's append primitive sized to the
// kernel's requested buffer; it is only consulted when a fresh assembly is actually needed (off
// == 0 and no usable cache or snapshot). state may be nil when the caller only cares about
// refreshing the tree cache (e.g. a forced lookup refresh), not about kernel pagination.
func (o *Orchestrator) FillDirBuf(ctx context.Context, ino tree.Ino, off int, state *OpenDirState, appender tree.DirBufAppender) ([]byte, error) {
	o.tree.Lock()
	d, err := o.resolveDir(ino)
	if err != nil {
		o.tree.Unlock()
		return nil, err
	}

	if off > 0 {
		if state == nil || !state.filled {
			o.tree.Unlock()
			return nil, errors.NewPolicyRejectedError("orchestrator", "FillDirBuf",
				"paging read without a populated per-open snapshot")
		}
		buf := state.Snapshot
		o.tree.Unlock()
		return buf, nil
	}

	if state != nil && state.filled {
		buf := state.Snapshot
		o.tree.Unlock()
		return buf, nil
	}

	now := time.Now()
	if !d.IsDirCacheExpired(now, o.dirCacheMaxTime) {
		buf := d.DirCache
		if state != nil {
			state.Snapshot = buf
			state.filled = true
		}
		o.tree.Unlock()
		return buf, nil
	}

	if d.DirCacheUpdating {
		buf := d.DirCache
		o.tree.Unlock()
		return buf, nil
	}

	d.DirCacheUpdating = true
	o.tree.StartUpdate(d)
	fullpath := d.Fullpath
	dirIno := d.Ino
	o.tree.Unlock()

	rows, listErr := o.listDirectory(ctx, fullpath, dirIno)

	o.tree.Lock()
	defer o.tree.Unlock()
	d, derr := o.resolveDir(dirIno)
	if derr != nil {
		return nil, derr
	}
	if listErr != nil {
		d.DirCacheUpdating = false
		return nil, errors.NewBackendError("orchestrator", "FillDirBuf", listErr)
	}

	for _, row := range rows {
		if _, uerr := o.tree.UpdateEntry(d, row.Basename, row.Type, row.Size, row.ModTime); uerr != nil {
			d.DirCacheUpdating = false
			return nil, uerr
		}
	}
	o.tree.StopUpdate(d, now, o.dirCacheMaxTime)

	buf := o.tree.AssembleDirBuf(d, appender)
	d.IsModified = false
	d.DirCacheUpdating = false
	if state != nil {
		state.Snapshot = buf
		state.filled = true
	}
	return buf, nil
}

func (o *Orchestrator) listDirectory(ctx context.Context, fullpath string, ino tree.Ino) ([]ListingRow, error) {
	client, err := o.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer client.Release()
	return client.List(ctx, fullpath, ino)
}
