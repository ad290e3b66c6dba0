package orchestrator

import (
	"context"
	"time"

	"github.com/s3treefs/s3treefs/internal/tree"
	"github.com/s3treefs/s3treefs/pkg/errors"
)

// Rename implements §4.5.7's two-phase copy+delete. Source must be a File below maxRenameSize;
// both parents must be directories. Phase-1 success with phase-2 failure is left as an orphan
// destination object, per §9's open question — not cleaned up here, deliberately.
func (o *Orchestrator) Rename(ctx context.Context, oldParentIno tree.Ino, oldName string, newParentIno tree.Ino, newName string) error {
	o.tree.Lock()
	oldParent, err := o.resolveDir(oldParentIno)
	if err != nil {
		o.tree.Unlock()
		return err
	}
	newParent, err := o.resolveDir(newParentIno)
	if err != nil {
		o.tree.Unlock()
		return err
	}
	src, ok := oldParent.Children[oldName]
	if !ok {
		o.tree.Unlock()
		return errors.NewInodeNotFoundError("orchestrator", "Rename", 0)
	}
	if src.IsDir() {
		o.tree.Unlock()
		return errors.NewPolicyRejectedError("orchestrator", "Rename", "rename of a directory is unsupported")
	}
	if src.Size >= maxRenameSize {
		o.tree.Unlock()
		return errors.NewPolicyRejectedError("orchestrator", "Rename", "source exceeds the single-PUT copy limit")
	}

	srcFullpath := src.Fullpath
	srcIno := src.Ino
	destFullpath := newName
	if newParent.Fullpath != "" {
		destFullpath = newParent.Fullpath + "/" + newName
	}
	copySource := o.sourcePath(srcFullpath)
	o.tree.Unlock()

	client, err := o.pool.Acquire(ctx)
	if err != nil {
		return errors.NewBackendError("orchestrator", "Rename", err)
	}
	headers := map[string]string{
		"x-amz-copy-source":    copySource,
		"x-amz-storage-class": o.storageClass,
	}
	if perr := client.Put(ctx, destFullpath, nil, headers); perr != nil {
		client.Release()
		return errors.NewBackendError("orchestrator", "Rename", perr)
	}
	client.Release()

	o.tree.Lock()
	newParent, nperr := o.resolveDir(newParentIno)
	if nperr != nil {
		o.tree.Unlock()
		return nperr
	}
	dest, derr := o.tree.UpdateEntry(newParent, newName, tree.File, 0, time.Now())
	if derr != nil {
		o.tree.Unlock()
		return derr
	}
	dest.Removed = false
	dest.AccessTime = time.Now()
	o.tree.EntryModified(newParent)
	o.tree.Unlock()

	client, err = o.pool.Acquire(ctx)
	if err != nil {
		return errors.NewBackendError("orchestrator", "Rename", err)
	}
	if derr := client.Delete(ctx, srcFullpath); derr != nil {
		client.Release()
		return errors.NewBackendError("orchestrator", "Rename", derr)
	}
	client.Release()

	o.tree.Lock()
	defer o.tree.Unlock()
	if s, ok := o.tree.Lookup(srcIno); ok {
		s.Removed = true
		if oldParent, ok := o.tree.Lookup(oldParentIno); ok {
			o.tree.EntryModified(oldParent)
		}
	}
	return nil
}
