package orchestrator

import (
	"context"

	"github.com/s3treefs/s3treefs/internal/tree"
	"github.com/s3treefs/s3treefs/pkg/errors"
)

// FileRemove implements §4.5.6's file_remove.
func (o *Orchestrator) FileRemove(ctx context.Context, ino tree.Ino) error {
	o.tree.Lock()
	e, err := o.resolveFile(ino)
	if err != nil {
		o.tree.Unlock()
		return err
	}
	fullpath := e.Fullpath
	parentIno := e.ParentIno
	o.tree.Unlock()

	o.cmng.RemoveFile(ino)

	client, err := o.pool.Acquire(ctx)
	if err != nil {
		return errors.NewBackendError("orchestrator", "FileRemove", err)
	}
	defer client.Release()
	if derr := client.Delete(ctx, fullpath); derr != nil {
		return errors.NewBackendError("orchestrator", "FileRemove", derr)
	}

	o.tree.Lock()
	defer o.tree.Unlock()
	e, err = o.resolveFile(ino)
	if err != nil {
		return err
	}
	e.Removed = true
	e.Age = 0
	if parent, ok := o.tree.Lookup(parentIno); ok {
		o.tree.EntryModified(parent)
	}
	return nil
}

// FileUnlink implements §4.5.6's unlink: resolve name within a directory then delegate to
// FileRemove.
func (o *Orchestrator) FileUnlink(ctx context.Context, parentIno tree.Ino, name string) error {
	o.tree.Lock()
	parent, err := o.resolveDir(parentIno)
	if err != nil {
		o.tree.Unlock()
		return err
	}
	child, ok := parent.Children[name]
	if !ok {
		o.tree.Unlock()
		return errors.NewInodeNotFoundError("orchestrator", "FileUnlink", 0)
	}
	ino := child.Ino
	o.tree.Unlock()

	return o.FileRemove(ctx, ino)
}

// DirRemove implements §4.5.6's dir_remove: synchronous, no backend DELETE (S3 directories are
// virtual). A Directory is empty iff every child has Removed == true.
func (o *Orchestrator) DirRemove(parentIno tree.Ino, name string) error {
	o.tree.Lock()
	defer o.tree.Unlock()

	parent, err := o.resolveDir(parentIno)
	if err != nil {
		return err
	}
	child, ok := parent.Children[name]
	if !ok {
		return errors.NewInodeNotFoundError("orchestrator", "DirRemove", 0)
	}
	if !child.IsDir() {
		return errors.NewTypeMismatchError("orchestrator", "DirRemove", "directory", "file")
	}
	for _, c := range child.Children {
		if !c.Removed {
			return errors.NewPolicyRejectedError("orchestrator", "DirRemove", "directory not empty")
		}
	}

	child.Removed = true
	child.Age = 0
	o.tree.EntryModified(parent)
	return nil
}
