package orchestrator

import (
	"context"
	"time"

	"github.com/s3treefs/s3treefs/internal/tree"
)

// OpenFileState is the per-open file handle: the FileIO engine bound to this open, per §4.5.4.
type OpenFileState struct {
	Entry *tree.Entry
	IO    FileIO
}

// FileCreate implements §4.5.4's create: resolve/refresh the child Entry, mark the parent dirty,
// and open a FileIO handle in "new-object" mode.
func (o *Orchestrator) FileCreate(parentIno tree.Ino, name string, mode uint32) (*OpenFileState, error) {
	o.tree.Lock()
	parent, err := o.resolveDir(parentIno)
	if err != nil {
		o.tree.Unlock()
		return nil, err
	}

	now := time.Now()
	var e *tree.Entry
	if existing, ok := parent.Children[name]; ok {
		existing.Removed = false
		existing.AccessTime = now
		existing.Age = parent.Age
		o.tree.EntryModified(parent)
		e = existing
	} else {
		e, err = o.tree.AddEntry(parentIno, name, mode, tree.File, 0, now)
		if err != nil {
			o.tree.Unlock()
			return nil, err
		}
	}
	e.IsModified = true
	fullpath := e.Fullpath
	ino := e.Ino
	o.tree.Unlock()

	fio, err := o.fio.Open(fullpath, ino, true)
	if err != nil {
		return nil, err
	}
	return &OpenFileState{Entry: e, IO: fio}, nil
}

// FileOpen implements §4.5.4's open: open a FileIO handle in "read-existing" mode.
func (o *Orchestrator) FileOpen(ino tree.Ino) (*OpenFileState, error) {
	o.tree.Lock()
	e, err := o.resolveFile(ino)
	if err != nil {
		o.tree.Unlock()
		return nil, err
	}
	fullpath := e.Fullpath
	o.tree.Unlock()

	fio, err := o.fio.Open(fullpath, ino, false)
	if err != nil {
		return nil, err
	}
	return &OpenFileState{Entry: e, IO: fio}, nil
}

// FileRelease implements §4.5.4's release: dispose the FileIO handle, which flushes any pending
// upload.
func (o *Orchestrator) FileRelease(ctx context.Context, state *OpenFileState) error {
	return state.IO.Release(ctx)
}
