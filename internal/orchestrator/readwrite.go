package orchestrator

import (
	"context"
	"time"
)

// FileRead implements §4.5.5's read: delegate to FileIO's read_buffer. No tree mutation.
func (o *Orchestrator) FileRead(ctx context.Context, state *OpenFileState, off int64, size int) ([]byte, error) {
	return state.IO.ReadBuffer(ctx, off, size)
}

// FileWrite implements §4.5.5's write: mark updated_time, delegate to FileIO's write_buffer,
// then resolve the authoritative size from CacheMng (falling back to offset+count when CacheMng
// reports 0, i.e. disabled or absent) and update the Entry.
func (o *Orchestrator) FileWrite(ctx context.Context, state *OpenFileState, buf []byte, off int64) (int, error) {
	o.tree.Lock()
	e, err := o.resolveFile(state.Entry.Ino)
	if err != nil {
		o.tree.Unlock()
		return 0, err
	}
	e.UpdatedTime = time.Now()
	ino := e.Ino
	o.tree.Unlock()

	o.tree.AddWriteOp()
	defer o.tree.RemoveWriteOp()

	n, err := state.IO.WriteBuffer(ctx, buf, off)
	if err != nil {
		return 0, err
	}

	o.tree.Lock()
	defer o.tree.Unlock()
	e, err = o.resolveFile(ino)
	if err != nil {
		return n, err
	}
	if length := o.cmng.GetFileLength(ino); length > 0 {
		e.Size = int64(length)
	} else {
		e.Size = off + int64(n)
	}
	return n, nil
}
