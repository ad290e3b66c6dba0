package orchestrator

import (
	"time"

	"github.com/s3treefs/s3treefs/internal/tree"
)

// GetAttr implements the upward "getattr" operation: reply from the cached Entry with no
// network traffic, matching the core's policy of refreshing attributes only via lookup/HEAD
// (§4.5.2/§4.5.3), never speculatively on getattr.
func (o *Orchestrator) GetAttr(ino tree.Ino) (*tree.Entry, error) {
	o.tree.Lock()
	defer o.tree.Unlock()
	return o.resolve(ino)
}

// SetAttr implements the upward "setattr" operation for the mode/size fields the core tracks.
// Truncation support belongs to FileIO; here we only record the attribute-level intent.
func (o *Orchestrator) SetAttr(ino tree.Ino, mode *uint32, size *int64) (*tree.Entry, error) {
	o.tree.Lock()
	defer o.tree.Unlock()
	e, err := o.resolve(ino)
	if err != nil {
		return nil, err
	}
	if mode != nil {
		e.Mode = *mode
	}
	if size != nil {
		e.Size = *size
	}
	e.IsModified = true
	if parent, ok := o.tree.Lookup(e.ParentIno); ok {
		o.tree.EntryModified(parent)
	}
	return e, nil
}

// DirCreate implements the upward "dir_create" operation: synchronous, mirroring dir_remove's
// observation that S3 directories are virtual — no backend object is written for an empty
// directory marker here; the first child written under it is what actually appears remotely.
func (o *Orchestrator) DirCreate(parentIno tree.Ino, name string, mode uint32) (*tree.Entry, error) {
	o.tree.Lock()
	defer o.tree.Unlock()

	parent, err := o.resolveDir(parentIno)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	if existing, ok := parent.Children[name]; ok {
		existing.Removed = false
		existing.AccessTime = now
		existing.Age = parent.Age
		o.tree.EntryModified(parent)
		return existing, nil
	}
	e, err := o.tree.AddEntry(parentIno, name, mode, tree.Directory, 0, now)
	if err != nil {
		return nil, err
	}
	e.IsModified = true
	return e, nil
}

// SetEntryExist implements the upward "set_entry_exist" operation: clears a tombstone's Removed
// flag without a network round-trip, used when an external signal (e.g. a successful write
// completion elsewhere) has already confirmed the object exists.
func (o *Orchestrator) SetEntryExist(ino tree.Ino, exists bool) error {
	o.tree.Lock()
	defer o.tree.Unlock()
	e, err := o.resolve(ino)
	if err != nil {
		return err
	}
	e.Removed = !exists
	if exists {
		e.AccessTime = time.Now()
	}
	return nil
}
