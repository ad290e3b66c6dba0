package tree

import "time"

// StartUpdate begins an Age-based Reconciler pass (§4.3) over Directory D: bump D.Age so that
// rows observed during this listing can be distinguished from Entries left over from an earlier
// one. Caller must hold the lock.
func (t *Tree) StartUpdate(d *Entry) {
	d.Age++
}

// UpdateEntry processes one directory-listing row. If basename already exists under D, its age,
// size and removed flag are refreshed in place; otherwise a fresh Entry is allocated at D's
// current age. Caller must hold the lock.
func (t *Tree) UpdateEntry(d *Entry, basename string, typ Type, size int64, mtime time.Time) (*Entry, error) {
	if c, ok := d.Children[basename]; ok {
		c.Age = d.Age
		c.Size = size
		c.Removed = false
		return c, nil
	}
	mode := t.FMode
	if typ == Directory {
		mode = t.DMode
	}
	return t.AddEntry(d.Ino, basename, mode, typ, size, mtime)
}

// StopUpdate implements §4.3's stop_update: after a listing pass, evict any child that went
// unrefreshed this round, carries no pending local modification, has sat untouched past
// dirCacheMaxTime, and is a File — directories are never evicted by this pass; they are removed
// only by explicit DirRemove, matching the original's unimplemented directory-eviction branch.
// Caller must hold the lock.
func (t *Tree) StopUpdate(d *Entry, now time.Time, dirCacheMaxTime time.Duration) {
	for name, c := range d.Children {
		if c.Age >= d.Age {
			continue
		}
		if c.IsModified {
			continue
		}
		if now.Before(c.AccessTime.Add(dirCacheMaxTime)) {
			continue
		}
		if c.Type != File {
			continue
		}
		t.DetachChild(d, name)
	}
}

// IsDirCacheExpired reports whether D's cached listing buffer must be refreshed before serving a
// readdir, per §4.5.1 step 4: the cache must be non-empty, within its TTL, and not flagged
// is_modified.
func (d *Entry) IsDirCacheExpired(now time.Time, dirCacheMaxTime time.Duration) bool {
	if d.DirCacheSize <= 0 {
		return true
	}
	if now.After(d.DirCacheCreated.Add(dirCacheMaxTime)) {
		return true
	}
	return d.IsModified
}
