package tree

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Tree owns the full in-memory namespace: the root Entry, the flat inode index, the inode
// allocator, and the default modes applied to newly created Entries. Every FUSE callback's first
// act is resolving its inode argument through Tree.Lookup.
//
// Per spec.md §5, Tree access is serialised behind a single mutex spanning every Orchestrator
// entry point and every HTTP-completion continuation. Tree itself does not lock around individual
// field reads/writes: callers must hold Lock()/Unlock() (or use WithLock) around any sequence of
// calls that must appear atomic, and must never retain an *Entry across a suspension point
// (acquiring an HTTP client, awaiting a response, awaiting FileIO) — only the Ino survives a
// suspension; re-resolve it via Lookup immediately after reacquiring the lock.
type Tree struct {
	mu sync.Mutex

	root   *Entry
	inodes map[Ino]*Entry
	maxIno Ino

	// FMode and DMode are the default modes applied by AddEntry when the caller does not supply
	// one; they fall back to 0644|IFREG and 0755|IFDIR when configuration leaves them unset.
	FMode uint32
	DMode uint32

	currentWriteOps int64
}

// New constructs a Tree with a fresh root Entry and the given default file/directory modes.
func New(fmode, dmode uint32) *Tree {
	now := time.Now()
	root := &Entry{
		Ino:        RootIno,
		ParentIno:  0,
		Basename:   "",
		Fullpath:   "",
		Type:       Directory,
		Mode:       dmode,
		Children:   make(map[string]*Entry),
		AccessTime: now,
	}
	return &Tree{
		inodes: map[Ino]*Entry{RootIno: root},
		root:   root,
		maxIno: RootIno + 1,
		FMode:  fmode,
		DMode:  dmode,
	}
}

// Lock acquires the Tree's mutex. Every Orchestrator operation must hold it while touching the
// tree, and must release it before any suspension point.
func (t *Tree) Lock() { t.mu.Lock() }

// Unlock releases the Tree's mutex.
func (t *Tree) Unlock() { t.mu.Unlock() }

// WithLock runs fn with the Tree locked. Use only for sequences with no suspension point inside;
// anything that blocks on a collaborator must Lock/Unlock by hand around the blocking call.
func (t *Tree) WithLock(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn()
}

// Root returns the root Entry. Caller must hold the lock.
func (t *Tree) Root() *Entry { return t.root }

// Lookup resolves ino through the Inode Index (C2). A miss is reported via ok=false, matching
// spec.md 4.1's "a miss is a hard fail returning a 'not found' reply." Caller must hold the lock.
func (t *Tree) Lookup(ino Ino) (*Entry, bool) {
	e, ok := t.inodes[ino]
	return e, ok
}

// Child resolves a name within a Directory's Children map. Caller must hold the lock.
func (t *Tree) Child(dir *Entry, name string) (*Entry, bool) {
	if dir.Children == nil {
		return nil, false
	}
	c, ok := dir.Children[name]
	return c, ok
}

// InodeCount returns the number of Entries currently indexed, for GetInodeCount. Caller must hold
// the lock.
func (t *Tree) InodeCount() int { return len(t.inodes) }

// AddWriteOp and RemoveWriteOp track Tree.current_write_ops for graceful shutdown draining (§12).
func (t *Tree) AddWriteOp()    { atomic.AddInt64(&t.currentWriteOps, 1) }
func (t *Tree) RemoveWriteOp() { atomic.AddInt64(&t.currentWriteOps, -1) }

// WriteOpsInFlight reports the number of outstanding writes, for graceful shutdown draining.
func (t *Tree) WriteOpsInFlight() int64 { return atomic.LoadInt64(&t.currentWriteOps) }

// AddEntry implements §4.2's add_entry: resolves the parent, rejects a type-changing duplicate
// name, invalidates the parent's listing cache, composes fullpath, allocates a fresh inode,
// initialises defaults, and wires the new Entry into both the Index and the parent's Children
// map. Caller must hold the lock.
func (t *Tree) AddEntry(parentIno Ino, basename string, mode uint32, typ Type, size int64, ctime time.Time) (*Entry, error) {
	var parent *Entry
	if parentIno != 0 {
		p, ok := t.inodes[parentIno]
		if !ok {
			return nil, fmt.Errorf("add_entry: parent inode %d not found", parentIno)
		}
		if !p.IsDir() {
			return nil, fmt.Errorf("add_entry: parent inode %d is not a directory", parentIno)
		}
		parent = p
	} else {
		parent = t.root
	}

	if existing, ok := parent.Children[basename]; ok && existing.Type != typ {
		return nil, fmt.Errorf("add_entry: %q exists with a different type", basename)
	}

	t.EntryModified(parent)

	var fullpath string
	if parent == t.root {
		fullpath = basename
	} else {
		fullpath = parent.Fullpath + "/" + basename
	}

	ino := t.maxIno
	t.maxIno++

	now := time.Now()
	e := newEntry(ino, parent.Ino, basename, fullpath, typ, mode, size, ctime, parent.Age, now)

	t.inodes[ino] = e
	parent.Children[basename] = e

	t.EntryModified(parent)

	return e, nil
}

// EntryModified implements §4.2's entry_modified: dropping a Directory's dir_cache (but
// deliberately not resetting dir_cache_created, which rate-limits refreshes) or, for a File,
// recursing to mark its parent's listing stale. Caller must hold the lock.
func (t *Tree) EntryModified(e *Entry) {
	if e.IsDir() {
		e.DirCache = nil
		e.DirCacheSize = 0
		return
	}
	if parent, ok := t.inodes[e.ParentIno]; ok {
		t.EntryModified(parent)
	}
}

// removeFromIndex destroys E's subtree post-order (Directories own their children exclusively)
// and deletes every destroyed Entry from the Index, per invariant 4. Caller must hold the lock.
func (t *Tree) removeFromIndex(e *Entry) {
	if e.IsDir() {
		for _, c := range e.Children {
			t.removeFromIndex(c)
		}
	}
	delete(t.inodes, e.Ino)
}

// DetachChild removes name from dir's Children map and the Index (recursively, if it is a
// Directory with descendants), without touching the backend. Used by the Reconciler's
// stop_update eviction and by explicit remove/rmdir once the backend side has been handled.
// Caller must hold the lock.
func (t *Tree) DetachChild(dir *Entry, name string) {
	c, ok := dir.Children[name]
	if !ok {
		return
	}
	delete(dir.Children, name)
	t.removeFromIndex(c)
}
