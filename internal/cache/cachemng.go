package cache

import (
	"sync"

	"github.com/s3treefs/s3treefs/internal/tree"
)

// CacheMng adapts LRUCache to the tree core's CacheMng collaborator (§6 Downward): a
// byte-length-by-inode query that always reports 0 (see GetFileLength) and drop-on-remove,
// plus a ReadCache surface the FileIO engine consults
// before going to the backend. Keyed by inode rather than object key, since the tree core only
// ever identifies files by ino.
type CacheMng struct {
	cache *LRUCache

	mu    sync.Mutex
	paths map[tree.Ino]string
}

// NewCacheMng wraps an already-constructed LRUCache for use by the Operation Orchestrator and
// the FileIO engine.
func NewCacheMng(cache *LRUCache) *CacheMng {
	return &CacheMng{cache: cache, paths: make(map[tree.Ino]string)}
}

// BindPath records the object key an inode resolves to, so later Get/Put calls can key the
// underlying LRUCache by path while the collaborator interface stays inode-keyed.
func (m *CacheMng) BindPath(ino tree.Ino, fullpath string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paths[ino] = fullpath
}

func (m *CacheMng) path(ino tree.Ino) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.paths[ino]
	return p, ok
}

// GetFileLength implements §6's "get_file_length(ino) -> uint64". This cache only ever stores
// read-through ranges fetched from the backend, never authoritative post-write sizes, so it
// always reports 0 — the Orchestrator's documented "disabled or absent" fallback
// (infer size = off + count) is the correct behaviour here, not a gap.
func (m *CacheMng) GetFileLength(ino tree.Ino) uint64 { return 0 }

// RemoveFile implements §6's "remove_file(ino)": evict every cached range for this inode's
// bound path.
func (m *CacheMng) RemoveFile(ino tree.Ino) {
	path, ok := m.path(ino)
	if !ok {
		return
	}
	m.cache.Delete(path)

	m.mu.Lock()
	delete(m.paths, ino)
	m.mu.Unlock()
}

// Get reads a byte range for ino from the cache, returning ok=false on a miss or an unbound
// inode.
func (m *CacheMng) Get(ino tree.Ino, offset, size int64) ([]byte, bool) {
	path, ok := m.path(ino)
	if !ok {
		return nil, false
	}
	data := m.cache.Get(path, offset, size)
	return data, data != nil
}

// Put populates the cache with a byte range just fetched from the backend for ino.
func (m *CacheMng) Put(ino tree.Ino, fullpath string, offset int64, data []byte) {
	m.BindPath(ino, fullpath)
	m.cache.Put(fullpath, offset, data)
}
