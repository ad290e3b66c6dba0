package tree

import (
	"sort"
	"time"
)

// DirBufAppender is the FUSE adapter's append primitive (spec.md §6 Downward,
// "add_dirbuf(req, buf, name, ino, size)"). The Directory Buffer Assembler (C6) treats the
// resulting buffer as opaque: it only ever stores the final byte slice on dir_cache, never
// inspects it again. Append returns false once the adapter's underlying buffer is full (e.g. the
// kernel's requested readdir size was exceeded); the Assembler stops appending further entries
// but still returns what has been built so far.
type DirBufAppender interface {
	Append(name string, ino Ino, mode uint32, size int64) bool
	Bytes() []byte
}

// AssembleDirBuf implements §4.4: walk d's children skipping any with age < d.Age or Removed,
// appending synthetic "." and ".." entries first (both resolving to d itself — the adapter
// tolerates this for the immediate-parent case), then caches and returns the resulting bytes.
// Caller must hold the lock.
func (t *Tree) AssembleDirBuf(d *Entry, appender DirBufAppender) []byte {
	appender.Append(".", d.Ino, d.Mode, 0)
	appender.Append("..", d.Ino, d.Mode, 0)

	names := make([]string, 0, len(d.Children))
	for name := range d.Children {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		c := d.Children[name]
		if c.Age < d.Age || c.Removed {
			continue
		}
		if !appender.Append(c.Basename, c.Ino, c.Mode, c.Size) {
			break
		}
	}

	buf := appender.Bytes()
	d.DirCache = buf
	d.DirCacheSize = len(buf)
	d.DirCacheCreated = time.Now()
	return buf
}
