package fuse

import (
	"encoding/binary"

	"github.com/s3treefs/s3treefs/internal/tree"
)

// dirBuf implements tree.DirBufAppender with an adapter-owned binary encoding rather than
// go-fuse's own wire format. The Assembler caches Bytes() verbatim on Entry.DirCache and replays
// it across opens that may each request a different kernel buffer size, so the cached
// representation has to outlive any one fuse.DirEntryList; AddDirEntry's wire packing is
// reconstructed fresh at serve time from the decoded entries instead.
type dirBuf struct {
	entries []dirEntryRecord
}

type dirEntryRecord struct {
	name string
	ino  tree.Ino
	mode uint32
}

// Append never reports full: the cached buffer is meant to hold the complete listing, with
// per-request pagination against the kernel's buffer size happening later in ReadDir (or the cgofuse Readdir).
func (b *dirBuf) Append(name string, ino tree.Ino, mode uint32, size int64) bool {
	b.entries = append(b.entries, dirEntryRecord{name: name, ino: ino, mode: mode})
	return true
}

func (b *dirBuf) Bytes() []byte {
	return encodeDirEntries(b.entries)
}

// encodeDirEntries/decodeDirEntries are the opaque format the tree core promises never to
// inspect: ino (8 bytes) + mode (4 bytes) + name length (2 bytes) + name, repeated.
func encodeDirEntries(entries []dirEntryRecord) []byte {
	if len(entries) == 0 {
		return nil
	}
	size := 0
	for _, e := range entries {
		size += 14 + len(e.name)
	}
	buf := make([]byte, 0, size)
	var hdr [14]byte
	for _, e := range entries {
		binary.LittleEndian.PutUint64(hdr[0:8], uint64(e.ino))
		binary.LittleEndian.PutUint32(hdr[8:12], e.mode)
		binary.LittleEndian.PutUint16(hdr[12:14], uint16(len(e.name)))
		buf = append(buf, hdr[:]...)
		buf = append(buf, e.name...)
	}
	return buf
}

func decodeDirEntries(buf []byte) []dirEntryRecord {
	var entries []dirEntryRecord
	for len(buf) >= 14 {
		ino := tree.Ino(binary.LittleEndian.Uint64(buf[0:8]))
		mode := binary.LittleEndian.Uint32(buf[8:12])
		nameLen := int(binary.LittleEndian.Uint16(buf[12:14]))
		buf = buf[14:]
		if nameLen > len(buf) {
			break
		}
		entries = append(entries, dirEntryRecord{name: string(buf[:nameLen]), ino: ino, mode: mode})
		buf = buf[nameLen:]
	}
	return entries
}
