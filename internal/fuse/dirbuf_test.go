package fuse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s3treefs/s3treefs/internal/tree"
)

func TestDirBufAppendRoundTrip(t *testing.T) {
	b := &dirBuf{}
	assert.True(t, b.Append(".", 1, tree.ModeDirectory, 0))
	assert.True(t, b.Append("..", 1, tree.ModeDirectory, 0))
	assert.True(t, b.Append("hello.txt", 42, tree.ModeRegular|0644, 11))

	buf := b.Bytes()
	require.NotEmpty(t, buf)

	entries := decodeDirEntries(buf)
	require.Len(t, entries, 3)
	assert.Equal(t, ".", entries[0].name)
	assert.Equal(t, tree.Ino(1), entries[0].ino)
	assert.Equal(t, "..", entries[1].name)
	assert.Equal(t, "hello.txt", entries[2].name)
	assert.Equal(t, tree.Ino(42), entries[2].ino)
	assert.Equal(t, tree.ModeRegular|0644, entries[2].mode)
}

func TestDirBufEmpty(t *testing.T) {
	b := &dirBuf{}
	buf := b.Bytes()
	assert.Nil(t, buf)
	assert.Empty(t, decodeDirEntries(buf))
}

func TestDecodeDirEntriesTruncatedBuffer(t *testing.T) {
	b := &dirBuf{}
	b.Append("full", 7, tree.ModeRegular, 0)
	buf := b.Bytes()

	// Truncate mid-record; decode must stop cleanly instead of panicking.
	truncated := buf[:len(buf)-2]
	entries := decodeDirEntries(truncated)
	assert.Empty(t, entries)
}

func TestDirBufAppendNeverReportsFull(t *testing.T) {
	b := &dirBuf{}
	for i := 0; i < 1000; i++ {
		require.True(t, b.Append("entry", tree.Ino(i), tree.ModeRegular, 0))
	}
	assert.Len(t, decodeDirEntries(b.Bytes()), 1000)
}
