package fuse

import (
	"context"
	"syscall"
	"testing"
	"time"

	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s3treefs/s3treefs/internal/config"
	"github.com/s3treefs/s3treefs/internal/orchestrator"
	"github.com/s3treefs/s3treefs/internal/tree"
)

type fakeHead struct {
	status  int
	headers map[string]string
}

func (h *fakeHead) StatusCode() int { return h.status }
func (h *fakeHead) Header(name string) (string, bool) {
	v, ok := h.headers[name]
	return v, ok
}

type fakeClient struct{ heads map[string]*fakeHead }

func (c *fakeClient) Head(ctx context.Context, fullpath string) (orchestrator.ObjectHead, error) {
	if h, ok := c.heads[fullpath]; ok {
		return h, nil
	}
	return &fakeHead{status: 404}, nil
}
func (c *fakeClient) Put(ctx context.Context, fullpath string, body []byte, headers map[string]string) error {
	return nil
}
func (c *fakeClient) Delete(ctx context.Context, fullpath string) error { return nil }
func (c *fakeClient) List(ctx context.Context, fullpath string, ino tree.Ino) ([]orchestrator.ListingRow, error) {
	return nil, nil
}
func (c *fakeClient) Release() {}

type fakePool struct{ heads map[string]*fakeHead }

func (p *fakePool) Acquire(ctx context.Context) (orchestrator.Client, error) {
	return &fakeClient{heads: p.heads}, nil
}

type fakeFileIO struct{}

func (fakeFileIO) ReadBuffer(ctx context.Context, off int64, size int) ([]byte, error) {
	return make([]byte, size), nil
}
func (fakeFileIO) WriteBuffer(ctx context.Context, buf []byte, off int64) (int, error) {
	return len(buf), nil
}
func (fakeFileIO) SimpleUpload(ctx context.Context, body []byte) error { return nil }
func (fakeFileIO) SimpleDownload(ctx context.Context) ([]byte, error)  { return nil, nil }
func (fakeFileIO) Release(ctx context.Context) error                   { return nil }

type fakeFIOFactory struct{}

func (fakeFIOFactory) Open(fullpath string, ino tree.Ino, isNew bool) (orchestrator.FileIO, error) {
	return fakeFileIO{}, nil
}

type fakeCacheMng struct{}

func (fakeCacheMng) GetFileLength(ino tree.Ino) uint64 { return 0 }
func (fakeCacheMng) RemoveFile(ino tree.Ino)           {}

func newTestFileSystem() *FileSystem {
	t := tree.New(tree.DefaultFileMode, tree.DefaultDirMode)
	cfg := config.NewDefault()
	cfg.Filesystem.DirCacheMaxTime = 5 * time.Second
	cfg.Filesystem.FileCacheMaxTime = 5 * time.Second
	cfg.S3.BucketName = "mybucket"
	orch := orchestrator.New(t, &fakePool{}, fakeFIOFactory{}, fakeCacheMng{}, cfg)
	return NewFileSystem(orch, &Config{DefaultUID: 1000, DefaultGID: 1000, CacheTTL: time.Second})
}

func TestMkdirLookupGetAttr(t *testing.T) {
	f := newTestFileSystem()

	var mkOut fuse.EntryOut
	status := f.Mkdir(nil, &fuse.MkdirIn{InHeader: fuse.InHeader{NodeId: uint64(tree.RootIno)}, Mode: 0755}, "sub", &mkOut)
	require.Equal(t, fuse.OK, status)
	assert.NotZero(t, mkOut.NodeId)

	var lookupOut fuse.EntryOut
	status = f.Lookup(nil, &fuse.InHeader{NodeId: uint64(tree.RootIno)}, "sub", &lookupOut)
	require.Equal(t, fuse.OK, status)
	assert.Equal(t, mkOut.NodeId, lookupOut.NodeId)

	var attrOut fuse.AttrOut
	status = f.GetAttr(nil, &fuse.GetAttrIn{InHeader: fuse.InHeader{NodeId: lookupOut.NodeId}}, &attrOut)
	require.Equal(t, fuse.OK, status)
	assert.Equal(t, tree.ModeDirectory|0755, attrOut.Attr.Mode&(tree.ModeDirectory|0777))
}

func TestLookupMissingReturnsENOENT(t *testing.T) {
	f := newTestFileSystem()
	var out fuse.EntryOut
	status := f.Lookup(nil, &fuse.InHeader{NodeId: uint64(tree.RootIno)}, "nope", &out)
	assert.Equal(t, fuse.Status(syscall.ENOENT), status)
}

func TestCreateThenWriteUpdatesStatsAndHandle(t *testing.T) {
	f := newTestFileSystem()

	var createOut fuse.CreateOut
	status := f.Create(nil, &fuse.CreateIn{InHeader: fuse.InHeader{NodeId: uint64(tree.RootIno)}, Mode: 0644}, "hello.txt", &createOut)
	require.Equal(t, fuse.OK, status)
	fh := createOut.OpenOut.Fh

	state, ok := f.lookupFile(fh)
	require.True(t, ok)
	assert.Equal(t, createOut.NodeId, uint64(state.Entry.Ino))

	data := []byte("hello world")
	n, status := f.Write(nil, &fuse.WriteIn{InHeader: fuse.InHeader{NodeId: createOut.NodeId, Fh: fh}, Offset: 0, Size: uint32(len(data))}, data)
	require.Equal(t, fuse.OK, status)
	assert.Equal(t, uint32(len(data)), n)

	f.Release(nil, &fuse.ReleaseIn{InHeader: fuse.InHeader{NodeId: createOut.NodeId, Fh: fh}})
	_, stillOpen := f.lookupFile(fh)
	assert.False(t, stillOpen)

	stats := f.GetStats()
	assert.Equal(t, int64(1), stats.Creates)
	assert.Equal(t, int64(1), stats.Writes)
	assert.Equal(t, int64(len(data)), stats.BytesWritten)
}

func TestFillDirBufIncludesNewEntries(t *testing.T) {
	f := newTestFileSystem()

	var mkOut fuse.EntryOut
	require.Equal(t, fuse.OK, f.Mkdir(nil, &fuse.MkdirIn{InHeader: fuse.InHeader{NodeId: uint64(tree.RootIno)}, Mode: 0755}, "dir1", &mkOut))
	var createOut fuse.CreateOut
	require.Equal(t, fuse.OK, f.Create(nil, &fuse.CreateIn{InHeader: fuse.InHeader{NodeId: uint64(tree.RootIno)}, Mode: 0644}, "file1", &createOut))

	var openOut fuse.OpenOut
	require.Equal(t, fuse.OK, f.OpenDir(nil, &fuse.OpenIn{InHeader: fuse.InHeader{NodeId: uint64(tree.RootIno)}}, &openOut))

	state, ok := f.popDir(openOut.Fh)
	require.True(t, ok)

	buf, err := f.orch.FillDirBuf(context.Background(), tree.RootIno, 0, state, &dirBuf{})
	require.NoError(t, err)

	entries := decodeDirEntries(buf)
	var names []string
	for _, e := range entries {
		names = append(names, e.name)
	}
	assert.ElementsMatch(t, []string{".", "..", "dir1", "file1"}, names)
}

func TestReadOnlyRejectsWriteAndCreate(t *testing.T) {
	f := newTestFileSystem()
	f.config.ReadOnly = true

	var createOut fuse.CreateOut
	status := f.Create(nil, &fuse.CreateIn{InHeader: fuse.InHeader{NodeId: uint64(tree.RootIno)}, Mode: 0644}, "blocked.txt", &createOut)
	assert.Equal(t, fuse.EROFS, status)

	_, status = f.Write(nil, &fuse.WriteIn{InHeader: fuse.InHeader{NodeId: uint64(tree.RootIno)}}, []byte("x"))
	assert.Equal(t, fuse.EROFS, status)
}
