package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s3treefs/s3treefs/internal/config"
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

type call struct {
	verb     string
	fullpath string
	headers  map[string]string
}

type fakeClient struct {
	heads map[string]*fakeHead
	rows  map[string][]ListingRow
	calls *[]call
}

func (c *fakeClient) Head(ctx context.Context, fullpath string) (ObjectHead, error) {
	*c.calls = append(*c.calls, call{verb: "HEAD", fullpath: fullpath})
	if h, ok := c.heads[fullpath]; ok {
		return h, nil
	}
	return &fakeHead{status: 404}, nil
}

func (c *fakeClient) Put(ctx context.Context, fullpath string, body []byte, headers map[string]string) error {
	*c.calls = append(*c.calls, call{verb: "PUT", fullpath: fullpath, headers: headers})
	return nil
}

func (c *fakeClient) Delete(ctx context.Context, fullpath string) error {
	*c.calls = append(*c.calls, call{verb: "DELETE", fullpath: fullpath})
	return nil
}

func (c *fakeClient) List(ctx context.Context, fullpath string, ino tree.Ino) ([]ListingRow, error) {
	*c.calls = append(*c.calls, call{verb: "LIST", fullpath: fullpath})
	return c.rows[fullpath], nil
}

func (c *fakeClient) Release() {}

type fakePool struct {
	heads map[string]*fakeHead
	rows  map[string][]ListingRow
	calls []call
}

func (p *fakePool) Acquire(ctx context.Context) (Client, error) {
	return &fakeClient{heads: p.heads, rows: p.rows, calls: &p.calls}, nil
}

type fakeFileIO struct{}

func (fakeFileIO) ReadBuffer(ctx context.Context, off int64, size int) ([]byte, error) { return nil, nil }
func (fakeFileIO) WriteBuffer(ctx context.Context, buf []byte, off int64) (int, error) { return len(buf), nil }
func (fakeFileIO) SimpleUpload(ctx context.Context, body []byte) error                 { return nil }
func (fakeFileIO) SimpleDownload(ctx context.Context) ([]byte, error)                  { return []byte("target"), nil }
func (fakeFileIO) Release(ctx context.Context) error                                   { return nil }

type fakeFIOFactory struct{}

func (fakeFIOFactory) Open(fullpath string, ino tree.Ino, isNew bool) (FileIO, error) {
	return fakeFileIO{}, nil
}

type fakeCacheMng struct{ length uint64 }

func (c *fakeCacheMng) GetFileLength(ino tree.Ino) uint64 { return c.length }
func (c *fakeCacheMng) RemoveFile(ino tree.Ino)           {}

type testAppender struct {
	names []string
}

func (a *testAppender) Append(name string, ino tree.Ino, mode uint32, size int64) bool {
	a.names = append(a.names, name)
	return true
}
func (a *testAppender) Bytes() []byte { return []byte("buf") }

func newTestOrchestrator(pool *fakePool, cmng *fakeCacheMng) *Orchestrator {
	t := tree.New(tree.DefaultFileMode, tree.DefaultDirMode)
	cfg := config.NewDefault()
	cfg.Filesystem.DirCacheMaxTime = 5 * time.Second
	cfg.Filesystem.FileCacheMaxTime = 5 * time.Second
	cfg.S3.BucketName = "mybucket"
	return New(t, pool, fakeFIOFactory{}, cmng, cfg)
}

func TestCreateThenLookupNoNetwork(t *testing.T) {
	pool := &fakePool{}
	cmng := &fakeCacheMng{}
	o := newTestOrchestrator(pool, cmng)

	_, err := o.FileCreate(tree.RootIno, "a.txt", 0644)
	require.NoError(t, err)

	e, err := o.Lookup(context.Background(), tree.RootIno, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, "a.txt", e.Basename)
	assert.Empty(t, pool.calls, "create-then-lookup must not hit the network")
}

func TestFillDirBufColdListing(t *testing.T) {
	pool := &fakePool{rows: map[string][]ListingRow{
		"": {
			{Basename: "a.txt", Type: tree.File, Size: 3, ModTime: time.Now()},
			{Basename: "sub", Type: tree.Directory, ModTime: time.Now()},
		},
	}}
	cmng := &fakeCacheMng{}
	o := newTestOrchestrator(pool, cmng)

	app := &testAppender{}
	_, err := o.FillDirBuf(context.Background(), tree.RootIno, 0, &OpenDirState{}, app)
	require.NoError(t, err)
	assert.Equal(t, []string{".", "..", "a.txt", "sub"}, app.names)
}

func TestNegativeLookupCache(t *testing.T) {
	pool := &fakePool{}
	cmng := &fakeCacheMng{}
	o := newTestOrchestrator(pool, cmng)

	_, err := o.Lookup(context.Background(), tree.RootIno, "ghost")
	assert.Error(t, err)
	firstCalls := len(pool.calls)
	assert.NotZero(t, firstCalls)

	_, err = o.Lookup(context.Background(), tree.RootIno, "ghost")
	assert.Error(t, err)
	assert.Equal(t, firstCalls, len(pool.calls), "second lookup of a tombstone must not issue a second HEAD")
}

func TestRenameHappyPath(t *testing.T) {
	pool := &fakePool{}
	cmng := &fakeCacheMng{}
	o := newTestOrchestrator(pool, cmng)

	_, err := o.FileCreate(tree.RootIno, "x", 0644)
	require.NoError(t, err)

	err = o.Rename(context.Background(), tree.RootIno, "x", tree.RootIno, "y")
	require.NoError(t, err)

	o.tree.Lock()
	root := o.tree.Root()
	x, stillPresent := root.Children["x"]
	require.True(t, stillPresent, "rename leaves a removed tombstone, matching file_remove's pattern")
	assert.True(t, x.Removed)
	o.tree.Unlock()

	require.Len(t, pool.calls, 2)
	assert.Equal(t, "PUT", pool.calls[0].verb)
	assert.Equal(t, "y", pool.calls[0].fullpath)
	assert.Equal(t, "mybucket/x", pool.calls[0].headers["x-amz-copy-source"])
	assert.Equal(t, "DELETE", pool.calls[1].verb)
	assert.Equal(t, "x", pool.calls[1].fullpath)
}

func TestRenameHappyPathWithKeyPrefix(t *testing.T) {
	pool := &fakePool{}
	cmng := &fakeCacheMng{}
	tr := tree.New(tree.DefaultFileMode, tree.DefaultDirMode)
	cfg := config.NewDefault()
	cfg.Filesystem.DirCacheMaxTime = 5 * time.Second
	cfg.Filesystem.FileCacheMaxTime = 5 * time.Second
	cfg.S3.BucketName = "mybucket"
	cfg.S3.KeyPrefix = "/prefix"
	o := New(tr, pool, fakeFIOFactory{}, cmng, cfg)

	_, err := o.FileCreate(tree.RootIno, "x", 0644)
	require.NoError(t, err)

	err = o.Rename(context.Background(), tree.RootIno, "x", tree.RootIno, "y")
	require.NoError(t, err)

	require.Len(t, pool.calls, 2)
	assert.Equal(t, "PUT", pool.calls[0].verb)
	assert.Equal(t, "mybucket/prefixx", pool.calls[0].headers["x-amz-copy-source"],
		"non-empty key_prefix must not gain an extra separator before fullpath")
}

func TestRenameRejectsOversizedFile(t *testing.T) {
	pool := &fakePool{}
	cmng := &fakeCacheMng{}
	o := newTestOrchestrator(pool, cmng)

	o.tree.Lock()
	e, err := o.tree.AddEntry(tree.RootIno, "big", 0644, tree.File, maxRenameSize, time.Now())
	require.NoError(t, err)
	o.tree.Unlock()
	_ = e

	err = o.Rename(context.Background(), tree.RootIno, "big", tree.RootIno, "small")
	assert.Error(t, err)
	assert.Empty(t, pool.calls)
}

func TestRenameRejectsDirectory(t *testing.T) {
	pool := &fakePool{}
	cmng := &fakeCacheMng{}
	o := newTestOrchestrator(pool, cmng)

	_, err := o.DirCreate(tree.RootIno, "sub", 0755)
	require.NoError(t, err)

	err = o.Rename(context.Background(), tree.RootIno, "sub", tree.RootIno, "sub2")
	assert.Error(t, err)
}

func TestGetXattrRejectsDirectory(t *testing.T) {
	pool := &fakePool{}
	cmng := &fakeCacheMng{}
	o := newTestOrchestrator(pool, cmng)

	_, err := o.DirCreate(tree.RootIno, "sub", 0755)
	require.NoError(t, err)

	o.tree.Lock()
	sub, _ := o.tree.Child(o.tree.Root(), "sub")
	ino := sub.Ino
	o.tree.Unlock()

	_, err = o.GetXattr(context.Background(), ino, "user.etag")
	assert.Error(t, err)
}

func TestFillDirBufPagingWithoutSnapshotFails(t *testing.T) {
	pool := &fakePool{}
	cmng := &fakeCacheMng{}
	o := newTestOrchestrator(pool, cmng)

	_, err := o.FillDirBuf(context.Background(), tree.RootIno, 1, nil, &testAppender{})
	assert.Error(t, err)
}

func TestWriteThenSizeInference(t *testing.T) {
	pool := &fakePool{}
	cmng := &fakeCacheMng{length: 0}
	o := newTestOrchestrator(pool, cmng)

	state, err := o.FileCreate(tree.RootIno, "f", 0644)
	require.NoError(t, err)

	n, err := o.FileWrite(context.Background(), state, []byte("hello"), 0)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	o.tree.Lock()
	assert.Equal(t, int64(5), state.Entry.Size)
	o.tree.Unlock()

	n, err = o.FileWrite(context.Background(), state, []byte("!"), 5)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	o.tree.Lock()
	assert.Equal(t, int64(6), state.Entry.Size)
	o.tree.Unlock()
}

func TestReadlinkRoundTrip(t *testing.T) {
	pool := &fakePool{}
	cmng := &fakeCacheMng{}
	o := newTestOrchestrator(pool, cmng)

	e, err := o.CreateSymlink(context.Background(), tree.RootIno, "link", "target")
	require.NoError(t, err)
	assert.True(t, e.IsSymlink())

	target, err := o.Readlink(context.Background(), e.Ino)
	require.NoError(t, err)
	assert.Equal(t, "target", target)
}
