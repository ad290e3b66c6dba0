package buffer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s3treefs/s3treefs/internal/config"
	"github.com/s3treefs/s3treefs/internal/tree"
)

type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte

	uploads    map[string][][]byte
	nextUpload int
	aborted    []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: make(map[string][]byte), uploads: make(map[string][][]byte)}
}

func (s *fakeStore) GetRange(ctx context.Context, key string, offset, size int64) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data := s.objects[key]
	if size < 0 {
		return data, nil
	}
	end := offset + size
	if end > int64(len(data)) {
		end = int64(len(data))
	}
	return data[offset:end], nil
}

func (s *fakeStore) PutWhole(ctx context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	s.objects[key] = cp
	return nil
}

func (s *fakeStore) CreateMultipartUpload(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextUpload++
	id := key + "#upload"
	s.uploads[id] = nil
	return id, nil
}

func (s *fakeStore) UploadPart(ctx context.Context, key, uploadID string, partNumber int, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	s.uploads[uploadID] = append(s.uploads[uploadID], cp)
	return "etag", nil
}

func (s *fakeStore) CompleteMultipartUpload(ctx context.Context, key, uploadID string, parts []CompletedPart) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var whole []byte
	for _, part := range s.uploads[uploadID] {
		whole = append(whole, part...)
	}
	s.objects[key] = whole
	delete(s.uploads, uploadID)
	return nil
}

func (s *fakeStore) AbortMultipartUpload(ctx context.Context, key, uploadID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aborted = append(s.aborted, uploadID)
	delete(s.uploads, uploadID)
}

func newTestFactory(t *testing.T) *Factory {
	t.Helper()
	cfg := config.NewDefault()
	f, err := NewFactory(context.Background(), newFakeStore(), nil, &cfg.WriteBuffer)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Mgr.Stop() })
	return f
}

func TestHandleWriteThenReleasePutsWhole(t *testing.T) {
	f := newTestFactory(t)
	store := f.Store.(*fakeStore)

	fio, err := f.Open("a/b", tree.Ino(2), true)
	require.NoError(t, err)

	n, err := fio.WriteBuffer(context.Background(), []byte("hello"), 0)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	n, err = fio.WriteBuffer(context.Background(), []byte(" world"), 5)
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	require.NoError(t, fio.Release(context.Background()))

	assert.Equal(t, "hello world", string(store.objects["a/b"]))
}

func TestHandleReleaseWithoutWritesIsNoop(t *testing.T) {
	f := newTestFactory(t)
	store := f.Store.(*fakeStore)

	fio, err := f.Open("empty", tree.Ino(3), true)
	require.NoError(t, err)
	require.NoError(t, fio.Release(context.Background()))

	_, ok := store.objects["empty"]
	assert.False(t, ok, "a handle with no buffered writes must not issue any PUT")
}

func TestHandleLargeWriteGoesThroughMultipart(t *testing.T) {
	f := newTestFactory(t)
	store := f.Store.(*fakeStore)

	fio, err := f.Open("big", tree.Ino(4), true)
	require.NoError(t, err)

	big := make([]byte, multipartChunkSize+1024)
	for i := range big {
		big[i] = byte(i)
	}
	_, err = fio.WriteBuffer(context.Background(), big, 0)
	require.NoError(t, err)
	require.NoError(t, fio.Release(context.Background()))

	assert.Equal(t, big, store.objects["big"])
	assert.Empty(t, store.uploads, "completed multipart upload must be removed from in-flight tracking")
}

func TestConcurrentHandlesOnSamePathDoNotCollide(t *testing.T) {
	f := newTestFactory(t)
	store := f.Store.(*fakeStore)

	fioA, err := f.Open("shared", tree.Ino(5), true)
	require.NoError(t, err)
	fioB, err := f.Open("shared", tree.Ino(5), false)
	require.NoError(t, err)

	_, err = fioA.WriteBuffer(context.Background(), []byte("AAAA"), 0)
	require.NoError(t, err)
	_, err = fioB.WriteBuffer(context.Background(), []byte("BBBB"), 0)
	require.NoError(t, err)

	require.NoError(t, fioA.Release(context.Background()))
	require.NoError(t, fioB.Release(context.Background()))

	assert.Equal(t, "BBBB", string(store.objects["shared"]), "second handle's flush lands last and wins")
}

func TestSimpleUploadBypassesBuffering(t *testing.T) {
	f := newTestFactory(t)
	store := f.Store.(*fakeStore)

	fio, err := f.Open("link", tree.Ino(6), true)
	require.NoError(t, err)

	require.NoError(t, fio.SimpleUpload(context.Background(), []byte("target")))
	body, err := fio.SimpleDownload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "target", string(body))
	assert.Equal(t, "target", string(store.objects["link"]))
}

func TestBytePoolRoundTrip(t *testing.T) {
	pool := NewBytePool()
	buf := pool.Get(4096)
	assert.Len(t, buf, 4096)
	pool.Put(buf)

	stats := pool.GetStats()
	assert.NotZero(t, stats.TotalPools)
	assert.Equal(t, stats.PoolSizes[0], stats.MinBufferSize)
}

func TestManagerWaitForFlushBlocksUntilCallbackRuns(t *testing.T) {
	cfg := &ManagerConfig{
		WriteBufferConfig: &WriteBufferConfig{
			MaxBufferSize:  1024,
			MaxBuffers:     10,
			FlushInterval:  time.Minute,
			FlushThreshold: 1024,
			MaxWriteDelay:  time.Second,
		},
		MaxErrorRate:   0.05,
		AlertThreshold: 10,
	}
	mgr, err := NewManager(cfg)
	require.NoError(t, err)
	require.NoError(t, mgr.Start(context.Background()))
	defer mgr.Stop()

	var flushed []byte
	mgr.RegisterFlushCallback("k", func(key string, data []byte, offset int64) error {
		flushed = append(flushed, data...)
		return nil
	})

	require.NoError(t, mgr.Write(context.Background(), "k", 0, []byte("payload"), true))
	require.NoError(t, mgr.WaitForFlush(context.Background(), "k"))
	assert.Equal(t, "payload", string(flushed))
}
