package tree

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAppender struct {
	entries []string
	buf     []byte
}

func (f *fakeAppender) Append(name string, ino Ino, mode uint32, size int64) bool {
	f.entries = append(f.entries, name)
	f.buf = append(f.buf, []byte(name)...)
	f.buf = append(f.buf, 0)
	return true
}

func (f *fakeAppender) Bytes() []byte { return f.buf }

// Concrete scenario 1 ("Cold listing"): a fresh listing populates three new Entries at root.Age.
func TestColdListing(t *testing.T) {
	tr := newTestTree()
	tr.Lock()
	defer tr.Unlock()

	root := tr.Root()
	now := time.Now()

	tr.StartUpdate(root)
	_, err := tr.UpdateEntry(root, "a.txt", File, 3, now)
	require.NoError(t, err)
	_, err = tr.UpdateEntry(root, "sub", Directory, 0, now)
	require.NoError(t, err)
	tr.StopUpdate(root, now, 5*time.Minute)

	app := &fakeAppender{}
	tr.AssembleDirBuf(root, app)

	assert.Equal(t, []string{".", "..", "a.txt", "sub"}, app.entries)

	a, ok := tr.Child(root, "a.txt")
	require.True(t, ok)
	assert.Equal(t, root.Age, a.Age)

	sub, ok := tr.Child(root, "sub")
	require.True(t, ok)
	assert.Equal(t, root.Age, sub.Age)
}

// Concrete scenario 2 ("Stale eviction"): a.txt untouched past dirCacheMaxTime and missing from
// the second listing is evicted; sub survives.
func TestStaleEviction(t *testing.T) {
	tr := newTestTree()
	tr.Lock()
	defer tr.Unlock()

	root := tr.Root()
	t0 := time.Now()

	tr.StartUpdate(root)
	_, err := tr.UpdateEntry(root, "a.txt", File, 3, t0)
	require.NoError(t, err)
	_, err = tr.UpdateEntry(root, "sub", Directory, 0, t0)
	require.NoError(t, err)
	tr.StopUpdate(root, t0, 5*time.Minute)

	later := t0.Add(10 * time.Minute)

	tr.StartUpdate(root)
	_, err = tr.UpdateEntry(root, "sub", Directory, 0, later)
	require.NoError(t, err)
	tr.StopUpdate(root, later, 5*time.Minute)

	_, ok := tr.Child(root, "a.txt")
	assert.False(t, ok)
	sub, ok := tr.Child(root, "sub")
	require.True(t, ok)
	assert.Equal(t, root.Age, sub.Age)
}

// Concrete scenario 3 ("Modified survival"): a.txt with IsModified set survives the same eviction
// pass that would otherwise remove it.
func TestModifiedSurvivesEviction(t *testing.T) {
	tr := newTestTree()
	tr.Lock()
	defer tr.Unlock()

	root := tr.Root()
	t0 := time.Now()

	tr.StartUpdate(root)
	_, err := tr.UpdateEntry(root, "a.txt", File, 3, t0)
	require.NoError(t, err)
	tr.StopUpdate(root, t0, 5*time.Minute)

	a, ok := tr.Child(root, "a.txt")
	require.True(t, ok)
	a.IsModified = true

	later := t0.Add(10 * time.Minute)
	tr.StartUpdate(root)
	tr.StopUpdate(root, later, 5*time.Minute)

	_, ok = tr.Child(root, "a.txt")
	assert.True(t, ok, "modified entry must survive stop_update eviction")
}

func TestStopUpdateNeverEvictsDirectories(t *testing.T) {
	tr := newTestTree()
	tr.Lock()
	defer tr.Unlock()

	root := tr.Root()
	t0 := time.Now()

	tr.StartUpdate(root)
	_, err := tr.UpdateEntry(root, "sub", Directory, 0, t0)
	require.NoError(t, err)
	tr.StopUpdate(root, t0, 5*time.Minute)

	later := t0.Add(time.Hour)
	tr.StartUpdate(root)
	tr.StopUpdate(root, later, 5*time.Minute)

	_, ok := tr.Child(root, "sub")
	assert.True(t, ok, "directories are never evicted by stop_update")
}

func TestIsDirCacheExpired(t *testing.T) {
	d := &Entry{Type: Directory}
	assert.True(t, d.IsDirCacheExpired(time.Now(), time.Minute), "empty cache is expired")

	d.DirCacheSize = 10
	d.DirCacheCreated = time.Now()
	assert.False(t, d.IsDirCacheExpired(time.Now(), time.Minute))

	assert.True(t, d.IsDirCacheExpired(time.Now().Add(2*time.Minute), time.Minute))

	d.DirCacheCreated = time.Now()
	d.IsModified = true
	assert.True(t, d.IsDirCacheExpired(time.Now(), time.Minute))
}
