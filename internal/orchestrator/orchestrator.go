// Package orchestrator implements the Operation Orchestrator (C5): one state machine per
// upward filesystem operation, each bridging a synchronous FUSE callback to the Tree core plus
// zero or more asynchronous collaborator round-trips (HTTP pool, FileIO, CacheMng). Every method
// resolves inodes through the Tree's Index at entry and again after any suspension point, never
// holding an *tree.Entry across one, per the re-resolution discipline the core requires.
package orchestrator

import (
	"context"
	"time"

	"github.com/s3treefs/s3treefs/internal/config"
	"github.com/s3treefs/s3treefs/internal/tree"
	"github.com/s3treefs/s3treefs/pkg/errors"
)

// HeaderLookup is the downward "find_header" primitive: case-insensitive header lookup returning
// ok=false when absent.
type HeaderLookup interface {
	Header(name string) (string, bool)
}

// ObjectHead is the result of a HEAD request against one object key, abstracted over whatever
// the HTTP collaborator actually returns.
type ObjectHead interface {
	HeaderLookup
	StatusCode() int
}

// ListingRow is one row of a directory-listing response.
type ListingRow struct {
	Basename string
	Type     tree.Type
	Size     int64
	ModTime  time.Time
}

// Client is one leased connection from the HTTP pool (§6 Downward: acquire/release/
// add_output_header/make_request collapsed into a Go request/response round-trip per call).
type Client interface {
	Head(ctx context.Context, fullpath string) (ObjectHead, error)
	Put(ctx context.Context, fullpath string, body []byte, headers map[string]string) error
	Delete(ctx context.Context, fullpath string) error
	List(ctx context.Context, fullpath string, ino tree.Ino) ([]ListingRow, error)
	Release()
}

// Pool is the HTTP client pool collaborator (§6 Downward "get_client").
type Pool interface {
	Acquire(ctx context.Context) (Client, error)
}

// FileIO is the per-open-file I/O engine collaborator (§6 Downward "FileIO").
type FileIO interface {
	ReadBuffer(ctx context.Context, off int64, size int) ([]byte, error)
	WriteBuffer(ctx context.Context, buf []byte, off int64) (int, error)
	SimpleUpload(ctx context.Context, body []byte) error
	SimpleDownload(ctx context.Context) ([]byte, error)
	Release(ctx context.Context) error
}

// FileIOFactory opens a FileIO handle for one Entry, mirroring §4.5's "FileIO.create(app,
// fullpath, ino, is_new)".
type FileIOFactory interface {
	Open(fullpath string, ino tree.Ino, isNew bool) (FileIO, error)
}

// CacheMng is the on-disk block cache collaborator (§6 Downward "CacheMng").
type CacheMng interface {
	GetFileLength(ino tree.Ino) uint64
	RemoveFile(ino tree.Ino)
}

// Orchestrator wraps the Tree core plus its downward collaborators and implements every
// upward operation named in §6.
type Orchestrator struct {
	tree *tree.Tree
	pool Pool
	fio  FileIOFactory
	cmng CacheMng
	cfg  *config.Configuration

	dirCacheMaxTime  time.Duration
	fileCacheMaxTime time.Duration
	bucketName       string
	keyPrefix        string
	storageClass     string
	checkEmptyFiles  bool
	forceHeadOnLookup bool
}

// New constructs an Orchestrator over an already-populated Tree (root Entry present) and its
// collaborators, reading policy knobs out of cfg once at startup (§9 "Global state: there is
// none ... reachable from a single root application handle").
func New(t *tree.Tree, pool Pool, fio FileIOFactory, cmng CacheMng, cfg *config.Configuration) *Orchestrator {
	o := &Orchestrator{tree: t, pool: pool, fio: fio, cmng: cmng, cfg: cfg}

	if secs, ok := cfg.GetUnsigned("filesystem.dir_cache_max_time"); ok {
		o.dirCacheMaxTime = time.Duration(secs) * time.Second
	} else {
		o.dirCacheMaxTime = cfg.Filesystem.DirCacheMaxTime
	}
	if secs, ok := cfg.GetUnsigned("filesystem.file_cache_max_time"); ok {
		o.fileCacheMaxTime = time.Duration(secs) * time.Second
	} else {
		o.fileCacheMaxTime = cfg.Filesystem.FileCacheMaxTime
	}
	o.bucketName, _ = cfg.GetString("s3.bucket_name")
	o.keyPrefix, _ = cfg.GetString("s3.key_prefix")
	o.storageClass, _ = cfg.GetString("s3.storage_type")
	o.checkEmptyFiles, _ = cfg.GetBool("s3.check_empty_files")
	o.forceHeadOnLookup, _ = cfg.GetBool("s3.force_head_requests_on_lookup")

	return o
}

// maxRenameSize is the single-PUT copy limit (§6 Wire conventions, §8 Boundary behaviour).
const maxRenameSize int64 = 5 * 1 << 30

// resolve re-implements the Index lookup every operation performs at entry and after every
// suspension point (§5 "every continuation must re-resolve inodes through the Index"). Caller
// must hold the Tree lock.
func (o *Orchestrator) resolve(ino tree.Ino) (*tree.Entry, error) {
	e, ok := o.tree.Lookup(ino)
	if !ok {
		return nil, errors.NewInodeNotFoundError("orchestrator", "resolve", uint64(ino))
	}
	return e, nil
}

func (o *Orchestrator) resolveDir(ino tree.Ino) (*tree.Entry, error) {
	e, err := o.resolve(ino)
	if err != nil {
		return nil, err
	}
	if !e.IsDir() {
		return nil, errors.NewTypeMismatchError("orchestrator", "resolveDir", "directory", "file")
	}
	return e, nil
}

func (o *Orchestrator) resolveFile(ino tree.Ino) (*tree.Entry, error) {
	e, err := o.resolve(ino)
	if err != nil {
		return nil, err
	}
	if e.IsDir() {
		return nil, errors.NewTypeMismatchError("orchestrator", "resolveFile", "file", "directory")
	}
	return e, nil
}

// Stats is the payload for the upward "get_stats" operation.
type Stats struct {
	InodeCount      int
	WriteOpsInFlight int64
}

// GetStats and GetInodeCount implement §6's stats surface.
func (o *Orchestrator) GetStats() Stats {
	o.tree.Lock()
	defer o.tree.Unlock()
	return Stats{InodeCount: o.tree.InodeCount(), WriteOpsInFlight: o.tree.WriteOpsInFlight()}
}

func (o *Orchestrator) GetInodeCount() int {
	o.tree.Lock()
	defer o.tree.Unlock()
	return o.tree.InodeCount()
}

// WriteOpsInFlight implements the graceful-shutdown drain surface over current_write_ops.
func (o *Orchestrator) WriteOpsInFlight() int64 {
	return o.tree.WriteOpsInFlight()
}

// sourcePath composes the x-amz-copy-source value per §6 Wire conventions.
func (o *Orchestrator) sourcePath(fullpath string) string {
	if o.keyPrefix != "" {
		return o.bucketName + o.keyPrefix + fullpath
	}
	return o.bucketName + "/" + fullpath
}
