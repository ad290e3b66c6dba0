package fuse

import (
	"context"
	"log"
	"sync"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/s3treefs/s3treefs/internal/metrics"
	"github.com/s3treefs/s3treefs/internal/orchestrator"
	"github.com/s3treefs/s3treefs/internal/tree"
)

// FileSystem bridges go-fuse's raw kernel protocol directly to the Operation Orchestrator,
// using tree.Ino as the raw NodeId with no translation layer: the core already owns inode
// allocation and the Index, so there is nothing left for an fs.Inode tree to do. Every method not
// overridden here falls through to the embedded default, which answers ENOSYS.
type FileSystem struct {
	fuse.RawFileSystem

	orch   *orchestrator.Orchestrator
	config *Config

	mu         sync.Mutex
	openFiles  map[uint64]*orchestrator.OpenFileState
	openDirs   map[uint64]*orchestrator.OpenDirState
	nextHandle uint64

	stats   *Stats
	metrics *metrics.Collector
}

// SetMetrics attaches a metrics Collector; Lookup, Read and Write below report their duration,
// size, and outcome to it when set, and the reporting is a no-op otherwise.
func (f *FileSystem) SetMetrics(c *metrics.Collector) { f.metrics = c }

func (f *FileSystem) recordMetric(op string, start time.Time, size int64, err error) {
	if f.metrics == nil {
		return
	}
	f.metrics.RecordOperation(op, time.Since(start), size, err == nil)
}

// Config carries the mount-time behaviour knobs that aren't already owned by the Orchestrator's
// own configuration (filesystem.dir_cache_max_time and friends apply inside the core; these apply
// at the kernel-protocol boundary).
type Config struct {
	MountPoint string `yaml:"mount_point"`
	ReadOnly   bool   `yaml:"read_only"`
	AllowOther bool   `yaml:"allow_other"`

	DirectIO  bool   `yaml:"direct_io"`
	KeepCache bool   `yaml:"keep_cache"`
	BigWrites bool   `yaml:"big_writes"`
	MaxRead   uint32 `yaml:"max_read"`
	MaxWrite  uint32 `yaml:"max_write"`

	DefaultUID  uint32        `yaml:"default_uid"`
	DefaultGID  uint32        `yaml:"default_gid"`
	DefaultMode uint32        `yaml:"default_mode"`
	CacheTTL    time.Duration `yaml:"cache_ttl"`
}

// Stats tracks filesystem operation statistics, counted by this adapter at the kernel-protocol
// boundary independently of the Orchestrator's own counters.
type Stats struct {
	mu sync.RWMutex

	Lookups int64 `json:"lookups"`
	Opens   int64 `json:"opens"`
	Reads   int64 `json:"reads"`
	Writes  int64 `json:"writes"`
	Creates int64 `json:"creates"`
	Removes int64 `json:"removes"`
	Errors  int64 `json:"errors"`

	BytesRead    int64 `json:"bytes_read"`
	BytesWritten int64 `json:"bytes_written"`

	AvgReadTime   time.Duration `json:"avg_read_time"`
	AvgWriteTime  time.Duration `json:"avg_write_time"`
	AvgLookupTime time.Duration `json:"avg_lookup_time"`
}

// NewFileSystem creates a raw FUSE adapter over an already-constructed Orchestrator.
func NewFileSystem(orch *orchestrator.Orchestrator, config *Config) *FileSystem {
	if config == nil {
		config = &Config{
			DefaultUID:  1000,
			DefaultGID:  1000,
			DefaultMode: 0644,
			CacheTTL:    5 * time.Minute,
		}
	}
	return &FileSystem{
		RawFileSystem: fuse.NewDefaultRawFileSystem(),
		orch:          orch,
		config:        config,
		openFiles:     make(map[uint64]*orchestrator.OpenFileState),
		openDirs:      make(map[uint64]*orchestrator.OpenDirState),
		nextHandle:    1,
		stats:         &Stats{},
	}
}

// GetStats returns a snapshot of the filesystem operation statistics.
func (f *FileSystem) GetStats() *Stats {
	f.stats.mu.RLock()
	defer f.stats.mu.RUnlock()
	snap := *f.stats
	return &snap
}

func (f *FileSystem) String() string { return "s3treefs" }

func (f *FileSystem) Init(server *fuse.Server) {}

func (f *FileSystem) recordLookupTime(d time.Duration) {
	f.stats.mu.Lock()
	defer f.stats.mu.Unlock()
	if f.stats.Lookups <= 1 {
		f.stats.AvgLookupTime = d
	} else {
		f.stats.AvgLookupTime = time.Duration((int64(f.stats.AvgLookupTime)*9 + int64(d)) / 10)
	}
}

func (f *FileSystem) recordReadTime(d time.Duration) {
	f.stats.mu.Lock()
	defer f.stats.mu.Unlock()
	if f.stats.Reads <= 1 {
		f.stats.AvgReadTime = d
	} else {
		f.stats.AvgReadTime = time.Duration((int64(f.stats.AvgReadTime)*9 + int64(d)) / 10)
	}
}

func (f *FileSystem) recordWriteTime(d time.Duration) {
	f.stats.mu.Lock()
	defer f.stats.mu.Unlock()
	if f.stats.Writes <= 1 {
		f.stats.AvgWriteTime = d
	} else {
		f.stats.AvgWriteTime = time.Duration((int64(f.stats.AvgWriteTime)*9 + int64(d)) / 10)
	}
}

func (f *FileSystem) bumpErrors() {
	f.stats.mu.Lock()
	f.stats.Errors++
	f.stats.mu.Unlock()
}

func (f *FileSystem) allocHandle() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	h := f.nextHandle
	f.nextHandle++
	return h
}

func (f *FileSystem) registerFile(state *orchestrator.OpenFileState) uint64 {
	h := f.allocHandle()
	f.mu.Lock()
	f.openFiles[h] = state
	f.mu.Unlock()
	return h
}

func (f *FileSystem) lookupFile(fh uint64) (*orchestrator.OpenFileState, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state, ok := f.openFiles[fh]
	return state, ok
}

func (f *FileSystem) popFile(fh uint64) (*orchestrator.OpenFileState, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state, ok := f.openFiles[fh]
	delete(f.openFiles, fh)
	return state, ok
}

func (f *FileSystem) registerDir(state *orchestrator.OpenDirState) uint64 {
	h := f.allocHandle()
	f.mu.Lock()
	f.openDirs[h] = state
	f.mu.Unlock()
	return h
}

func (f *FileSystem) popDir(fh uint64) (*orchestrator.OpenDirState, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state, ok := f.openDirs[fh]
	delete(f.openDirs, fh)
	return state, ok
}

func (f *FileSystem) fillAttr(out *fuse.Attr, e *tree.Entry) {
	out.Ino = uint64(e.Ino)
	out.Mode = e.Mode
	out.Size = uint64(e.Size)
	out.Nlink = 1
	out.Uid = f.config.DefaultUID
	out.Gid = f.config.DefaultGID
	sec := uint64(e.Ctime.Unix())
	if sec == 0 {
		sec = uint64(e.UpdatedTime.Unix())
	}
	out.Atime, out.Mtime, out.Ctime = sec, sec, sec
	out.Blksize = 4096
	out.Blocks = (out.Size + 511) / 512
}

func (f *FileSystem) fillEntryOut(out *fuse.EntryOut, e *tree.Entry) {
	out.NodeId = uint64(e.Ino)
	out.Generation = 1
	out.SetEntryTimeout(f.config.CacheTTL)
	out.SetAttrTimeout(f.config.CacheTTL)
	f.fillAttr(&out.Attr, e)
}

// Lookup implements the kernel's name-resolution entry point, the single most frequent FUSE
// callback, against the Orchestrator's lookup/HEAD reconciliation.
func (f *FileSystem) Lookup(cancel <-chan struct{}, header *fuse.InHeader, name string, out *fuse.EntryOut) fuse.Status {
	start := time.Now()
	f.stats.mu.Lock()
	f.stats.Lookups++
	f.stats.mu.Unlock()
	defer func() { f.recordLookupTime(time.Since(start)) }()

	e, err := f.orch.Lookup(context.Background(), tree.Ino(header.NodeId), name)
	f.recordMetric("lookup", start, 0, err)
	if err != nil {
		return status(err)
	}
	f.fillEntryOut(out, e)
	return fuse.OK
}

func (f *FileSystem) GetAttr(cancel <-chan struct{}, input *fuse.GetAttrIn, out *fuse.AttrOut) fuse.Status {
	e, err := f.orch.GetAttr(tree.Ino(input.NodeId))
	if err != nil {
		return status(err)
	}
	out.SetTimeout(f.config.CacheTTL)
	f.fillAttr(&out.Attr, e)
	return fuse.OK
}

func (f *FileSystem) SetAttr(cancel <-chan struct{}, input *fuse.SetAttrIn, out *fuse.AttrOut) fuse.Status {
	var mode *uint32
	var size *int64
	if input.Valid&fuse.FATTR_MODE != 0 {
		m := input.Mode
		mode = &m
	}
	if input.Valid&fuse.FATTR_SIZE != 0 {
		s := int64(input.Size)
		size = &s
	}
	e, err := f.orch.SetAttr(tree.Ino(input.NodeId), mode, size)
	if err != nil {
		return status(err)
	}
	out.SetTimeout(f.config.CacheTTL)
	f.fillAttr(&out.Attr, e)
	return fuse.OK
}

func (f *FileSystem) Mkdir(cancel <-chan struct{}, input *fuse.MkdirIn, name string, out *fuse.EntryOut) fuse.Status {
	mode := tree.ModeDirectory | (input.Mode &^ input.Umask & 0777)
	e, err := f.orch.DirCreate(tree.Ino(input.NodeId), name, mode)
	if err != nil {
		f.bumpErrors()
		return status(err)
	}
	f.fillEntryOut(out, e)
	return fuse.OK
}

func (f *FileSystem) Rmdir(cancel <-chan struct{}, header *fuse.InHeader, name string) fuse.Status {
	if err := f.orch.DirRemove(tree.Ino(header.NodeId), name); err != nil {
		f.bumpErrors()
		return status(err)
	}
	f.stats.mu.Lock()
	f.stats.Removes++
	f.stats.mu.Unlock()
	return fuse.OK
}

func (f *FileSystem) Unlink(cancel <-chan struct{}, header *fuse.InHeader, name string) fuse.Status {
	if err := f.orch.FileUnlink(context.Background(), tree.Ino(header.NodeId), name); err != nil {
		f.bumpErrors()
		return status(err)
	}
	f.stats.mu.Lock()
	f.stats.Removes++
	f.stats.mu.Unlock()
	return fuse.OK
}

func (f *FileSystem) Rename(cancel <-chan struct{}, input *fuse.RenameIn, oldName, newName string) fuse.Status {
	if err := f.orch.Rename(context.Background(), tree.Ino(input.NodeId), oldName, tree.Ino(input.Newdir), newName); err != nil {
		f.bumpErrors()
		return status(err)
	}
	return fuse.OK
}

func (f *FileSystem) Symlink(cancel <-chan struct{}, header *fuse.InHeader, pointedTo, linkName string, out *fuse.EntryOut) fuse.Status {
	e, err := f.orch.CreateSymlink(context.Background(), tree.Ino(header.NodeId), linkName, pointedTo)
	if err != nil {
		f.bumpErrors()
		return status(err)
	}
	f.fillEntryOut(out, e)
	return fuse.OK
}

func (f *FileSystem) Readlink(cancel <-chan struct{}, header *fuse.InHeader) ([]byte, fuse.Status) {
	target, err := f.orch.Readlink(context.Background(), tree.Ino(header.NodeId))
	if err != nil {
		return nil, status(err)
	}
	return []byte(target), fuse.OK
}

func (f *FileSystem) Create(cancel <-chan struct{}, input *fuse.CreateIn, name string, out *fuse.CreateOut) fuse.Status {
	if f.config.ReadOnly {
		return fuse.EROFS
	}
	mode := tree.DefaultFileMode
	if input.Mode != 0 {
		mode = tree.ModeRegular | (input.Mode &^ input.Umask & 0777)
	}
	state, err := f.orch.FileCreate(tree.Ino(input.NodeId), name, mode)
	if err != nil {
		f.bumpErrors()
		return status(err)
	}
	f.stats.mu.Lock()
	f.stats.Creates++
	f.stats.mu.Unlock()

	out.OpenOut.Fh = f.registerFile(state)
	f.fillEntryOut(&out.EntryOut, state.Entry)
	return fuse.OK
}

func (f *FileSystem) Open(cancel <-chan struct{}, input *fuse.OpenIn, out *fuse.OpenOut) fuse.Status {
	if f.config.ReadOnly && input.Flags&(syscall.O_WRONLY|syscall.O_RDWR) != 0 {
		return fuse.EROFS
	}
	state, err := f.orch.FileOpen(tree.Ino(input.NodeId))
	if err != nil {
		f.bumpErrors()
		return status(err)
	}
	f.stats.mu.Lock()
	f.stats.Opens++
	f.stats.mu.Unlock()
	out.Fh = f.registerFile(state)
	return fuse.OK
}

func (f *FileSystem) Read(cancel <-chan struct{}, input *fuse.ReadIn, buf []byte) (fuse.ReadResult, fuse.Status) {
	start := time.Now()
	defer func() { f.recordReadTime(time.Since(start)) }()

	state, ok := f.lookupFile(input.Fh)
	if !ok {
		return nil, fuse.EBADF
	}
	data, err := f.orch.FileRead(context.Background(), state, int64(input.Offset), len(buf))
	f.recordMetric(string(metrics.OpRead), start, int64(len(data)), err)
	if err != nil {
		f.bumpErrors()
		return nil, status(err)
	}
	f.stats.mu.Lock()
	f.stats.Reads++
	f.stats.BytesRead += int64(len(data))
	f.stats.mu.Unlock()
	return fuse.ReadResultData(data), fuse.OK
}

func (f *FileSystem) Write(cancel <-chan struct{}, input *fuse.WriteIn, data []byte) (uint32, fuse.Status) {
	if f.config.ReadOnly {
		return 0, fuse.EROFS
	}
	start := time.Now()
	defer func() { f.recordWriteTime(time.Since(start)) }()

	state, ok := f.lookupFile(input.Fh)
	if !ok {
		return 0, fuse.EBADF
	}
	n, err := f.orch.FileWrite(context.Background(), state, data, int64(input.Offset))
	f.recordMetric(string(metrics.OpWrite), start, int64(n), err)
	if err != nil {
		f.bumpErrors()
		return 0, status(err)
	}
	f.stats.mu.Lock()
	f.stats.Writes++
	f.stats.BytesWritten += int64(n)
	f.stats.mu.Unlock()
	return uint32(n), fuse.OK
}

func (f *FileSystem) Flush(cancel <-chan struct{}, input *fuse.FlushIn) fuse.Status {
	return fuse.OK
}

func (f *FileSystem) Release(cancel <-chan struct{}, input *fuse.ReleaseIn) {
	state, ok := f.popFile(input.Fh)
	if !ok {
		return
	}
	if err := f.orch.FileRelease(context.Background(), state); err != nil {
		f.bumpErrors()
		log.Printf("release failed for ino %d: %v", input.NodeId, err)
	}
}

func (f *FileSystem) OpenDir(cancel <-chan struct{}, input *fuse.OpenIn, out *fuse.OpenOut) fuse.Status {
	state, err := f.orch.OpenDir(tree.Ino(input.NodeId))
	if err != nil {
		f.bumpErrors()
		return status(err)
	}
	out.Fh = f.registerDir(state)
	return fuse.OK
}

// ReadDir serves the cached, adapter-encoded snapshot at a per-entry cursor offset: input.Offset
// indexes into the decoded entry list rather than into the raw byte buffer, since the buffer's
// own encoding is private to this package.
func (f *FileSystem) ReadDir(cancel <-chan struct{}, input *fuse.ReadIn, out *fuse.DirEntryList) fuse.Status {
	f.mu.Lock()
	state := f.openDirs[input.Fh]
	f.mu.Unlock()
	if state == nil {
		return fuse.EBADF
	}

	buf, err := f.orch.FillDirBuf(context.Background(), tree.Ino(input.NodeId), int(input.Offset), state, &dirBuf{})
	if err != nil {
		f.bumpErrors()
		return status(err)
	}
	entries := decodeDirEntries(buf)
	offset := int(input.Offset)
	if offset > len(entries) {
		offset = len(entries)
	}
	for i := offset; i < len(entries); i++ {
		e := entries[i]
		if !out.AddDirEntry(fuse.DirEntry{Name: e.name, Mode: e.mode, Ino: uint64(e.ino)}) {
			break
		}
	}
	return fuse.OK
}

func (f *FileSystem) ReleaseDir(input *fuse.ReleaseIn) {
	state, ok := f.popDir(input.Fh)
	if ok {
		f.orch.ReleaseDir(state)
	}
}

func (f *FileSystem) GetXAttr(cancel <-chan struct{}, header *fuse.InHeader, attr string, dest []byte) (uint32, fuse.Status) {
	val, err := f.orch.GetXattr(context.Background(), tree.Ino(header.NodeId), attr)
	if err != nil {
		return 0, status(err)
	}
	if len(dest) < len(val) {
		return uint32(len(val)), fuse.ERANGE
	}
	copy(dest, val)
	return uint32(len(val)), fuse.OK
}

func (f *FileSystem) StatFs(cancel <-chan struct{}, input *fuse.InHeader, out *fuse.StatfsOut) fuse.Status {
	stats := f.orch.GetStats()
	out.Blocks = 1 << 40
	out.Bfree = 1 << 40
	out.Bavail = 1 << 40
	out.Files = uint64(stats.InodeCount)
	out.Ffree = 1 << 32
	out.Bsize = 4096
	out.NameLen = 4096
	out.Frsize = 4096
	return fuse.OK
}

// status translates an Orchestrator error into the fuse.Status the kernel expects.
func status(err error) fuse.Status {
	if err == nil {
		return fuse.OK
	}
	return fuse.Status(posixErrno(err))
}
