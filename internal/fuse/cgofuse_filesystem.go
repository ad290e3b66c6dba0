//go:build cgofuse
// +build cgofuse

package fuse

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/winfsp/cgofuse/fuse"

	"github.com/s3treefs/s3treefs/internal/metrics"
	"github.com/s3treefs/s3treefs/internal/orchestrator"
	"github.com/s3treefs/s3treefs/internal/tree"
)

// CgoFuseFS implements the Orchestrator's filesystem against winfsp/cgofuse's stateless,
// path-based API: every call resolves its path string to a tree.Ino by walking components
// through Orchestrator.Lookup, since cgofuse never hands back the raw inode numbers the go-fuse
// raw adapter in filesystem.go works with directly.
type CgoFuseFS struct {
	fuse.FileSystemBase

	orch    *orchestrator.Orchestrator
	config  *Config
	metrics *metrics.Collector

	mu         sync.Mutex
	openFiles  map[uint64]*orchestrator.OpenFileState
	nextHandle uint64
	host       *fuse.FileSystemHost
	mounted    bool
}

// NewCgoFuseFS creates a cgofuse-based filesystem over an already-constructed Orchestrator.
func NewCgoFuseFS(orch *orchestrator.Orchestrator, config *Config) *CgoFuseFS {
	return &CgoFuseFS{
		orch:       orch,
		config:     config,
		openFiles:  make(map[uint64]*orchestrator.OpenFileState),
		nextHandle: 1,
	}
}

// SetMetrics attaches a metrics Collector; Read and Write below report through it when set.
func (fs *CgoFuseFS) SetMetrics(c *metrics.Collector) { fs.metrics = c }

func (fs *CgoFuseFS) recordMetric(op string, start time.Time, size int64, err error) {
	if fs.metrics == nil {
		return
	}
	fs.metrics.RecordOperation(op, time.Since(start), size, err == nil)
}

func (fs *CgoFuseFS) Mount(ctx context.Context) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.mounted {
		return fmt.Errorf("filesystem already mounted")
	}

	fs.host = fuse.NewFileSystemHost(fs)

	options := []string{
		"-o", "fsname=s3treefs",
		"-o", "subtype=s3",
	}
	if fs.config.AllowOther {
		options = append(options, "-o", "allow_other")
	}
	switch {
	case strings.Contains(os.Getenv("GOOS"), "darwin"):
		options = append(options, "-o", "volname=s3treefs")
	case strings.Contains(os.Getenv("GOOS"), "windows"):
		options = append(options, "-o", "FileSystemName=s3treefs")
	}

	go func() {
		ret := fs.host.Mount(fs.config.MountPoint, options)
		if ret != 0 {
			log.Printf("Mount failed with code: %d", ret)
		}
	}()

	time.Sleep(100 * time.Millisecond)

	fs.mounted = true
	log.Printf("s3treefs mounted at: %s", fs.config.MountPoint)
	return nil
}

func (fs *CgoFuseFS) Unmount() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if !fs.mounted {
		return fmt.Errorf("filesystem not mounted")
	}
	if fs.host != nil {
		if ret := fs.host.Unmount(); ret != 0 {
			return fmt.Errorf("unmount failed with code: %d", ret)
		}
	}
	fs.mounted = false
	log.Printf("s3treefs unmounted from: %s", fs.config.MountPoint)
	return nil
}

func (fs *CgoFuseFS) IsMounted() bool {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.mounted
}

// splitPath separates a cgofuse absolute path into its parent directory path and basename,
// avoiding the stdlib "path" package since every FileSystemBase method parameter is itself
// named path and would shadow it.
func splitPath(p string) (dir, name string) {
	p = strings.TrimPrefix(p, "/")
	i := strings.LastIndex(p, "/")
	if i < 0 {
		return "", p
	}
	return p[:i], p[i+1:]
}

func (fs *CgoFuseFS) resolvePath(p string) (tree.Ino, error) {
	p = strings.Trim(p, "/")
	if p == "" {
		return tree.RootIno, nil
	}
	ino := tree.RootIno
	for _, part := range strings.Split(p, "/") {
		e, err := fs.orch.Lookup(context.Background(), ino, part)
		if err != nil {
			return 0, err
		}
		ino = e.Ino
	}
	return ino, nil
}

func (fs *CgoFuseFS) registerFile(state *orchestrator.OpenFileState) uint64 {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	h := fs.nextHandle
	fs.nextHandle++
	fs.openFiles[h] = state
	return h
}

func (fs *CgoFuseFS) lookupFile(fh uint64) (*orchestrator.OpenFileState, bool) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	state, ok := fs.openFiles[fh]
	return state, ok
}

func (fs *CgoFuseFS) popFile(fh uint64) (*orchestrator.OpenFileState, bool) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	state, ok := fs.openFiles[fh]
	delete(fs.openFiles, fh)
	return state, ok
}

func (fs *CgoFuseFS) fillStat(stat *fuse.Stat_t, e *tree.Entry) {
	stat.Mode = e.Mode
	stat.Size = e.Size
	stat.Nlink = 1
	stat.Uid = fs.config.DefaultUID
	stat.Gid = fs.config.DefaultGID
	sec := e.Ctime.Unix()
	stat.Mtim.Sec, stat.Atim.Sec, stat.Ctim.Sec = sec, sec, sec
}

func (fs *CgoFuseFS) Getattr(path string, stat *fuse.Stat_t, fh uint64) int {
	ino, err := fs.resolvePath(path)
	if err != nil {
		return -fuse.ENOENT
	}
	e, err := fs.orch.GetAttr(ino)
	if err != nil {
		return errnoInt(err)
	}
	fs.fillStat(stat, e)
	return 0
}

func (fs *CgoFuseFS) Mkdir(path string, mode uint32) int {
	dir, name := splitPath(path)
	parentIno, err := fs.resolvePath(dir)
	if err != nil {
		return -fuse.ENOENT
	}
	if _, err := fs.orch.DirCreate(parentIno, name, tree.ModeDirectory|(mode&0777)); err != nil {
		return errnoInt(err)
	}
	return 0
}

func (fs *CgoFuseFS) Rmdir(path string) int {
	dir, name := splitPath(path)
	parentIno, err := fs.resolvePath(dir)
	if err != nil {
		return -fuse.ENOENT
	}
	if err := fs.orch.DirRemove(parentIno, name); err != nil {
		return errnoInt(err)
	}
	return 0
}

func (fs *CgoFuseFS) Unlink(path string) int {
	dir, name := splitPath(path)
	parentIno, err := fs.resolvePath(dir)
	if err != nil {
		return -fuse.ENOENT
	}
	if err := fs.orch.FileUnlink(context.Background(), parentIno, name); err != nil {
		return errnoInt(err)
	}
	return 0
}

func (fs *CgoFuseFS) Rename(oldpath, newpath string) int {
	oldDir, oldName := splitPath(oldpath)
	newDir, newName := splitPath(newpath)
	oldParentIno, err := fs.resolvePath(oldDir)
	if err != nil {
		return -fuse.ENOENT
	}
	newParentIno, err := fs.resolvePath(newDir)
	if err != nil {
		return -fuse.ENOENT
	}
	if err := fs.orch.Rename(context.Background(), oldParentIno, oldName, newParentIno, newName); err != nil {
		return errnoInt(err)
	}
	return 0
}

func (fs *CgoFuseFS) Create(path string, flags int, mode uint32) (int, uint64) {
	dir, name := splitPath(path)
	parentIno, err := fs.resolvePath(dir)
	if err != nil {
		return -fuse.ENOENT, 0
	}
	state, err := fs.orch.FileCreate(parentIno, name, tree.ModeRegular|(mode&0777))
	if err != nil {
		return errnoInt(err), 0
	}
	return 0, fs.registerFile(state)
}

func (fs *CgoFuseFS) Open(path string, flags int) (int, uint64) {
	ino, err := fs.resolvePath(path)
	if err != nil {
		return -fuse.ENOENT, 0
	}
	state, err := fs.orch.FileOpen(ino)
	if err != nil {
		return errnoInt(err), 0
	}
	return 0, fs.registerFile(state)
}

func (fs *CgoFuseFS) Read(path string, buff []byte, ofst int64, fh uint64) int {
	start := time.Now()
	state, ok := fs.lookupFile(fh)
	if !ok {
		return -fuse.EBADF
	}
	data, err := fs.orch.FileRead(context.Background(), state, ofst, len(buff))
	fs.recordMetric(string(metrics.OpRead), start, int64(len(data)), err)
	if err != nil {
		return errnoInt(err)
	}
	copy(buff, data)
	return len(data)
}

func (fs *CgoFuseFS) Write(path string, buff []byte, ofst int64, fh uint64) int {
	start := time.Now()
	state, ok := fs.lookupFile(fh)
	if !ok {
		return -fuse.EBADF
	}
	n, err := fs.orch.FileWrite(context.Background(), state, buff, ofst)
	fs.recordMetric(string(metrics.OpWrite), start, int64(n), err)
	if err != nil {
		return errnoInt(err)
	}
	return n
}

func (fs *CgoFuseFS) Release(path string, fh uint64) int {
	state, ok := fs.popFile(fh)
	if !ok {
		return 0
	}
	if err := fs.orch.FileRelease(context.Background(), state); err != nil {
		return errnoInt(err)
	}
	return 0
}

func (fs *CgoFuseFS) Readdir(path string, fill func(name string, stat *fuse.Stat_t, ofst int64) bool, ofst int64, fh uint64) int {
	ino, err := fs.resolvePath(path)
	if err != nil {
		return -fuse.ENOENT
	}

	buf, err := fs.orch.FillDirBuf(context.Background(), ino, 0, nil, &dirBuf{})
	if err != nil {
		return errnoInt(err)
	}
	entries := decodeDirEntries(buf)

	start := int(ofst)
	if start > len(entries) {
		start = len(entries)
	}
	for i := start; i < len(entries); i++ {
		e := entries[i]
		stat := &fuse.Stat_t{Mode: e.mode}
		if !fill(e.name, stat, int64(i+1)) {
			break
		}
	}
	return 0
}

// GetStats returns filesystem statistics; cgofuse's stateless path-based API keeps no per-call
// counters of its own, so this reports the Orchestrator's inode count as the one figure this
// build actually tracks.
func (fs *CgoFuseFS) GetStats() *FilesystemStats {
	stats := fs.orch.GetStats()
	return &FilesystemStats{Lookups: int64(stats.InodeCount)}
}
