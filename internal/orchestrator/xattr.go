package orchestrator

import (
	"context"
	"time"

	"github.com/s3treefs/s3treefs/internal/tree"
	"github.com/s3treefs/s3treefs/pkg/errors"
)

// GetXattr implements §4.5.8. Supported names: user.version, user.etag/user.md5,
// user.content_type. Directories never expose xattrs.
func (o *Orchestrator) GetXattr(ctx context.Context, ino tree.Ino, name string) (string, error) {
	o.tree.Lock()
	e, err := o.resolve(ino)
	if err != nil {
		o.tree.Unlock()
		return "", err
	}
	if e.IsDir() {
		o.tree.Unlock()
		return "", errors.NewPolicyRejectedError("orchestrator", "GetXattr", "getxattr on a directory is unsupported")
	}

	var field func(*tree.Entry) string
	switch name {
	case "user.version":
		field = func(e *tree.Entry) string { return e.VersionID }
	case "user.etag", "user.md5":
		field = func(e *tree.Entry) string { return e.ETag }
	case "user.content_type":
		field = func(e *tree.Entry) string { return e.ContentType }
	default:
		o.tree.Unlock()
		return "", errors.NewPolicyRejectedError("orchestrator", "GetXattr", "unsupported xattr name: "+name)
	}

	now := time.Now()
	if now.Sub(e.XattrTime) < o.dirCacheMaxTime {
		val := field(e)
		o.tree.Unlock()
		return val, nil
	}
	fullpath := e.Fullpath
	o.tree.Unlock()

	head, err := o.headObject(ctx, fullpath)
	if err != nil {
		return "", err
	}

	o.tree.Lock()
	defer o.tree.Unlock()
	e, err = o.resolve(ino)
	if err != nil {
		return "", err
	}
	o.applyHead(e, head, time.Now())
	return field(e), nil
}

// CreateSymlink implements §4.5.9's symlink: create/update the Entry as in FileCreate, then
// upload the target path string as the object body via FileIO's simple upload.
func (o *Orchestrator) CreateSymlink(ctx context.Context, parentIno tree.Ino, name, target string) (*tree.Entry, error) {
	state, err := o.FileCreate(parentIno, name, tree.DefaultFileMode|tree.ModeSymlink)
	if err != nil {
		return nil, err
	}
	if err := state.IO.SimpleUpload(ctx, []byte(target)); err != nil {
		return nil, errors.NewBackendError("orchestrator", "CreateSymlink", err)
	}

	o.tree.Lock()
	defer o.tree.Unlock()
	e, err := o.resolve(state.Entry.Ino)
	if err != nil {
		return nil, err
	}
	e.Size = int64(len(target))
	return e, nil
}

// Readlink implements §4.5.9's readlink: download the object body via FileIO's simple download
// and deliver it as the link target.
func (o *Orchestrator) Readlink(ctx context.Context, ino tree.Ino) (string, error) {
	o.tree.Lock()
	e, err := o.resolveFile(ino)
	if err != nil {
		o.tree.Unlock()
		return "", err
	}
	if !e.IsSymlink() {
		o.tree.Unlock()
		return "", errors.NewTypeMismatchError("orchestrator", "Readlink", "symlink", "file")
	}
	fullpath := e.Fullpath
	o.tree.Unlock()

	fio, err := o.fio.Open(fullpath, ino, false)
	if err != nil {
		return "", err
	}
	defer fio.Release(ctx)

	body, err := fio.SimpleDownload(ctx)
	if err != nil {
		return "", errors.NewBackendError("orchestrator", "Readlink", err)
	}
	return string(body), nil
}
