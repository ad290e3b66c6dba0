package fuse

import (
	"errors"
	"syscall"

	objerrors "github.com/s3treefs/s3treefs/pkg/errors"
)

// posixErrno translates an Orchestrator failure into the POSIX errno the kernel expects back
// from a FUSE callback, keyed off the Code taxonomy pkg/errors assigns to each failure rather
// than string-matching messages.
func posixErrno(err error) syscall.Errno {
	if err == nil {
		return 0
	}
	var oe *objerrors.ObjectTreeError
	if !errors.As(err, &oe) {
		return syscall.EIO
	}
	switch oe.Code {
	case objerrors.ErrCodeInodeNotFound, objerrors.ErrCodeFileNotFound, objerrors.ErrCodeObjectNotFound:
		return syscall.ENOENT
	case objerrors.ErrCodeTypeMismatch:
		return syscall.EINVAL
	case objerrors.ErrCodeNotDirectory:
		return syscall.ENOTDIR
	case objerrors.ErrCodeNotEmpty:
		return syscall.ENOTEMPTY
	case objerrors.ErrCodeNameExists, objerrors.ErrCodeDirectoryExists:
		return syscall.EEXIST
	case objerrors.ErrCodePolicyRejected, objerrors.ErrCodeXattrUnsupported:
		return syscall.ENOTSUP
	case objerrors.ErrCodeAccessDenied, objerrors.ErrCodePermissionDenied:
		return syscall.EACCES
	default:
		return syscall.EIO
	}
}

// errnoInt is posixErrno for cgofuse's calling convention: a negative errno returned directly
// from the operation method rather than a *fuse.Status out-parameter.
func errnoInt(err error) int {
	if err == nil {
		return 0
	}
	return -int(posixErrno(err))
}
