package fuse

import (
	"errors"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"

	objerrors "github.com/s3treefs/s3treefs/pkg/errors"
)

func TestPosixErrnoMapsKnownCodes(t *testing.T) {
	cases := []struct {
		code objerrors.ErrorCode
		want syscall.Errno
	}{
		{objerrors.ErrCodeInodeNotFound, syscall.ENOENT},
		{objerrors.ErrCodeFileNotFound, syscall.ENOENT},
		{objerrors.ErrCodeObjectNotFound, syscall.ENOENT},
		{objerrors.ErrCodeTypeMismatch, syscall.EINVAL},
		{objerrors.ErrCodeNotDirectory, syscall.ENOTDIR},
		{objerrors.ErrCodeNotEmpty, syscall.ENOTEMPTY},
		{objerrors.ErrCodeNameExists, syscall.EEXIST},
		{objerrors.ErrCodeDirectoryExists, syscall.EEXIST},
		{objerrors.ErrCodePolicyRejected, syscall.ENOTSUP},
		{objerrors.ErrCodeXattrUnsupported, syscall.ENOTSUP},
		{objerrors.ErrCodeAccessDenied, syscall.EACCES},
		{objerrors.ErrCodePermissionDenied, syscall.EACCES},
	}
	for _, c := range cases {
		err := objerrors.NewError(c.code, "boom")
		assert.Equal(t, c.want, posixErrno(err), "code %s", c.code)
	}
}

func TestPosixErrnoNil(t *testing.T) {
	assert.Equal(t, syscall.Errno(0), posixErrno(nil))
}

func TestPosixErrnoUnknownCodeDefaultsToEIO(t *testing.T) {
	err := objerrors.NewError(objerrors.ErrCodeInternalError, "boom")
	assert.Equal(t, syscall.EIO, posixErrno(err))
}

func TestPosixErrnoNonObjectTreeErrorDefaultsToEIO(t *testing.T) {
	assert.Equal(t, syscall.EIO, posixErrno(errors.New("plain error")))
}

func TestErrnoIntNegatesPosixErrno(t *testing.T) {
	err := objerrors.NewError(objerrors.ErrCodeFileNotFound, "missing")
	assert.Equal(t, -int(syscall.ENOENT), errnoInt(err))
	assert.Equal(t, 0, errnoInt(nil))
}
