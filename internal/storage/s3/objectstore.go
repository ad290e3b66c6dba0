package s3

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/s3treefs/s3treefs/internal/buffer"
)

// ObjectStore adapts Backend to buffer.ObjectStore, the FileIO engine's downward collaborator.
// Whole-object GET/PUT reuse Backend directly; multipart calls go straight to the pooled SDK
// client since Backend itself exposes no multipart surface.
type ObjectStore struct {
	backend *Backend
}

// NewObjectStore wraps an already-constructed Backend for use by the FileIO engine.
func NewObjectStore(b *Backend) *ObjectStore {
	return &ObjectStore{backend: b}
}

func (s *ObjectStore) key(fullpath string) string {
	if s.backend.config != nil && s.backend.config.KeyPrefix != "" {
		return s.backend.config.KeyPrefix + "/" + fullpath
	}
	return fullpath
}

func (s *ObjectStore) GetRange(ctx context.Context, fullpath string, offset, size int64) ([]byte, error) {
	return s.backend.GetObject(ctx, s.key(fullpath), offset, size)
}

func (s *ObjectStore) PutWhole(ctx context.Context, fullpath string, data []byte) error {
	return s.backend.PutObject(ctx, s.key(fullpath), data)
}

func (s *ObjectStore) CreateMultipartUpload(ctx context.Context, fullpath string) (string, error) {
	client := s.backend.pool.Get()
	defer s.backend.pool.Put(client)

	out, err := client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket: aws.String(s.backend.bucket),
		Key:    aws.String(s.key(fullpath)),
	})
	if err != nil {
		return "", err
	}
	return aws.ToString(out.UploadId), nil
}

func (s *ObjectStore) UploadPart(ctx context.Context, fullpath, uploadID string, partNumber int, data []byte) (string, error) {
	client := s.backend.pool.Get()
	defer s.backend.pool.Put(client)

	out, err := client.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:     aws.String(s.backend.bucket),
		Key:        aws.String(s.key(fullpath)),
		UploadId:   aws.String(uploadID),
		PartNumber: aws.Int32(int32(partNumber)),
		Body:       bytes.NewReader(data),
	})
	if err != nil {
		return "", err
	}
	return aws.ToString(out.ETag), nil
}

func (s *ObjectStore) CompleteMultipartUpload(ctx context.Context, fullpath, uploadID string, parts []buffer.CompletedPart) error {
	client := s.backend.pool.Get()
	defer s.backend.pool.Put(client)

	completed := make([]s3types.CompletedPart, len(parts))
	for i, p := range parts {
		completed[i] = s3types.CompletedPart{
			PartNumber: aws.Int32(int32(p.PartNumber)),
			ETag:       aws.String(p.ETag),
		}
	}

	_, err := client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(s.backend.bucket),
		Key:      aws.String(s.key(fullpath)),
		UploadId: aws.String(uploadID),
		MultipartUpload: &s3types.CompletedMultipartUpload{
			Parts: completed,
		},
	})
	if err != nil {
		return fmt.Errorf("complete multipart upload: %w", err)
	}
	return nil
}

func (s *ObjectStore) AbortMultipartUpload(ctx context.Context, fullpath, uploadID string) {
	client := s.backend.pool.Get()
	defer s.backend.pool.Put(client)

	_, _ = client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(s.backend.bucket),
		Key:      aws.String(s.key(fullpath)),
		UploadId: aws.String(uploadID),
	})
}
