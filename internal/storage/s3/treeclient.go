package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/s3treefs/s3treefs/internal/orchestrator"
	"github.com/s3treefs/s3treefs/internal/tree"
)

// TreePool adapts Backend's ConnectionPool to the orchestrator.Pool collaborator interface
// (§6 Downward "HTTP client pool"). Each Acquire leases one *s3.Client from the pool and binds
// it to the bucket/key-prefix this Backend was constructed with.
type TreePool struct {
	backend *Backend
}

// NewTreePool wraps an already-constructed Backend for use by the Operation Orchestrator.
func NewTreePool(b *Backend) *TreePool {
	return &TreePool{backend: b}
}

func (p *TreePool) Acquire(ctx context.Context) (orchestrator.Client, error) {
	client := p.backend.pool.Get()
	if client == nil {
		return nil, fmt.Errorf("s3 connection pool exhausted")
	}
	return &treeClient{backend: p.backend, raw: client}, nil
}

// treeClient is one leased *s3.Client bound to the Orchestrator's Client interface for the
// duration of one request sequence.
type treeClient struct {
	backend *Backend
	raw     *s3.Client
}

func (c *treeClient) key(fullpath string) string {
	fullpath = strings.TrimPrefix(fullpath, "/")
	if c.backend.config != nil && c.backend.config.KeyPrefix != "" {
		return strings.TrimPrefix(c.backend.config.KeyPrefix, "/") + "/" + fullpath
	}
	return fullpath
}

func (c *treeClient) Release() {
	c.backend.pool.Put(c.raw)
}

// objectHead adapts an AWS HeadObjectOutput to orchestrator.ObjectHead. The SDK already strips
// the "x-amz-meta-" prefix from user metadata keys, so "x-amz-meta-mode" is looked up as "mode".
type objectHead struct {
	status   int
	etag     string
	size     int64
	ctype    string
	versionID string
	metadata map[string]string
}

func (h *objectHead) StatusCode() int { return h.status }

func (h *objectHead) Header(name string) (string, bool) {
	switch name {
	case "ETag":
		if h.etag == "" {
			return "", false
		}
		return h.etag, true
	case "Content-Length":
		return fmt.Sprintf("%d", h.size), true
	case "Content-Type":
		if h.ctype == "" {
			return "", false
		}
		return h.ctype, true
	case "x-amz-version-id":
		if h.versionID == "" {
			return "", false
		}
		return h.versionID, true
	case "x-amz-meta-mode":
		v, ok := h.metadata["mode"]
		return v, ok
	case "x-amz-meta-date":
		v, ok := h.metadata["date"]
		return v, ok
	default:
		return "", false
	}
}

// withBreaker runs fn through the backend's recovery manager (circuit-breaker strategy) when one
// is configured, otherwise calls it directly. Head/Put/Delete/List all funnel through this so an
// S3 outage trips once instead of every caller independently retrying against a backend that is
// already down.
func (c *treeClient) withBreaker(ctx context.Context, op string, fn func(context.Context) error) error {
	if c.backend.recovery == nil {
		return fn(ctx)
	}
	return c.backend.recovery.Execute(ctx, "s3-backend", op, func() error {
		return fn(ctx)
	})
}

func (c *treeClient) Head(ctx context.Context, fullpath string) (orchestrator.ObjectHead, error) {
	var h *objectHead
	err := c.withBreaker(ctx, "head", func(ctx context.Context) error {
		out, err := c.raw.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(c.backend.bucket),
			Key:    aws.String(c.key(fullpath)),
		})
		if err != nil {
			if statusCode(err) == 404 {
				h = &objectHead{status: 404}
				return nil
			}
			return fmt.Errorf("head %s: %w", fullpath, err)
		}
		h = &objectHead{
			status:    200,
			etag:      aws.ToString(out.ETag),
			size:      aws.ToInt64(out.ContentLength),
			ctype:     aws.ToString(out.ContentType),
			versionID: aws.ToString(out.VersionId),
			metadata:  out.Metadata,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return h, nil
}

func (c *treeClient) Put(ctx context.Context, fullpath string, body []byte, headers map[string]string) error {
	return c.withBreaker(ctx, "put", func(ctx context.Context) error {
		input := &s3.PutObjectInput{
			Bucket: aws.String(c.backend.bucket),
			Key:    aws.String(c.key(fullpath)),
		}
		if len(body) > 0 {
			input.Body = bytes.NewReader(body)
		}
		if cs, ok := headers["x-amz-storage-class"]; ok && cs != "" {
			input.StorageClass = s3types.StorageClass(cs)
		}
		if src, ok := headers["x-amz-copy-source"]; ok && src != "" {
			_, err := c.raw.CopyObject(ctx, &s3.CopyObjectInput{
				Bucket:       aws.String(c.backend.bucket),
				Key:          aws.String(c.key(fullpath)),
				CopySource:   aws.String(src),
				StorageClass: input.StorageClass,
			})
			return err
		}
		_, err := c.raw.PutObject(ctx, input)
		return err
	})
}

func (c *treeClient) Delete(ctx context.Context, fullpath string) error {
	return c.withBreaker(ctx, "delete", func(ctx context.Context) error {
		_, err := c.raw.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(c.backend.bucket),
			Key:    aws.String(c.key(fullpath)),
		})
		return err
	})
}

// List implements the Directory listing fetcher collaborator (§6 Downward
// "get_directory_listing"): a delimited ListObjectsV2 call, translating CommonPrefixes into
// synthetic Directory rows and Contents into File rows.
func (c *treeClient) List(ctx context.Context, fullpath string, ino tree.Ino) ([]orchestrator.ListingRow, error) {
	prefix := c.key(fullpath)
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	var rows []orchestrator.ListingRow
	err := c.withBreaker(ctx, "list", func(ctx context.Context) error {
		var token *string
		for {
			out, err := c.raw.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
				Bucket:            aws.String(c.backend.bucket),
				Prefix:            aws.String(prefix),
				Delimiter:         aws.String("/"),
				ContinuationToken: token,
			})
			if err != nil {
				return fmt.Errorf("list %s: %w", fullpath, err)
			}
			for _, cp := range out.CommonPrefixes {
				name := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), prefix), "/")
				if name == "" {
					continue
				}
				rows = append(rows, orchestrator.ListingRow{Basename: name, Type: tree.Directory})
			}
			for _, obj := range out.Contents {
				name := strings.TrimPrefix(aws.ToString(obj.Key), prefix)
				if name == "" || strings.Contains(name, "/") {
					continue
				}
				rows = append(rows, orchestrator.ListingRow{
					Basename: name,
					Type:     tree.File,
					Size:     aws.ToInt64(obj.Size),
					ModTime:  aws.ToTime(obj.LastModified),
				})
			}
			if out.IsTruncated == nil || !*out.IsTruncated {
				break
			}
			token = out.NextContinuationToken
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func statusCode(err error) int {
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		return respErr.HTTPStatusCode()
	}
	return 0
}
