// Package sink saves result images fetched from the CDN to a local file
// or an S3 object.
package sink

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Sink stores one object.
type Sink interface {
	// Put stores r and returns where it was written.
	Put(ctx context.Context, r io.Reader, contentType string) (string, error)
}

// Uploader is the subset of *manager.Uploader used by S3.
type Uploader interface {
	Upload(ctx context.Context, in *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// Open returns the sink for dest: an s3://bucket/key URL or a file path.
// S3 credentials come from the default AWS chain.
func Open(ctx context.Context, dest string) (Sink, error) {
	if !strings.HasPrefix(dest, "s3://") {
		return &File{Path: dest}, nil
	}
	bucket, key, err := ParseS3URL(dest)
	if err != nil {
		return nil, err
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return &S3{Bucket: bucket, Key: key, Uploader: manager.NewUploader(s3.NewFromConfig(cfg))}, nil
}

// ParseS3URL splits s3://bucket/key.
func ParseS3URL(raw string) (bucket, key string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("parse %s: %w", raw, err)
	}
	if u.Scheme != "s3" || u.Host == "" {
		return "", "", fmt.Errorf("%s: want s3://bucket/key", raw)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if key == "" || strings.HasSuffix(key, "/") {
		return "", "", fmt.Errorf("%s: object key must name a file", raw)
	}
	return u.Host, key, nil
}

// File writes to a local path, creating parent directories. The file is
// written to a temporary name and renamed when complete.
type File struct {
	Path string
}

func (f *File) Put(ctx context.Context, r io.Reader, _ string) (string, error) {
	if dir := filepath.Dir(f.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create directory: %w", err)
		}
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.Path), "."+filepath.Base(f.Path)+".*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, ctxReader{ctx, r}); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write %s: %w", f.Path, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", f.Path, err)
	}
	if err := os.Rename(tmp.Name(), f.Path); err != nil {
		return "", fmt.Errorf("rename %s: %w", f.Path, err)
	}
	return f.Path, nil
}

// S3 uploads to one object.
type S3 struct {
	Bucket   string
	Key      string
	Uploader Uploader
}

func (s *S3) Put(ctx context.Context, r io.Reader, contentType string) (string, error) {
	in := &s3.PutObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.Key),
		Body:   r,
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	if _, err := s.Uploader.Upload(ctx, in); err != nil {
		return "", fmt.Errorf("upload s3://%s/%s: %w", s.Bucket, s.Key, err)
	}
	return "s3://" + s.Bucket + "/" + s.Key, nil
}

// Result describes a saved image.
type Result struct {
	Location    string
	Bytes       int64
	ContentType string
}

// Fetcher downloads result images and hands them to a sink.
type Fetcher struct {
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Fetch streams the image at src into s.
func (f *Fetcher) Fetch(ctx context.Context, src string, s Sink) (Result, error) {
	client := f.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return Result{}, fmt.Errorf("create request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("download %s: %w", src, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("download %s: unexpected status %s", src, resp.Status)
	}

	ct := resp.Header.Get("Content-Type")
	cr := &countingReader{r: resp.Body}
	loc, err := s.Put(ctx, cr, ct)
	if err != nil {
		return Result{}, err
	}
	if f.Logger != nil {
		f.Logger.Debug("image saved", "src", src, "location", loc, "bytes", cr.n)
	}
	return Result{Location: loc, Bytes: cr.n, ContentType: ct}, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
