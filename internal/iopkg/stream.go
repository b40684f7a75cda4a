// Package iopkg opens, creates and lists data files addressed by URI.
// file:// (or a bare path) and s3:// are supported; a .gz suffix is
// (de)compressed transparently.
package iopkg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/klauspost/compress/gzip"
)

var ErrUnsupportedScheme = errors.New("unsupported scheme")

// s3iface is the subset of the s3 client we use; allows test fakes.
type s3iface interface {
	manager.UploadAPIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// newS3Client constructs an s3 client; overridden in tests.
// Env support for MinIO: AWS_ENDPOINT_URL_S3, AWS_S3_FORCE_PATH_STYLE.
var newS3Client = func(ctx context.Context) (s3iface, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if ep := os.Getenv("AWS_ENDPOINT_URL_S3"); ep != "" {
			o.BaseEndpoint = aws.String(ep)
		}
		if strings.EqualFold(os.Getenv("AWS_S3_FORCE_PATH_STYLE"), "true") {
			o.UsePathStyle = true
		}
	}), nil
}

func parse(uri string) (scheme, bucket, key string, err error) {
	if !strings.Contains(uri, "://") {
		return "file", "", uri, nil
	}
	u, err := url.Parse(uri)
	if err != nil {
		return "", "", "", err
	}
	switch u.Scheme {
	case "file":
		return "file", "", strings.TrimPrefix(uri, "file://"), nil
	case "s3":
		return "s3", u.Host, strings.TrimPrefix(u.Path, "/"), nil
	default:
		return "", "", "", fmt.Errorf("%w: %s", ErrUnsupportedScheme, u.Scheme)
	}
}

func gzipped(uri string) bool { return strings.HasSuffix(strings.ToLower(uri), ".gz") }

// Open returns a reader and the stored size (compressed size for .gz).
func Open(ctx context.Context, uri string) (io.ReadCloser, int64, error) {
	scheme, bkt, key, err := parse(uri)
	if err != nil {
		return nil, 0, err
	}
	var rc io.ReadCloser
	var sz int64
	switch scheme {
	case "file":
		f, err := os.Open(key)
		if err != nil {
			return nil, 0, err
		}
		if st, _ := f.Stat(); st != nil {
			sz = st.Size()
		}
		rc = f
	case "s3":
		cl, err := newS3Client(ctx)
		if err != nil {
			return nil, 0, err
		}
		resp, err := cl.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(bkt), Key: aws.String(key)})
		if err != nil {
			return nil, 0, fmt.Errorf("get %s: %w", uri, err)
		}
		if resp.ContentLength != nil {
			sz = *resp.ContentLength
		}
		rc = resp.Body
	}
	if !gzipped(uri) {
		return rc, sz, nil
	}
	zr, err := gzip.NewReader(rc)
	if err != nil {
		rc.Close()
		return nil, 0, fmt.Errorf("gzip %s: %w", uri, err)
	}
	return &gzipReadCloser{Reader: zr, under: rc}, sz, nil
}

type gzipReadCloser struct {
	*gzip.Reader
	under io.Closer
}

func (g *gzipReadCloser) Close() error {
	err := g.Reader.Close()
	if cerr := g.under.Close(); err == nil {
		err = cerr
	}
	return err
}

// CreateWriter supports file:// and s3://. S3 objects are buffered and
// uploaded on Close.
func CreateWriter(ctx context.Context, uri string) (io.Writer, io.Closer, error) {
	scheme, bkt, key, err := parse(uri)
	if err != nil {
		return nil, nil, err
	}
	var w io.Writer
	var c io.Closer
	switch scheme {
	case "file":
		if err := os.MkdirAll(filepath.Dir(key), 0o755); err != nil {
			return nil, nil, err
		}
		f, err := os.Create(key)
		if err != nil {
			return nil, nil, err
		}
		w, c = f, f
	case "s3":
		buf := &bytes.Buffer{}
		done := false
		w = buf
		c = closerFunc(func() error {
			if done {
				return nil
			}
			done = true
			cl, err := newS3Client(ctx)
			if err != nil {
				return err
			}
			_, err = manager.NewUploader(cl).Upload(ctx, &s3.PutObjectInput{
				Bucket: aws.String(bkt),
				Key:    aws.String(key),
				Body:   bytes.NewReader(buf.Bytes()),
			})
			if err != nil {
				return fmt.Errorf("upload %s: %w", uri, err)
			}
			return nil
		})
	}
	if !gzipped(uri) {
		return w, c, nil
	}
	zw := gzip.NewWriter(w)
	under := c
	return zw, closerFunc(func() error {
		err := zw.Close()
		if cerr := under.Close(); err == nil {
			err = cerr
		}
		return err
	}), nil
}

// List returns the URIs of the files under a directory or key prefix,
// sorted. Local listings recurse.
func List(ctx context.Context, uri string) ([]string, error) {
	scheme, bkt, key, err := parse(uri)
	if err != nil {
		return nil, err
	}
	var out []string
	switch scheme {
	case "file":
		err = filepath.WalkDir(key, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() {
				out = append(out, p)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	case "s3":
		cl, err := newS3Client(ctx)
		if err != nil {
			return nil, err
		}
		pg := s3.NewListObjectsV2Paginator(cl, &s3.ListObjectsV2Input{Bucket: aws.String(bkt), Prefix: aws.String(key)})
		for pg.HasMorePages() {
			page, err := pg.NextPage(ctx)
			if err != nil {
				return nil, fmt.Errorf("list %s: %w", uri, err)
			}
			for _, obj := range page.Contents {
				out = append(out, "s3://"+bkt+"/"+aws.ToString(obj.Key))
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

// Base returns the last path element of a URI.
func Base(uri string) string {
	return filepath.Base(strings.TrimSuffix(uri, "/"))
}

// Join appends elem to a directory URI.
func Join(dir string, elem ...string) string {
	if strings.HasPrefix(dir, "s3://") {
		return strings.TrimSuffix(dir, "/") + "/" + strings.Join(elem, "/")
	}
	return filepath.Join(append([]string{strings.TrimPrefix(dir, "file://")}, elem...)...)
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
