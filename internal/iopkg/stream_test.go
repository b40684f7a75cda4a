package iopkg

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type fakeS3 struct {
	getBody       []byte
	getErr        error
	keys          []string
	putLastBucket string
	putLastKey    string
	putLastBody   []byte
	putErr        error
}

var errMultipart = errors.New("multipart not expected")

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	rc := io.NopCloser(bytes.NewReader(f.getBody))
	cl := int64(len(f.getBody))
	return &s3.GetObjectOutput{Body: rc, ContentLength: &cl}, nil
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	f.putLastBucket = aws.ToString(in.Bucket)
	f.putLastKey = aws.ToString(in.Key)
	if in.Body != nil {
		b, _ := io.ReadAll(in.Body)
		f.putLastBody = b
	}
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	out := &s3.ListObjectsV2Output{}
	for _, k := range f.keys {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
		}
	}
	return out, nil
}

func (f *fakeS3) UploadPart(context.Context, *s3.UploadPartInput, ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	return nil, errMultipart
}

func (f *fakeS3) CreateMultipartUpload(context.Context, *s3.CreateMultipartUploadInput, ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	return nil, errMultipart
}

func (f *fakeS3) CompleteMultipartUpload(context.Context, *s3.CompleteMultipartUploadInput, ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	return nil, errMultipart
}

func (f *fakeS3) AbortMultipartUpload(context.Context, *s3.AbortMultipartUploadInput, ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	return nil, errMultipart
}

func withFakeS3(t *testing.T, f *fakeS3) func() {
	old := newS3Client
	newS3Client = func(ctx context.Context) (s3iface, error) { return f, nil }
	return func() { newS3Client = old }
}

func TestOpenFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "z.csv")
	content := "aadhar_number\n123\n"
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	rc, sz, err := Open(context.Background(), "file://"+p)
	if err != nil {
		t.Fatalf("Open err: %v", err)
	}
	defer rc.Close()
	if sz != int64(len(content)) {
		t.Fatalf("size got %d want %d", sz, len(content))
	}
	b, _ := io.ReadAll(rc)
	if string(b) != content {
		t.Fatalf("content mismatch: %q", string(b))
	}
}

func TestGzipRoundTrip(t *testing.T) {
	p := filepath.Join(t.TempDir(), "sub", "bad_list.csv.gz")
	w, c, err := CreateWriter(context.Background(), p)
	if err != nil {
		t.Fatalf("CreateWriter err: %v", err)
	}
	_, _ = w.Write([]byte("a,b\n1,2\n"))
	if err := c.Close(); err != nil {
		t.Fatalf("close err: %v", err)
	}
	raw, _ := os.ReadFile(p)
	if bytes.Contains(raw, []byte("a,b")) {
		t.Fatalf("file not compressed")
	}
	rc, _, err := Open(context.Background(), p)
	if err != nil {
		t.Fatalf("Open err: %v", err)
	}
	defer rc.Close()
	b, _ := io.ReadAll(rc)
	if string(b) != "a,b\n1,2\n" {
		t.Fatalf("content mismatch: %q", string(b))
	}
}

func TestOpenS3Mock(t *testing.T) {
	f := &fakeS3{getBody: []byte("data-from-s3")}
	defer withFakeS3(t, f)()
	rc, sz, err := Open(context.Background(), "s3://bucket/key/path.txt")
	if err != nil {
		t.Fatalf("Open s3 err: %v", err)
	}
	defer rc.Close()
	if sz != int64(len(f.getBody)) {
		t.Fatalf("size got %d want %d", sz, len(f.getBody))
	}
	b, _ := io.ReadAll(rc)
	if string(b) != string(f.getBody) {
		t.Fatalf("content mismatch: %q", string(b))
	}
}

func TestCreateWriterS3Mock(t *testing.T) {
	f := &fakeS3{}
	defer withFakeS3(t, f)()
	w, c, err := CreateWriter(context.Background(), "s3://mybucket/dir/name.txt")
	if err != nil {
		t.Fatalf("CreateWriter s3 err: %v", err)
	}
	_, _ = w.Write([]byte("payload"))
	if err := c.Close(); err != nil {
		t.Fatalf("close err: %v", err)
	}
	if f.putLastBucket != "mybucket" {
		t.Fatalf("bucket %q", f.putLastBucket)
	}
	if f.putLastKey != "dir/name.txt" {
		t.Fatalf("key %q", f.putLastKey)
	}
	if string(f.putLastBody) != "payload" {
		t.Fatalf("body %q", string(f.putLastBody))
	}
}

func TestListFile(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{"b.csv", "a.csv", "nested/c.csv"} {
		p := filepath.Join(dir, n)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	got, err := List(context.Background(), "file://"+dir)
	if err != nil {
		t.Fatalf("List err: %v", err)
	}
	want := []string{filepath.Join(dir, "a.csv"), filepath.Join(dir, "b.csv"), filepath.Join(dir, "nested", "c.csv")}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestListS3Mock(t *testing.T) {
	f := &fakeS3{keys: []string{"cases-mp/2.csv", "cases-mp/1.csv", "cases-up/1.csv"}}
	defer withFakeS3(t, f)()
	got, err := List(context.Background(), "s3://bkt/cases-mp/")
	if err != nil {
		t.Fatalf("List err: %v", err)
	}
	if len(got) != 2 || got[0] != "s3://bkt/cases-mp/1.csv" || got[1] != "s3://bkt/cases-mp/2.csv" {
		t.Fatalf("got %v", got)
	}
}

func TestUnsupportedScheme(t *testing.T) {
	_, _, err := Open(context.Background(), "ftp://host/x")
	if !errors.Is(err, ErrUnsupportedScheme) {
		t.Fatalf("err = %v", err)
	}
}

func TestJoinAndBase(t *testing.T) {
	if got := Join("s3://b/out/", "x.csv"); got != "s3://b/out/x.csv" {
		t.Fatalf("Join s3 = %q", got)
	}
	if got := Join("file:///tmp/out", "x.csv"); got != "/tmp/out/x.csv" {
		t.Fatalf("Join file = %q", got)
	}
	if got := Base("s3://b/cases-mp/"); got != "cases-mp" {
		t.Fatalf("Base = %q", got)
	}
}
