package archive

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type fakeS3API struct {
	puts map[string][]byte
}

func (f *fakeS3API) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	buf := make([]byte, 0)
	tmp := make([]byte, 4096)
	for {
		n, err := params.Body.Read(tmp)
		buf = append(buf, tmp[:n]...)
		if err != nil {
			break
		}
	}
	if f.puts == nil {
		f.puts = make(map[string][]byte)
	}
	f.puts[*params.Key] = buf
	return &s3.PutObjectOutput{}, nil
}

func TestS3ArchiverUploadsUnderPrefix(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log-0-1")
	if err := os.WriteFile(path, []byte("segment-bytes"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	fake := &fakeS3API{}
	a := newS3ArchiverWithAPI("bucket", "receivedBlockMetadata", fake)

	if err := a.Archive(context.Background(), path); err != nil {
		t.Fatalf("Archive: %v", err)
	}

	got, ok := fake.puts["receivedBlockMetadata/log-0-1"]
	if !ok {
		t.Fatalf("expected upload under prefixed key, got keys %v", fake.puts)
	}
	if string(got) != "segment-bytes" {
		t.Fatalf("got %q, want %q", got, "segment-bytes")
	}
}

func TestParseCheckpointURI(t *testing.T) {
	bucket, prefix, ok := ParseCheckpointURI("s3://my-bucket/checkpoints/query1")
	if !ok || bucket != "my-bucket" || prefix != "checkpoints/query1" {
		t.Fatalf("got bucket=%q prefix=%q ok=%v", bucket, prefix, ok)
	}
	if _, _, ok := ParseCheckpointURI("/local/dir"); ok {
		t.Fatalf("expected local path to not parse as s3 uri")
	}
}
