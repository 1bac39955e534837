// Package archive provides an optional durable off-host backup for closed
// WAL segment files, so a checkpoint directory configured with an
// s3://bucket/prefix URI can be recovered on a fresh node after total local
// disk loss. The local length-prefixed file remains the source of truth for
// normal replay; archival is best-effort and asynchronous.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// s3API is the narrow surface this package depends on, so tests can inject
// a fake without standing up real AWS credentials.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Config configures the S3 archival backend for a WAL directory.
type S3Config struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	ForcePathStyle  bool
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// ParseCheckpointURI reports whether dir is an s3://bucket/prefix URI and,
// if so, splits it into bucket and key prefix.
func ParseCheckpointURI(dir string) (bucket, prefix string, ok bool) {
	const scheme = "s3://"
	if !strings.HasPrefix(dir, scheme) {
		return "", "", false
	}
	rest := strings.TrimPrefix(dir, scheme)
	parts := strings.SplitN(rest, "/", 2)
	bucket = parts[0]
	if len(parts) == 2 {
		prefix = parts[1]
	}
	return bucket, prefix, bucket != ""
}

// S3Archiver uploads WAL segment files under bucket/prefix, keyed by the
// segment's base file name so archived files remain unambiguous even if
// the local checkpoint directory is later recreated at a different path.
type S3Archiver struct {
	bucket string
	prefix string
	api    s3API
}

// NewS3Archiver constructs an archiver backed by a real AWS S3 client.
func NewS3Archiver(ctx context.Context, cfg S3Config) (*S3Archiver, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("archive: s3 bucket required")
	}
	loadOpts := []func(*config.LoadOptions) error{}
	if cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)))
	}
	if cfg.Endpoint != "" {
		customResolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			if service == s3.ServiceID {
				return aws.Endpoint{URL: cfg.Endpoint, PartitionID: "aws", SigningRegion: cfg.Region}, nil
			}
			return aws.Endpoint{}, &aws.EndpointNotFoundError{}
		})
		loadOpts = append(loadOpts, config.WithEndpointResolverWithOptions(customResolver))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("archive: load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.ForcePathStyle
	})
	return newS3ArchiverWithAPI(cfg.Bucket, cfg.Prefix, client), nil
}

func newS3ArchiverWithAPI(bucket, prefix string, api s3API) *S3Archiver {
	return &S3Archiver{bucket: bucket, prefix: prefix, api: api}
}

// Archive implements wal.Archiver.
func (a *S3Archiver) Archive(ctx context.Context, localPath string) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("archive: read %s: %w", localPath, err)
	}
	key := path.Join(a.prefix, path.Base(localPath))
	_, err = a.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("archive: put object %s: %w", key, err)
	}
	return nil
}
