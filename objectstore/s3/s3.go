// Package s3 implements objectstore.Store over AWS S3 and S3-compatible
// backends (MinIO, Hetzner Cloud Storage), matching whichever endpoint the
// deployment's ObjectStoreConfig names.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"home.systems/objectstore"
)

// Client is the subset of the AWS S3 SDK this package depends on. Narrowing
// the dependency to an interface keeps the store testable with a mock
// implementation instead of a live bucket.
type Client interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Config describes how to reach one S3-compatible bucket.
type Config struct {
	Endpoint        string // empty for AWS itself; set for MinIO/Hetzner/etc.
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool // required by most non-AWS S3-compatible backends
}

// sharedHTTPClient is reused across all Store instances to amortize
// connection setup; object storage traffic is high-volume and benefits from
// keep-alives the same way the AWS SDK's default transport does not
// configure by default.
var sharedHTTPClient = &http.Client{
	Timeout: 60 * time.Second,
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
	},
}

// Store is an objectstore.Store backed by S3.
type Store struct {
	client Client
	bucket string
}

// New builds a Store from Config, resolving credentials and endpoint
// through the standard AWS SDK config loader.
func New(ctx context.Context, cfg Config) (*Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithHTTPClient(sharedHTTPClient),
	}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3: load config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return NewWithClient(client, cfg.Bucket), nil
}

// NewWithClient builds a Store around an already-configured client, used
// directly by tests with a mock Client.
func NewWithClient(client Client, bucket string) *Store {
	return &Store{client: client, bucket: bucket}
}

func (s *Store) PutIfAbsent(ctx context.Context, key string, content io.Reader, size int64, sha256Hex string) (objectstore.PutResult, error) {
	existing, err := s.Head(ctx, key)
	if err == nil {
		if existing.SHA256 != "" && sha256Hex != "" && existing.SHA256 != sha256Hex {
			return 0, objectstore.ErrConflict
		}
		return objectstore.Existed, nil
	}
	if !errors.Is(err, objectstore.ErrNotFound) {
		return 0, fmt.Errorf("s3: head before put: %w", err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   content,
		Metadata: map[string]string{
			"sha256": sha256Hex,
		},
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return 0, fmt.Errorf("s3: put %s: %w", key, err)
	}
	return objectstore.Created, nil
}

func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, objectstore.Metadata, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, objectstore.Metadata{}, objectstore.ErrNotFound
		}
		return nil, objectstore.Metadata{}, fmt.Errorf("s3: get %s: %w", key, err)
	}

	md := objectstore.Metadata{SHA256: out.Metadata["sha256"]}
	if out.ContentLength != nil {
		md.Size = *out.ContentLength
	}
	if out.ContentType != nil {
		md.ContentType = *out.ContentType
	}
	return out.Body, md, nil
}

func (s *Store) Head(ctx context.Context, key string) (objectstore.Metadata, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNoSuchKey(err) {
			return objectstore.Metadata{}, objectstore.ErrNotFound
		}
		return objectstore.Metadata{}, fmt.Errorf("s3: head %s: %w", key, err)
	}

	md := objectstore.Metadata{SHA256: out.Metadata["sha256"]}
	if out.ContentLength != nil {
		md.Size = *out.ContentLength
	}
	if out.ContentType != nil {
		md.ContentType = *out.ContentType
	}
	return md, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("s3: delete %s: %w", key, err)
	}
	return nil
}

func (s *Store) List(ctx context.Context, prefix string) (<-chan objectstore.Entry, <-chan error) {
	entries := make(chan objectstore.Entry)
	errc := make(chan error, 1)

	go func() {
		defer close(entries)
		defer close(errc)

		var token *string
		for {
			out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
				Bucket:            aws.String(s.bucket),
				Prefix:            aws.String(prefix),
				ContinuationToken: token,
			})
			if err != nil {
				errc <- fmt.Errorf("s3: list %s: %w", prefix, err)
				return
			}

			for _, obj := range out.Contents {
				size := int64(0)
				if obj.Size != nil {
					size = *obj.Size
				}
				select {
				case entries <- objectstore.Entry{Key: aws.ToString(obj.Key), Size: size}:
				case <-ctx.Done():
					errc <- ctx.Err()
					return
				}
			}

			if out.IsTruncated == nil || !*out.IsTruncated {
				return
			}
			token = out.NextContinuationToken
		}
	}()

	return entries, errc
}

func isNoSuchKey(err error) bool {
	var nsk *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &nsk) || errors.As(err, &notFound)
}
