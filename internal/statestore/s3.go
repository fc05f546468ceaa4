package statestore

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/pkg/errors"
)

const defaultS3Key = "texstream/state.zst"

// S3Config selects the bucket and object holding the snapshot. Credentials
// come from the default AWS chain.
type S3Config struct {
	Bucket    string
	Key       string
	Region    string
	Endpoint  string // optional; set for MinIO and other S3-compatible stores
	PathStyle bool
}

// objectAPI is the part of *s3.Client the store uses.
type objectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Store keeps the snapshot in one S3 object.
type S3Store struct {
	client objectAPI
	bucket string
	key    string
}

// NewS3Store builds a client from the default AWS configuration.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, errors.Wrap(err, "load aws config")
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.PathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return newS3Store(client, cfg.Bucket, cfg.Key), nil
}

func newS3Store(client objectAPI, bucket, key string) *S3Store {
	key = strings.TrimPrefix(key, "/")
	if key == "" {
		key = defaultS3Key
	}
	return &S3Store{client: client, bucket: bucket, key: key}
}

func (s *S3Store) Location() string { return fmt.Sprintf("s3://%s/%s", s.bucket, s.key) }

func (s *S3Store) Save(ctx context.Context, snap Snapshot) error {
	b, err := encodeBytes(snap)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key),
		Body:        bytes.NewReader(b),
		ContentType: aws.String("application/zstd"),
		Metadata:    map[string]string{"run-id": snap.Header.RunID, "scene": snap.Header.Scene},
	})
	return errors.Wrapf(err, "put %s", s.Location())
}

func (s *S3Store) Load(ctx context.Context) (Snapshot, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(s.key)})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return Snapshot{}, ErrNotFound
		}
		return Snapshot{}, errors.Wrapf(err, "get %s", s.Location())
	}
	defer out.Body.Close()
	return Decode(out.Body)
}
