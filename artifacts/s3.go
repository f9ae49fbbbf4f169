// Package artifacts persists interruption evidence to object storage so
// infra incidents can be examined after the builds themselves expire.
package artifacts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config configures the S3 evidence sink.
type S3Config struct {
	Bucket string
	Prefix string
	Region string
}

// S3Sink uploads interruption evidence to AWS S3.
type S3Sink struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Sink loads AWS config and prepares a sink.
func NewS3Sink(ctx context.Context, cfg S3Config) (*S3Sink, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	loadOpts := []func(*config.LoadOptions) error{}
	if cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.Region))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}

	return &S3Sink{
		client: s3.NewFromConfig(awsCfg),
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// UploadInterruption stores the shard summary of an interrupted build and
// returns a s3:// URI.
func (s *S3Sink) UploadInterruption(ctx context.Context, builder string, number int, summary any) (string, error) {
	data, err := json.Marshal(summary)
	if err != nil {
		return "", err
	}

	key := s.objectKey("interruptions", builder, strconv.Itoa(number), "summary.json")
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &key,
		Body:        bytes.NewReader(data),
		ContentType: ptr("application/json"),
	})
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}

func (s *S3Sink) objectKey(parts ...string) string {
	if s.prefix == "" {
		return path.Join(parts...)
	}
	return path.Join(append([]string{s.prefix}, parts...)...)
}

func ptr[T any](v T) *T {
	return &v
}
