// Package storage persists uploaded intake images in S3-compatible object
// storage. Records only carry the object key; bytes never enter postgres.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/clinicflow/intake/internal/config"
)

type ObjectStore interface {
	// PutImage stores the image and returns its object key.
	PutImage(ctx context.Context, data []byte, contentType string) (string, error)
}

type s3Store struct {
	client *s3.Client
	bucket string
}

func New(ctx context.Context, cfg config.ObjectStoreConfig) (ObjectStore, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &s3Store{client: client, bucket: cfg.Bucket}, nil
}

func (s *s3Store) PutImage(ctx context.Context, data []byte, contentType string) (string, error) {
	key := fmt.Sprintf("intake/%s/%s", time.Now().UTC().Format("2006-01-02"), uuid.NewString())

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("uploading image to s3: %w", err)
	}

	return key, nil
}
