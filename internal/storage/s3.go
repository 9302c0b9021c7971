// Package storage persists raw extracts and derived artifacts in S3. The
// processors never touch it; the orchestrator hands them tables and bytes
// fetched here and writes their outputs back.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"wmsreports/internal/config"
	"wmsreports/internal/dataprocessing"
	"wmsreports/internal/exporter"
	"wmsreports/internal/fetch"
)

// ErrNotFound reports a missing object or an empty prefix listing.
var ErrNotFound = errors.New("object not found")

// Store wraps the S3 bucket all pipeline artifacts live in.
type Store struct {
	client *s3.Client
	bucket string
	logger *slog.Logger
}

// New builds a store from cfg. Static credentials are used when provided;
// otherwise the default AWS credential chain applies.
func New(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	return &Store{
		client: s3.NewFromConfig(awsCfg),
		bucket: cfg.Bucket,
		logger: logger,
	}, nil
}

// FindWithPrefix returns the key of the first object under prefix, or
// ErrNotFound. Source extracts are stored as {prefix}/{BASENAME}{YYYYMMDD}…
// with a service-generated suffix, so prefix search is the lookup.
func (s *Store) FindWithPrefix(ctx context.Context, prefix string) (string, error) {
	s.logger.InfoContext(ctx, "searching for object",
		slog.String("bucket", s.bucket),
		slog.String("prefix", prefix))

	out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return "", fmt.Errorf("list objects with prefix %s: %w", prefix, err)
	}
	if len(out.Contents) == 0 {
		return "", fmt.Errorf("no objects under %s: %w", prefix, ErrNotFound)
	}
	return aws.ToString(out.Contents[0].Key), nil
}

// GetObject downloads an object. Missing objects map to ErrNotFound.
func (s *Store) GetObject(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, fmt.Errorf("get %s: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

// PutObject uploads bytes under key with the given content type.
func (s *Store) PutObject(ctx context.Context, key, contentType string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	s.logger.InfoContext(ctx, "object uploaded",
		slog.String("bucket", s.bucket),
		slog.String("key", key),
		slog.Int("bytes", len(data)))
	return nil
}

// GetTable downloads and decodes a CSV object.
func (s *Store) GetTable(ctx context.Context, key string) (dataprocessing.Table, error) {
	data, err := s.GetObject(ctx, key)
	if err != nil {
		return dataprocessing.Table{}, err
	}
	table, err := fetch.DecodeCSV(bytes.NewReader(data))
	if err != nil {
		return dataprocessing.Table{}, fmt.Errorf("decode %s: %w", key, err)
	}
	return table, nil
}

// PutTable encodes a table as CSV and uploads it under key.
func (s *Store) PutTable(ctx context.Context, key string, t dataprocessing.Table) error {
	data, err := exporter.EncodeTable(t, exporter.EncodeOptions{BOMPrefix: true})
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.PutObject(ctx, key, "text/csv", data)
}

// PutArtifact uploads one pipeline artifact under prefix, dated per the
// naming contract.
func (s *Store) PutArtifact(ctx context.Context, prefix string, day time.Time, artifact exporter.Artifact) error {
	key := DatedKey(prefix, day, artifact.Filename)
	// The MTD workbook lives at the month level, not under a day folder.
	if artifact.Key == "mtd" {
		key = JoinKey(prefix, artifact.Filename)
	}
	return s.PutObject(ctx, key, artifact.ContentType, artifact.Data)
}

// Exists reports whether key is present.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("head %s: %w", key, err)
	}
	return true, nil
}

// JoinKey joins key segments with single slashes.
func JoinKey(parts ...string) string {
	cleaned := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(p, "/")
		if p != "" {
			cleaned = append(cleaned, p)
		}
	}
	return strings.Join(cleaned, "/")
}

// DatedKey places filename under prefix in the day's YYYYMMDD folder.
func DatedKey(prefix string, day time.Time, filename string) string {
	return JoinKey(prefix, day.Format("20060102"), filename)
}
