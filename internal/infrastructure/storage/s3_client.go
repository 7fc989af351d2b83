// Package storage adapts the teacher's S3 blob client into the grading
// pipeline's FileStorage/ExportWriter collaborators.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"brokle/internal/config"
	"brokle/internal/core/domain/grading"
)

// S3Client wraps the AWS S3 SDK for blob storage operations and implements
// grading.FileStorage and grading.ExportWriter.
type S3Client struct {
	client     *s3.Client
	logger     *slog.Logger
	bucketName string
}

// NewS3Client creates a new S3 client instance.
func NewS3Client(cfg *config.BlobStorageConfig, logger *slog.Logger) (*S3Client, error) {
	var awsCfg aws.Config
	var err error

	if cfg.Endpoint != "" {
		awsCfg, err = awsConfig.LoadDefaultConfig(context.Background(),
			awsConfig.WithRegion(cfg.Region),
			awsConfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID,
				cfg.SecretAccessKey,
				"",
			)),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		awsCfg.BaseEndpoint = aws.String(cfg.Endpoint)
	} else {
		if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
			awsCfg, err = awsConfig.LoadDefaultConfig(context.Background(),
				awsConfig.WithRegion(cfg.Region),
				awsConfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
					cfg.AccessKeyID,
					cfg.SecretAccessKey,
					"",
				)),
			)
		} else {
			awsCfg, err = awsConfig.LoadDefaultConfig(context.Background(),
				awsConfig.WithRegion(cfg.Region),
			)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
	})

	logger.Info("S3 client initialized",
		"provider", cfg.Provider,
		"bucket", cfg.BucketName,
		"region", cfg.Region,
		"endpoint", cfg.Endpoint,
		"path_style", cfg.UsePathStyle,
	)

	return &S3Client{
		client:     s3Client,
		bucketName: cfg.BucketName,
		logger:     logger,
	}, nil
}

// Upload uploads content to S3.
func (c *S3Client) Upload(ctx context.Context, key string, content []byte, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(c.bucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(content),
		ContentType: aws.String(contentType),
	}

	if _, err := c.client.PutObject(ctx, input); err != nil {
		c.logger.Error("failed to upload to S3", "bucket", c.bucketName, "key", key, "error", err)
		return fmt.Errorf("failed to upload to S3: %w", err)
	}

	c.logger.Debug("uploaded to S3", "bucket", c.bucketName, "key", key, "size", len(content))
	return nil
}

// Download downloads content from S3.
func (c *S3Client) Download(ctx context.Context, key string) ([]byte, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(c.bucketName),
		Key:    aws.String(key),
	}

	result, err := c.client.GetObject(ctx, input)
	if err != nil {
		c.logger.Error("failed to download from S3", "bucket", c.bucketName, "key", key, "error", err)
		return nil, fmt.Errorf("failed to download from S3: %w", err)
	}
	defer result.Body.Close()

	content, err := io.ReadAll(result.Body)
	if err != nil {
		c.logger.Error("failed to read S3 object body", "error", err)
		return nil, fmt.Errorf("failed to read S3 object body: %w", err)
	}

	c.logger.Debug("downloaded from S3", "bucket", c.bucketName, "key", key, "size", len(content))
	return content, nil
}

// Delete deletes an object from S3.
func (c *S3Client) Delete(ctx context.Context, key string) error {
	input := &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucketName),
		Key:    aws.String(key),
	}

	if _, err := c.client.DeleteObject(ctx, input); err != nil {
		c.logger.Error("failed to delete from S3", "bucket", c.bucketName, "key", key, "error", err)
		return fmt.Errorf("failed to delete from S3: %w", err)
	}

	c.logger.Debug("deleted from S3", "bucket", c.bucketName, "key", key)
	return nil
}

// Exists checks if an object exists in S3.
func (c *S3Client) Exists(ctx context.Context, key string) (bool, error) {
	input := &s3.HeadObjectInput{
		Bucket: aws.String(c.bucketName),
		Key:    aws.String(key),
	}

	if _, err := c.client.HeadObject(ctx, input); err != nil {
		return false, nil
	}
	return true, nil
}

// GetS3URI returns the full S3 URI for a key.
func (c *S3Client) GetS3URI(key string) string {
	return fmt.Sprintf("s3://%s/%s", c.bucketName, key)
}

// pageImageKey and its inverse define the batch/student/page layout that
// ListBatchFiles scans, so the fan-out stage's bounded-recovery fallback
// (spec.md §4.4) can reconstruct images purely from object keys when state
// holds none.
func pageImageKey(batchID, studentKey string, pageIndex int, ext string) string {
	return path.Join("batches", batchID, "pages", studentKey, strconv.Itoa(pageIndex)+ext)
}

// ListBatchFiles returns every page image stored for a batch, satisfying
// grading.FileStorage.
func (c *S3Client) ListBatchFiles(ctx context.Context, batchID string) ([]grading.FileRef, error) {
	prefix := path.Join("batches", batchID, "pages") + "/"
	var refs []grading.FileRef
	var token *string

	for {
		out, err := c.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(c.bucketName),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("list batch files for %s: %w", batchID, err)
		}

		for _, obj := range out.Contents {
			key := aws.ToString(obj.Key)
			ref, ok := parsePageImageKey(prefix, key)
			if !ok {
				continue
			}
			ref.URL = c.GetS3URI(key)
			refs = append(refs, ref)
		}

		if out.IsTruncated == nil || !*out.IsTruncated {
			break
		}
		token = out.NextContinuationToken
	}

	return refs, nil
}

func parsePageImageKey(prefix, key string) (grading.FileRef, bool) {
	rest := strings.TrimPrefix(key, prefix)
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 {
		return grading.FileRef{}, false
	}
	studentKey := parts[0]
	base := parts[1]
	ext := path.Ext(base)
	pageStr := strings.TrimSuffix(base, ext)
	pageIndex, err := strconv.Atoi(pageStr)
	if err != nil {
		return grading.FileRef{}, false
	}
	return grading.FileRef{
		FileID:      key,
		StudentKey:  studentKey,
		PageIndex:   pageIndex,
		ContentType: contentTypeFromExt(ext),
	}, true
}

func contentTypeFromExt(ext string) string {
	switch strings.ToLower(ext) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}

// WriteArtifact persists an export artifact, satisfying grading.ExportWriter.
func (c *S3Client) WriteArtifact(ctx context.Context, batchID, name string, content []byte) (string, error) {
	key := path.Join("batches", batchID, "exports", name)
	if err := c.Upload(ctx, key, content, "application/json"); err != nil {
		return "", fmt.Errorf("write export artifact %s: %w", name, err)
	}
	return c.GetS3URI(key), nil
}
