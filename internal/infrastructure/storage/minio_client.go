package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// MinioClient stores files in any S3-compatible bucket.
type MinioClient struct {
	client *minio.Client
	cfg    MinioConfig
}

func NewMinioClient(cfg MinioConfig) (*MinioClient, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &MinioClient{client: client, cfg: cfg}, nil
}

// EnsureBucket creates the bucket if it doesn't exist
func (c *MinioClient) EnsureBucket(ctx context.Context) error {
	exists, err := c.client.BucketExists(ctx, c.cfg.Bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}

	if !exists {
		if err := c.client.MakeBucket(ctx, c.cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return nil
}

func (c *MinioClient) UploadFile(ctx context.Context, file io.Reader, contentType, folder string) (string, error) {
	name := objectName(folder, contentType)

	_, err := c.client.PutObject(ctx, c.cfg.Bucket, name, file, -1, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload file: %w", err)
	}

	return c.publicURL(name), nil
}

func (c *MinioClient) DeleteFile(ctx context.Context, fileURL string) error {
	prefix := c.publicURL("")
	if !strings.HasPrefix(fileURL, prefix) {
		return fmt.Errorf("invalid MinIO URL format or bucket mismatch")
	}

	err := c.client.RemoveObject(ctx, c.cfg.Bucket, strings.TrimPrefix(fileURL, prefix), minio.RemoveObjectOptions{})
	if err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}

	return nil
}

func (c *MinioClient) Close() error {
	return nil
}

func (c *MinioClient) publicURL(name string) string {
	protocol := "http"
	if c.cfg.UseSSL {
		protocol = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", protocol, c.cfg.Endpoint, c.cfg.Bucket, name)
}
