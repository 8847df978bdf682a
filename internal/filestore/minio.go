package filestore

import (
	"context"
	"fmt"
	"mime/multipart"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOConfig holds the connection settings for an S3-compatible server.
type MinIOConfig struct {
	Endpoint  string // host:port, no scheme
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// PublicURL is the base clients use to reach the server, e.g.
	// "https://cdn.example.com". Defaults to http(s)://Endpoint.
	PublicURL string
}

// MinIO keeps uploads as objects in a single bucket.
type MinIO struct {
	client    *minio.Client
	bucket    string
	publicURL string
}

var _ Store = (*MinIO)(nil)

// NewMinIO connects to the server and makes sure the bucket exists.
func NewMinIO(ctx context.Context, cfg MinIOConfig) (*MinIO, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("filestore: minio endpoint and bucket are required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("filestore: creating minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("filestore: checking bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("filestore: creating bucket %s: %w", cfg.Bucket, err)
		}
	}

	return &MinIO{
		client:    client,
		bucket:    cfg.Bucket,
		publicURL: publicBase(cfg),
	}, nil
}

func publicBase(cfg MinIOConfig) string {
	if cfg.PublicURL != "" {
		return strings.TrimRight(cfg.PublicURL, "/")
	}
	scheme := "http://"
	if cfg.UseSSL {
		scheme = "https://"
	}
	return scheme + cfg.Endpoint
}

func (m *MinIO) objectURL(key string) string {
	return m.publicURL + "/" + m.bucket + "/" + key
}

// Save uploads the file as <field>/<name>.
func (m *MinIO) Save(ctx context.Context, field string, fh *multipart.FileHeader) (string, error) {
	if !validField(field) {
		return "", fmt.Errorf("filestore: invalid field name %q", field)
	}

	src, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("filestore: opening upload: %w", err)
	}
	defer src.Close()

	key := field + "/" + newName(fh.Filename)
	contentType := fh.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	if _, err := m.client.PutObject(ctx, m.bucket, key, src, fh.Size, minio.PutObjectOptions{
		ContentType: contentType,
	}); err != nil {
		return "", fmt.Errorf("filestore: uploading %s: %w", key, err)
	}
	return m.objectURL(key), nil
}

// Remove deletes the object behind url.
func (m *MinIO) Remove(ctx context.Context, url string) error {
	key, ok := strings.CutPrefix(url, m.publicURL+"/"+m.bucket+"/")
	if !ok {
		return ErrForeignURL
	}
	if _, _, ok := splitKey(key); !ok {
		return ErrForeignURL
	}
	if err := m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("filestore: removing %s: %w", key, err)
	}
	return nil
}

// Ping reports whether the bucket is reachable. Used by the health check.
func (m *MinIO) Ping(ctx context.Context) error {
	if _, err := m.client.BucketExists(ctx, m.bucket); err != nil {
		return fmt.Errorf("filestore: minio ping: %w", err)
	}
	return nil
}
