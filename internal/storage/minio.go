// Package storage keeps enrollment photos in an S3-compatible bucket.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/saturnino-fabrica-de-software/ponto/internal/repository"
)

// refScheme prefixes every image reference written to the roster
const refScheme = "minio://"

// MinIOConfig holds connection settings for the image bucket
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// objectAPI is the subset of *minio.Client the store calls
type objectAPI interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
}

// MinIOStore implements repository.ImageStoreInterface
type MinIOStore struct {
	client objectAPI
	bucket string
}

func NewMinIOStore(cfg MinIOConfig) (*MinIOStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &MinIOStore{
		client: client,
		bucket: cfg.Bucket,
	}, nil
}

// EnsureBucket creates the bucket if it doesn't exist.
func (s *MinIOStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
	}
	return nil
}

// Put uploads the photo as enrollments/<key><ext> and returns its reference
func (s *MinIOStore) Put(ctx context.Context, key string, image []byte, contentType string) (string, error) {
	object := "enrollments/" + key + repository.ContentTypeExt(contentType)
	_, err := s.client.PutObject(ctx, s.bucket, object, bytes.NewReader(image), int64(len(image)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", object, err)
	}
	return refScheme + s.bucket + "/" + object, nil
}

// Delete removes an object previously returned by Put
func (s *MinIOStore) Delete(ctx context.Context, ref string) error {
	object, ok := strings.CutPrefix(ref, refScheme+s.bucket+"/")
	if !ok {
		return fmt.Errorf("reference %q is not in bucket %s", ref, s.bucket)
	}
	if err := s.client.RemoveObject(ctx, s.bucket, object, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete object %s: %w", object, err)
	}
	return nil
}

// Ping checks MinIO connectivity.
func (s *MinIOStore) Ping(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucket)
	return err
}

var _ repository.ImageStoreInterface = (*MinIOStore)(nil)
