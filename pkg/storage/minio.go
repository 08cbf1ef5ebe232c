package storage

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// BlobStore is the media blob backend: one object per (media, kind).
type BlobStore interface {
	Put(ctx context.Context, mediaID, kind string, reader io.Reader, size int64, contentType string) error
	Get(ctx context.Context, mediaID, kind string) (io.ReadCloser, string, error)
	Remove(ctx context.Context, mediaID, kind string) error
	Exists(ctx context.Context, mediaID, kind string) (bool, error)
}

// MinIOStore implements BlobStore on a MinIO bucket
type MinIOStore struct {
	client *minio.Client
	bucket string
}

// Config holds MinIO connection configuration
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// NewMinIO creates a new MinIO blob store and ensures the bucket exists
func NewMinIO(cfg Config) (*MinIOStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MinIO: %w", err)
	}

	ctx := context.Background()
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
		log.Printf("📦 Created MinIO bucket: %s", cfg.Bucket)
	}

	return &MinIOStore{client: client, bucket: cfg.Bucket}, nil
}

func objectName(mediaID, kind string) string {
	return fmt.Sprintf("media/%s/%s", mediaID, kind)
}

// Put streams a blob to its object. The size must be the declared size;
// a short or long body makes the write fail without leaving the object.
func (s *MinIOStore) Put(ctx context.Context, mediaID, kind string, reader io.Reader, size int64, contentType string) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := s.client.PutObject(ctx, s.bucket, objectName(mediaID, kind), reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to store blob: %w", err)
	}
	return nil
}

// Get opens a blob for reading and returns its content type
func (s *MinIOStore) Get(ctx context.Context, mediaID, kind string) (io.ReadCloser, string, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, objectName(mediaID, kind), minio.GetObjectOptions{})
	if err != nil {
		return nil, "", fmt.Errorf("failed to open blob: %w", err)
	}
	// GetObject is lazy; Stat forces the first request and surfaces NotFound.
	info, err := obj.Stat()
	if err != nil {
		obj.Close()
		return nil, "", err
	}
	return obj, info.ContentType, nil
}

// Remove deletes a blob, used to fail closed after a rejected upload
func (s *MinIOStore) Remove(ctx context.Context, mediaID, kind string) error {
	return s.client.RemoveObject(ctx, s.bucket, objectName(mediaID, kind), minio.RemoveObjectOptions{})
}

// Exists reports whether the blob object is present
func (s *MinIOStore) Exists(ctx context.Context, mediaID, kind string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, objectName(mediaID, kind), minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// FlaggedBlob names one blob a media row claims to have pushed.
type FlaggedBlob struct {
	MediaID string
	Kind    string
}

// Reconcile is the startup consistency-repair pass. It aborts stray
// partial multipart writes left by a crash mid-upload and logs flagged
// rows whose backing blob is absent. Flags are not reset: they are only
// ever set after a completed write, so a missing blob means out-of-band
// deletion, which repair must not paper over.
func (s *MinIOStore) Reconcile(ctx context.Context, flagged []FlaggedBlob) {
	cleaned := 0
	for obj := range s.client.ListIncompleteUploads(ctx, s.bucket, "media/", true) {
		if obj.Err != nil {
			log.Printf("⚠️  Reconcile: listing incomplete uploads: %v", obj.Err)
			break
		}
		if err := s.client.RemoveIncompleteUpload(ctx, s.bucket, obj.Key); err != nil {
			log.Printf("⚠️  Reconcile: failed to drop partial %s: %v", obj.Key, err)
			continue
		}
		cleaned++
	}
	if cleaned > 0 {
		log.Printf("🧹 Reconcile: removed %d partial blob write(s)", cleaned)
	}

	for _, f := range flagged {
		ok, err := s.Exists(ctx, f.MediaID, f.Kind)
		if err != nil {
			log.Printf("⚠️  Reconcile: stat %s/%s: %v", f.MediaID, f.Kind, err)
			continue
		}
		if !ok {
			log.Printf("⚠️  Reconcile: media %s flagged %s but blob is missing", f.MediaID, f.Kind)
		}
	}
}
