// Package archive keeps the raw captured documents in S3-compatible object
// storage, so an extraction can always be traced back to its exact input.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var ErrNotFound = errors.New("document not found in archive")

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type Service struct {
	client   *minio.Client
	bucket   string
	initOnce sync.Once
	initErr  error
}

func New(cfg Config) (*Service, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, fmt.Errorf("s3 access key and secret key are required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}

	return &Service{client: client, bucket: bucket}, nil
}

func (s *Service) ensureBucket(ctx context.Context) error {
	s.initOnce.Do(func() {
		exists, err := s.client.BucketExists(ctx, s.bucket)
		if err != nil {
			s.initErr = err
			return
		}
		if exists {
			return
		}
		s.initErr = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{})
	})
	return s.initErr
}

// PutDocument stores the raw bytes of a captured document under its source
// and digest. Re-archiving the same digest overwrites in place, which is
// harmless because the key already names the content.
func (s *Service) PutDocument(ctx context.Context, sourceID, documentSHA string, raw []byte) error {
	if sourceID == "" || documentSHA == "" {
		return fmt.Errorf("source id and document sha are required")
	}
	if err := s.ensureBucket(ctx); err != nil {
		return fmt.Errorf("ensure bucket: %w", err)
	}

	key := objectKey(sourceID, documentSHA)
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(raw), int64(len(raw)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("put document: %w", err)
	}
	return nil
}

// GetDocument fetches the raw archived bytes.
func (s *Service) GetDocument(ctx context.Context, sourceID, documentSHA string) ([]byte, error) {
	if sourceID == "" || documentSHA == "" {
		return nil, fmt.Errorf("source id and document sha are required")
	}
	if err := s.ensureBucket(ctx); err != nil {
		return nil, fmt.Errorf("ensure bucket: %w", err)
	}

	obj, err := s.client.GetObject(ctx, s.bucket, objectKey(sourceID, documentSHA), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		errResp := minio.ToErrorResponse(err)
		if errResp.Code == "NoSuchKey" || errResp.Code == "NoSuchBucket" {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read document: %w", err)
	}
	return data, nil
}

// PresignDocument returns a time-limited GET URL for the archived document.
func (s *Service) PresignDocument(ctx context.Context, sourceID, documentSHA string) (string, error) {
	if sourceID == "" || documentSHA == "" {
		return "", fmt.Errorf("source id and document sha are required")
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucket, objectKey(sourceID, documentSHA), time.Hour, nil)
	if err != nil {
		return "", fmt.Errorf("presign document: %w", err)
	}
	return u.String(), nil
}

func objectKey(sourceID, documentSHA string) string {
	return "sources/" + sourceID + "/" + documentSHA + ".json"
}
