package minio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/sathovsepyan/ctfd-portable-challenges-plugin/internal/storage"
)

// sniffLen is how much of a file is read to detect its content type.
const sniffLen = 3072

type Config struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Bucket        string
	UseSSL        bool
	PublicBaseURL string
}

// ObjectStorage keeps attachments as objects in a single bucket.
type ObjectStorage struct {
	client        *minio.Client
	bucket        string
	publicBaseURL string
}

func NewObjectStorage(ctx context.Context, cfg Config) (*ObjectStorage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", cfg.Bucket, err)
		}
	}

	return &ObjectStorage{
		client:        client,
		bucket:        cfg.Bucket,
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
	}, nil
}

func (s *ObjectStorage) Save(ctx context.Context, r io.Reader, opts storage.SaveOptions) (storage.FileInfo, error) {
	ext := strings.ToLower(filepath.Ext(opts.OriginalName))
	key := path.Join(opts.Directory, uuid.New().String()+ext)

	contentType := opts.ContentType
	if contentType == "" {
		head := make([]byte, sniffLen)
		n, err := io.ReadFull(r, head)
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			return storage.FileInfo{}, fmt.Errorf("failed to read file: %w", err)
		}
		contentType = mimetype.Detect(head[:n]).String()
		r = io.MultiReader(bytes.NewReader(head[:n]), r)
	}

	info, err := s.client.PutObject(ctx, s.bucket, key, r, -1, minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: map[string]string{"original-name": opts.OriginalName},
	})
	if err != nil {
		return storage.FileInfo{}, fmt.Errorf("failed to put object: %w", err)
	}

	return storage.FileInfo{
		ID:          key,
		Path:        s.bucket + "/" + key,
		ContentType: contentType,
		Size:        info.Size,
		URL:         s.url(key),
	}, nil
}

func (s *ObjectStorage) Open(ctx context.Context, id string) (io.ReadSeekCloser, storage.FileInfo, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, id, minio.GetObjectOptions{})
	if err != nil {
		return nil, storage.FileInfo{}, fmt.Errorf("failed to get object: %w", err)
	}

	stat, err := obj.Stat()
	if err != nil {
		obj.Close()
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, storage.FileInfo{}, storage.ErrNotFound
		}
		return nil, storage.FileInfo{}, fmt.Errorf("failed to stat object: %w", err)
	}

	return obj, storage.FileInfo{
		ID:          id,
		Path:        s.bucket + "/" + id,
		ContentType: stat.ContentType,
		Size:        stat.Size,
		URL:         s.url(id),
	}, nil
}

func (s *ObjectStorage) Delete(ctx context.Context, id string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, id, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to remove object: %w", err)
	}
	return nil
}

func (s *ObjectStorage) url(id string) string {
	return fmt.Sprintf("%s/files/%s", s.publicBaseURL, id)
}
