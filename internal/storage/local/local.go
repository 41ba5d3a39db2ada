package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/sathovsepyan/ctfd-portable-challenges-plugin/internal/storage"
)

type LocalStorage struct {
	baseDir       string
	publicBaseURL string
}

func NewLocalStorage(baseDir, publicBaseURL string) (*LocalStorage, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &LocalStorage{
		baseDir:       baseDir,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}, nil
}

func (s *LocalStorage) Save(ctx context.Context, r io.Reader, opts storage.SaveOptions) (storage.FileInfo, error) {
	ext := strings.ToLower(filepath.Ext(opts.OriginalName))
	id := path.Join(opts.Directory, uuid.New().String()+ext)

	filePath, err := s.resolve(id)
	if err != nil {
		return storage.FileInfo{}, err
	}
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return storage.FileInfo{}, fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.Create(filePath)
	if err != nil {
		return storage.FileInfo{}, fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	size, err := io.Copy(file, r)
	if err != nil {
		os.Remove(filePath)
		return storage.FileInfo{}, fmt.Errorf("failed to write file: %w", err)
	}

	contentType := opts.ContentType
	if contentType == "" {
		contentType = detect(filePath)
	}

	return storage.FileInfo{
		ID:          id,
		Path:        filePath,
		ContentType: contentType,
		Size:        size,
		URL:         s.url(id),
	}, nil
}

func (s *LocalStorage) Open(ctx context.Context, id string) (io.ReadSeekCloser, storage.FileInfo, error) {
	filePath, err := s.resolve(id)
	if err != nil {
		return nil, storage.FileInfo{}, err
	}

	file, err := os.Open(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, storage.FileInfo{}, storage.ErrNotFound
		}
		return nil, storage.FileInfo{}, fmt.Errorf("failed to open file: %w", err)
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, storage.FileInfo{}, fmt.Errorf("failed to stat file: %w", err)
	}

	info := storage.FileInfo{
		ID:          id,
		Path:        filePath,
		ContentType: detect(filePath),
		Size:        stat.Size(),
		URL:         s.url(id),
	}

	return file, info, nil
}

func (s *LocalStorage) Delete(ctx context.Context, id string) error {
	filePath, err := s.resolve(id)
	if err != nil {
		return err
	}

	if err := os.Remove(filePath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

func (s *LocalStorage) resolve(id string) (string, error) {
	if !filepath.IsLocal(filepath.FromSlash(id)) {
		return "", fmt.Errorf("invalid file id %q", id)
	}
	return filepath.Join(s.baseDir, filepath.FromSlash(id)), nil
}

func (s *LocalStorage) url(id string) string {
	return fmt.Sprintf("%s/files/%s", s.publicBaseURL, id)
}

func detect(filePath string) string {
	mtype, err := mimetype.DetectFile(filePath)
	if err != nil {
		return "application/octet-stream"
	}
	return mtype.String()
}
