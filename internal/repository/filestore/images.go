package filestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/saturnino-fabrica-de-software/ponto/internal/repository"
)

// ImageStore keeps enrollment photos next to the roster as <key>.<ext>
type ImageStore struct {
	dir string
}

func NewImageStore(dir string) (*ImageStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create image dir: %w", err)
	}
	return &ImageStore{dir: dir}, nil
}

func (s *ImageStore) Put(ctx context.Context, key string, image []byte, contentType string) (string, error) {
	if err := checkKey(key); err != nil {
		return "", err
	}
	path := filepath.Join(s.dir, key+repository.ContentTypeExt(contentType))
	if err := writeFileAtomic(path, image); err != nil {
		return "", fmt.Errorf("write image: %w", err)
	}
	return path, nil
}

func (s *ImageStore) Delete(ctx context.Context, ref string) error {
	if err := os.Remove(ref); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete image: %w", err)
	}
	return nil
}

var _ repository.ImageStoreInterface = (*ImageStore)(nil)
