// Package storage keeps uploaded cup photos on local disk, named by the SHA-1 of
// the original upload.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"github.com/example/matcha-check/internal/logging"

	_ "golang.org/x/image/webp"
)

// ErrUndecodable is returned for uploads that are not images.
var ErrUndecodable = errors.New("image could not be decoded")

const (
	maxStoredSide = 1600
	jpegQuality   = 85
)

// FileStore writes normalized JPEG copies of uploads to a directory.
type FileStore struct {
	dir     string
	baseURL string
	logger  *zap.Logger
}

// NewFileStore creates dir if needed. Stored images are published under baseURL.
func NewFileStore(dir, baseURL string, logger *zap.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, logging.NewOperationError("storage.init", "", err)
	}
	return &FileStore{
		dir:     dir,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger.Named("file_store"),
	}, nil
}

// Dir returns the directory images are written to.
func (s *FileStore) Dir() string {
	return s.dir
}

// Save stores data under hash and returns its public URL. An image that was
// already stored is not written again.
func (s *FileStore) Save(ctx context.Context, hash string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name := hash + ".jpg"
	path := filepath.Join(s.dir, name)
	url := s.baseURL + "/" + name

	if _, err := os.Stat(path); err == nil {
		return url, nil
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	b := img.Bounds()
	if b.Dx() > maxStoredSide || b.Dy() > maxStoredSide {
		img = imaging.Fit(img, maxStoredSide, maxStoredSide, imaging.Lanczos)
	}

	tmp, err := writeTempJPEG(s.dir, name, img)
	if err != nil {
		return "", logging.NewOperationError("storage.save", hash, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		// a concurrent upload of the same photo got there first
		if _, statErr := os.Stat(path); statErr == nil {
			return url, nil
		}
		return "", logging.NewOperationError("storage.save", hash, err)
	}

	s.logger.Debug("stored image", zap.String("path", path), zap.Int("bytes", len(data)))
	return url, nil
}

// writeTempJPEG encodes img into a fresh temp file next to its final name and
// returns the temp path.
func writeTempJPEG(dir, name string, img image.Image) (string, error) {
	f, err := os.CreateTemp(dir, name+".*.tmp")
	if err != nil {
		return "", err
	}
	tmp := f.Name()
	// CreateTemp uses 0600, stored images are served publicly
	if err := f.Chmod(0o644); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return "", err
	}
	if err := imaging.Encode(f, img, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return "", err
	}
	return tmp, nil
}
