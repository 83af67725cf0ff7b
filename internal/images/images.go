// Package images persists downloaded strip images under a storage directory
// and hands out their paths as stable refs for the catalog.
package images

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"

	"github.com/jsirkia/dailystrips/internal/fetch"
)

type Store struct {
	fetcher fetch.Fetcher
	dir     string
	log     *slog.Logger
}

func New(fetcher fetch.Fetcher, dir string, log *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create image dir %s: %w", dir, err)
	}
	return &Store{fetcher: fetcher, dir: dir, log: log}, nil
}

// Store downloads the image at imageURL into the storage directory, keyed by
// the server's own filename, and returns the file path as the ref. A file
// that already exists is never re-downloaded or rewritten.
func (s *Store) Store(ctx context.Context, imageURL string) (string, error) {
	name, err := filenameFor(imageURL)
	if err != nil {
		return "", err
	}
	ref := filepath.Join(s.dir, name)

	if _, err := os.Stat(ref); err == nil {
		s.log.Debug("image already stored", "ref", ref)
		return ref, nil
	}

	p, err := s.fetcher.Fetch(ctx, imageURL)
	if err != nil {
		return "", fmt.Errorf("download image %s: %w", imageURL, err)
	}
	if err := os.WriteFile(ref, p.Body, 0o644); err != nil {
		return "", fmt.Errorf("write image %s: %w", ref, err)
	}
	return ref, nil
}

// Load reads a previously stored image back for delivery.
func (s *Store) Load(ref string) ([]byte, error) {
	b, err := os.ReadFile(ref)
	if err != nil {
		return nil, fmt.Errorf("read image %s: %w", ref, err)
	}
	return b, nil
}

func filenameFor(imageURL string) (string, error) {
	u, err := url.Parse(imageURL)
	if err != nil {
		return "", fmt.Errorf("parse image url %s: %w", imageURL, err)
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return "", fmt.Errorf("image url %s has no usable filename", imageURL)
	}
	return name, nil
}
