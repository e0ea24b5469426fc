package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// FileStore keeps blobs as flat files in a single directory.
type FileStore struct {
	root    string
	maxSize int64
}

// NewFileStore creates root if needed.
func NewFileStore(root string, maxSize int64) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create upload dir %s: %w", root, err)
	}
	return &FileStore{root: root, maxSize: maxSize}, nil
}

func (s *FileStore) path(key string) (string, error) {
	if !ValidKey(key) {
		return "", ErrInvalidKey
	}
	return filepath.Join(s.root, key), nil
}

// Put writes to a temp file and renames it into place so readers never see
// a partial upload.
func (s *FileStore) Put(ctx context.Context, name string, content io.Reader) (*Object, error) {
	if name == "" {
		return nil, ErrMissingFileName
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := readLimited(content, s.maxSize)
	if err != nil {
		return nil, err
	}
	obj := describe(newKey(name), name, data)

	tmp, err := os.CreateTemp(s.root, ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write %s: %w", obj.Key, err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("close %s: %w", obj.Key, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.root, obj.Key)); err != nil {
		return nil, fmt.Errorf("store %s: %w", obj.Key, err)
	}
	return obj, nil
}

func (s *FileStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrBlobNotFound
	}
	return f, err
}

func (s *FileStore) Delete(_ context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	err = os.Remove(p)
	if errors.Is(err, fs.ErrNotExist) {
		return ErrBlobNotFound
	}
	return err
}
