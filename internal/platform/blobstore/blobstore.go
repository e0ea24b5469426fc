// Package blobstore stores attachment files. The filesystem store writes
// under UPLOAD_PATH; the in-memory store backs tests.
package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrBlobNotFound    = errors.New("blob not found")
	ErrFileTooLarge    = errors.New("file exceeds maximum allowed size")
	ErrMissingFileName = errors.New("file name is required")
	ErrInvalidKey      = errors.New("invalid blob key")
)

// Object describes a stored file. Key is the storage name and is safe to
// persist; Name is what the uploader called it.
type Object struct {
	Key         string    `json:"key"`
	Name        string    `json:"name"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	Hash        string    `json:"hash"`
	CreatedAt   time.Time `json:"createdAt"`
}

type Store interface {
	Put(ctx context.Context, name string, content io.Reader) (*Object, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// newKey returns a collision-free storage name that keeps the upload's
// extension so downloads get a sensible content type.
func newKey(name string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(name)))
	if len(ext) > 10 || strings.ContainsAny(ext, `/\ `) {
		ext = ""
	}
	return uuid.NewString() + ext
}

// ValidKey reports whether key names a single file with no path components.
func ValidKey(key string) bool {
	if key == "" || key == "." || key == ".." {
		return false
	}
	return !strings.ContainsAny(key, `/\`) && filepath.Base(key) == key
}

// readLimited reads content fully, failing with ErrFileTooLarge past max.
func readLimited(content io.Reader, max int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(content, max+1))
	if err != nil {
		return nil, fmt.Errorf("reading content: %w", err)
	}
	if int64(len(data)) > max {
		return nil, ErrFileTooLarge
	}
	return data, nil
}

func describe(key, name string, data []byte) *Object {
	h := sha256.Sum256(data)
	return &Object{
		Key:         key,
		Name:        name,
		ContentType: http.DetectContentType(data),
		Size:        int64(len(data)),
		Hash:        hex.EncodeToString(h[:]),
		CreatedAt:   time.Now().UTC(),
	}
}

type storedBlob struct {
	object  Object
	content []byte
}

// MemoryStore is a thread-safe Store that keeps everything in memory.
type MemoryStore struct {
	mu      sync.RWMutex
	blobs   map[string]*storedBlob
	maxSize int64
}

func NewMemoryStore(maxSize int64) *MemoryStore {
	return &MemoryStore{blobs: make(map[string]*storedBlob), maxSize: maxSize}
}

func (s *MemoryStore) Put(_ context.Context, name string, content io.Reader) (*Object, error) {
	if name == "" {
		return nil, ErrMissingFileName
	}
	data, err := readLimited(content, s.maxSize)
	if err != nil {
		return nil, err
	}

	obj := describe(newKey(name), name, data)
	s.mu.Lock()
	s.blobs[obj.Key] = &storedBlob{object: *obj, content: data}
	s.mu.Unlock()

	out := *obj
	return &out, nil
}

func (s *MemoryStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.RLock()
	b, ok := s.blobs[key]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrBlobNotFound
	}
	return io.NopCloser(bytes.NewReader(b.content)), nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[key]; !ok {
		return ErrBlobNotFound
	}
	delete(s.blobs, key)
	return nil
}

// Len returns the number of stored blobs.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
