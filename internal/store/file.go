package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vyrodovalexey/productos-api/internal/model"
)

// File permissions for the data file and any directories created for it.
const (
	defaultFileMode os.FileMode = 0o644
	defaultDirMode  os.FileMode = 0o755
)

// FileStore implements Store on top of a single JSON file holding an array
// of products. Every save rewrites the whole file.
//
// The mutex serialises writers inside one process only. Two processes
// sharing the same file still race, last writer wins.
type FileStore struct {
	mu   sync.RWMutex
	path string
	mode os.FileMode
}

// NewFileStore creates a FileStore backed by the file at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{
		path: path,
		mode: defaultFileMode,
	}
}

// Path returns the location of the backing file.
func (s *FileStore) Path() string {
	return s.path
}

// EnsureFileExists creates the backing file containing an empty array if it
// is missing. Parent directories are created as needed.
func (s *FileStore) EnsureFileExists() (err error) {
	start := time.Now()
	defer func() { observe(opEnsure, start, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.ensure()
}

// Load reads and decodes the whole file. A missing file is recreated and
// reported as an empty collection.
func (s *FileStore) Load(ctx context.Context) ([]model.Product, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("load products: %w", ctx.Err())
	default:
	}

	start := time.Now()
	products, err := s.load()
	observe(opLoad, start, err)
	if err != nil {
		return nil, err
	}

	storedProducts.Set(float64(len(products)))
	return products, nil
}

// Save encodes products and replaces the file contents.
func (s *FileStore) Save(ctx context.Context, products []model.Product) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("save products: %w", ctx.Err())
	default:
	}

	start := time.Now()

	s.mu.Lock()
	err := s.write(products)
	s.mu.Unlock()

	observe(opSave, start, err)
	if err != nil {
		return err
	}

	storedProducts.Set(float64(len(products)))
	return nil
}

// Mutate holds the write lock across reading the file, applying fn and
// writing the result back.
func (s *FileStore) Mutate(ctx context.Context, fn MutateFunc) (err error) {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mutate products: %w", ctx.Err())
	default:
	}

	if fn == nil {
		return ErrNilMutation
	}

	start := time.Now()
	defer func() { observe(opMutate, start, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	products, err := s.read()
	if errors.Is(err, os.ErrNotExist) {
		if err := s.ensure(); err != nil {
			return err
		}
		products, err = []model.Product{}, nil
	}
	if err != nil {
		return err
	}

	updated, err := fn(products)
	if err != nil {
		return err
	}

	if err := s.write(updated); err != nil {
		return err
	}

	storedProducts.Set(float64(len(updated)))
	return nil
}

// load reads under the read lock and falls back to recreating the file.
func (s *FileStore) load() ([]model.Product, error) {
	s.mu.RLock()
	products, err := s.read()
	s.mu.RUnlock()

	if !errors.Is(err, os.ErrNotExist) {
		return products, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensure(); err != nil {
		return nil, err
	}

	// Another writer may have won the race to recreate it.
	return s.read()
}

// ensure creates the file if missing. Callers must hold the write lock.
func (s *FileStore) ensure() error {
	_, err := os.Stat(s.path)
	if err == nil {
		return nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return &StorageError{Op: opEnsure, Path: s.path, Err: err}
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, defaultDirMode); err != nil {
			return &StorageError{Op: opEnsure, Path: s.path, Err: fmt.Errorf("create directory: %w", err)}
		}
	}

	if err := writeFileAtomic(s.path, []byte("[]"), s.mode); err != nil {
		return &StorageError{Op: opEnsure, Path: s.path, Err: err}
	}

	return nil
}

// read loads the file contents. Callers must hold the lock.
func (s *FileStore) read() ([]model.Product, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, &StorageError{Op: opLoad, Path: s.path, Err: err}
	}

	products, err := decodeProducts(data)
	if err != nil {
		return nil, &StorageError{Op: opLoad, Path: s.path, Err: err}
	}

	return products, nil
}

// write encodes and stores products. Callers must hold the write lock.
func (s *FileStore) write(products []model.Product) error {
	data, err := encodeProducts(products)
	if err != nil {
		return &StorageError{Op: opSave, Path: s.path, Err: err}
	}

	if err := writeFileAtomic(s.path, data, s.mode); err != nil {
		return &StorageError{Op: opSave, Path: s.path, Err: err}
	}

	return nil
}

// decodeProducts parses a JSON array of products. Empty input and a JSON
// null both decode to an empty collection.
func decodeProducts(data []byte) ([]model.Product, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return []model.Product{}, nil
	}

	var products []model.Product
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptData, err)
	}

	if products == nil {
		products = []model.Product{}
	}

	return products, nil
}

// encodeProducts renders products as a JSON array, never null. Text is
// written without HTML escaping.
func encodeProducts(products []model.Product) ([]byte, error) {
	if products == nil {
		products = []model.Product{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(products); err != nil {
		return nil, fmt.Errorf("encode products: %w", err)
	}

	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// writeFileAtomic writes data to a temporary file next to path and renames it
// into place, so readers see either the old or the new contents.
func writeFileAtomic(path string, data []byte, mode os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("sync temp file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Chmod(tmpName, mode); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("chmod temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace file: %w", err)
	}

	return nil
}
