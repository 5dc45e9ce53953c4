// Package store provides product persistence backends.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/vyrodovalexey/productos-api/internal/model"
)

// Store drivers.
const (
	DriverFile   = "file"
	DriverMemory = "memory"
)

// Store operation names, used in errors and metric labels.
const (
	opEnsure = "ensure"
	opLoad   = "load"
	opSave   = "save"
	opMutate = "mutate"
)

// Store errors.
var (
	ErrCorruptData   = errors.New("product data is not a JSON array of products")
	ErrNilMutation   = errors.New("mutation function cannot be nil")
	ErrUnknownDriver = errors.New("unknown store driver")
)

// StorageError reports a failure to read, write or create the backing data.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying cause.
func (e *StorageError) Unwrap() error {
	return e.Err
}

// MutateFunc receives the current products and returns the sequence to persist.
// Returning an error aborts the mutation without writing anything.
type MutateFunc func(products []model.Product) ([]model.Product, error)

// Store defines the persistence contract for the product collection.
type Store interface {
	// EnsureFileExists creates the backing data, holding an empty collection,
	// if it does not exist yet.
	EnsureFileExists() error

	// Load returns the full collection in insertion order.
	Load(ctx context.Context) ([]model.Product, error)

	// Save replaces the full collection.
	Save(ctx context.Context, products []model.Product) error

	// Mutate runs load, fn and save as one critical section.
	Mutate(ctx context.Context, fn MutateFunc) error
}

// New creates the Store selected by driver. path is only used by the file driver.
func New(driver, path string) (Store, error) {
	switch driver {
	case DriverFile, "":
		return NewFileStore(path), nil
	case DriverMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, driver)
	}
}
