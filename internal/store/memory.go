package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vyrodovalexey/productos-api/internal/model"
)

// MemoryStore implements Store with an in-process slice. Nothing survives a
// restart.
type MemoryStore struct {
	mu       sync.RWMutex
	products []model.Product
}

// NewMemoryStore creates a new MemoryStore holding a copy of seed.
func NewMemoryStore(seed ...model.Product) *MemoryStore {
	products := make([]model.Product, len(seed))
	copy(products, seed)

	return &MemoryStore{
		products: products,
	}
}

// EnsureFileExists is a no-op; the collection always exists.
func (s *MemoryStore) EnsureFileExists() error {
	return nil
}

// Load returns a copy of the collection.
func (s *MemoryStore) Load(ctx context.Context) ([]model.Product, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("load products: %w", ctx.Err())
	default:
	}

	start := time.Now()

	s.mu.RLock()
	products := s.snapshot()
	s.mu.RUnlock()

	storedProducts.Set(float64(len(products)))
	observe(opLoad, start, nil)
	return products, nil
}

// Save replaces the collection with a copy of products.
func (s *MemoryStore) Save(ctx context.Context, products []model.Product) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("save products: %w", ctx.Err())
	default:
	}

	start := time.Now()

	s.mu.Lock()
	s.replace(products)
	s.mu.Unlock()

	observe(opSave, start, nil)
	return nil
}

// Mutate applies fn to a copy of the collection under the write lock.
func (s *MemoryStore) Mutate(ctx context.Context, fn MutateFunc) (err error) {
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

	updated, err := fn(s.snapshot())
	if err != nil {
		return err
	}

	s.replace(updated)
	return nil
}

// snapshot copies the collection. Callers must hold the lock.
func (s *MemoryStore) snapshot() []model.Product {
	products := make([]model.Product, len(s.products))
	copy(products, s.products)
	return products
}

// replace stores a copy of products. Callers must hold the write lock.
func (s *MemoryStore) replace(products []model.Product) {
	s.products = make([]model.Product, len(products))
	copy(s.products, products)
	storedProducts.Set(float64(len(products)))
}
