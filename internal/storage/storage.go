package storage

import (
	"errors"
	"sync"
	"time"

	"github.com/wuzuhao/regions-data/internal/region"
)

// ErrNotLoaded indicates no dataset has been stored yet.
var ErrNotLoaded = errors.New("region dataset not loaded")

// Storage provides access to the region dataset currently in service.
type Storage interface {
	Current() (*region.Dataset, error)
	Replace(ds *region.Dataset) error
	UpdatedAt() time.Time
}

// MemoryStorage keeps the dataset in-memory and guards access with a RWMutex.
// Datasets are immutable, so readers share the pointer.
type MemoryStorage struct {
	mu        sync.RWMutex
	dataset   *region.Dataset
	updatedAt time.Time
	clock     func() time.Time
}

// Option configures MemoryStorage.
type Option func(*MemoryStorage)

// WithClock overrides the time source, primarily for tests.
func WithClock(clock func() time.Time) Option {
	return func(s *MemoryStorage) {
		s.clock = clock
	}
}

// NewMemoryStorage returns an empty storage.
func NewMemoryStorage(opts ...Option) *MemoryStorage {
	s := &MemoryStorage{
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Current returns the dataset in service.
func (s *MemoryStorage) Current() (*region.Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.dataset == nil {
		return nil, ErrNotLoaded
	}
	return s.dataset, nil
}

// Replace swaps in a new dataset and records the update time. A nil or
// empty dataset is rejected with region.ErrEmptyDataset.
func (s *MemoryStorage) Replace(ds *region.Dataset) error {
	if ds == nil || ds.Len() == 0 {
		return region.ErrEmptyDataset
	}

	now := s.clock()
	s.mu.Lock()
	s.dataset = ds
	s.updatedAt = now
	s.mu.Unlock()

	return nil
}

// UpdatedAt returns when the dataset was last replaced; zero if never.
func (s *MemoryStorage) UpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updatedAt
}
