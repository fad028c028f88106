package registration

import (
	"context"
	"sync"
	"time"

	"feria/internal/registration/models"
	"feria/pkg/platform/sentinel"
)

// InMemoryStore keeps registrations in process memory.
//
// A single lock covers both indexes so the tax id check and the insert
// happen atomically. Callers always receive copies.
type InMemoryStore struct {
	mu      sync.RWMutex
	byID    map[int64]*models.Registration
	byTaxID map[string]int64
	nextID  int64
	last    time.Time
	clock   func() time.Time
}

// InMemoryOption configures an InMemoryStore.
type InMemoryOption func(*InMemoryStore)

// WithInMemoryClock overrides the registration timestamp source.
func WithInMemoryClock(clock func() time.Time) InMemoryOption {
	return func(s *InMemoryStore) {
		s.clock = clock
	}
}

// NewInMemory constructs an empty in-memory registration store.
func NewInMemory(opts ...InMemoryOption) *InMemoryStore {
	s := &InMemoryStore{
		byID:    make(map[int64]*models.Registration),
		byTaxID: make(map[string]int64),
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InMemoryStore) Create(_ context.Context, reg *models.Registration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byTaxID[reg.TaxID]; exists {
		return sentinel.ErrAlreadyUsed
	}

	now := s.clock().UTC()
	if now.Before(s.last) {
		now = s.last
	}
	s.last = now
	s.nextID++

	reg.ID = s.nextID
	reg.RegisteredAt = now
	if reg.State == "" {
		reg.State = models.StatePending
	}

	s.byID[reg.ID] = reg.Clone()
	s.byTaxID[reg.TaxID] = reg.ID
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id int64) (*models.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	reg, ok := s.byID[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return reg.Clone(), nil
}

// List walks ids in ascending order, which is creation order.
func (s *InMemoryStore) List(_ context.Context, filter models.ListFilter) ([]*models.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Registration, 0)
	skipped := 0
	for id := int64(1); id <= s.nextID && len(out) < filter.Limit; id++ {
		reg, ok := s.byID[id]
		if !ok {
			continue
		}
		if filter.State != "" && string(reg.State) != filter.State {
			continue
		}
		if skipped < filter.Skip {
			skipped++
			continue
		}
		out = append(out, reg.Clone())
	}
	return out, nil
}

func (s *InMemoryStore) UpdateState(_ context.Context, id int64, state models.State) (*models.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg, ok := s.byID[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	reg.State = state
	return reg.Clone(), nil
}

func (s *InMemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID), nil
}

func (s *InMemoryStore) CountByState(_ context.Context) (map[models.State]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[models.State]int)
	for _, reg := range s.byID {
		counts[reg.State]++
	}
	return counts, nil
}

func (s *InMemoryStore) CountBySector(_ context.Context) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int)
	for _, reg := range s.byID {
		counts[reg.Sector()]++
	}
	return counts, nil
}
