package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/nvandessel/opynions/internal/sweep"
)

// InMemoryStore implements ResultStore for tests and for servers started
// without a database.
type InMemoryStore struct {
	mu      sync.RWMutex
	reports map[string][]byte
}

// NewInMemoryStore creates a new in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{reports: make(map[string][]byte)}
}

// SaveReport implements ResultStore. The report is stored as a deep copy.
func (s *InMemoryStore) SaveReport(_ context.Context, r *sweep.Report) (string, error) {
	if r == nil {
		return "", fmt.Errorf("nil report")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if _, exists := s.reports[r.ID]; exists {
		return "", fmt.Errorf("sweep %s already stored", r.ID)
	}
	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("encoding sweep %s: %w", r.ID, err)
	}
	s.reports[r.ID] = data
	return r.ID, nil
}

func (s *InMemoryStore) resolveID(id string) (string, error) {
	if _, ok := s.reports[id]; ok {
		return id, nil
	}
	var match string
	for full := range s.reports {
		if id != "" && strings.HasPrefix(full, id) {
			if match != "" {
				return "", fmt.Errorf("%s: %w", id, ErrAmbiguousID)
			}
			match = full
		}
	}
	if match == "" {
		return "", fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return match, nil
}

// LoadReport implements ResultStore.
func (s *InMemoryStore) LoadReport(_ context.Context, id string) (*sweep.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	full, err := s.resolveID(id)
	if err != nil {
		return nil, err
	}
	var r sweep.Report
	if err := json.Unmarshal(s.reports[full], &r); err != nil {
		return nil, fmt.Errorf("decoding sweep %s: %w", full, err)
	}
	for i := range r.Points {
		if r.Points[i].Error != "" {
			r.Points[i].Err = fmt.Errorf("%s", r.Points[i].Error)
		}
	}
	return &r, nil
}

// ListSweeps implements ResultStore.
func (s *InMemoryStore) ListSweeps(ctx context.Context) ([]SweepInfo, error) {
	s.mu.RLock()
	ids := make([]string, 0, len(s.reports))
	for id := range s.reports {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	out := make([]SweepInfo, 0, len(ids))
	for _, id := range ids {
		r, err := s.LoadReport(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, infoOf(r))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Started.Equal(out[j].Started) {
			return out[i].Started.After(out[j].Started)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// DeleteSweep implements ResultStore.
func (s *InMemoryStore) DeleteSweep(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	full, err := s.resolveID(id)
	if err != nil {
		return err
	}
	delete(s.reports, full)
	return nil
}

// Close implements ResultStore.
func (s *InMemoryStore) Close() error { return nil }
