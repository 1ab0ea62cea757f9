// Package dataset provides the per-client dataset accessor the engine
// consumes. Clients never share raw examples; the coordinator only ever
// addresses data by client identifier.
package dataset

import (
	"context"
	"slices"
	"sync"

	"github.com/fedopt-io/fedopt/model"
	"github.com/fedopt-io/fedopt/pkg/errors"
)

// Store is the dataset collaborator contract.
type Store interface {
	// Clients lists all registered client identifiers in sorted order.
	Clients(ctx context.Context) ([]string, error)
	// Batches returns the local batches for one client.
	Batches(ctx context.Context, clientID string) ([]model.Batch, error)
}

// Registry is a Store that also accepts registrations.
type Registry interface {
	Store
	Register(ctx context.Context, clientID string, batches []model.Batch) error
}

type inMemoryStore struct {
	sync.Mutex

	data map[string][]model.Batch
}

func NewInMemoryStore() Registry {
	return &inMemoryStore{
		data: make(map[string][]model.Batch),
	}
}

func (s *inMemoryStore) Register(_ context.Context, clientID string, batches []model.Batch) error {
	if clientID == "" {
		return errors.ErrEmptyKey
	}
	if len(batches) == 0 {
		return errors.ErrInvalidData
	}

	s.Lock()
	defer s.Unlock()

	if _, ok := s.data[clientID]; ok {
		return errors.ErrEntityExists
	}

	s.data[clientID] = slices.Clone(batches)

	return nil
}

func (s *inMemoryStore) Clients(_ context.Context) ([]string, error) {
	s.Lock()
	defer s.Unlock()

	clients := make([]string, 0, len(s.data))
	for id := range s.data {
		clients = append(clients, id)
	}
	slices.Sort(clients)

	return clients, nil
}

func (s *inMemoryStore) Batches(_ context.Context, clientID string) ([]model.Batch, error) {
	if clientID == "" {
		return nil, errors.ErrEmptyKey
	}

	s.Lock()
	defer s.Unlock()

	batches, ok := s.data[clientID]
	if !ok {
		return nil, errors.ErrNotFound
	}

	return slices.Clone(batches), nil
}
