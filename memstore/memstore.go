// Package memstore is an in-memory backend for entities and SKU history.
//
// It keeps the entity values it is given; callers that mutate an entity
// after handing it over see the change through List and Get, but the
// persisted SKU used for uniqueness and PersistedSku only moves on Insert
// and Update.
package memstore

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/jacentio/skutrail/sku"
)

var (
	// ErrNotFound is returned when an entity is not stored.
	ErrNotFound = errors.New("memstore: entity not found")

	// ErrAlreadyExists is returned when inserting an entity ID twice.
	ErrAlreadyExists = errors.New("memstore: entity already exists")

	// ErrDuplicateSku is returned when a SKU is already taken in the table.
	ErrDuplicateSku = errors.New("memstore: duplicate sku")
)

type row struct {
	entity sku.Entity
	sku    string
}

// Store holds entities grouped by table, with a unique SKU index per table.
type Store struct {
	mu   sync.RWMutex
	rows map[string]map[string]*row
	skus map[string]map[string]string
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		rows: make(map[string]map[string]*row),
		skus: make(map[string]map[string]string),
	}
}

// Insert stores e. A non-empty SKU must be free in e's table.
func (s *Store) Insert(_ context.Context, e sku.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	table := e.TableName()
	if _, ok := s.rows[table][e.EntityID()]; ok {
		return ErrAlreadyExists
	}
	if err := s.claim(table, e.Sku(), e.EntityID()); err != nil {
		return err
	}
	if s.rows[table] == nil {
		s.rows[table] = make(map[string]*row)
	}
	s.rows[table][e.EntityID()] = &row{entity: e, sku: e.Sku()}
	return nil
}

// Update persists e's current SKU.
func (s *Store) Update(_ context.Context, e sku.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	table := e.TableName()
	r, ok := s.rows[table][e.EntityID()]
	if !ok {
		return ErrNotFound
	}
	if r.sku != e.Sku() {
		if err := s.claim(table, e.Sku(), e.EntityID()); err != nil {
			return err
		}
		s.release(table, r.sku, e.EntityID())
	}
	r.entity = e
	r.sku = e.Sku()
	return nil
}

// Delete removes e and frees its SKU.
func (s *Store) Delete(_ context.Context, e sku.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	table := e.TableName()
	r, ok := s.rows[table][e.EntityID()]
	if !ok {
		return ErrNotFound
	}
	s.release(table, r.sku, e.EntityID())
	delete(s.rows[table], e.EntityID())
	return nil
}

// PersistedSku returns the SKU last written for e.
func (s *Store) PersistedSku(_ context.Context, e sku.Entity) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rows[e.TableName()][e.EntityID()]
	if !ok {
		return "", ErrNotFound
	}
	return r.sku, nil
}

// SkuExists implements sku.Lookup.
func (s *Store) SkuExists(_ context.Context, e sku.Entity, value string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	owner, ok := s.skus[e.TableName()][value]
	return ok && owner != e.EntityID(), nil
}

// Get returns the entity stored under table and id.
func (s *Store) Get(_ context.Context, table, id string) (sku.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rows[table][id]
	if !ok {
		return nil, ErrNotFound
	}
	return r.entity, nil
}

// FindBySku returns the entity owning value in table.
func (s *Store) FindBySku(_ context.Context, table, value string) (sku.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.skus[table][value]
	if !ok {
		return nil, ErrNotFound
	}
	return s.rows[table][id].entity, nil
}

// ListChunks calls fn with the entities of entityType, ordered by ID, in
// slices of at most size. The store is not locked while fn runs.
func (s *Store) ListChunks(ctx context.Context, entityType string, size int, fn func([]sku.Entity) error) error {
	if size <= 0 {
		size = 100
	}

	s.mu.RLock()
	var all []sku.Entity
	for _, table := range s.rows {
		for _, r := range table {
			if r.entity.EntityType() == entityType {
				all = append(all, r.entity)
			}
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(all, func(a, b sku.Entity) int {
		switch {
		case a.EntityID() < b.EntityID():
			return -1
		case a.EntityID() > b.EntityID():
			return 1
		}
		return 0
	})

	for chunk := range slices.Chunk(all, size) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(chunk); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of entities in table.
func (s *Store) Len(table string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows[table])
}

func (s *Store) claim(table, value, id string) error {
	if value == "" {
		return nil
	}
	if owner, ok := s.skus[table][value]; ok && owner != id {
		return ErrDuplicateSku
	}
	if s.skus[table] == nil {
		s.skus[table] = make(map[string]string)
	}
	s.skus[table][value] = id
	return nil
}

func (s *Store) release(table, value, id string) {
	if value == "" {
		return
	}
	if s.skus[table][value] == id {
		delete(s.skus[table], value)
	}
}
