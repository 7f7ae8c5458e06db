package rules

import (
	"context"
	"strings"
	"sync"
	"time"
)

// RuleStore abstracts rule persistence so the service can run against an
// in-memory map in tests and a SQL database in production.
type RuleStore interface {
	// List returns rules matching the filters, ordered by ascending
	// salience.
	List(ctx context.Context, f ListFilters) ([]*Rule, error)
	// Get returns the rule with the given id, or ErrNotFound.
	Get(ctx context.Context, id string) (*Rule, error)
	// Insert stores a new rule, returning ErrDuplicateName on a name
	// collision.
	Insert(ctx context.Context, r *Rule) error
	// Update replaces an existing rule's fields.
	Update(ctx context.Context, r *Rule) error
	// Delete removes the rule with the given id.
	Delete(ctx context.Context, id string) error
}

// InMemoryRuleStore keeps rules in a map guarded by a RWMutex.
type InMemoryRuleStore struct {
	mu    sync.RWMutex
	rules map[string]*Rule
}

var _ RuleStore = (*InMemoryRuleStore)(nil)

func NewInMemoryRuleStore() *InMemoryRuleStore {
	return &InMemoryRuleStore{rules: make(map[string]*Rule)}
}

func (s *InMemoryRuleStore) List(ctx context.Context, f ListFilters) ([]*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Rule, 0, len(s.rules))
	for _, r := range s.rules {
		if f.Active != nil && r.Active != *f.Active {
			continue
		}
		if f.Stackable != nil && r.Stackable != *f.Stackable {
			continue
		}
		if f.NameContains != "" && !strings.Contains(strings.ToLower(r.Name), strings.ToLower(f.NameContains)) {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	SortBySalience(out)
	return out, nil
}

func (s *InMemoryRuleStore) Get(ctx context.Context, id string) (*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rules[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *InMemoryRuleStore) Insert(ctx context.Context, r *Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.nameTaken(r.Name, r.ID) {
		return ErrDuplicateName
	}
	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now
	cp := *r
	s.rules[r.ID] = &cp
	return nil
}

func (s *InMemoryRuleStore) Update(ctx context.Context, r *Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.rules[r.ID]
	if !ok {
		return ErrNotFound
	}
	if s.nameTaken(r.Name, r.ID) {
		return ErrDuplicateName
	}
	r.CreatedAt = existing.CreatedAt
	r.UpdatedAt = time.Now().UTC()
	cp := *r
	s.rules[r.ID] = &cp
	return nil
}

func (s *InMemoryRuleStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rules[id]; !ok {
		return ErrNotFound
	}
	delete(s.rules, id)
	return nil
}

// nameTaken reports whether another rule already uses name. Callers must
// hold the write lock.
func (s *InMemoryRuleStore) nameTaken(name, selfID string) bool {
	for id, r := range s.rules {
		if id != selfID && r.Name == name {
			return true
		}
	}
	return false
}
