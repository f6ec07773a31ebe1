package rulestore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/c360/tracewatch/errors"
	"github.com/c360/tracewatch/types"
)

// MemoryStore is an in-memory rule store with the same semantics as the KV
// store. Used by tests and single-process deployments without JetStream.
type MemoryStore struct {
	mu    sync.RWMutex
	rules map[string]types.Rule
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rules: make(map[string]types.Rule)}
}

// Create stores a new rule, failing if the ID already exists
func (s *MemoryStore) Create(_ context.Context, rule *types.Rule) error {
	if rule == nil {
		return errors.WrapInvalid(errors.ErrInvalidRule, "MemoryStore", "Create", "check rule")
	}
	if rule.ID == "" {
		return errors.WrapInvalid(errors.ErrInvalidRule, "MemoryStore", "Create", "check rule ID")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rules[rule.ID]; exists {
		return errors.WrapInvalid(errors.ErrRuleExists, "MemoryStore", "Create",
			"create rule "+rule.ID)
	}

	now := time.Now().UTC()
	rule.CreatedAt = now
	rule.UpdatedAt = now
	s.rules[rule.ID] = *rule
	return nil
}

// Get retrieves a rule by ID
func (s *MemoryStore) Get(_ context.Context, id string) (*types.Rule, error) {
	if id == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidRule, "MemoryStore", "Get", "check rule ID")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rule, exists := s.rules[id]
	if !exists {
		return nil, errors.WrapInvalid(errors.ErrRuleNotFound, "MemoryStore", "Get",
			"get rule "+id)
	}
	return &rule, nil
}

// Update overwrites an existing rule
func (s *MemoryStore) Update(_ context.Context, rule *types.Rule) error {
	if rule == nil {
		return errors.WrapInvalid(errors.ErrInvalidRule, "MemoryStore", "Update", "check rule")
	}
	if rule.ID == "" {
		return errors.WrapInvalid(errors.ErrInvalidRule, "MemoryStore", "Update", "check rule ID")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.rules[rule.ID]
	if !exists {
		return errors.WrapInvalid(errors.ErrRuleNotFound, "MemoryStore", "Update",
			"update rule "+rule.ID)
	}

	rule.CreatedAt = current.CreatedAt
	rule.UpdatedAt = time.Now().UTC()
	s.rules[rule.ID] = *rule
	return nil
}

// Delete removes a rule by ID
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	if id == "" {
		return errors.WrapInvalid(errors.ErrInvalidRule, "MemoryStore", "Delete", "check rule ID")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rules[id]; !exists {
		return errors.WrapInvalid(errors.ErrRuleNotFound, "MemoryStore", "Delete",
			"delete rule "+id)
	}
	delete(s.rules, id)
	return nil
}

// List retrieves all stored rules, sorted by ID
func (s *MemoryStore) List(_ context.Context) ([]*types.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rules := make([]*types.Rule, 0, len(s.rules))
	for _, rule := range s.rules {
		r := rule
		rules = append(rules, &r)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })
	return rules, nil
}
