package rulestore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/tracewatch/errors"
	"github.com/c360/tracewatch/natsclient"
	"github.com/c360/tracewatch/types"
)

// BucketName is the KV bucket holding rule definitions
const BucketName = "tracewatch_rules"

// Store persists rules in a NATS JetStream KV bucket
type Store struct {
	kvStore *natsclient.KVStore
}

// NewStore creates the rule bucket if needed and returns a store backed by it
func NewStore(natsClient *natsclient.Client) (*Store, error) {
	if natsClient == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "rulestore", "NewStore",
			"check nats client")
	}

	ctx := context.Background()
	bucket, err := natsClient.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
		Bucket:      BucketName,
		Description: "TraceWatch rule definitions",
		History:     10, // Keep last 10 versions for recovery
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "rulestore", "NewStore", "create KV bucket")
	}

	return &Store{kvStore: natsClient.NewKVStore(bucket)}, nil
}

// Create stores a new rule, failing if the ID already exists
func (s *Store) Create(ctx context.Context, rule *types.Rule) error {
	if rule == nil {
		return errors.WrapInvalid(errors.ErrInvalidRule, "rulestore", "Create", "check rule")
	}
	if rule.ID == "" {
		return errors.WrapInvalid(errors.ErrInvalidRule, "rulestore", "Create", "check rule ID")
	}

	now := time.Now().UTC()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	data, err := json.Marshal(rule)
	if err != nil {
		return errors.WrapFatal(err, "rulestore", "Create", "marshal rule")
	}

	if _, err := s.kvStore.Create(ctx, rule.ID, data); err != nil {
		if natsclient.IsKVConflictError(err) {
			return errors.WrapInvalid(errors.ErrRuleExists, "rulestore", "Create",
				"create rule "+rule.ID)
		}
		return errors.WrapTransient(err, "rulestore", "Create", "create in KV")
	}
	return nil
}

// Get retrieves a rule by ID
func (s *Store) Get(ctx context.Context, id string) (*types.Rule, error) {
	if id == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidRule, "rulestore", "Get", "check rule ID")
	}

	entry, err := s.kvStore.Get(ctx, id)
	if err != nil {
		if natsclient.IsKVNotFoundError(err) {
			return nil, errors.WrapInvalid(errors.ErrRuleNotFound, "rulestore", "Get",
				"get rule "+id)
		}
		return nil, errors.WrapTransient(err, "rulestore", "Get", "get from KV")
	}

	var rule types.Rule
	if err := json.Unmarshal(entry.Value, &rule); err != nil {
		return nil, errors.WrapFatal(err, "rulestore", "Get", "unmarshal rule")
	}
	return &rule, nil
}

// Update replaces an existing rule, preserving its CreatedAt. The
// read-modify-write runs under KV compare-and-swap so a concurrent writer
// cannot be silently overwritten; conflicts are retried.
func (s *Store) Update(ctx context.Context, rule *types.Rule) error {
	if rule == nil {
		return errors.WrapInvalid(errors.ErrInvalidRule, "rulestore", "Update", "check rule")
	}
	if rule.ID == "" {
		return errors.WrapInvalid(errors.ErrInvalidRule, "rulestore", "Update", "check rule ID")
	}

	err := s.kvStore.UpdateWithRetry(ctx, rule.ID, func(current []byte) ([]byte, error) {
		if current == nil {
			return nil, errors.WrapInvalid(errors.ErrRuleNotFound, "rulestore", "Update",
				"update rule "+rule.ID)
		}

		var existing types.Rule
		if err := json.Unmarshal(current, &existing); err != nil {
			return nil, errors.WrapFatal(err, "rulestore", "Update", "unmarshal current rule")
		}

		rule.CreatedAt = existing.CreatedAt
		rule.UpdatedAt = time.Now().UTC()
		return json.Marshal(rule)
	})
	if err != nil {
		if errors.IsInvalid(err) || errors.IsFatal(err) {
			return err
		}
		return errors.WrapTransient(err, "rulestore", "Update", "update in KV")
	}
	return nil
}

// Delete removes a rule by ID
func (s *Store) Delete(ctx context.Context, id string) error {
	if id == "" {
		return errors.WrapInvalid(errors.ErrInvalidRule, "rulestore", "Delete", "check rule ID")
	}

	if err := s.kvStore.Delete(ctx, id); err != nil {
		if natsclient.IsKVNotFoundError(err) {
			return errors.WrapInvalid(errors.ErrRuleNotFound, "rulestore", "Delete",
				"delete rule "+id)
		}
		return errors.WrapTransient(err, "rulestore", "Delete", "delete from KV")
	}
	return nil
}

// List retrieves all stored rules
func (s *Store) List(ctx context.Context) ([]*types.Rule, error) {
	keys, err := s.kvStore.Keys(ctx)
	if err != nil {
		return nil, errors.WrapTransient(err, "rulestore", "List", "list KV keys")
	}

	rules := make([]*types.Rule, 0, len(keys))
	for _, key := range keys {
		rule, err := s.Get(ctx, key)
		if err != nil {
			// Keys can be deleted between listing and fetching
			if errors.IsInvalid(err) {
				continue
			}
			return nil, errors.WrapTransient(err, "rulestore", "List",
				fmt.Sprintf("get rule %s", key))
		}
		rules = append(rules, rule)
	}
	return rules, nil
}
