package coordinator

import (
	"context"
	"log/slog"
	"time"

	"github.com/c360/tracewatch/errors"
	"github.com/c360/tracewatch/lifecycle"
	"github.com/c360/tracewatch/metric"
	"github.com/c360/tracewatch/types"
)

// RuleStore is the persistence contract. Each call is atomic: a failed call
// leaves durable content unchanged.
type RuleStore interface {
	Create(ctx context.Context, rule *types.Rule) error
	Update(ctx context.Context, rule *types.Rule) error
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*types.Rule, error)
	List(ctx context.Context) ([]*types.Rule, error)
}

// RuleEngine is the in-memory evaluation contract. DeleteRule never fails.
type RuleEngine interface {
	LoadRule(rule types.Rule) error
	GetRule(id string) (types.Rule, error)
	DeleteRule(id string)
	ListRules() []types.Rule
}

// Coordinator drives rule lifecycle operations across store and engine
type Coordinator struct {
	store    RuleStore // nil means no persistence
	engine   RuleEngine
	registry *lifecycle.RuleRegistry
	limits   types.RuleLimits
	metrics  *coordinatorMetrics
	logger   *slog.Logger
}

// Option configures the coordinator at construction
type Option func(*Coordinator)

// WithLimits overrides the default rule validation limits. A zero value in
// the limits disables that individual bound.
func WithLimits(limits types.RuleLimits) Option {
	return func(c *Coordinator) {
		c.limits = limits
	}
}

// New creates a coordinator. The store may be nil for storeless deployments;
// pass a nil registry to disable metrics.
func New(store RuleStore, engine RuleEngine, registry *metric.Registry, logger *slog.Logger, opts ...Option) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Coordinator{
		store:    store,
		engine:   engine,
		registry: lifecycle.NewRuleRegistry(),
		limits:   types.DefaultRuleLimits(),
		metrics:  newCoordinatorMetrics(registry),
		logger:   logger.With("component", "coordinator"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateRule creates a rule: engine first, then store, compensating with an
// engine delete if the store write fails.
func (c *Coordinator) CreateRule(ctx context.Context, rule *types.Rule) error {
	if rule == nil || rule.ID == "" {
		return errors.WrapInvalid(errors.ErrInvalidRule, "Coordinator", "CreateRule", "check rule ID")
	}

	fsm := c.registry.Get(rule.ID)

	// Claim the id. A concurrent create, or an existing rule, fails here.
	if err := fsm.Transition(lifecycle.EventCreate); err != nil {
		c.countOperation("create", "conflict")
		return errors.WrapInvalid(errors.ErrRuleExists, "Coordinator", "CreateRule",
			"claim rule "+rule.ID)
	}

	now := time.Now().UTC()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	if err := rule.Validate(c.limits); err != nil {
		_ = fsm.Transition(lifecycle.EventValidationFailed)
		c.countOperation("create", "validation_failed")
		return err
	}
	if err := fsm.Transition(lifecycle.EventValidate); err != nil {
		return errors.Wrap(err, "Coordinator", "CreateRule", "advance lifecycle")
	}

	if err := c.engine.LoadRule(*rule); err != nil {
		_ = fsm.Transition(lifecycle.EventCompilationFailed)
		c.countOperation("create", "compile_failed")
		return err
	}
	if err := fsm.Transition(lifecycle.EventCompile); err != nil {
		return errors.Wrap(err, "Coordinator", "CreateRule", "advance lifecycle")
	}

	if c.store != nil {
		if err := c.store.Create(ctx, rule); err != nil {
			// Undo the engine load so store and engine stay consistent
			c.engine.DeleteRule(rule.ID)
			_ = fsm.Transition(lifecycle.EventPersistenceFailed)
			c.countCompensation("create")
			c.countOperation("create", "persist_failed")
			c.logger.Error("rule create persist failed, engine load compensated",
				"rule_id", rule.ID, "error", err)
			return errors.WrapTransient(err, "Coordinator", "CreateRule", "persist rule")
		}
	}

	if err := fsm.Transition(lifecycle.EventPersist); err != nil {
		return errors.Wrap(err, "Coordinator", "CreateRule", "advance lifecycle")
	}

	c.countOperation("create", "ok")
	c.logger.Info("rule created", "rule_id", rule.ID, "name", rule.Name)
	return nil
}

// UpdateRule replaces a persisted rule: store first (disk-first for crash
// safety), then engine, compensating a failed engine reload by restoring the
// pre-update rule in the store.
func (c *Coordinator) UpdateRule(ctx context.Context, rule *types.Rule) error {
	if rule == nil || rule.ID == "" {
		return errors.WrapInvalid(errors.ErrInvalidRule, "Coordinator", "UpdateRule", "check rule ID")
	}

	fsm := c.registry.Get(rule.ID)

	// The mutual-exclusion gate: blocks concurrent update and delete
	if err := fsm.Transition(lifecycle.EventUpdate); err != nil {
		c.countOperation("update", "conflict")
		return errors.WrapInvalid(errors.ErrRuleLocked, "Coordinator", "UpdateRule",
			"claim rule "+rule.ID)
	}

	old, err := c.readRule(ctx, rule.ID)
	if err != nil {
		fsm.Rollback()
		c.countOperation("update", "not_found")
		return err
	}

	rule.UpdatedAt = time.Now().UTC()

	if err := rule.Validate(c.limits); err != nil {
		fsm.Rollback()
		c.countOperation("update", "validation_failed")
		return err
	}
	if err := fsm.Transition(lifecycle.EventValidate); err != nil {
		fsm.Rollback()
		return errors.Wrap(err, "Coordinator", "UpdateRule", "advance lifecycle")
	}

	if c.store != nil {
		if err := c.store.Update(ctx, rule); err != nil {
			// Old rule still on disk, nothing to undo
			c.abortUpdate(fsm)
			c.countOperation("update", "persist_failed")
			return errors.WrapTransient(err, "Coordinator", "UpdateRule", "persist rule")
		}
	}

	if err := c.engine.LoadRule(*rule); err != nil {
		// Disk already has the new rule: restore the pre-update bytes so
		// store and engine agree again
		if c.store != nil {
			if compErr := c.store.Update(ctx, old); compErr != nil {
				c.countCompensationFailure()
				c.logger.Error("update compensation failed, store and engine inconsistent",
					"rule_id", rule.ID, "load_error", err, "compensation_error", compErr)
			} else {
				c.countCompensation("update")
			}
		}
		c.abortUpdate(fsm)
		c.countOperation("update", "compile_failed")
		return err
	}

	if err := fsm.Transition(lifecycle.EventCompile); err != nil {
		return errors.Wrap(err, "Coordinator", "UpdateRule", "advance lifecycle")
	}
	if err := fsm.Transition(lifecycle.EventPersist); err != nil {
		return errors.Wrap(err, "Coordinator", "UpdateRule", "advance lifecycle")
	}

	c.countOperation("update", "ok")
	c.logger.Info("rule updated", "rule_id", rule.ID)
	return nil
}

// abortUpdate returns an FSM that has advanced past Updating to the stable
// Persisted state. Rollback restores Updating (the state before the last
// successful Transition), and Cancel is the defined abort from there.
func (c *Coordinator) abortUpdate(fsm *lifecycle.RuleFSM) {
	fsm.Rollback()
	if fsm.State() == lifecycle.RuleUpdating {
		_ = fsm.Transition(lifecycle.EventCancel)
	}
}

// DeleteRule removes a rule: store first, then engine. A store failure
// leaves the engine untouched and the rule Persisted.
func (c *Coordinator) DeleteRule(ctx context.Context, id string) error {
	if id == "" {
		return errors.WrapInvalid(errors.ErrInvalidRule, "Coordinator", "DeleteRule", "check rule ID")
	}

	fsm := c.registry.Get(id)

	// The mutual-exclusion gate: blocks concurrent update and delete
	if err := fsm.Transition(lifecycle.EventDelete); err != nil {
		c.countOperation("delete", "conflict")
		return errors.WrapInvalid(errors.ErrRuleLocked, "Coordinator", "DeleteRule",
			"claim rule "+id)
	}

	if c.store != nil {
		if err := c.store.Delete(ctx, id); err != nil {
			_ = fsm.Transition(lifecycle.EventDeleteFailed)
			c.countOperation("delete", "persist_failed")
			return errors.WrapTransient(err, "Coordinator", "DeleteRule", "delete from store")
		}
	}

	c.engine.DeleteRule(id)

	if err := fsm.Transition(lifecycle.EventDeleteComplete); err != nil {
		return errors.Wrap(err, "Coordinator", "DeleteRule", "advance lifecycle")
	}
	c.registry.Remove(id)

	c.countOperation("delete", "ok")
	c.logger.Info("rule deleted", "rule_id", id)
	return nil
}

// EnableRule sets a rule's enabled flag, disk-first
func (c *Coordinator) EnableRule(ctx context.Context, id string) (*types.Rule, error) {
	return c.setEnabled(ctx, id, true)
}

// DisableRule clears a rule's enabled flag, disk-first
func (c *Coordinator) DisableRule(ctx context.Context, id string) (*types.Rule, error) {
	return c.setEnabled(ctx, id, false)
}

func (c *Coordinator) setEnabled(ctx context.Context, id string, enabled bool) (*types.Rule, error) {
	old, err := c.readRule(ctx, id)
	if err != nil {
		return nil, err
	}

	updated := *old
	updated.Enabled = enabled
	updated.UpdatedAt = time.Now().UTC()

	// Disk first, so a crash between the two writes loses the toggle rather
	// than inventing one
	if c.store != nil {
		if err := c.store.Update(ctx, &updated); err != nil {
			return nil, errors.WrapTransient(err, "Coordinator", "setEnabled", "persist rule")
		}
	}

	if err := c.engine.LoadRule(updated); err != nil {
		if c.store != nil {
			if compErr := c.store.Update(ctx, old); compErr != nil {
				c.countCompensationFailure()
				c.logger.Error("enable/disable compensation failed",
					"rule_id", id, "load_error", err, "compensation_error", compErr)
			} else {
				c.countCompensation("set_enabled")
			}
		}
		return nil, err
	}

	c.logger.Info("rule toggled", "rule_id", id, "enabled", enabled)
	return &updated, nil
}

// GetRule reads a rule from the store if one is configured, else the engine.
// Reads are not FSM-gated: a read during an in-flight update may observe
// either the old or new value.
func (c *Coordinator) GetRule(ctx context.Context, id string) (*types.Rule, error) {
	return c.readRule(ctx, id)
}

// ListRules reads all rules from the store if one is configured, else the
// engine.
func (c *Coordinator) ListRules(ctx context.Context) ([]*types.Rule, error) {
	if c.store != nil {
		return c.store.List(ctx)
	}

	engineRules := c.engine.ListRules()
	rules := make([]*types.Rule, 0, len(engineRules))
	for i := range engineRules {
		rules = append(rules, &engineRules[i])
	}
	return rules, nil
}

func (c *Coordinator) readRule(ctx context.Context, id string) (*types.Rule, error) {
	if c.store != nil {
		return c.store.Get(ctx, id)
	}

	rule, err := c.engine.GetRule(id)
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

// GetRuleState returns the lifecycle state of a tracked rule. Untracked ids
// report NonExistent without creating a registry entry.
func (c *Coordinator) GetRuleState(id string) lifecycle.RuleState {
	if state, ok := c.registry.Snapshot()[id]; ok {
		return state
	}
	return lifecycle.RuleNonExistent
}

// GetAllRuleStates returns a point-in-time id to state view of all tracked
// rules.
func (c *Coordinator) GetAllRuleStates() map[string]lifecycle.RuleState {
	return c.registry.Snapshot()
}

// RestorePersisted loads every stored rule into the engine at startup and
// seeds its FSM at Persisted. Rules that no longer compile are skipped and
// left on disk for inspection.
func (c *Coordinator) RestorePersisted(ctx context.Context) (int, error) {
	if c.store == nil {
		return 0, nil
	}

	rules, err := c.store.List(ctx)
	if err != nil {
		return 0, errors.WrapTransient(err, "Coordinator", "RestorePersisted", "list rules")
	}

	restored := 0
	for _, rule := range rules {
		if err := c.engine.LoadRule(*rule); err != nil {
			c.logger.Warn("stored rule no longer compiles, skipping",
				"rule_id", rule.ID, "error", err)
			continue
		}

		fsm := c.registry.Get(rule.ID)
		for _, event := range []lifecycle.RuleEvent{
			lifecycle.EventCreate,
			lifecycle.EventValidate,
			lifecycle.EventCompile,
			lifecycle.EventPersist,
		} {
			if err := fsm.Transition(event); err != nil {
				return restored, errors.Wrap(err, "Coordinator", "RestorePersisted",
					"seed lifecycle for rule "+rule.ID)
			}
		}
		restored++
	}

	c.logger.Info("restored persisted rules", "count", restored, "stored", len(rules))
	return restored, nil
}
