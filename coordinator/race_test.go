package coordinator

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/tracewatch/errors"
	"github.com/c360/tracewatch/lifecycle"
	"github.com/c360/tracewatch/types"
)

// Racing an unsynchronized update against a delete on the same persisted
// rule: when the operations overlap, the loser fails fast with ErrRuleLocked
// at its first lifecycle transition; when the scheduler happens to serialize
// them, both may legitimately succeed. Every trial must converge to a stable
// state with store and engine in agreement. Overlap is forced separately by
// TestUpdateFailsWhileDeleteInFlight and TestDeleteFailsWhileUpdateInFlight.
func TestUpdateDeleteRaceConverges(t *testing.T) {
	const trials = 100

	for trial := 0; trial < trials; trial++ {
		store, engine := newFakeStore(), newFakeEngine()
		c := New(store, engine, nil, nil)
		persistedRule(t, c, "r1")

		var wg sync.WaitGroup
		var updateErr, deleteErr error
		start := make(chan struct{})

		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start
			updateErr = c.UpdateRule(context.Background(), validRule("r1"))
		}()
		go func() {
			defer wg.Done()
			<-start
			deleteErr = c.DeleteRule(context.Background(), "r1")
		}()

		close(start)
		wg.Wait()

		// A loser only ever fails at the gate, never mid-operation
		if updateErr != nil {
			assert.ErrorIs(t, updateErr, errors.ErrRuleLocked, "trial %d", trial)
		}
		if deleteErr != nil {
			assert.ErrorIs(t, deleteErr, errors.ErrRuleLocked, "trial %d", trial)
		}

		// The first gate to fire always succeeds, so both cannot lose
		require.True(t, updateErr == nil || deleteErr == nil,
			"trial %d: both operations failed (update=%v delete=%v)",
			trial, updateErr, deleteErr)

		// A completed delete is terminal no matter how the update fared;
		// otherwise the update left the rule persisted.
		_, inStore := store.stored("r1")
		if deleteErr == nil {
			assert.Equal(t, lifecycle.RuleNonExistent, c.GetRuleState("r1"), "trial %d", trial)
			assert.False(t, inStore, "trial %d", trial)
		} else {
			assert.Equal(t, lifecycle.RulePersisted, c.GetRuleState("r1"), "trial %d", trial)
			assert.True(t, inStore, "trial %d", trial)
		}

		// Store and engine always agree after the race
		_, inEngine := engine.loaded("r1")
		assert.Equal(t, inStore, inEngine, "trial %d", trial)
	}
}

// blockingStore holds Delete until released, widening the race window so the
// concurrent update reliably observes the Deleting state.
type blockingStore struct {
	*fakeStore
	deleteStarted chan struct{}
	release       chan struct{}
}

func (s *blockingStore) Delete(ctx context.Context, id string) error {
	close(s.deleteStarted)
	<-s.release
	return s.fakeStore.Delete(ctx, id)
}

func TestUpdateFailsWhileDeleteInFlight(t *testing.T) {
	inner, engine := newFakeStore(), newFakeEngine()
	store := &blockingStore{
		fakeStore:     inner,
		deleteStarted: make(chan struct{}),
		release:       make(chan struct{}),
	}
	c := New(store, engine, nil, nil)
	persistedRule(t, c, "r1")

	deleteDone := make(chan error, 1)
	go func() {
		deleteDone <- c.DeleteRule(context.Background(), "r1")
	}()

	// Delete has claimed the rule and is paused inside the store call
	<-store.deleteStarted
	assert.Equal(t, lifecycle.RuleDeleting, c.GetRuleState("r1"))

	err := c.UpdateRule(context.Background(), validRule("r1"))
	assert.ErrorIs(t, err, errors.ErrRuleLocked)

	close(store.release)
	require.NoError(t, <-deleteDone)

	assert.Equal(t, lifecycle.RuleNonExistent, c.GetRuleState("r1"))
	assert.NotContains(t, c.GetAllRuleStates(), "r1")
}

// blockingUpdateStore holds Update until released, so a concurrent delete
// reliably hits the gate while the update is mid-flight.
type blockingUpdateStore struct {
	*fakeStore
	updateStarted chan struct{}
	release       chan struct{}
}

func (s *blockingUpdateStore) Update(ctx context.Context, rule *types.Rule) error {
	close(s.updateStarted)
	<-s.release
	return s.fakeStore.Update(ctx, rule)
}

func TestDeleteFailsWhileUpdateInFlight(t *testing.T) {
	inner, engine := newFakeStore(), newFakeEngine()
	store := &blockingUpdateStore{
		fakeStore:     inner,
		updateStarted: make(chan struct{}),
		release:       make(chan struct{}),
	}
	c := New(store, engine, nil, nil)
	persistedRule(t, c, "r1")

	updateDone := make(chan error, 1)
	go func() {
		updateDone <- c.UpdateRule(context.Background(), validRule("r1"))
	}()

	// Update has claimed the rule and is paused inside the store call
	<-store.updateStarted
	assert.Equal(t, lifecycle.RuleValidated, c.GetRuleState("r1"))

	err := c.DeleteRule(context.Background(), "r1")
	assert.ErrorIs(t, err, errors.ErrRuleLocked)

	close(store.release)
	require.NoError(t, <-updateDone)

	assert.Equal(t, lifecycle.RulePersisted, c.GetRuleState("r1"))

	// With the update finished, the delete goes through
	require.NoError(t, c.DeleteRule(context.Background(), "r1"))
	assert.Equal(t, lifecycle.RuleNonExistent, c.GetRuleState("r1"))
}

// Concurrent creates of distinct ids never contend with each other
func TestConcurrentCreatesDistinctIDs(t *testing.T) {
	store, engine := newFakeStore(), newFakeEngine()
	c := New(store, engine, nil, nil)

	var wg sync.WaitGroup
	errs := make([]error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			errs[n] = c.CreateRule(context.Background(), validRule(string(rune('a'+n))))
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "create %d", i)
	}
	assert.Len(t, c.GetAllRuleStates(), 20)
}

// Concurrent creates of the same id: exactly one wins
func TestConcurrentCreatesSameID(t *testing.T) {
	const trials = 50

	for trial := 0; trial < trials; trial++ {
		c := New(newFakeStore(), newFakeEngine(), nil, nil)

		var wg sync.WaitGroup
		errs := make([]error, 2)
		start := make(chan struct{})
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				<-start
				errs[n] = c.CreateRule(context.Background(), validRule("r1"))
			}(i)
		}
		close(start)
		wg.Wait()

		winners := 0
		for _, err := range errs {
			if err == nil {
				winners++
			} else {
				assert.ErrorIs(t, err, errors.ErrRuleExists, "trial %d", trial)
			}
		}
		require.Equal(t, 1, winners, "trial %d", trial)
	}
}
