package lifecycle

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuleFSM_InitialState(t *testing.T) {
	fsm := NewRuleFSM("r1")
	assert.Equal(t, RuleNonExistent, fsm.State())
	assert.Equal(t, "r1", fsm.RuleID())
}

func TestRuleFSM_TransitionTable(t *testing.T) {
	// The full behavioral contract: every defined (state, event) pair and
	// its destination. Everything absent from this table must fail.
	expected := map[RuleState]map[RuleEvent]RuleState{
		RuleNonExistent: {
			EventCreate: RuleDraft,
		},
		RuleDraft: {
			EventValidate:         RuleValidated,
			EventValidationFailed: RuleNonExistent,
			EventCancel:           RuleNonExistent,
		},
		RuleValidated: {
			EventCompile:           RuleCompiled,
			EventCompilationFailed: RuleDraft,
			EventCancel:            RuleNonExistent,
		},
		RuleCompiled: {
			EventPersist:           RulePersisted,
			EventPersistenceFailed: RuleValidated,
		},
		RulePersisted: {
			EventUpdate: RuleUpdating,
			EventDelete: RuleDeleting,
		},
		RuleUpdating: {
			EventValidate:         RuleValidated,
			EventValidationFailed: RulePersisted,
			EventCancel:           RulePersisted,
		},
		RuleDeleting: {
			EventDeleteComplete: RuleNonExistent,
			EventDeleteFailed:   RulePersisted,
		},
	}

	allStates := []RuleState{
		RuleNonExistent, RuleDraft, RuleValidated, RuleCompiled,
		RulePersisted, RuleUpdating, RuleDeleting,
	}
	allEvents := []RuleEvent{
		EventCreate, EventValidate, EventValidationFailed, EventCompile,
		EventCompilationFailed, EventPersist, EventPersistenceFailed,
		EventUpdate, EventDelete, EventDeleteComplete, EventDeleteFailed,
		EventCancel,
	}

	for _, state := range allStates {
		for _, event := range allEvents {
			next, ok := nextRuleState(state, event)
			want, defined := expected[state][event]

			if defined {
				assert.True(t, ok, "expected %s + %s to be defined", state, event)
				assert.Equal(t, want, next, "%s + %s", state, event)
			} else {
				assert.False(t, ok, "expected %s + %s to be rejected", state, event)
			}
		}
	}
}

func TestRuleFSM_InvalidTransitionLeavesStateUnchanged(t *testing.T) {
	fsm := NewRuleFSM("r1")

	err := fsm.Transition(EventValidate)
	require.Error(t, err)

	var itErr *InvalidTransitionError
	require.ErrorAs(t, err, &itErr)
	assert.Equal(t, "r1", itErr.RuleID)
	assert.Equal(t, RuleNonExistent, itErr.From)
	assert.Equal(t, EventValidate, itErr.Event)

	assert.Equal(t, RuleNonExistent, fsm.State())
}

func TestRuleFSM_CreateToPersisted(t *testing.T) {
	fsm := NewRuleFSM("r1")

	require.NoError(t, fsm.Transition(EventCreate))
	assert.Equal(t, RuleDraft, fsm.State())

	require.NoError(t, fsm.Transition(EventValidate))
	assert.Equal(t, RuleValidated, fsm.State())

	require.NoError(t, fsm.Transition(EventCompile))
	assert.Equal(t, RuleCompiled, fsm.State())

	require.NoError(t, fsm.Transition(EventPersist))
	assert.Equal(t, RulePersisted, fsm.State())
}

func persistedRuleFSM(t *testing.T, id string) *RuleFSM {
	t.Helper()
	fsm := NewRuleFSM(id)
	for _, event := range []RuleEvent{EventCreate, EventValidate, EventCompile, EventPersist} {
		require.NoError(t, fsm.Transition(event))
	}
	return fsm
}

func TestRuleFSM_Rollback(t *testing.T) {
	fsm := persistedRuleFSM(t, "r1")

	require.NoError(t, fsm.Transition(EventUpdate))
	assert.Equal(t, RuleUpdating, fsm.State())

	fsm.Rollback()
	assert.Equal(t, RulePersisted, fsm.State())
}

func TestRuleFSM_DoubleRollbackSameTarget(t *testing.T) {
	fsm := persistedRuleFSM(t, "r1")
	require.NoError(t, fsm.Transition(EventUpdate))

	// Rollback does not consume previousState: calling it twice reverts to
	// the same target both times.
	fsm.Rollback()
	assert.Equal(t, RulePersisted, fsm.State())
	fsm.Rollback()
	assert.Equal(t, RulePersisted, fsm.State())
}

func TestRuleFSM_RollbackOnlyRestoresLastTransition(t *testing.T) {
	fsm := NewRuleFSM("r1")
	require.NoError(t, fsm.Transition(EventCreate))
	require.NoError(t, fsm.Transition(EventValidate))

	// previous == Draft, not NonExistent
	fsm.Rollback()
	assert.Equal(t, RuleDraft, fsm.State())
}

func TestRuleFSM_RollbackAfterFailedTransition(t *testing.T) {
	fsm := NewRuleFSM("r1")
	require.NoError(t, fsm.Transition(EventCreate))

	// A failed transition must not disturb the rollback snapshot
	require.Error(t, fsm.Transition(EventPersist))
	fsm.Rollback()
	assert.Equal(t, RuleNonExistent, fsm.State())
}

func TestRuleFSM_ValidEvents(t *testing.T) {
	fsm := NewRuleFSM("r1")
	assert.ElementsMatch(t, []RuleEvent{EventCreate}, fsm.ValidEvents())

	require.NoError(t, fsm.Transition(EventCreate))
	assert.ElementsMatch(t,
		[]RuleEvent{EventValidate, EventValidationFailed, EventCancel},
		fsm.ValidEvents())

	fsm = persistedRuleFSM(t, "r2")
	assert.ElementsMatch(t, []RuleEvent{EventUpdate, EventDelete}, fsm.ValidEvents())
}

func TestRuleFSM_UpdateDeleteMutualExclusion(t *testing.T) {
	// Racing Update and Delete on a fresh Persisted rule: exactly one may
	// win, every trial. The exclusion comes from the table shape alone.
	const trials = 100

	for i := 0; i < trials; i++ {
		fsm := persistedRuleFSM(t, "r1")

		var wg sync.WaitGroup
		results := make(chan error, 2)

		wg.Add(2)
		go func() {
			defer wg.Done()
			results <- fsm.Transition(EventUpdate)
		}()
		go func() {
			defer wg.Done()
			results <- fsm.Transition(EventDelete)
		}()
		wg.Wait()
		close(results)

		successes := 0
		for err := range results {
			if err == nil {
				successes++
			}
		}

		require.Equal(t, 1, successes, "trial %d: exactly one of update/delete must win", i)

		state := fsm.State()
		assert.True(t, state == RuleUpdating || state == RuleDeleting,
			"trial %d: unexpected state %s", i, state)
	}
}

func TestRuleFSM_StateAlwaysValidUnderConcurrency(t *testing.T) {
	fsm := NewRuleFSM("r1")
	valid := map[RuleState]bool{
		RuleNonExistent: true, RuleDraft: true, RuleValidated: true,
		RuleCompiled: true, RulePersisted: true, RuleUpdating: true,
		RuleDeleting: true,
	}

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				events := fsm.ValidEvents()
				if len(events) > 0 {
					_ = fsm.Transition(events[i%len(events)])
				}
				assert.True(t, valid[fsm.State()])
			}
		}()
	}
	wg.Wait()
}
