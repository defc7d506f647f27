package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stepOK(name string) RecoveryStep {
	return RecoveryStep{
		Name:   name,
		Action: func(ctx context.Context) (any, error) { return name, nil },
	}
}

func stepFail(name string, rollback func(ctx context.Context) error, continueOnFailure bool) RecoveryStep {
	return RecoveryStep{
		Name:              name,
		Action:            func(ctx context.Context) (any, error) { return nil, errors.New("boom") },
		Rollback:          rollback,
		ContinueOnFailure: continueOnFailure,
	}
}

func TestRecovery_SuccessWhenNoFailedSteps(t *testing.T) {
	e := NewRecoveryEngine()
	e.RegisterWorkflow(&Workflow{
		ID:    "wf1",
		Name:  "ok workflow",
		Steps: []RecoveryStep{stepOK("Step 1"), stepOK("Step 2")},
	})

	rec, err := e.ExecuteWorkflow(context.Background(), "wf1")
	require.NoError(t, err)
	assert.Equal(t, ExecutionSuccess, rec.Status)
	assert.Empty(t, rec.FailedSteps)
	assert.Equal(t, []string{"Step 1", "Step 2"}, rec.CompletedSteps)
}

func TestRecovery_RollbackInvokedExactlyOnce(t *testing.T) {
	e := NewRecoveryEngine()
	rollbackCalls := 0
	e.RegisterWorkflow(&Workflow{
		ID: "wf2",
		Steps: []RecoveryStep{
			stepFail("Step 1", func(ctx context.Context) error { rollbackCalls++; return nil }, false),
		},
		MaxRetries: 1,
	})

	rec, err := e.ExecuteWorkflow(context.Background(), "wf2")
	require.NoError(t, err)
	assert.Equal(t, ExecutionFailed, rec.Status)
	assert.Equal(t, []string{"Step 1"}, rec.FailedSteps)
	assert.Equal(t, []string{"Step 1"}, rec.RolledBackSteps)
	assert.Equal(t, 1, rollbackCalls)
}

func TestRecovery_ContinueOnFailureYieldsPartial(t *testing.T) {
	e := NewRecoveryEngine()
	e.RegisterWorkflow(&Workflow{
		ID: "wf3",
		Steps: []RecoveryStep{
			stepFail("Step 1", nil, true),
			stepOK("Step 2"),
		},
		MaxRetries: 1,
	})

	rec, err := e.ExecuteWorkflow(context.Background(), "wf3")
	require.NoError(t, err)
	assert.Equal(t, ExecutionPartial, rec.Status)
	assert.Equal(t, []string{"Step 1"}, rec.FailedSteps)
	assert.Equal(t, []string{"Step 2"}, rec.CompletedSteps)
}

func TestRecovery_StopsOnFailureWithoutContinue(t *testing.T) {
	e := NewRecoveryEngine()
	step2Ran := false
	e.RegisterWorkflow(&Workflow{
		ID: "wf4",
		Steps: []RecoveryStep{
			stepFail("Step 1", nil, false),
			{Name: "Step 2", Action: func(ctx context.Context) (any, error) { step2Ran = true; return nil, nil }},
		},
		MaxRetries: 1,
	})

	rec, err := e.ExecuteWorkflow(context.Background(), "wf4")
	require.NoError(t, err)
	assert.Equal(t, ExecutionFailed, rec.Status)
	assert.False(t, step2Ran)
}

func TestRecovery_ValidationFailureTreatedAsStepFailure(t *testing.T) {
	e := NewRecoveryEngine()
	e.RegisterWorkflow(&Workflow{
		ID: "wf5",
		Steps: []RecoveryStep{
			{
				Name:       "Step 1",
				Action:     func(ctx context.Context) (any, error) { return "unexpected", nil },
				Validation: func(result any) bool { return result == "expected" },
			},
		},
		MaxRetries: 1,
	})

	rec, err := e.ExecuteWorkflow(context.Background(), "wf5")
	require.NoError(t, err)
	assert.Equal(t, ExecutionFailed, rec.Status)
	assert.Equal(t, []string{"Step 1"}, rec.FailedSteps)
}

func TestRecovery_UnknownWorkflowIDReturnsError(t *testing.T) {
	e := NewRecoveryEngine()
	_, err := e.ExecuteWorkflow(context.Background(), "nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWorkflowNotFound)
}

func TestRecovery_TimeoutYieldsFailed(t *testing.T) {
	e := NewRecoveryEngine()
	e.RegisterWorkflow(&Workflow{
		ID: "wf6",
		Steps: []RecoveryStep{
			{
				Name: "Step 1",
				Action: func(ctx context.Context) (any, error) {
					select {
					case <-time.After(200 * time.Millisecond):
						return "late", nil
					case <-ctx.Done():
						return nil, ctx.Err()
					}
				},
			},
		},
		Timeout: 20 * time.Millisecond,
	})

	rec, err := e.ExecuteWorkflow(context.Background(), "wf6")
	require.NoError(t, err)
	assert.Equal(t, ExecutionFailed, rec.Status)
	assert.Contains(t, rec.Error, "timeout")
}

func TestRecovery_OrphanedStepCannotResurrectTimedOutRecord(t *testing.T) {
	e := NewRecoveryEngine()
	stepDone := make(chan struct{})
	e.RegisterWorkflow(&Workflow{
		ID: "wf-orphan",
		Steps: []RecoveryStep{
			{
				Name: "Step 1",
				Action: func(ctx context.Context) (any, error) {
					defer close(stepDone)
					time.Sleep(60 * time.Millisecond)
					return "late", nil
				},
			},
		},
		Timeout: 10 * time.Millisecond,
	})

	rec, err := e.ExecuteWorkflow(context.Background(), "wf-orphan")
	require.NoError(t, err)
	assert.Equal(t, ExecutionFailed, rec.Status)
	assert.Contains(t, rec.Error, "timeout")

	select {
	case <-stepDone:
	case <-time.After(time.Second):
		t.Fatal("orphaned step never completed")
	}

	history := e.GetExecutionHistory(0)
	require.Len(t, history, 1)
	assert.Equal(t, ExecutionFailed, history[0].Status)
	assert.Contains(t, history[0].Error, "timeout")
	assert.Empty(t, history[0].CompletedSteps)
}

func TestRecovery_EmitsStartedAndCompletedEvents(t *testing.T) {
	e := NewRecoveryEngine()
	e.RegisterWorkflow(&Workflow{ID: "wf7", Steps: []RecoveryStep{stepOK("Step 1")}})

	started := make(chan RecoveryStartedPayload, 1)
	completed := make(chan RecoveryCompletedPayload, 1)
	e.On(TopicRecoveryStarted, func(payload any) { started <- payload.(RecoveryStartedPayload) })
	e.On(TopicRecoveryCompleted, func(payload any) { completed <- payload.(RecoveryCompletedPayload) })

	rec, err := e.ExecuteWorkflow(context.Background(), "wf7")
	require.NoError(t, err)

	select {
	case p := <-started:
		assert.Equal(t, "wf7", p.WorkflowID)
	case <-time.After(time.Second):
		t.Fatal("did not receive recovery.started")
	}
	select {
	case p := <-completed:
		assert.Equal(t, rec.ExecutionID, p.ExecutionID)
		assert.Equal(t, ExecutionSuccess, p.Status)
	case <-time.After(time.Second):
		t.Fatal("did not receive recovery.completed")
	}
}

func TestRecovery_MatchesTriggerOnCategoryThreshold(t *testing.T) {
	e := NewRecoveryEngine()
	for i := 0; i < 3; i++ {
		e.RecordError(errors.New("network error"))
	}

	trig := (&Trigger{ErrorCategories: []Category{CategoryNetwork}, FailureThreshold: 3, TimeWindow: time.Minute}).withDefaults()
	assert.True(t, matchesTrigger(trig, e.history))
}

func TestRecovery_DoesNotMatchBelowThreshold(t *testing.T) {
	e := NewRecoveryEngine()
	e.RecordError(errors.New("network error"))

	trig := (&Trigger{ErrorCategories: []Category{CategoryNetwork}, FailureThreshold: 3, TimeWindow: time.Minute}).withDefaults()
	assert.False(t, matchesTrigger(trig, e.history))
}

func TestRecovery_ShutdownIsIdempotent(t *testing.T) {
	e := NewRecoveryEngine()
	e.StartMonitor()
	e.Shutdown()
	e.Shutdown()
}
