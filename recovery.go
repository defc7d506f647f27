package resilience

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nooikko/resilience/internal/logger"
)

// ExecutionStatus is the terminal (or in-flight) state of a workflow
// execution.
type ExecutionStatus string

const (
	ExecutionRunning ExecutionStatus = "running"
	ExecutionSuccess ExecutionStatus = "success"
	ExecutionFailed  ExecutionStatus = "failed"
	ExecutionPartial ExecutionStatus = "partial"
)

// RecoveryStep is one action in a workflow.
type RecoveryStep struct {
	Name              string
	Action            Operation[any]
	Validation        func(result any) bool
	Rollback          func(ctx context.Context) error
	ContinueOnFailure bool
}

// Trigger describes when a workflow's background monitor should
// auto-execute it, based on recent error history.
type Trigger struct {
	ErrorCategories  []Category
	ErrorSeverities  []Severity
	ErrorPatterns    []string
	FailureThreshold int
	TimeWindow       time.Duration
}

func (t *Trigger) withDefaults() *Trigger {
	cp := *t
	if cp.FailureThreshold < 1 {
		cp.FailureThreshold = 1
	}
	if cp.TimeWindow <= 0 {
		cp.TimeWindow = 60 * time.Second
	}
	return &cp
}

// Workflow is a named, multi-step recovery procedure, optionally
// auto-triggered by the error-history monitor.
type Workflow struct {
	ID        string
	Name      string
	Trigger    *Trigger
	Steps      []RecoveryStep
	OnSuccess  func(rec ExecutionRecord)
	OnFailure  func(rec ExecutionRecord)
	MaxRetries int
	Timeout    time.Duration
}

// ExecutionRecord is the defensively-copied, append-only log of one
// executeWorkflow invocation.
type ExecutionRecord struct {
	ExecutionID     string
	WorkflowID      string
	StartTime       time.Time
	EndTime         time.Time
	Status          ExecutionStatus
	CompletedSteps  []string
	FailedSteps     []string
	RolledBackSteps []string
	Error           string

	// finalized marks a record whose outcome has already been decided
	// (by a timeout or by runSteps finishing first). Once set, runSteps
	// must not write to the record again — it lost the race and its
	// remaining writes would silently resurrect an already-reported
	// execution. Unexported: callers never observe it directly.
	finalized bool
}

func (r ExecutionRecord) clone() ExecutionRecord {
	cp := r
	cp.CompletedSteps = append([]string{}, r.CompletedSteps...)
	cp.FailedSteps = append([]string{}, r.FailedSteps...)
	cp.RolledBackSteps = append([]string{}, r.RolledBackSteps...)
	return cp
}

// errorHistoryEntry is one recorded observation fed to recordError.
type errorHistoryEntry struct {
	err            error
	timestamp      time.Time
	classification Classification
}

var recoveryLog = logger.Named("recovery")

// RecoveryEngine owns the workflow registry, the live execution log, the
// error history the background monitor scans, and the monitor's timer.
// A single process-wide instance is the intended usage (see DESIGN.md);
// nothing prevents constructing additional instances for tests.
type RecoveryEngine struct {
	mu         sync.RWMutex
	workflows  map[string]*Workflow
	executions map[string]*ExecutionRecord
	history    []errorHistoryEntry
	emitter    *eventEmitter

	monitorOnce sync.Once
	stopCh      chan struct{}
	stoppedWg   sync.WaitGroup
}

// NewRecoveryEngine constructs an engine with its background monitor not
// yet started; call StartMonitor to begin the 10s scan loop.
func NewRecoveryEngine() *RecoveryEngine {
	return &RecoveryEngine{
		workflows:  make(map[string]*Workflow),
		executions: make(map[string]*ExecutionRecord),
		emitter:    newEventEmitter(),
		stopCh:     make(chan struct{}),
	}
}

// RegisterWorkflow stores wf under wf.ID, overwriting any prior entry.
func (e *RecoveryEngine) RegisterWorkflow(wf *Workflow) {
	if wf.Trigger != nil {
		wf.Trigger = wf.Trigger.withDefaults()
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.workflows[wf.ID] = wf
}

// On registers a handler for one of the engine's event topics
// (TopicRecoveryStarted / TopicRecoveryCompleted).
func (e *RecoveryEngine) On(topic string, handler EventHandler) {
	e.emitter.On(topic, handler)
}

// ExecuteWorkflow runs the workflow registered under id to completion,
// sequentially, under an overall deadline. It returns ErrWorkflowNotFound
// only if id was never registered; every other outcome is encoded on the
// returned ExecutionRecord.
func (e *RecoveryEngine) ExecuteWorkflow(ctx context.Context, id string) (ExecutionRecord, error) {
	e.mu.RLock()
	wf, ok := e.workflows[id]
	e.mu.RUnlock()
	if !ok {
		return ExecutionRecord{}, fmt.Errorf("%w: %s", ErrWorkflowNotFound, id)
	}

	execID := uuid.NewString()
	rec := &ExecutionRecord{
		ExecutionID: execID,
		WorkflowID:  id,
		StartTime:   time.Now(),
		Status:      ExecutionRunning,
	}
	e.mu.Lock()
	e.executions[execID] = rec
	e.mu.Unlock()

	e.emitter.Emit(TopicRecoveryStarted, RecoveryStartedPayload{WorkflowID: id, ExecutionID: execID})

	timeout := wf.Timeout
	if timeout <= 0 {
		timeout = 300 * time.Second
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		e.runSteps(runCtx, wf, rec)
	}()

	select {
	case <-done:
	case <-runCtx.Done():
		e.mu.Lock()
		if !rec.finalized {
			rec.Status = ExecutionFailed
			rec.Error = fmt.Sprintf("%v: timeout", ErrWorkflowTimeout)
			rec.EndTime = time.Now()
			rec.finalized = true
		}
		e.mu.Unlock()
		// runSteps is still running against rec in the background (the
		// retry engine inside it ignores ctx per the retry engine's
		// cancellation-agnostic contract); it checks rec.finalized
		// before every write so it can never resurrect this record.
	}

	e.mu.Lock()
	finalStatus := rec.Status
	snapshot := rec.clone()
	e.mu.Unlock()

	switch finalStatus {
	case ExecutionSuccess, ExecutionPartial:
		if wf.OnSuccess != nil {
			wf.OnSuccess(snapshot)
		}
	default:
		if wf.OnFailure != nil {
			wf.OnFailure(snapshot)
		}
	}

	defaultMetrics.recordRecoveryExecution(finalStatus, float64(snapshot.EndTime.Sub(snapshot.StartTime).Milliseconds()))
	e.emitter.Emit(TopicRecoveryCompleted, RecoveryCompletedPayload{
		WorkflowID: id, ExecutionID: execID, Status: finalStatus,
	})

	return snapshot, nil
}

// runSteps executes every step sequentially, mutating rec in place under
// the engine lock for each step's outcome.
func (e *RecoveryEngine) runSteps(ctx context.Context, wf *Workflow, rec *ExecutionRecord) {
	maxRetries := wf.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	retryPolicy := &RetryPolicy{
		MaxAttempts:       maxRetries,
		InitialDelay:      100 * time.Millisecond,
		MaxDelay:          5 * time.Second,
		BackoffMultiplier: 2,
	}

	stopped := false
	anyFailed := false

	for _, step := range wf.Steps {
		if stopped {
			break
		}

		e.mu.Lock()
		lost := rec.finalized
		e.mu.Unlock()
		if lost {
			// ExecuteWorkflow already finalized rec (timeout). Any further
			// write here would resurrect an execution already reported to
			// callers, hooks, and metrics, so stop entirely.
			return
		}

		result, err := ExecuteWithRetry(ctx, step.Action, retryPolicy)
		if err == nil && step.Validation != nil && !step.Validation(result) {
			err = fmt.Errorf("Validation failed for step: %s", step.Name)
		}

		if err != nil {
			anyFailed = true
			e.mu.Lock()
			if rec.finalized {
				e.mu.Unlock()
				return
			}
			rec.FailedSteps = append(rec.FailedSteps, step.Name)
			e.mu.Unlock()

			if step.Rollback != nil {
				if rbErr := step.Rollback(ctx); rbErr != nil {
					recoveryLog.Warn("rollback failed",
						logger.String("step", step.Name), logger.String("error", rbErr.Error()))
				}
				e.mu.Lock()
				if rec.finalized {
					e.mu.Unlock()
					return
				}
				rec.RolledBackSteps = append(rec.RolledBackSteps, step.Name)
				e.mu.Unlock()
			}

			if !step.ContinueOnFailure {
				stopped = true
			}
			continue
		}

		e.mu.Lock()
		if rec.finalized {
			e.mu.Unlock()
			return
		}
		rec.CompletedSteps = append(rec.CompletedSteps, step.Name)
		e.mu.Unlock()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if rec.finalized {
		return
	}
	rec.finalized = true
	rec.EndTime = time.Now()
	switch {
	case !anyFailed:
		rec.Status = ExecutionSuccess
	case len(rec.CompletedSteps) > 0 && !stopped:
		rec.Status = ExecutionPartial
	default:
		rec.Status = ExecutionFailed
		if rec.Error == "" {
			rec.Error = "one or more steps failed"
		}
	}
}

// RecordError appends err to the history for the monitor to scan against
// registered triggers.
func (e *RecoveryEngine) RecordError(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history = append(e.history, errorHistoryEntry{
		err: err, timestamp: time.Now(), classification: Classify(err),
	})
}

// pruneHistoryLocked drops entries older than one hour. Caller must hold
// the write lock.
func (e *RecoveryEngine) pruneHistoryLocked() {
	cutoff := time.Now().Add(-1 * time.Hour)
	kept := e.history[:0]
	for _, entry := range e.history {
		if entry.timestamp.After(cutoff) {
			kept = append(kept, entry)
		}
	}
	e.history = kept
}

// GetActiveExecutions returns every execution still ExecutionRunning.
func (e *RecoveryEngine) GetActiveExecutions() []ExecutionRecord {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := []ExecutionRecord{}
	for _, rec := range e.executions {
		if rec.Status == ExecutionRunning {
			out = append(out, rec.clone())
		}
	}
	return out
}

// GetExecutionHistory returns up to limit executions (no defined order
// guarantee beyond registry iteration; callers needing recency should
// sort on StartTime). limit ≤ 0 means unbounded.
func (e *RecoveryEngine) GetExecutionHistory(limit int) []ExecutionRecord {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]ExecutionRecord, 0, len(e.executions))
	for _, rec := range e.executions {
		out = append(out, rec.clone())
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}
