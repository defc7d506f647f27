package resilience

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nooikko/resilience/internal/logger"
)

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

// monitorInterval is how often the background monitor scans error
// history against registered triggers.
const monitorInterval = 10 * time.Second

// StartMonitor launches the background monitor goroutine exactly once
// per engine instance; subsequent calls are no-ops. Shutdown stops it.
func (e *RecoveryEngine) StartMonitor() {
	e.monitorOnce.Do(func() {
		e.stoppedWg.Add(1)
		go e.monitorLoop()
	})
}

func (e *RecoveryEngine) monitorLoop() {
	defer e.stoppedWg.Done()
	ticker := time.NewTicker(monitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopCh:
			return
		case <-ticker.C:
			e.tick()
		}
	}
}

// tick prunes stale history, collects the workflows whose triggers now
// match, and launches their executions without holding the registry
// lock — per the spec's monitor-ownership rule, the timer must not block
// on workflow execution.
func (e *RecoveryEngine) tick() {
	e.mu.Lock()
	e.pruneHistoryLocked()
	history := append([]errorHistoryEntry{}, e.history...)
	workflows := make([]*Workflow, 0, len(e.workflows))
	for _, wf := range e.workflows {
		workflows = append(workflows, wf)
	}
	e.mu.Unlock()

	triggered := make([]*Workflow, 0)
	for _, wf := range workflows {
		if wf.Trigger == nil {
			continue
		}
		if matchesTrigger(wf.Trigger, history) {
			triggered = append(triggered, wf)
		}
	}
	if len(triggered) == 0 {
		return
	}

	g, ctx := errgroup.WithContext(context.Background())
	for _, wf := range triggered {
		wf := wf
		g.Go(func() error {
			_, err := e.ExecuteWorkflow(ctx, wf.ID)
			return err
		})
	}
	go func() {
		if err := g.Wait(); err != nil {
			recoveryLog.Warn("triggered execution failed", logger.String("error", err.Error()))
		}
	}()
}

// matchesTrigger selects history entries within the trigger's time
// window and checks the size/category/severity/pattern thresholds.
func matchesTrigger(t *Trigger, history []errorHistoryEntry) bool {
	cutoff := time.Now().Add(-t.TimeWindow)

	var inWindow []errorHistoryEntry
	for _, entry := range history {
		if entry.timestamp.After(cutoff) {
			inWindow = append(inWindow, entry)
		}
	}
	if len(inWindow) < t.FailureThreshold {
		return false
	}

	if len(t.ErrorCategories) == 0 && len(t.ErrorSeverities) == 0 && len(t.ErrorPatterns) == 0 {
		return true
	}

	categoryMatches := 0
	severityMatches := 0
	patternMatches := 0

	for _, entry := range inWindow {
		for _, cat := range t.ErrorCategories {
			if entry.classification.Category == cat {
				categoryMatches++
				break
			}
		}
		for _, sev := range t.ErrorSeverities {
			if entry.classification.Severity == sev {
				severityMatches++
				break
			}
		}
		for _, pattern := range t.ErrorPatterns {
			if containsFold(entry.err.Error(), pattern) {
				patternMatches++
				break
			}
		}
	}

	return categoryMatches >= t.FailureThreshold ||
		severityMatches >= t.FailureThreshold ||
		patternMatches >= t.FailureThreshold
}

// Shutdown stops the background monitor timer and waits for the current
// tick (if any) to finish. Safe to call even if StartMonitor was never
// invoked.
func (e *RecoveryEngine) Shutdown() {
	select {
	case <-e.stopCh:
		return // already closed
	default:
		close(e.stopCh)
	}
	e.stoppedWg.Wait()
}
