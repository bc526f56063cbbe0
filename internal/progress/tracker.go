// Package progress tracks classification batches per run for status polling
// and event streaming.
package progress

import (
	"fmt"
	"sync"
	"time"

	"gortm/internal"
	"gortm/ports"
)

const maxRecentActivities = 10

// Run states reported by the tracker
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Event is a progress update pushed to subscribers
type Event struct {
	RunID     string                 `json:"run_id"`
	EventType string                 `json:"event_type"`
	Progress  int                    `json:"progress"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Broadcaster receives progress events
type Broadcaster interface {
	Broadcast(event Event)
}

// Progress is a snapshot of one run
type Progress struct {
	RunID            string    `json:"run_id"`
	FileID           string    `json:"file_id"`
	Status           string    `json:"status"`
	TotalBatches     int       `json:"total_batches"`
	CurrentBatch     int       `json:"current_batch"`
	CompletedBatches int       `json:"completed_batches"`
	FallbackBatches  int       `json:"fallback_batches"`
	FailedAttempts   int       `json:"failed_attempts"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	CurrentActivity  string    `json:"current_activity"`
	RecentActivities []string  `json:"recent_activities"`
	StartedAt        time.Time `json:"started_at"`
	UpdatedAt        time.Time `json:"updated_at"`
	ElapsedSeconds   float64   `json:"elapsed_seconds"`
	ProgressPercent  int       `json:"progress_percent"`
}

// percent maps batch completion onto 20-90%; finished runs report 100
func (p *Progress) percent() int {
	if p.Status == StatusCompleted {
		return 100
	}
	if p.TotalBatches <= 0 {
		return 0
	}
	pct := 20 + p.CompletedBatches*70/p.TotalBatches
	if pct > 90 {
		pct = 90
	}
	return pct
}

// Tracker keeps progress for all active runs. It is safe for concurrent use.
type Tracker struct {
	mu          sync.RWMutex
	runs        map[string]*Progress
	broadcaster Broadcaster
	clock       func() time.Time
	logger      *internal.Logger
}

// NewTracker creates a tracker. broadcaster may be nil.
func NewTracker(broadcaster Broadcaster) *Tracker {
	return &Tracker{
		runs:        make(map[string]*Progress),
		broadcaster: broadcaster,
		clock:       time.Now,
		logger:      internal.DefaultLogger.With("Progress"),
	}
}

// Start begins tracking a run
func (t *Tracker) Start(runID, fileID string) {
	now := t.clock()
	t.mu.Lock()
	p := &Progress{
		RunID:           runID,
		FileID:          fileID,
		Status:          StatusProcessing,
		CurrentActivity: "Extracting requirements",
		StartedAt:       now,
		UpdatedAt:       now,
	}
	t.runs[runID] = p
	t.mu.Unlock()

	t.logger.Debug("Started tracking run %s (file %s)", runID, fileID)
	t.emit(runID, "started", nil)
}

// Observer returns a batch observer that updates the run's progress
func (t *Tracker) Observer(runID string) ports.BatchObserver {
	return ports.BatchObserverFunc(func(event ports.BatchEvent) {
		t.OnBatchEvent(runID, event)
	})
}

// OnBatchEvent applies a batch transition to a run
func (t *Tracker) OnBatchEvent(runID string, event ports.BatchEvent) {
	t.mu.Lock()
	p, ok := t.runs[runID]
	if !ok {
		t.mu.Unlock()
		return
	}
	if event.Batches > p.TotalBatches {
		p.TotalBatches = event.Batches
	}

	n := event.Batch + 1
	var activity string
	switch event.State {
	case ports.BatchPending:
		p.CurrentActivity = fmt.Sprintf("Classifying %d batches", p.TotalBatches)
	case ports.BatchSent:
		p.CurrentBatch = n
		p.CurrentActivity = fmt.Sprintf("Processing batch %d/%d (%d requirements)", n, p.TotalBatches, event.Size)
		if event.Attempt > 1 {
			activity = fmt.Sprintf("Batch %d: retry %d", n, event.Attempt-1)
		}
	case ports.BatchSucceeded:
		p.CompletedBatches++
		activity = fmt.Sprintf("Batch %d completed", n)
	case ports.BatchFailed:
		p.FailedAttempts++
		activity = fmt.Sprintf("Batch %d attempt %d failed: %v", n, event.Attempt, event.Err)
	case ports.BatchFallbackApplied:
		p.CompletedBatches++
		p.FallbackBatches++
		activity = fmt.Sprintf("Batch %d failed, using rule-based fallback", n)
	}
	if event.Usage != nil {
		p.PromptTokens += event.Usage.PromptTokens
		p.CompletionTokens += event.Usage.CompletionTokens
	}
	if activity != "" {
		p.RecentActivities = appendActivity(p.RecentActivities, activity)
	}
	p.UpdatedAt = t.clock()
	t.mu.Unlock()

	if event.State != ports.BatchPending {
		t.emit(runID, "batch_"+string(event.State), map[string]interface{}{
			"batch":   n,
			"batches": event.Batches,
			"attempt": event.Attempt,
		})
	}
}

// Complete marks a run finished
func (t *Tracker) Complete(runID string, success bool, message string) {
	t.mu.Lock()
	p, ok := t.runs[runID]
	if !ok {
		t.mu.Unlock()
		return
	}
	if success {
		p.Status = StatusCompleted
		p.CurrentActivity = "Analysis complete"
	} else {
		p.Status = StatusFailed
		p.CurrentActivity = "Analysis failed"
	}
	if message != "" {
		p.RecentActivities = appendActivity(p.RecentActivities, message)
	}
	p.UpdatedAt = t.clock()
	t.mu.Unlock()

	t.logger.Info("Run %s finished (success=%t)", runID, success)
	t.emit(runID, "finished", map[string]interface{}{"success": success, "message": message})
}

// Get returns a snapshot of a run's progress
func (t *Tracker) Get(runID string) (Progress, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.runs[runID]
	if !ok {
		return Progress{}, false
	}
	return t.snapshot(p), true
}

// Remove stops tracking a run
func (t *Tracker) Remove(runID string) {
	t.mu.Lock()
	delete(t.runs, runID)
	t.mu.Unlock()
}

// Prune stops tracking finished runs last updated before now minus maxAge
// and returns how many were removed. Runs still in progress are kept.
func (t *Tracker) Prune(maxAge time.Duration, now time.Time) int {
	cutoff := now.Add(-maxAge)
	removed := 0
	t.mu.Lock()
	for id, p := range t.runs {
		finished := p.Status == StatusCompleted || p.Status == StatusFailed
		if finished && p.UpdatedAt.Before(cutoff) {
			delete(t.runs, id)
			removed++
		}
	}
	t.mu.Unlock()

	if removed > 0 {
		t.logger.Debug("Pruned %d finished runs", removed)
	}
	return removed
}

// snapshot copies p; callers hold at least the read lock
func (t *Tracker) snapshot(p *Progress) Progress {
	out := *p
	out.RecentActivities = append([]string{}, p.RecentActivities...)
	end := t.clock()
	if out.Status == StatusCompleted || out.Status == StatusFailed {
		end = out.UpdatedAt
	}
	out.ElapsedSeconds = end.Sub(out.StartedAt).Seconds()
	out.ProgressPercent = p.percent()
	return out
}

func (t *Tracker) emit(runID, eventType string, data map[string]interface{}) {
	if t.broadcaster == nil {
		return
	}
	t.mu.RLock()
	p, ok := t.runs[runID]
	pct := 0
	if ok {
		pct = p.percent()
	}
	t.mu.RUnlock()

	t.broadcaster.Broadcast(Event{
		RunID:     runID,
		EventType: eventType,
		Progress:  pct,
		Data:      data,
		Timestamp: t.clock(),
	})
}

func appendActivity(activities []string, activity string) []string {
	activities = append(activities, activity)
	if len(activities) > maxRecentActivities {
		activities = activities[len(activities)-maxRecentActivities:]
	}
	return activities
}
