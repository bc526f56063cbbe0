package ports

import (
	"context"

	"gortm/domain/requirement"
)

// ClassifyContext carries workbook context for a classification call
type ClassifyContext struct {
	FileName   string
	SheetNames []string
	FocusSheet string
	TotalCount int
	Sources    []string // "Sheet!B4" per text, same order as the texts
	Observer   BatchObserver
}

// Classifier enriches requirement texts. The output has the same length and
// order as the input.
type Classifier interface {
	ClassifyBatch(ctx context.Context, texts []string, cctx ClassifyContext) ([]requirement.Enrichment, error)
	Name() string
}

// BatchState is a state of one classification batch
type BatchState string

const (
	BatchPending         BatchState = "pending"
	BatchSent            BatchState = "sent"
	BatchSucceeded       BatchState = "succeeded"
	BatchFailed          BatchState = "failed"
	BatchFallbackApplied BatchState = "fallback_applied"
)

// BatchEvent reports a batch state transition
type BatchEvent struct {
	Batch   int // 0-based
	Batches int
	Size    int
	State   BatchState
	Attempt int
	Err     error
	Usage   *UsageData
}

// BatchObserver receives batch state transitions. Implementations must be
// safe for concurrent use.
type BatchObserver interface {
	OnBatchEvent(event BatchEvent)
}

// BatchObserverFunc adapts a function to BatchObserver
type BatchObserverFunc func(event BatchEvent)

// OnBatchEvent calls f
func (f BatchObserverFunc) OnBatchEvent(event BatchEvent) {
	f(event)
}
