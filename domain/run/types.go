package run

import (
	"crypto/sha256"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"gortm/domain/requirement"
)

// Status is the lifecycle state of a run
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Run records one execution of the traceability pipeline
type Run struct {
	ID                string      `json:"id" db:"id"`
	FileID            string      `json:"file_id" db:"file_id"`
	FileName          string      `json:"file_name" db:"file_name"`
	FocusSheet        string      `json:"focus_sheet" db:"focus_sheet"`
	IncludeAllSheets  bool        `json:"include_all_sheets" db:"include_all_sheets"`
	Fingerprint       string      `json:"fingerprint" db:"fingerprint"`
	Status            Status      `json:"status" db:"status"`
	TotalRequirements int         `json:"total_requirements" db:"total_requirements"`
	FallbackCount     int         `json:"fallback_count" db:"fallback_count"`
	PromptTokens      int         `json:"prompt_tokens" db:"prompt_tokens"`
	CompletionTokens  int         `json:"completion_tokens" db:"completion_tokens"`
	OutputFile        string      `json:"output_file,omitempty" db:"output_file"`
	ErrorCode         string      `json:"error_code,omitempty" db:"error_code"`
	ErrorMessage      string      `json:"error_message,omitempty" db:"error_message"`
	Summary           SummaryJSON `json:"summary,omitempty" db:"summary"`
	CreatedAt         time.Time   `json:"created_at" db:"created_at"`
	CompletedAt       *time.Time  `json:"completed_at,omitempty" db:"completed_at"`
}

// NewRun creates a pending run
func NewRun(id, fileID, fileName, focusSheet string, includeAllSheets bool, fingerprint string, now time.Time) *Run {
	return &Run{
		ID:               id,
		FileID:           fileID,
		FileName:         fileName,
		FocusSheet:       focusSheet,
		IncludeAllSheets: includeAllSheets,
		Fingerprint:      fingerprint,
		Status:           StatusPending,
		CreatedAt:        now,
	}
}

// Complete marks the run as completed with the assembled summary
func (r *Run) Complete(summary requirement.Summary, outputFile string, now time.Time) {
	r.Status = StatusCompleted
	r.TotalRequirements = summary.TotalRequirements
	r.FallbackCount = summary.Degraded()
	r.Summary = SummaryJSON{Summary: &summary}
	r.OutputFile = outputFile
	r.CompletedAt = &now
}

// Fail marks the run as failed
func (r *Run) Fail(code, message string, now time.Time) {
	r.Status = StatusFailed
	r.ErrorCode = code
	r.ErrorMessage = message
	r.CompletedAt = &now
}

// Finished reports whether the run reached a terminal state
func (r *Run) Finished() bool {
	return r.Status == StatusCompleted || r.Status == StatusFailed
}

// Fingerprint hashes the inputs that determine a run's output, so repeated
// submissions of the same workbook and options can be recognized
func Fingerprint(content []byte, focusSheet string, includeAllSheets bool, classifier string) string {
	contentHash := sha256.Sum256(content)
	data := fmt.Sprintf("content:%x|focus:%s|all:%t|classifier:%s", contentHash, focusSheet, includeAllSheets, classifier)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}

// SummaryJSON stores a summary in a JSONB column
type SummaryJSON struct {
	Summary *requirement.Summary
}

// MarshalJSON renders the wrapped summary, or null
func (s SummaryJSON) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Summary)
}

// UnmarshalJSON parses a summary
func (s *SummaryJSON) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		s.Summary = nil
		return nil
	}
	var summary requirement.Summary
	if err := json.Unmarshal(data, &summary); err != nil {
		return err
	}
	s.Summary = &summary
	return nil
}

// Value implements driver.Valuer interface
func (s SummaryJSON) Value() (driver.Value, error) {
	if s.Summary == nil {
		return nil, nil
	}
	return json.Marshal(s.Summary)
}

// Scan implements sql.Scanner interface
func (s *SummaryJSON) Scan(value interface{}) error {
	var bytes []byte
	switch v := value.(type) {
	case nil:
		s.Summary = nil
		return nil
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("unsupported summary column type %T", value)
	}
	if len(bytes) == 0 {
		s.Summary = nil
		return nil
	}
	return s.UnmarshalJSON(bytes)
}
