package requirement

import "time"

// SheetStatus is the extraction outcome for one sheet
type SheetStatus string

const (
	SheetProcessed      SheetStatus = "processed"
	SheetNoRequirements SheetStatus = "no_requirements"
	SheetNotSelected    SheetStatus = "not_selected"
)

// SheetReport records what extraction did with one sheet
type SheetReport struct {
	Sheet             string        `json:"sheet"`
	Status            SheetStatus   `json:"status"`
	IsFocus           bool          `json:"is_focus"`
	DescriptionColumn string        `json:"description_column,omitempty"`
	Roles             ColumnRoleMap `json:"roles"`
	Count             int           `json:"count"`
	Reason            string        `json:"reason,omitempty"`
}

// ConfidenceStats summarizes classifier confidence across a collection
type ConfidenceStats struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// Summary is the aggregate statistics block of a collection
type Summary struct {
	TotalRequirements int              `json:"total_requirements"`
	ByType            map[Type]int     `json:"by_type"`
	ByPriority        map[Priority]int `json:"by_priority"`
	BySourceSheet     map[string]int   `json:"by_source_sheet"`
	ByStatus          map[Status]int   `json:"by_status"`
	BySource          map[Source]int   `json:"by_classification_source"`
	Confidence        ConfidenceStats  `json:"confidence"`
	DescriptionLength ConfidenceStats  `json:"description_length"`
	SheetOrder        []string         `json:"sheet_order"`
}

// Degraded counts requirements that were classified without the AI service
func (s Summary) Degraded() int {
	return s.BySource[SourceFallback]
}

// Metadata describes the run that produced a collection
type Metadata struct {
	RunID       string        `json:"run_id"`
	FileName    string        `json:"file_name"`
	FocusSheet  string        `json:"focus_sheet"`
	SheetNames  []string      `json:"sheet_names"`
	Sheets      []SheetReport `json:"sheets"`
	GeneratedAt time.Time     `json:"generated_at"`
}

// Collection is the ordered, assembled requirement set of one run
type Collection struct {
	Requirements []Requirement `json:"requirements"`
	Summary      Summary       `json:"summary"`
	Metadata     Metadata      `json:"metadata"`
	TotalCount   int           `json:"total_count"`
}

// FromSheet returns the requirements extracted from one sheet, in order
func (c *Collection) FromSheet(sheet string) []Requirement {
	var out []Requirement
	for _, r := range c.Requirements {
		if r.SourceSheet == sheet {
			out = append(out, r)
		}
	}
	return out
}
