package requirement

import (
	"fmt"
	"strings"
	"time"

	"gortm/domain/workbook"
)

// Type is the requirement category
type Type string

const (
	TypeFunctional    Type = "Functional"
	TypeNonFunctional Type = "Non-functional"
	TypeBusiness      Type = "Business"
	TypeTechnical     Type = "Technical"
	TypeUser          Type = "User"
)

// Types lists all requirement types in display order
var Types = []Type{TypeFunctional, TypeNonFunctional, TypeBusiness, TypeTechnical, TypeUser}

// ParseType matches a type name case-insensitively, tolerating
// "Non functional", "nonfunctional" and similar spellings.
func ParseType(s string) (Type, bool) {
	key := squash(s)
	for _, t := range Types {
		if squash(string(t)) == key {
			return t, true
		}
	}
	return "", false
}

// Priority is the business priority level
type Priority string

const (
	PriorityHigh   Priority = "High"
	PriorityMedium Priority = "Medium"
	PriorityLow    Priority = "Low"
)

// Priorities lists all priorities in display order
var Priorities = []Priority{PriorityHigh, PriorityMedium, PriorityLow}

// ParsePriority matches a priority name case-insensitively
func ParsePriority(s string) (Priority, bool) {
	key := squash(s)
	for _, p := range Priorities {
		if squash(string(p)) == key {
			return p, true
		}
	}
	return "", false
}

// Status is the verification status of a requirement
type Status string

const (
	StatusNotTested  Status = "Not Tested"
	StatusInProgress Status = "In Progress"
	StatusApproved   Status = "Approved"
	StatusRejected   Status = "Rejected"
)

// Statuses lists all statuses; used for output validation dropdowns
var Statuses = []Status{StatusNotTested, StatusInProgress, StatusApproved, StatusRejected}

// Source records which classifier produced an enrichment
type Source string

const (
	SourceAI        Source = "ai"
	SourceRuleBased Source = "rule_based"
	SourceFallback  Source = "fallback"
)

// Role is a logical column role detected in a sheet
type Role string

const (
	RoleID           Role = "id"
	RoleDescription  Role = "description"
	RoleType         Role = "type"
	RolePriority     Role = "priority"
	RoleStatus       Role = "status"
	RoleDeliverables Role = "deliverables"
)

// Roles is the claim order used when one header scores equally for several roles
var Roles = []Role{RoleID, RoleType, RolePriority, RoleStatus, RoleDeliverables, RoleDescription}

// ColumnRoleMap maps logical roles to the headers detected in one table
type ColumnRoleMap struct {
	Roles     map[Role]string  `json:"roles"`
	Scores    map[Role]float64 `json:"scores"`
	Ambiguous []Role           `json:"ambiguous,omitempty"`
}

// Header returns the header detected for a role
func (m ColumnRoleMap) Header(role Role) (string, bool) {
	h, ok := m.Roles[role]
	return h, ok
}

// CellRef is the 1-based location of a cell in its sheet
type CellRef struct {
	Row    int `json:"row"`
	Column int `json:"column"`
}

// A1 renders the reference in A1 notation
func (c CellRef) A1() string {
	return fmt.Sprintf("%s%d", workbook.ColumnLetter(c.Column), c.Row)
}

// RawRequirement is a requirement candidate as found in the source workbook
type RawRequirement struct {
	SourceSheet string  `json:"source_sheet"`
	SourceCell  CellRef `json:"source_cell"`
	RawText     string  `json:"raw_text"`
	OriginalID  string  `json:"original_id,omitempty"`
}

// Location renders "Sheet!B4"
func (r RawRequirement) Location() string {
	return r.SourceSheet + "!" + r.SourceCell.A1()
}

// Enrichment is the classifier output for one requirement
type Enrichment struct {
	RequirementType     Type     `json:"requirement_type"`
	Priority            Priority `json:"priority"`
	PriorityReasoning   string   `json:"priority_reasoning,omitempty"`
	RelatedDeliverables []string `json:"related_deliverables"`
	TestCaseSuggestions []string `json:"test_case_suggestions"`
	Comments            string   `json:"comments,omitempty"`
	Confidence          float64  `json:"confidence"`
	Source              Source   `json:"source"`
}

// Identifiers are the assigned requirement and test case identifiers
type Identifiers struct {
	RequirementID string `json:"requirement_id"`
	TestCaseID    string `json:"test_case_id"`
}

// Requirement is a fully assembled traceability matrix row
type Requirement struct {
	RawRequirement
	Enrichment
	RequirementID string    `json:"requirement_id"`
	TestCaseID    string    `json:"test_case_id"`
	Status        Status    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

func squash(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
