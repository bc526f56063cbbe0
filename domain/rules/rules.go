// Package rules holds the configurable vocabularies used to detect column
// roles and to classify requirements without the AI service.
package rules

import "gortm/domain/requirement"

// TypeRule assigns a requirement type when any keyword matches
type TypeRule struct {
	Type     requirement.Type `yaml:"type"`
	Keywords []string         `yaml:"keywords"`
}

// PriorityRule assigns a priority when any keyword matches
type PriorityRule struct {
	Priority requirement.Priority `yaml:"priority"`
	Keywords []string             `yaml:"keywords"`
}

// Set is the complete rule vocabulary. Rules are evaluated in order; the first match wins.
type Set struct {
	ColumnSynonyms  map[requirement.Role][]string `yaml:"column_synonyms"`
	TypeRules       []TypeRule                    `yaml:"type_rules"`
	PriorityRules   []PriorityRule                `yaml:"priority_rules"`
	DefaultType     requirement.Type              `yaml:"default_type"`
	DefaultPriority requirement.Priority          `yaml:"default_priority"`
}

// Default returns the built-in vocabulary
func Default() *Set {
	return &Set{
		ColumnSynonyms: map[requirement.Role][]string{
			requirement.RoleID:           {"id", "req id", "identifier", "ref", "reference", "no", "number", "#"},
			requirement.RoleDescription:  {"requirement", "requirements", "description", "detail", "details", "spec", "specification", "statement"},
			requirement.RoleType:         {"type", "category", "classification", "kind"},
			requirement.RolePriority:     {"priority", "importance", "criticality", "moscow"},
			requirement.RoleStatus:       {"status", "state"},
			requirement.RoleDeliverables: {"deliverable", "deliverables", "component", "module"},
		},
		TypeRules: []TypeRule{
			{
				Type: requirement.TypeNonFunctional,
				Keywords: []string{
					"shall not exceed", "performance", "response time", "latency", "throughput",
					"availability", "uptime", "scalability", "scalable", "security", "encrypted",
					"encryption", "reliability", "memory", "cpu", "concurrent users",
				},
			},
			{
				Type:     requirement.TypeUser,
				Keywords: []string{"user interface", "ui", "screen", "display", "usability", "end user"},
			},
			{
				Type:     requirement.TypeBusiness,
				Keywords: []string{"business", "workflow", "policy", "compliance", "regulatory", "stakeholder"},
			},
			{
				Type:     requirement.TypeTechnical,
				Keywords: []string{"api", "database", "integration", "technical", "protocol", "architecture"},
			},
		},
		PriorityRules: []PriorityRule{
			{
				Priority: requirement.PriorityHigh,
				Keywords: []string{"must", "critical", "mandatory", "essential", "required"},
			},
			{
				Priority: requirement.PriorityMedium,
				Keywords: []string{"should", "important", "recommended"},
			},
		},
		DefaultType:     requirement.TypeFunctional,
		DefaultPriority: requirement.PriorityLow,
	}
}

// Merge overlays the non-empty parts of other onto s
func (s *Set) Merge(other *Set) {
	if other == nil {
		return
	}
	for role, syns := range other.ColumnSynonyms {
		if len(syns) > 0 {
			s.ColumnSynonyms[role] = syns
		}
	}
	if len(other.TypeRules) > 0 {
		s.TypeRules = other.TypeRules
	}
	if len(other.PriorityRules) > 0 {
		s.PriorityRules = other.PriorityRules
	}
	if other.DefaultType != "" {
		s.DefaultType = other.DefaultType
	}
	if other.DefaultPriority != "" {
		s.DefaultPriority = other.DefaultPriority
	}
}
