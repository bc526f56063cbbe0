// Package identifier assigns sequential requirement and test case identifiers.
package identifier

import (
	"fmt"

	"gortm/domain/requirement"
	"gortm/internal/errors"
)

// Config holds identifier formatting
type Config struct {
	RequirementPrefix string
	TestCasePrefix    string
	Width             int // minimum digits; longer numbers are never truncated
}

// DefaultConfig returns REQ-001 / TC-001 formatting
func DefaultConfig() Config {
	return Config{RequirementPrefix: "REQ", TestCasePrefix: "TC", Width: 3}
}

// Assigner produces identifiers for one run
type Assigner struct {
	config Config
}

// NewAssigner creates an assigner
func NewAssigner(config Config) (*Assigner, error) {
	if config.RequirementPrefix == "" || config.TestCasePrefix == "" {
		return nil, errors.ConfigInvalid("identifier prefixes must not be empty")
	}
	if config.RequirementPrefix == config.TestCasePrefix {
		return nil, errors.ConfigInvalid("requirement and test case prefixes must differ")
	}
	if config.Width < 1 {
		return nil, errors.ConfigInvalid(fmt.Sprintf("identifier width %d must be positive", config.Width))
	}
	return &Assigner{config: config}, nil
}

// Assign returns n identifier pairs numbered 1..n in order
func (a *Assigner) Assign(n int) ([]requirement.Identifiers, error) {
	if n < 0 {
		return nil, errors.InvalidInput(fmt.Sprintf("cannot assign %d identifiers", n))
	}

	ids := make([]requirement.Identifiers, n)
	seen := make(map[string]struct{}, 2*n)
	for i := range ids {
		ids[i] = requirement.Identifiers{
			RequirementID: a.format(a.config.RequirementPrefix, i+1),
			TestCaseID:    a.format(a.config.TestCasePrefix, i+1),
		}
		for _, id := range []string{ids[i].RequirementID, ids[i].TestCaseID} {
			if _, dup := seen[id]; dup {
				return nil, errors.PipelineIntegrity("duplicate identifier %s", id)
			}
			seen[id] = struct{}{}
		}
	}
	return ids, nil
}

func (a *Assigner) format(prefix string, n int) string {
	return fmt.Sprintf("%s-%0*d", prefix, a.config.Width, n)
}
