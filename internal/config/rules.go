package config

import (
	"os"

	"gortm/domain/requirement"
	"gortm/domain/rules"
	"gortm/internal/errors"

	"gopkg.in/yaml.v3"
)

// LoadRules returns the built-in rule set, overlaid with the YAML file at path when given.
// Sections missing from the file keep their defaults.
func LoadRules(path string) (*rules.Set, error) {
	set := rules.Default()
	if path == "" {
		return set, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(errors.ConfigInvalid(err.Error()), "failed to read rules file %s", path)
	}

	var overlay rules.Set
	if err := yaml.Unmarshal(raw, &overlay); err != nil {
		return nil, errors.Wrapf(errors.ConfigInvalid(err.Error()), "failed to parse rules file %s", path)
	}
	if err := validateRules(&overlay); err != nil {
		return nil, err
	}

	set.Merge(&overlay)
	return set, nil
}

// validateRules rejects unknown roles and canonicalizes type and priority spellings
func validateRules(set *rules.Set) error {
	for role := range set.ColumnSynonyms {
		known := false
		for _, r := range requirement.Roles {
			if r == role {
				known = true
				break
			}
		}
		if !known {
			return errors.ConfigInvalid("unknown column role in rules file: " + string(role))
		}
	}
	for i, rule := range set.TypeRules {
		t, ok := requirement.ParseType(string(rule.Type))
		if !ok {
			return errors.ConfigInvalid("unknown requirement type in rules file: " + string(rule.Type))
		}
		set.TypeRules[i].Type = t
	}
	for i, rule := range set.PriorityRules {
		p, ok := requirement.ParsePriority(string(rule.Priority))
		if !ok {
			return errors.ConfigInvalid("unknown priority in rules file: " + string(rule.Priority))
		}
		set.PriorityRules[i].Priority = p
	}
	if set.DefaultType != "" {
		t, ok := requirement.ParseType(string(set.DefaultType))
		if !ok {
			return errors.ConfigInvalid("unknown default_type in rules file: " + string(set.DefaultType))
		}
		set.DefaultType = t
	}
	if set.DefaultPriority != "" {
		p, ok := requirement.ParsePriority(string(set.DefaultPriority))
		if !ok {
			return errors.ConfigInvalid("unknown default_priority in rules file: " + string(set.DefaultPriority))
		}
		set.DefaultPriority = p
	}
	return nil
}
