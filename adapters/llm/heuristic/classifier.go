// Package heuristic classifies requirements with deterministic keyword rules.
package heuristic

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"gortm/domain/requirement"
	"gortm/domain/rules"
	"gortm/ports"
)

const (
	// Confidence assigned to every rule-based classification
	Confidence = 0.5

	defaultReasoning = "Rule-based: no priority keyword matched"
)

// Classifier is the rule-based classifier. It never fails on text input.
type Classifier struct {
	rules *rules.Set
}

// NewClassifier creates a rule-based classifier. A nil set selects rules.Default().
func NewClassifier(set *rules.Set) *Classifier {
	if set == nil {
		set = rules.Default()
	}
	return &Classifier{rules: set}
}

// Name identifies the classifier in run records
func (c *Classifier) Name() string {
	return string(requirement.SourceRuleBased)
}

// ClassifyBatch classifies each text independently
func (c *Classifier) ClassifyBatch(ctx context.Context, texts []string, cctx ports.ClassifyContext) ([]requirement.Enrichment, error) {
	out := make([]requirement.Enrichment, len(texts))
	for i, text := range texts {
		out[i] = c.Classify(text)
	}
	return out, nil
}

// Classify applies the type and priority rules in order; the first match wins
func (c *Classifier) Classify(text string) requirement.Enrichment {
	words := " " + normalize(text) + " "

	reqType := c.rules.DefaultType
	for _, rule := range c.rules.TypeRules {
		if _, ok := firstMatch(words, rule.Keywords); ok {
			reqType = rule.Type
			break
		}
	}

	priority := c.rules.DefaultPriority
	reasoning := defaultReasoning
	for _, rule := range c.rules.PriorityRules {
		if keyword, ok := firstMatch(words, rule.Keywords); ok {
			priority = rule.Priority
			reasoning = fmt.Sprintf("Rule-based: keyword %q indicates %s priority", keyword, rule.Priority)
			break
		}
	}

	return requirement.Enrichment{
		RequirementType:     reqType,
		Priority:            priority,
		PriorityReasoning:   reasoning,
		RelatedDeliverables: []string{},
		TestCaseSuggestions: []string{testSuggestion(reqType)},
		Comments:            "Classified by keyword rules",
		Confidence:          Confidence,
		Source:              requirement.SourceRuleBased,
	}
}

// firstMatch returns the first keyword occurring as whole words in padded
func firstMatch(padded string, keywords []string) (string, bool) {
	for _, keyword := range keywords {
		k := normalize(keyword)
		if k == "" {
			continue
		}
		if strings.Contains(padded, " "+k+" ") {
			return keyword, true
		}
	}
	return "", false
}

func testSuggestion(t requirement.Type) string {
	switch t {
	case requirement.TypeNonFunctional:
		return "Measure the system against the stated quality threshold under representative load"
	case requirement.TypeUser:
		return "Walk through the user interaction and confirm the expected screen behavior"
	default:
		return "Verify the system behaves as described in the requirement"
	}
}

// normalize lowercases and reduces everything but letters and digits to single spaces
func normalize(s string) string {
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, s)
	return strings.Join(strings.Fields(mapped), " ")
}
