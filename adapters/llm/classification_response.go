package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"gortm/ai"
	"gortm/domain/requirement"
)

// responseFields are the exact keys of one classification record
var responseFields = []string{
	"original_requirement",
	"requirement_type",
	"priority",
	"priority_reasoning",
	"related_deliverables",
	"test_case_suggestions",
	"comments",
	"analysis_confidence",
}

type classificationRecord struct {
	OriginalRequirement string   `json:"original_requirement"`
	RequirementType     string   `json:"requirement_type"`
	Priority            string   `json:"priority"`
	PriorityReasoning   string   `json:"priority_reasoning"`
	RelatedDeliverables []string `json:"related_deliverables"`
	TestCaseSuggestions []string `json:"test_case_suggestions"`
	Comments            string   `json:"comments"`
	AnalysisConfidence  float64  `json:"analysis_confidence"`
}

// parseClassification validates a model response against the batch it
// answers and returns enrichments in the order of texts. Any defect fails
// the whole batch.
func parseClassification(content string, texts []string) ([]requirement.Enrichment, error) {
	cleaned := ai.CleanJSONContent(content)
	if cleaned == "" {
		return nil, fmt.Errorf("empty response")
	}

	var records []json.RawMessage
	if strings.HasPrefix(cleaned, "[") {
		if err := json.Unmarshal([]byte(cleaned), &records); err != nil {
			return nil, fmt.Errorf("malformed response array: %w", err)
		}
	} else {
		var wrapper map[string]json.RawMessage
		if err := json.Unmarshal([]byte(cleaned), &wrapper); err != nil {
			return nil, fmt.Errorf("malformed response object: %w", err)
		}
		raw, ok := wrapper["requirements"]
		if !ok {
			return nil, fmt.Errorf("response object has no requirements array")
		}
		if err := json.Unmarshal(raw, &records); err != nil {
			return nil, fmt.Errorf("malformed requirements array: %w", err)
		}
	}

	if len(records) != len(texts) {
		return nil, fmt.Errorf("response has %d records for %d requirements", len(records), len(texts))
	}

	parsed := make([]classificationRecord, len(records))
	for i, raw := range records {
		rec, err := decodeRecord(raw)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		parsed[i] = rec
	}

	order, err := alignRecords(parsed, texts)
	if err != nil {
		return nil, err
	}

	out := make([]requirement.Enrichment, len(texts))
	for i, textIndex := range order {
		enrichment, err := parsed[i].enrichment()
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		out[textIndex] = enrichment
	}
	return out, nil
}

// decodeRecord requires exactly the expected keys with the expected JSON types
func decodeRecord(raw json.RawMessage) (classificationRecord, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return classificationRecord{}, fmt.Errorf("not an object: %w", err)
	}
	var missing []string
	for _, name := range responseFields {
		if _, ok := fields[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return classificationRecord{}, fmt.Errorf("missing fields: %s", strings.Join(missing, ", "))
	}
	if len(fields) != len(responseFields) {
		var extra []string
		for name := range fields {
			if !isResponseField(name) {
				extra = append(extra, name)
			}
		}
		sort.Strings(extra)
		return classificationRecord{}, fmt.Errorf("unexpected fields: %s", strings.Join(extra, ", "))
	}

	var rec classificationRecord
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&rec); err != nil {
		return classificationRecord{}, fmt.Errorf("invalid field: %w", err)
	}
	return rec, nil
}

func isResponseField(name string) bool {
	for _, f := range responseFields {
		if f == name {
			return true
		}
	}
	return false
}

// alignRecords maps each record to the text it repeats. order[i] is the text
// index of record i. Equal texts are matched in input order.
func alignRecords(records []classificationRecord, texts []string) ([]int, error) {
	pending := make(map[string][]int, len(texts))
	for i, t := range texts {
		key := alignmentKey(t)
		pending[key] = append(pending[key], i)
	}

	order := make([]int, len(records))
	for i, rec := range records {
		key := alignmentKey(rec.OriginalRequirement)
		queue := pending[key]
		if len(queue) == 0 {
			return nil, fmt.Errorf("record %d does not match any requirement in the batch: %q", i, truncate(rec.OriginalRequirement, 80))
		}
		order[i] = queue[0]
		pending[key] = queue[1:]
	}
	return order, nil
}

func alignmentKey(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func (r classificationRecord) enrichment() (requirement.Enrichment, error) {
	reqType, ok := requirement.ParseType(r.RequirementType)
	if !ok {
		return requirement.Enrichment{}, fmt.Errorf("unknown requirement_type %q", r.RequirementType)
	}
	priority, ok := requirement.ParsePriority(r.Priority)
	if !ok {
		return requirement.Enrichment{}, fmt.Errorf("unknown priority %q", r.Priority)
	}
	if r.AnalysisConfidence < 0 || r.AnalysisConfidence > 1 {
		return requirement.Enrichment{}, fmt.Errorf("analysis_confidence %v outside [0,1]", r.AnalysisConfidence)
	}

	return requirement.Enrichment{
		RequirementType:     reqType,
		Priority:            priority,
		PriorityReasoning:   strings.TrimSpace(r.PriorityReasoning),
		RelatedDeliverables: nonNil(r.RelatedDeliverables),
		TestCaseSuggestions: nonNil(r.TestCaseSuggestions),
		Comments:            strings.TrimSpace(r.Comments),
		Confidence:          r.AnalysisConfidence,
		Source:              requirement.SourceAI,
	}, nil
}

func nonNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}
