package llm

import (
	"encoding/json"
	"testing"

	"gortm/domain/requirement"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(text, reqType, priority string, confidence float64) map[string]interface{} {
	return map[string]interface{}{
		"original_requirement":  text,
		"requirement_type":      reqType,
		"priority":              priority,
		"priority_reasoning":    "reason for " + text,
		"related_deliverables":  []string{"Portal"},
		"test_case_suggestions": []string{"Check " + text},
		"comments":              "",
		"analysis_confidence":   confidence,
	}
}

func encodeRecords(t *testing.T, wrap bool, records ...map[string]interface{}) string {
	t.Helper()
	var v interface{} = records
	if wrap {
		v = map[string]interface{}{"requirements": records}
	}
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return string(raw)
}

func TestParseClassificationAcceptsArrayAndWrapper(t *testing.T) {
	texts := []string{"The system shall export reports", "Pages load within 2 seconds"}
	records := []map[string]interface{}{
		record(texts[0], "Functional", "High", 0.9),
		record(texts[1], "Non-functional", "Medium", 0.8),
	}

	for _, wrap := range []bool{false, true} {
		out, err := parseClassification(encodeRecords(t, wrap, records...), texts)
		require.NoError(t, err)
		require.Len(t, out, 2)
		assert.Equal(t, requirement.TypeFunctional, out[0].RequirementType)
		assert.Equal(t, requirement.PriorityHigh, out[0].Priority)
		assert.Equal(t, requirement.TypeNonFunctional, out[1].RequirementType)
		assert.Equal(t, requirement.SourceAI, out[1].Source)
		assert.InDelta(t, 0.8, out[1].Confidence, 1e-9)
	}
}

func TestParseClassificationStripsMarkdownFence(t *testing.T) {
	texts := []string{"Users can reset their password"}
	content := "Here is the JSON:\n```json\n" + encodeRecords(t, true, record(texts[0], "User", "Low", 0.7)) + "\n```"

	out, err := parseClassification(content, texts)
	require.NoError(t, err)
	assert.Equal(t, requirement.TypeUser, out[0].RequirementType)
}

func TestParseClassificationRealignsReorderedRecords(t *testing.T) {
	texts := []string{"First requirement text", "Second  requirement\ntext", "Third requirement text"}
	content := encodeRecords(t, true,
		record("Third requirement text", "Technical", "Low", 0.6),
		record("First requirement text", "Business", "High", 0.9),
		record("Second requirement text", "User", "Medium", 0.7),
	)

	out, err := parseClassification(content, texts)
	require.NoError(t, err)
	assert.Equal(t, requirement.TypeBusiness, out[0].RequirementType)
	assert.Equal(t, requirement.TypeUser, out[1].RequirementType)
	assert.Equal(t, requirement.TypeTechnical, out[2].RequirementType)
}

func TestParseClassificationMatchesDuplicatesInOrder(t *testing.T) {
	texts := []string{"Same requirement", "Same requirement"}
	content := encodeRecords(t, false,
		record("Same requirement", "Functional", "High", 0.9),
		record("Same requirement", "Business", "Low", 0.4),
	)

	out, err := parseClassification(content, texts)
	require.NoError(t, err)
	assert.Equal(t, requirement.TypeFunctional, out[0].RequirementType)
	assert.Equal(t, requirement.TypeBusiness, out[1].RequirementType)
}

func TestParseClassificationRejectsDefects(t *testing.T) {
	texts := []string{"The system shall export reports"}
	valid := func() map[string]interface{} { return record(texts[0], "Functional", "High", 0.9) }

	tests := []struct {
		name    string
		content func() string
		errText string
	}{
		{"empty", func() string { return "  " }, "empty response"},
		{"not json", func() string { return "{not json" }, "malformed response object"},
		{"no requirements key", func() string { return `{"items": []}` }, "no requirements array"},
		{"count mismatch", func() string { return encodeRecords(t, true, valid(), valid()) }, "2 records for 1 requirements"},
		{"missing field", func() string {
			r := valid()
			delete(r, "analysis_confidence")
			return encodeRecords(t, true, r)
		}, "missing fields: analysis_confidence"},
		{"unexpected field", func() string {
			r := valid()
			r["rationale"] = "extra"
			return encodeRecords(t, true, r)
		}, "unexpected fields: rationale"},
		{"wrong field type", func() string {
			r := valid()
			r["related_deliverables"] = "Portal"
			return encodeRecords(t, true, r)
		}, "invalid field"},
		{"unknown type", func() string {
			return encodeRecords(t, true, record(texts[0], "Operational", "High", 0.9))
		}, "unknown requirement_type"},
		{"unknown priority", func() string {
			return encodeRecords(t, true, record(texts[0], "Functional", "Urgent", 0.9))
		}, "unknown priority"},
		{"confidence out of range", func() string {
			return encodeRecords(t, true, record(texts[0], "Functional", "High", 1.5))
		}, "outside [0,1]"},
		{"paraphrased text", func() string {
			return encodeRecords(t, true, record("The system exports reports", "Functional", "High", 0.9))
		}, "does not match any requirement"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := parseClassification(tt.content(), texts)
			require.Error(t, err)
			assert.Nil(t, out)
			assert.Contains(t, err.Error(), tt.errText)
		})
	}
}

func TestParseClassificationNormalizesLists(t *testing.T) {
	texts := []string{"Audit log retention"}
	r := record(texts[0], "non functional", "medium", 0.5)
	r["related_deliverables"] = nil
	r["test_case_suggestions"] = nil

	out, err := parseClassification(encodeRecords(t, true, r), texts)
	require.NoError(t, err)
	assert.Equal(t, requirement.TypeNonFunctional, out[0].RequirementType)
	assert.Equal(t, requirement.PriorityMedium, out[0].Priority)
	assert.NotNil(t, out[0].RelatedDeliverables)
	assert.Empty(t, out[0].RelatedDeliverables)
	assert.NotNil(t, out[0].TestCaseSuggestions)
}
