package run

import (
	"encoding/json"
	"testing"
	"time"

	"gortm/domain/requirement"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprintDependsOnEveryInput(t *testing.T) {
	base := Fingerprint([]byte("workbook"), "Reqs", false, "rule_based")
	assert.Len(t, base, 64)
	assert.Equal(t, base, Fingerprint([]byte("workbook"), "Reqs", false, "rule_based"))

	assert.NotEqual(t, base, Fingerprint([]byte("workbook2"), "Reqs", false, "rule_based"))
	assert.NotEqual(t, base, Fingerprint([]byte("workbook"), "Other", false, "rule_based"))
	assert.NotEqual(t, base, Fingerprint([]byte("workbook"), "Reqs", true, "rule_based"))
	assert.NotEqual(t, base, Fingerprint([]byte("workbook"), "Reqs", false, "ai:model"))
}

func TestRunTransitions(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	r := NewRun("id", "file", "reqs.xlsx", "Reqs", true, "fp", now)
	assert.Equal(t, StatusPending, r.Status)
	assert.False(t, r.Finished())

	summary := requirement.Summary{
		TotalRequirements: 5,
		BySource:          map[requirement.Source]int{requirement.SourceFallback: 2},
	}
	r.Complete(summary, "RTM_reqs.xlsx", now.Add(time.Minute))
	assert.True(t, r.Finished())
	assert.Equal(t, 5, r.TotalRequirements)
	assert.Equal(t, 2, r.FallbackCount)
	require.NotNil(t, r.CompletedAt)

	failed := NewRun("id2", "file", "reqs.xlsx", "Reqs", false, "fp", now)
	failed.Fail("UNREADABLE_WORKBOOK", "bad zip", now)
	assert.Equal(t, StatusFailed, failed.Status)
	assert.Equal(t, "UNREADABLE_WORKBOOK", failed.ErrorCode)
}

func TestSummaryJSONColumn(t *testing.T) {
	empty := SummaryJSON{}
	v, err := empty.Value()
	require.NoError(t, err)
	assert.Nil(t, v)

	s := SummaryJSON{Summary: &requirement.Summary{TotalRequirements: 3, SheetOrder: []string{"Reqs"}}}
	v, err = s.Value()
	require.NoError(t, err)

	var scanned SummaryJSON
	require.NoError(t, scanned.Scan(v))
	require.NotNil(t, scanned.Summary)
	assert.Equal(t, 3, scanned.Summary.TotalRequirements)

	require.NoError(t, scanned.Scan(nil))
	assert.Nil(t, scanned.Summary)
	assert.Error(t, scanned.Scan(42))

	raw, err := json.Marshal(Run{ID: "x"})
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"summary":null`)
}
