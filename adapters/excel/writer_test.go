package excel

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"gortm/domain/requirement"
	"gortm/internal/matrix"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sampleCollection(t *testing.T) *requirement.Collection {
	t.Helper()
	focus := "2- tool Requirements"
	generated := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	mk := func(id, sheet, text string, row int, source requirement.Source) requirement.Requirement {
		return requirement.Requirement{
			RawRequirement: requirement.RawRequirement{
				SourceSheet: sheet,
				SourceCell:  requirement.CellRef{Row: row, Column: 2},
				RawText:     text,
			},
			Enrichment: requirement.Enrichment{
				RequirementType:     requirement.TypeFunctional,
				Priority:            requirement.PriorityHigh,
				RelatedDeliverables: []string{"Portal", "API"},
				TestCaseSuggestions: []string{"Happy path", "Invalid input"},
				Confidence:          0.8,
				Source:              source,
			},
			RequirementID: "REQ-" + id,
			TestCaseID:    "TC-" + id,
			Status:        requirement.StatusNotTested,
			CreatedAt:     generated,
		}
	}
	reqs := []requirement.Requirement{
		mk("001", focus, "Travellers can book flights online", 2, requirement.SourceAI),
		mk("002", focus, "Bookings sync to the finance system", 3, requirement.SourceAI),
		mk("003", "3- Extras", "Receipts are stored for seven years", 2, requirement.SourceFallback),
	}
	summary, err := matrix.Summarize(reqs)
	require.NoError(t, err)
	return &requirement.Collection{
		Requirements: reqs,
		Summary:      summary,
		TotalCount:   len(reqs),
		Metadata: requirement.Metadata{
			RunID:       "run-1",
			FileName:    "project.xlsx",
			FocusSheet:  focus,
			GeneratedAt: generated,
		},
	}
}

func writeAndOpen(t *testing.T, coll *requirement.Collection) *excelize.File {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, NewMatrixWriter(DefaultWriterConfig()).Write(coll, &buf))
	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func TestWriteProducesThreeSheets(t *testing.T) {
	f := writeAndOpen(t, sampleCollection(t))

	assert.Equal(t, []string{
		"Detailed Analysis - 2- tool Req",
		"Complete RTM - All Sheets",
		"Summary Statistics",
	}, f.GetSheetList())
}

func TestWriteDetailSheetHoldsFocusRequirements(t *testing.T) {
	f := writeAndOpen(t, sampleCollection(t))

	rows, err := f.GetRows("Detailed Analysis - 2- tool Req")
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(rows), 3)

	assert.Equal(t, "Requirement ID", rows[0][0])
	assert.Len(t, rows[0], len(detailColumns))
	assert.Equal(t, "REQ-001", rows[1][0])
	assert.Equal(t, "Travellers can book flights online", rows[1][1])
	assert.Equal(t, "2- tool Requirements!B2", rows[1][2])
	assert.Equal(t, "Not Tested", rows[1][6])
	assert.Equal(t, "Portal, API", rows[1][7])
	assert.Equal(t, "TC-001", rows[1][8])
	assert.Equal(t, "Happy path\nInvalid input", rows[1][9])
	assert.Equal(t, "REQ-002", rows[2][0])

	info, err := f.GetCellValue("Detailed Analysis - 2- tool Req", "A5")
	require.NoError(t, err)
	assert.Equal(t, "Sheet Information:", info)

	validations, err := f.GetDataValidations("Detailed Analysis - 2- tool Req")
	require.NoError(t, err)
	require.Len(t, validations, 1)
	assert.Equal(t, "G2:G3", validations[0].Sqref)
}

func TestWriteCompleteSheetSeparatesSourceSheets(t *testing.T) {
	f := writeAndOpen(t, sampleCollection(t))

	sheet := "Complete RTM - All Sheets"
	ids := []string{}
	for _, ref := range []string{"A2", "A3", "A5"} {
		v, err := f.GetCellValue(sheet, ref)
		require.NoError(t, err)
		ids = append(ids, v)
	}
	assert.Equal(t, []string{"REQ-001", "REQ-002", "REQ-003"}, ids)

	separator, err := f.GetCellValue(sheet, "A4")
	require.NoError(t, err)
	assert.Equal(t, "--- 3- Extras ---", separator)

	reference, err := f.GetCellValue(sheet, "D5")
	require.NoError(t, err)
	assert.Equal(t, "B2", reference)
}

func TestWriteSummarySheet(t *testing.T) {
	f := writeAndOpen(t, sampleCollection(t))

	rows, err := f.GetRows("Summary Statistics")
	require.NoError(t, err)

	values := map[string][]string{}
	for _, row := range rows {
		if len(row) > 1 {
			values[row[0]] = row[1:]
		}
	}
	assert.Equal(t, "project.xlsx", values["Source File"][0])
	assert.Equal(t, "3", values["Total Requirements"][0])
	assert.Equal(t, "2", values["Focus Sheet Requirements"][0])
	assert.Equal(t, "1", values["Rule-based Fallback Used"][0])
	assert.Equal(t, []string{"2", "66.7%", "FOCUS SHEET"}, values["2- tool Requirements"])
	assert.Equal(t, []string{"1", "33.3%"}, values["3- Extras"])
}

func TestWriteEmptyCollection(t *testing.T) {
	summary, err := matrix.Summarize(nil)
	require.NoError(t, err)
	f := writeAndOpen(t, &requirement.Collection{Summary: summary, Metadata: requirement.Metadata{FocusSheet: "Reqs"}})

	assert.Len(t, f.GetSheetList(), 3)
}

func TestWriteRejectsNilCollection(t *testing.T) {
	var buf bytes.Buffer
	require.Error(t, NewMatrixWriter(DefaultWriterConfig()).Write(nil, &buf))
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "RTM_project.xlsx")
	require.NoError(t, NewMatrixWriter(DefaultWriterConfig()).WriteFile(sampleCollection(t), path))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	assert.Len(t, f.GetSheetList(), 3)
}

func TestDetailSheetName(t *testing.T) {
	assert.Equal(t, "Detailed Analysis - Reqs", detailSheetName("Reqs"))
	assert.Equal(t, "Detailed Analysis - a_b_c", detailSheetName("a/b?c"))
	assert.Equal(t, "Detailed Analysis", detailSheetName(""))
}
