package excel

import (
	"testing"
	"time"

	"gortm/domain/workbook"
	"gortm/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// buildWorkbook writes an in-memory xlsx with the given sheets. Each sheet is
// populated by its callback.
func buildWorkbook(t *testing.T, sheets []string, fill func(f *excelize.File)) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	require.NoError(t, f.SetSheetName("Sheet1", sheets[0]))
	for _, name := range sheets[1:] {
		_, err := f.NewSheet(name)
		require.NoError(t, err)
	}
	fill(f)

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestReadWorkbookDetectsHeaderBelowTitle(t *testing.T) {
	data := buildWorkbook(t, []string{"Requirements"}, func(f *excelize.File) {
		require.NoError(t, f.SetCellValue("Requirements", "A1", "Project Requirements"))
		require.NoError(t, f.SetSheetRow("Requirements", "A3", &[]interface{}{"ID", "Requirement", "Estimate"}))
		require.NoError(t, f.SetSheetRow("Requirements", "A4", &[]interface{}{"R-1", "Users can export monthly reports", 5}))
		require.NoError(t, f.SetSheetRow("Requirements", "A5", &[]interface{}{"R-2", "Pages load within two seconds", 3}))
	})

	wb, err := NewSheetReader(DefaultReaderConfig()).ReadWorkbook(data, "reqs.xlsx")
	require.NoError(t, err)
	require.Len(t, wb.Sheets, 1)

	table := wb.Sheets[0]
	assert.Equal(t, 3, table.HeaderRow)
	assert.Equal(t, []string{"ID", "Requirement", "Estimate"}, table.Headers)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, 4, table.Rows[0].Index)

	cell, ok := table.Rows[0].Value("Requirement")
	require.True(t, ok)
	assert.Equal(t, workbook.KindString, cell.Value.Kind)
	assert.Equal(t, "Users can export monthly reports", cell.Value.Text)
	assert.Equal(t, 2, cell.Column)

	estimate, ok := table.Rows[0].Value("Estimate")
	require.True(t, ok)
	assert.Equal(t, workbook.KindNumber, estimate.Value.Kind)
	assert.Equal(t, 5.0, estimate.Value.Number)
}

func TestReadWorkbookKeepsSheetOrder(t *testing.T) {
	names := []string{"1- Overview", "2- tool Requirements", "3- Extras"}
	data := buildWorkbook(t, names, func(f *excelize.File) {
		for _, name := range names {
			require.NoError(t, f.SetCellValue(name, "A1", "Requirement"))
			require.NoError(t, f.SetCellValue(name, "A2", "Requirement text for "+name))
		}
	})

	wb, err := NewSheetReader(DefaultReaderConfig()).ReadWorkbook(data, "book.xlsx")
	require.NoError(t, err)
	assert.Equal(t, names, wb.SheetNames())
	assert.Equal(t, "book.xlsx", wb.FileName)
}

func TestReadWorkbookExpandsMergedCells(t *testing.T) {
	data := buildWorkbook(t, []string{"Reqs"}, func(f *excelize.File) {
		require.NoError(t, f.SetSheetRow("Reqs", "A1", &[]interface{}{"Module", "Requirement"}))
		require.NoError(t, f.SetCellValue("Reqs", "A2", "Authentication"))
		require.NoError(t, f.MergeCell("Reqs", "A2", "A3"))
		require.NoError(t, f.SetCellValue("Reqs", "B2", "Users log in with SSO"))
		require.NoError(t, f.SetCellValue("Reqs", "B3", "Sessions expire after 30 minutes"))
	})

	wb, err := NewSheetReader(DefaultReaderConfig()).ReadWorkbook(data, "merged.xlsx")
	require.NoError(t, err)
	table := wb.Sheets[0]
	require.Len(t, table.Rows, 2)

	for _, row := range table.Rows {
		cell, ok := row.Value("Module")
		require.True(t, ok, "row %d", row.Index)
		assert.Equal(t, "Authentication", cell.Value.Text)
	}
}

func TestReadWorkbookDetectsDates(t *testing.T) {
	due := time.Date(2024, 5, 17, 0, 0, 0, 0, time.UTC)
	data := buildWorkbook(t, []string{"Reqs"}, func(f *excelize.File) {
		require.NoError(t, f.SetSheetRow("Reqs", "A1", &[]interface{}{"Requirement", "Due"}))
		require.NoError(t, f.SetCellValue("Reqs", "A2", "Invoices are archived nightly"))
		require.NoError(t, f.SetCellValue("Reqs", "B2", due))
	})

	wb, err := NewSheetReader(DefaultReaderConfig()).ReadWorkbook(data, "dates.xlsx")
	require.NoError(t, err)
	cell, ok := wb.Sheets[0].Rows[0].Value("Due")
	require.True(t, ok)
	assert.Equal(t, workbook.KindDate, cell.Value.Kind)
}

func TestReadWorkbookNormalizesHeaders(t *testing.T) {
	data := buildWorkbook(t, []string{"Reqs"}, func(f *excelize.File) {
		require.NoError(t, f.SetCellValue("Reqs", "A1", "Requirement"))
		require.NoError(t, f.SetCellValue("Reqs", "C1", "Requirement"))
		require.NoError(t, f.SetCellValue("Reqs", "D1", "  Owner\nName "))
		require.NoError(t, f.SetCellValue("Reqs", "A2", "The system exports reports"))
	})

	wb, err := NewSheetReader(DefaultReaderConfig()).ReadWorkbook(data, "headers.xlsx")
	require.NoError(t, err)
	assert.Equal(t, []string{"Requirement", "Column B", "Requirement (2)", "Owner Name"}, wb.Sheets[0].Headers)
}

func TestReadWorkbookEmptySheet(t *testing.T) {
	data := buildWorkbook(t, []string{"Blank", "Reqs"}, func(f *excelize.File) {
		require.NoError(t, f.SetCellValue("Reqs", "A1", "Requirement"))
	})

	wb, err := NewSheetReader(DefaultReaderConfig()).ReadWorkbook(data, "blank.xlsx")
	require.NoError(t, err)
	require.Len(t, wb.Sheets, 2)
	assert.Equal(t, 0, wb.Sheets[0].HeaderRow)
	assert.Empty(t, wb.Sheets[0].Headers)
	assert.Empty(t, wb.Sheets[1].Rows)
}

func TestReadWorkbookCSV(t *testing.T) {
	data := []byte("ID,Requirement,Points\nR1,\"Users can export reports, monthly\",3\nR2,,\n")

	wb, err := NewSheetReader(DefaultReaderConfig()).ReadWorkbook(data, "backlog.CSV")
	require.NoError(t, err)
	require.Len(t, wb.Sheets, 1)

	table := wb.Sheets[0]
	assert.Equal(t, "backlog", table.SheetName)
	assert.Equal(t, []string{"ID", "Requirement", "Points"}, table.Headers)
	require.Len(t, table.Rows, 2)

	cell, ok := table.Rows[0].Value("Requirement")
	require.True(t, ok)
	assert.Equal(t, "Users can export reports, monthly", cell.Value.Text)
	points, _ := table.Rows[0].Value("Points")
	assert.Equal(t, workbook.KindNumber, points.Value.Kind)

	_, ok = table.Rows[1].Value("Requirement")
	assert.False(t, ok)
}

func TestReadWorkbookRejectsUnreadableInput(t *testing.T) {
	reader := NewSheetReader(ReaderConfig{})

	_, err := reader.ReadWorkbook(nil, "empty.xlsx")
	assert.True(t, errors.HasCode(err, errors.CodeUnreadableWorkbook))

	_, err = reader.ReadWorkbook([]byte("definitely not a zip archive"), "garbage.xlsx")
	assert.True(t, errors.HasCode(err, errors.CodeUnreadableWorkbook))

	_, err = reader.ReadFile("/nonexistent/path/book.xlsx")
	assert.True(t, errors.HasCode(err, errors.CodeUnreadableWorkbook))
}

func TestReadWorkbookDoesNotModifyInput(t *testing.T) {
	data := buildWorkbook(t, []string{"Reqs"}, func(f *excelize.File) {
		require.NoError(t, f.SetCellValue("Reqs", "A1", "Requirement"))
		require.NoError(t, f.SetCellValue("Reqs", "A2", "Users can export monthly reports"))
	})
	original := append([]byte(nil), data...)

	_, err := NewSheetReader(DefaultReaderConfig()).ReadWorkbook(data, "reqs.xlsx")
	require.NoError(t, err)
	assert.Equal(t, original, data)
}
