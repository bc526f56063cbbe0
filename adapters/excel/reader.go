package excel

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gortm/domain/workbook"
	"gortm/internal"
	"gortm/internal/errors"

	"github.com/xuri/excelize/v2"
)

// SheetReader turns workbook bytes into header-addressed tables.
// It handles both spreadsheet containers and CSV files.
type SheetReader struct {
	config ReaderConfig
	logger *internal.Logger
}

// NewSheetReader creates a reader with the given configuration
func NewSheetReader(config ReaderConfig) *SheetReader {
	if config.HeaderScanRows < 1 {
		config.HeaderScanRows = DefaultReaderConfig().HeaderScanRows
	}
	return &SheetReader{
		config: config,
		logger: internal.DefaultLogger.With("SheetReader"),
	}
}

// ReadFile reads a workbook from disk
func (r *SheetReader) ReadFile(path string) (*workbook.Workbook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.UnreadableWorkbook(filepath.Base(path), err)
	}
	return r.ReadWorkbook(data, filepath.Base(path))
}

// ReadWorkbook parses every sheet of the workbook in sheet order.
// The source bytes are never modified.
func (r *SheetReader) ReadWorkbook(data []byte, fileName string) (*workbook.Workbook, error) {
	if len(data) == 0 {
		return nil, errors.UnreadableWorkbook(fileName, fmt.Errorf("empty input"))
	}
	if strings.EqualFold(filepath.Ext(fileName), ".csv") {
		return r.readCSV(data, fileName)
	}
	return r.readSpreadsheet(data, fileName)
}

func (r *SheetReader) readSpreadsheet(data []byte, fileName string) (*workbook.Workbook, error) {
	startTime := time.Now()
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, errors.UnreadableWorkbook(fileName, err)
	}
	defer f.Close()
	r.logger.Debug("%s opened in %.2fms", fileName, float64(time.Since(startTime).Nanoseconds())/1e6)

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.UnreadableWorkbook(fileName, fmt.Errorf("workbook has no sheets"))
	}

	wb := &workbook.Workbook{FileName: fileName}
	for _, sheet := range sheets {
		grid, err := r.loadGrid(f, sheet)
		if err != nil {
			return nil, errors.UnreadableWorkbook(fileName, fmt.Errorf("sheet %q: %w", sheet, err))
		}
		table := r.buildTable(sheet, grid)
		r.logger.Info("Sheet %q read (header row %d, %d columns, %d rows)",
			sheet, table.HeaderRow, len(table.Headers), len(table.Rows))
		wb.Sheets = append(wb.Sheets, table)
	}
	return wb, nil
}

// loadGrid reads a sheet into a typed grid with merged regions expanded
func (r *SheetReader) loadGrid(f *excelize.File, sheet string) ([][]workbook.CellValue, error) {
	formatted, err := f.GetRows(sheet)
	if err != nil {
		return nil, err
	}
	raw, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, err
	}

	grid := make([][]workbook.CellValue, len(formatted))
	for i, row := range formatted {
		grid[i] = make([]workbook.CellValue, len(row))
		for j, text := range row {
			rawText := text
			if i < len(raw) && j < len(raw[i]) {
				rawText = raw[i][j]
			}
			grid[i][j] = r.cellValue(f, sheet, j+1, i+1, text, rawText)
		}
	}

	merges, err := f.GetMergeCells(sheet)
	if err != nil {
		return nil, err
	}
	for _, mc := range merges {
		grid, err = expandMerge(grid, mc.GetStartAxis(), mc.GetEndAxis())
		if err != nil {
			return nil, err
		}
	}
	return grid, nil
}

// cellValue derives the cell kind from the stored cell type and its raw value
func (r *SheetReader) cellValue(f *excelize.File, sheet string, col, row int, text, rawText string) workbook.CellValue {
	if strings.TrimSpace(text) == "" {
		return workbook.CellValue{Kind: workbook.KindEmpty}
	}
	ref, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return workbook.CellValue{Kind: workbook.KindString, Text: text}
	}
	cellType, err := f.GetCellType(sheet, ref)
	if err != nil {
		return workbook.CellValue{Kind: workbook.KindString, Text: text}
	}

	switch cellType {
	case excelize.CellTypeSharedString, excelize.CellTypeInlineString, excelize.CellTypeFormula,
		excelize.CellTypeBool, excelize.CellTypeError:
		return workbook.CellValue{Kind: workbook.KindString, Text: text}
	case excelize.CellTypeDate:
		if t, err := time.Parse(time.RFC3339, rawText); err == nil {
			return workbook.CellValue{Kind: workbook.KindDate, Text: text, Time: t}
		}
		return workbook.CellValue{Kind: workbook.KindDate, Text: text}
	}

	number, err := strconv.ParseFloat(rawText, 64)
	if err != nil {
		return workbook.CellValue{Kind: workbook.KindString, Text: text}
	}
	if hasDateFormat(f, sheet, ref) {
		if t, err := excelize.ExcelDateToTime(number, false); err == nil {
			return workbook.CellValue{Kind: workbook.KindDate, Text: text, Number: number, Time: t}
		}
	}
	return workbook.CellValue{Kind: workbook.KindNumber, Text: text, Number: number}
}

// hasDateFormat reports whether a numeric cell is formatted as a date or time
func hasDateFormat(f *excelize.File, sheet, ref string) bool {
	styleID, err := f.GetCellStyle(sheet, ref)
	if err != nil || styleID == 0 {
		return false
	}
	style, err := f.GetStyle(styleID)
	if err != nil {
		return false
	}
	switch {
	case style.NumFmt >= 14 && style.NumFmt <= 22, style.NumFmt >= 45 && style.NumFmt <= 47:
		return true
	case style.CustomNumFmt != nil:
		code := strings.ToLower(*style.CustomNumFmt)
		if i := strings.Index(code, "]"); strings.HasPrefix(code, "[") && i > 0 {
			code = code[i+1:]
		}
		return strings.ContainsAny(code, "yd") || strings.Contains(code, "h:mm") || strings.Contains(code, "mmm")
	}
	return false
}

// expandMerge copies the top-left value of a merged region into every cell of the region
func expandMerge(grid [][]workbook.CellValue, start, end string) ([][]workbook.CellValue, error) {
	c1, r1, err := excelize.CellNameToCoordinates(start)
	if err != nil {
		return grid, err
	}
	c2, r2, err := excelize.CellNameToCoordinates(end)
	if err != nil {
		return grid, err
	}
	if r1 > len(grid) {
		return grid, nil
	}
	top := grid[r1-1]
	if c1 > len(top) || top[c1-1].IsEmpty() {
		return grid, nil
	}
	value := top[c1-1]

	for len(grid) < r2 {
		grid = append(grid, nil)
	}
	for row := r1; row <= r2; row++ {
		for len(grid[row-1]) < c2 {
			grid[row-1] = append(grid[row-1], workbook.CellValue{Kind: workbook.KindEmpty})
		}
		for col := c1; col <= c2; col++ {
			grid[row-1][col-1] = value
		}
	}
	return grid, nil
}

func (r *SheetReader) readCSV(data []byte, fileName string) (*workbook.Workbook, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, errors.UnreadableWorkbook(fileName, err)
	}

	grid := make([][]workbook.CellValue, len(records))
	for i, record := range records {
		grid[i] = make([]workbook.CellValue, len(record))
		for j, text := range record {
			grid[i][j] = csvValue(text)
		}
	}

	sheet := strings.TrimSuffix(fileName, filepath.Ext(fileName))
	table := r.buildTable(sheet, grid)
	r.logger.Info("CSV %q read (header row %d, %d columns, %d rows)",
		fileName, table.HeaderRow, len(table.Headers), len(table.Rows))
	return &workbook.Workbook{FileName: fileName, Sheets: []*workbook.Table{table}}, nil
}

func csvValue(text string) workbook.CellValue {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return workbook.CellValue{Kind: workbook.KindEmpty}
	}
	if number, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return workbook.CellValue{Kind: workbook.KindNumber, Text: text, Number: number}
	}
	return workbook.CellValue{Kind: workbook.KindString, Text: text}
}

// buildTable locates the header row and converts the rows below it
func (r *SheetReader) buildTable(sheet string, grid [][]workbook.CellValue) *workbook.Table {
	table := &workbook.Table{SheetName: sheet}
	headerIdx := detectHeaderRow(grid, r.config.HeaderScanRows)
	if headerIdx < 0 {
		return table
	}

	width := 0
	for _, row := range grid {
		if len(row) > width {
			width = len(row)
		}
	}
	table.HeaderRow = headerIdx + 1
	table.Headers = normalizeHeaders(grid[headerIdx], width)

	for i := headerIdx + 1; i < len(grid); i++ {
		var cells []workbook.Cell
		for j, value := range grid[i] {
			if value.IsEmpty() {
				continue
			}
			cells = append(cells, workbook.Cell{Column: j + 1, Value: value})
		}
		if len(cells) == 0 {
			continue
		}
		table.Rows = append(table.Rows, workbook.NewRow(i+1, table.Headers, cells))
	}
	return table
}

// detectHeaderRow picks the row among the first scanRows with the most text cells.
// Earlier rows win ties. Returns -1 for an empty sheet.
func detectHeaderRow(grid [][]workbook.CellValue, scanRows int) int {
	best, bestCount := -1, -1
	for i := 0; i < len(grid) && i < scanRows; i++ {
		count := 0
		nonEmpty := false
		for _, v := range grid[i] {
			if v.IsEmpty() {
				continue
			}
			nonEmpty = true
			if v.Kind == workbook.KindString {
				count++
			}
		}
		if !nonEmpty {
			continue
		}
		if count > bestCount {
			best, bestCount = i, count
		}
	}
	return best
}

// normalizeHeaders names empty headers after their column and suffixes duplicates
func normalizeHeaders(row []workbook.CellValue, width int) []string {
	headers := make([]string, width)
	seen := make(map[string]int, width)
	for i := 0; i < width; i++ {
		name := ""
		if i < len(row) {
			name = strings.Join(strings.Fields(row[i].Text), " ")
		}
		if name == "" {
			name = "Column " + workbook.ColumnLetter(i+1)
		}
		candidate := name
		for n := 2; seen[candidate] > 0; n++ {
			candidate = fmt.Sprintf("%s (%d)", name, n)
		}
		seen[candidate]++
		name = candidate
		headers[i] = name
	}
	return headers
}
