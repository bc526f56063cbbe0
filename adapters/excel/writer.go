package excel

import (
	"fmt"
	"io"
	"os"
	"strings"

	"gortm/domain/requirement"
	"gortm/internal"
	"gortm/internal/errors"

	"github.com/xuri/excelize/v2"
)

var detailColumns = []column{
	{Header: "Requirement ID", Width: 15},
	{Header: "Requirement Description", Width: 60, Wrap: true},
	{Header: "Source", Width: 25},
	{Header: "Requirement Type", Width: 18},
	{Header: "Priority", Width: 12},
	{Header: "Priority Reasoning", Width: 40, Wrap: true},
	{Header: "Status", Width: 15},
	{Header: "Related Deliverables", Width: 40, Wrap: true},
	{Header: "Test Case ID", Width: 15},
	{Header: "Test Case Suggestions", Width: 50, Wrap: true},
	{Header: "Comments", Width: 40, Wrap: true},
	{Header: "Analysis Confidence", Width: 12},
	{Header: "Original ID", Width: 15},
	{Header: "Classification Source", Width: 15},
}

var completeColumns = []column{
	{Header: "Requirement ID", Width: 15},
	{Header: "Requirement Description", Width: 60, Wrap: true},
	{Header: "Source Sheet", Width: 25},
	{Header: "Source Reference", Width: 15},
	{Header: "Requirement Type", Width: 18},
	{Header: "Priority", Width: 12},
	{Header: "Status", Width: 15},
	{Header: "Related Deliverables", Width: 40, Wrap: true},
	{Header: "Test Case ID", Width: 15},
	{Header: "Comments", Width: 40, Wrap: true},
	{Header: "Original ID", Width: 15},
}

// MatrixWriter renders a requirement collection as a formatted traceability matrix workbook
type MatrixWriter struct {
	config WriterConfig
	logger *internal.Logger
}

// NewMatrixWriter creates a writer with the given styling
func NewMatrixWriter(config WriterConfig) *MatrixWriter {
	return &MatrixWriter{
		config: config,
		logger: internal.DefaultLogger.With("MatrixWriter"),
	}
}

type styleSet struct {
	header  int
	wrap    int
	plain   int
	bold    int
	title   int
	section int
	marker  int
}

// WriteFile renders the collection to path
func (w *MatrixWriter) WriteFile(collection *requirement.Collection, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create output file %s", path)
	}
	if err := w.Write(collection, file); err != nil {
		file.Close()
		os.Remove(path)
		return err
	}
	return file.Close()
}

// Write renders the collection as an xlsx workbook with detail, complete and summary sheets
func (w *MatrixWriter) Write(collection *requirement.Collection, out io.Writer) error {
	if collection == nil {
		return errors.InvalidInput("collection is required")
	}

	f := excelize.NewFile()
	defer f.Close()

	styles, err := w.newStyles(f)
	if err != nil {
		return errors.Wrap(err, "failed to create matrix styles")
	}

	detail := detailSheetName(collection.Metadata.FocusSheet)
	if err := f.SetSheetName("Sheet1", detail); err != nil {
		return errors.Wrap(err, "failed to name detail sheet")
	}
	for _, name := range []string{completeSheetName, summarySheetName} {
		if _, err := f.NewSheet(name); err != nil {
			return errors.Wrapf(err, "failed to create sheet %s", name)
		}
	}

	if err := w.writeDetailSheet(f, detail, collection, styles); err != nil {
		return err
	}
	if err := w.writeCompleteSheet(f, collection, styles); err != nil {
		return err
	}
	if err := w.writeSummarySheet(f, collection, styles); err != nil {
		return err
	}
	f.SetActiveSheet(0)

	if err := f.Write(out); err != nil {
		return errors.Wrap(err, "failed to write matrix workbook")
	}
	w.logger.Info("Matrix written (%d requirements, focus %q)", collection.TotalCount, collection.Metadata.FocusSheet)
	return nil
}

func (w *MatrixWriter) newStyles(f *excelize.File) (styleSet, error) {
	border := []excelize.Border{
		{Type: "left", Color: "000000", Style: 1},
		{Type: "top", Color: "000000", Style: 1},
		{Type: "right", Color: "000000", Style: 1},
		{Type: "bottom", Color: "000000", Style: 1},
	}
	definitions := []*excelize.Style{
		{
			Border:    border,
			Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{w.config.HeaderFill}},
			Font:      &excelize.Font{Bold: true, Color: w.config.HeaderFontColor, Family: w.config.FontFamily},
			Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center", WrapText: true},
		},
		{Border: border, Alignment: &excelize.Alignment{Vertical: "top", WrapText: true}},
		{Border: border, Alignment: &excelize.Alignment{Vertical: "top"}},
		{Font: &excelize.Font{Bold: true}},
		{Font: &excelize.Font{Bold: true, Size: 16}},
		{Font: &excelize.Font{Bold: true, Size: 14}},
		{Font: &excelize.Font{Bold: true, Color: "FF0000"}},
	}
	ids := make([]int, len(definitions))
	for i, def := range definitions {
		id, err := f.NewStyle(def)
		if err != nil {
			return styleSet{}, err
		}
		ids[i] = id
	}
	return styleSet{
		header:  ids[0],
		wrap:    ids[1],
		plain:   ids[2],
		bold:    ids[3],
		title:   ids[4],
		section: ids[5],
		marker:  ids[6],
	}, nil
}

// writeHeader writes the header row, column widths and the frozen pane
func (w *MatrixWriter) writeHeader(f *excelize.File, sheet string, columns []column, styles styleSet) error {
	headers := make([]interface{}, len(columns))
	for i, c := range columns {
		headers[i] = c.Header
		name, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(sheet, name, name, c.Width); err != nil {
			return err
		}
	}
	if err := f.SetSheetRow(sheet, "A1", &headers); err != nil {
		return err
	}
	last, _ := excelize.CoordinatesToCellName(len(columns), 1)
	if err := f.SetCellStyle(sheet, "A1", last, styles.header); err != nil {
		return err
	}
	return f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

func (w *MatrixWriter) writeRow(f *excelize.File, sheet string, row int, columns []column, values []interface{}, styles styleSet) error {
	cell, _ := excelize.CoordinatesToCellName(1, row)
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return err
	}
	for i, c := range columns {
		ref, _ := excelize.CoordinatesToCellName(i+1, row)
		style := styles.plain
		if c.Wrap {
			style = styles.wrap
		}
		if err := f.SetCellStyle(sheet, ref, ref, style); err != nil {
			return err
		}
	}
	return nil
}

// addStatusValidation restricts a status column to the known statuses
func (w *MatrixWriter) addStatusValidation(f *excelize.File, sheet string, col, firstRow, lastRow int) error {
	if lastRow < firstRow {
		return nil
	}
	name, _ := excelize.ColumnNumberToName(col)
	return addDropList(f, sheet, fmt.Sprintf("%s%d:%s%d", name, firstRow, name, lastRow))
}

func addDropList(f *excelize.File, sheet, sqref string) error {
	dv := excelize.NewDataValidation(true)
	dv.Sqref = sqref
	if err := dv.SetDropList(statusNames()); err != nil {
		return err
	}
	return f.AddDataValidation(sheet, dv)
}

func (w *MatrixWriter) writeDetailSheet(f *excelize.File, sheet string, collection *requirement.Collection, styles styleSet) error {
	if err := w.writeHeader(f, sheet, detailColumns, styles); err != nil {
		return errors.Wrapf(err, "failed to write header of %s", sheet)
	}

	focus := collection.FromSheet(collection.Metadata.FocusSheet)
	for i, r := range focus {
		values := []interface{}{
			r.RequirementID,
			r.RawText,
			r.Location(),
			string(r.RequirementType),
			string(r.Priority),
			r.PriorityReasoning,
			string(r.Status),
			strings.Join(r.RelatedDeliverables, ", "),
			r.TestCaseID,
			strings.Join(r.TestCaseSuggestions, "\n"),
			r.Comments,
			r.Confidence,
			r.OriginalID,
			sourceLabel(r.Source),
		}
		if err := w.writeRow(f, sheet, i+2, detailColumns, values, styles); err != nil {
			return errors.Wrapf(err, "failed to write row %d of %s", i+2, sheet)
		}
	}
	if err := w.addStatusValidation(f, sheet, 7, 2, len(focus)+1); err != nil {
		return errors.Wrap(err, "failed to add status validation")
	}

	info := len(focus) + 3
	lines := []string{
		"Sheet Information:",
		"Focus Sheet: " + collection.Metadata.FocusSheet,
		fmt.Sprintf("Total Requirements: %d", len(focus)),
		"Generated: " + collection.Metadata.GeneratedAt.Format("2006-01-02 15:04:05"),
	}
	for i, line := range lines {
		ref, _ := excelize.CoordinatesToCellName(1, info+i)
		if err := f.SetCellStr(sheet, ref, line); err != nil {
			return err
		}
	}
	first, _ := excelize.CoordinatesToCellName(1, info)
	return f.SetCellStyle(sheet, first, first, styles.bold)
}

// writeCompleteSheet lists every requirement in identifier order, with a separator row per source sheet
func (w *MatrixWriter) writeCompleteSheet(f *excelize.File, collection *requirement.Collection, styles styleSet) error {
	sheet := completeSheetName
	if err := w.writeHeader(f, sheet, completeColumns, styles); err != nil {
		return errors.Wrapf(err, "failed to write header of %s", sheet)
	}

	row := 2
	current := ""
	var statusCells []string
	for _, r := range collection.Requirements {
		if r.SourceSheet != current {
			if current != "" {
				start, _ := excelize.CoordinatesToCellName(1, row)
				end, _ := excelize.CoordinatesToCellName(len(completeColumns), row)
				if err := f.SetCellStr(sheet, start, "--- "+r.SourceSheet+" ---"); err != nil {
					return err
				}
				if err := f.MergeCell(sheet, start, end); err != nil {
					return err
				}
				if err := f.SetCellStyle(sheet, start, start, styles.bold); err != nil {
					return err
				}
				row++
			}
			current = r.SourceSheet
		}
		values := []interface{}{
			r.RequirementID,
			r.RawText,
			r.SourceSheet,
			r.SourceCell.A1(),
			string(r.RequirementType),
			string(r.Priority),
			string(r.Status),
			strings.Join(r.RelatedDeliverables, ", "),
			r.TestCaseID,
			r.Comments,
			r.OriginalID,
		}
		if err := w.writeRow(f, sheet, row, completeColumns, values, styles); err != nil {
			return errors.Wrapf(err, "failed to write row %d of %s", row, sheet)
		}
		ref, _ := excelize.CoordinatesToCellName(7, row)
		statusCells = append(statusCells, ref)
		row++
	}
	if len(statusCells) == 0 {
		return nil
	}
	if err := addDropList(f, sheet, strings.Join(statusCells, " ")); err != nil {
		return errors.Wrap(err, "failed to add status validation")
	}
	return nil
}

func (w *MatrixWriter) writeSummarySheet(f *excelize.File, collection *requirement.Collection, styles styleSet) error {
	sheet := summarySheetName
	s := collection.Summary
	total := s.TotalRequirements
	row := 1

	set := func(col int, value interface{}, style int) error {
		ref, _ := excelize.CoordinatesToCellName(col, row)
		if err := f.SetCellValue(sheet, ref, value); err != nil {
			return err
		}
		if style > 0 {
			return f.SetCellStyle(sheet, ref, ref, style)
		}
		return nil
	}
	percent := func(count int) string {
		if total == 0 {
			return "0.0%"
		}
		return fmt.Sprintf("%.1f%%", float64(count)/float64(total)*100)
	}
	section := func(title string, labels []string, counts []int) error {
		row += 2
		if err := set(1, title, styles.section); err != nil {
			return err
		}
		row++
		for i, label := range labels {
			if err := set(1, label, 0); err != nil {
				return err
			}
			if err := set(2, counts[i], 0); err != nil {
				return err
			}
			if err := set(3, percent(counts[i]), 0); err != nil {
				return err
			}
			if label == collection.Metadata.FocusSheet && title == "Requirements by Sheet" {
				if err := set(4, "FOCUS SHEET", styles.marker); err != nil {
					return err
				}
			}
			row++
		}
		return nil
	}

	if err := set(1, "Requirements Traceability Matrix - Summary", styles.title); err != nil {
		return err
	}
	row += 3
	if err := set(1, "General Statistics", styles.section); err != nil {
		return err
	}
	row++

	general := []struct {
		name  string
		value interface{}
	}{
		{"Source File", collection.Metadata.FileName},
		{"Total Requirements", total},
		{"Total Sheets Processed", len(s.SheetOrder)},
		{"Focus Sheet", collection.Metadata.FocusSheet},
		{"Focus Sheet Requirements", s.BySourceSheet[collection.Metadata.FocusSheet]},
		{"AI Analysis Used", s.BySource[requirement.SourceAI]},
		{"Rule-based Classification Used", s.BySource[requirement.SourceRuleBased]},
		{"Rule-based Fallback Used", s.BySource[requirement.SourceFallback]},
		{"Mean Confidence", round2(s.Confidence.Mean)},
		{"Median Confidence", round2(s.Confidence.Median)},
		{"Processing Date", collection.Metadata.GeneratedAt.Format("2006-01-02 15:04:05")},
	}
	for _, g := range general {
		if err := set(1, g.name, styles.bold); err != nil {
			return err
		}
		if err := set(2, g.value, 0); err != nil {
			return err
		}
		row++
	}

	var labels []string
	var counts []int
	for _, t := range requirement.Types {
		if n := s.ByType[t]; n > 0 {
			labels, counts = append(labels, string(t)), append(counts, n)
		}
	}
	if err := section("Requirements by Type", labels, counts); err != nil {
		return err
	}

	labels, counts = nil, nil
	for _, p := range requirement.Priorities {
		if n := s.ByPriority[p]; n > 0 {
			labels, counts = append(labels, string(p)), append(counts, n)
		}
	}
	if err := section("Requirements by Priority", labels, counts); err != nil {
		return err
	}

	labels, counts = nil, nil
	for _, name := range s.SheetOrder {
		labels, counts = append(labels, name), append(counts, s.BySourceSheet[name])
	}
	if err := section("Requirements by Sheet", labels, counts); err != nil {
		return err
	}

	for i, width := range []float64{35, 15, 12, 15} {
		name, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(sheet, name, name, width); err != nil {
			return err
		}
	}
	return nil
}

func detailSheetName(focus string) string {
	name := detailSheetPrefix + sanitizeSheetName(focus)
	if focus == "" {
		name = strings.TrimSuffix(detailSheetPrefix, " - ")
	}
	if r := []rune(name); len(r) > maxSheetNameLength {
		name = string(r[:maxSheetNameLength])
	}
	return strings.TrimSpace(name)
}

func sanitizeSheetName(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			return '_'
		}
		return r
	}, name)
}

func statusNames() []string {
	names := make([]string, len(requirement.Statuses))
	for i, s := range requirement.Statuses {
		names[i] = string(s)
	}
	return names
}

func sourceLabel(source requirement.Source) string {
	switch source {
	case requirement.SourceAI:
		return "AI"
	case requirement.SourceFallback:
		return "Rule-based (fallback)"
	default:
		return "Rule-based"
	}
}

func round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}
