// Package extraction locates requirement rows in heterogeneous sheet layouts.
package extraction

import (
	"strings"
	"unicode/utf8"

	"gortm/domain/requirement"
	"gortm/domain/rules"
	"gortm/domain/workbook"
	"gortm/internal"
	"gortm/internal/errors"
)

// Config holds extraction thresholds
type Config struct {
	FocusSheet    string
	MinSubstance  int
	RoleThreshold float64
}

// DefaultConfig returns the standard extraction thresholds
func DefaultConfig() Config {
	return Config{
		FocusSheet:    "2- tool Requirements",
		MinSubstance:  10,
		RoleThreshold: 0.5,
	}
}

// Options select which sheets of a workbook are processed
type Options struct {
	FocusSheet       string // overrides Config.FocusSheet when set
	IncludeAllSheets bool
}

// Result is the ordered extraction output of one workbook
type Result struct {
	Requirements []requirement.RawRequirement
	Sheets       []requirement.SheetReport
	FocusSheet   string // resolved sheet name, or the requested name when absent
	FocusFound   bool
}

// Extractor turns tables into raw requirements
type Extractor struct {
	config Config
	rules  *rules.Set
	logger *internal.Logger
}

// NewExtractor creates an extractor. A nil rule set selects rules.Default().
func NewExtractor(config Config, set *rules.Set) *Extractor {
	if set == nil {
		set = rules.Default()
	}
	if config.MinSubstance < 1 {
		config.MinSubstance = DefaultConfig().MinSubstance
	}
	if config.RoleThreshold <= 0 {
		config.RoleThreshold = DefaultConfig().RoleThreshold
	}
	return &Extractor{
		config: config,
		rules:  set,
		logger: internal.DefaultLogger.With("Extractor"),
	}
}

// ExtractWorkbook extracts requirements with the focus sheet first, then the
// remaining selected sheets in workbook order.
func (e *Extractor) ExtractWorkbook(wb *workbook.Workbook, opts Options) (*Result, error) {
	if wb == nil {
		return nil, errors.InvalidInput("workbook is required")
	}
	focusName := opts.FocusSheet
	if focusName == "" {
		focusName = e.config.FocusSheet
	}

	result := &Result{FocusSheet: focusName}
	focus := ResolveSheet(wb, focusName)
	if focus != nil {
		result.FocusSheet = focus.SheetName
		result.FocusFound = true
		raws, report := e.ExtractTable(focus, true)
		result.Requirements = append(result.Requirements, raws...)
		result.Sheets = append(result.Sheets, report)
	} else {
		e.logger.Warn("Focus sheet %q not found in %s (sheets: %s)",
			focusName, wb.FileName, strings.Join(wb.SheetNames(), ", "))
	}

	for _, table := range wb.Sheets {
		if table == focus {
			continue
		}
		if !opts.IncludeAllSheets {
			result.Sheets = append(result.Sheets, requirement.SheetReport{
				Sheet:  table.SheetName,
				Status: requirement.SheetNotSelected,
			})
			continue
		}
		raws, report := e.ExtractTable(table, false)
		result.Requirements = append(result.Requirements, raws...)
		result.Sheets = append(result.Sheets, report)
	}

	e.logger.Info("Extracted %d requirements from %s (%d sheets)", len(result.Requirements), wb.FileName, len(wb.Sheets))
	return result, nil
}

// ExtractTable returns the qualifying rows of one table in row order.
// A focus table without a detected description column falls back to the
// column holding the most substantive text.
func (e *Extractor) ExtractTable(table *workbook.Table, isFocus bool) ([]requirement.RawRequirement, requirement.SheetReport) {
	report := requirement.SheetReport{Sheet: table.SheetName, IsFocus: isFocus}
	roles, ties := e.detectRoles(table.Headers)

	description, ok := roles.Header(requirement.RoleDescription)
	if !ok && len(ties) > 0 {
		description = e.mostSubstantive(table, ties)
		ok = description != ""
		if ok {
			roles.Roles[requirement.RoleDescription] = description
			roles.Ambiguous = removeRole(roles.Ambiguous, requirement.RoleDescription)
			e.logger.Debug("Sheet %q: description tie resolved by content to %q", table.SheetName, description)
		}
	}
	if !ok && isFocus {
		all := make([]candidate, len(table.Headers))
		for i, h := range table.Headers {
			all[i] = candidate{header: h, column: i + 1}
		}
		description = e.mostSubstantive(table, all)
		ok = description != ""
		if ok {
			e.logger.Info("Sheet %q: no description header, using content column %q", table.SheetName, description)
		}
	}
	report.Roles = roles

	if !ok {
		report.Status = requirement.SheetNoRequirements
		report.Reason = "no requirements detected: no description column"
		e.logger.Info("Sheet %q skipped: no description column among %d headers", table.SheetName, len(table.Headers))
		return nil, report
	}
	report.DescriptionColumn = description
	column := table.Column(description)
	idHeader, hasID := roles.Header(requirement.RoleID)

	var raws []requirement.RawRequirement
	previous := ""
	for _, row := range table.Rows {
		cell, found := row.Value(description)
		if !found {
			continue
		}
		text, qualifies := e.qualifyingText(cell.Value, table.Headers)
		if !qualifies || text == previous {
			continue
		}
		previous = text

		raw := requirement.RawRequirement{
			SourceSheet: table.SheetName,
			SourceCell:  requirement.CellRef{Row: row.Index, Column: column},
			RawText:     text,
		}
		if hasID {
			if idCell, found := row.Value(idHeader); found {
				raw.OriginalID = strings.TrimSpace(idCell.Value.Text)
			}
		}
		raws = append(raws, raw)
	}

	report.Count = len(raws)
	if len(raws) == 0 {
		report.Status = requirement.SheetNoRequirements
		report.Reason = "no requirements detected: no qualifying rows"
		e.logger.Info("Sheet %q: no qualifying rows in column %q", table.SheetName, description)
		return nil, report
	}
	report.Status = requirement.SheetProcessed
	e.logger.Debug("Sheet %q: %d requirements from column %q", table.SheetName, len(raws), description)
	return raws, report
}

// qualifyingText returns the trimmed text of a substantive, non-header text cell
func (e *Extractor) qualifyingText(value workbook.CellValue, headers []string) (string, bool) {
	if value.Kind != workbook.KindString {
		return "", false
	}
	text := strings.TrimSpace(value.Text)
	if utf8.RuneCountInString(text) < e.config.MinSubstance {
		return "", false
	}
	for _, h := range headers {
		if strings.EqualFold(text, h) {
			return "", false
		}
	}
	return text, true
}

// mostSubstantive returns the candidate header with the most qualifying cells.
// Leftmost wins ties; empty when no candidate has any.
func (e *Extractor) mostSubstantive(table *workbook.Table, cands []candidate) string {
	best, bestCount := "", 0
	for _, c := range cands {
		count := 0
		for _, row := range table.Rows {
			if cell, ok := row.Value(c.header); ok {
				if _, q := e.qualifyingText(cell.Value, table.Headers); q {
					count++
				}
			}
		}
		if count > bestCount {
			best, bestCount = c.header, count
		}
	}
	return best
}

// ResolveSheet finds a sheet by exact name, then ignoring case and whitespace
func ResolveSheet(wb *workbook.Workbook, name string) *workbook.Table {
	if table, ok := wb.Sheet(name); ok {
		return table
	}
	key := foldName(name)
	for _, table := range wb.Sheets {
		if foldName(table.SheetName) == key {
			return table
		}
	}
	return nil
}

func foldName(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), ""))
}

func removeRole(roles []requirement.Role, target requirement.Role) []requirement.Role {
	var out []requirement.Role
	for _, r := range roles {
		if r != target {
			out = append(out, r)
		}
	}
	return out
}
