package workbook

import (
	"strings"
	"time"
)

// CellKind identifies the kind of value held by a cell
type CellKind string

const (
	KindEmpty  CellKind = "empty"
	KindString CellKind = "string"
	KindNumber CellKind = "number"
	KindDate   CellKind = "date"
)

// CellValue is a typed cell value. Text always carries the cell's displayed text.
type CellValue struct {
	Kind   CellKind  `json:"kind"`
	Text   string    `json:"text"`
	Number float64   `json:"number,omitempty"`
	Time   time.Time `json:"time,omitempty"`
}

// IsEmpty reports whether the cell has no content
func (v CellValue) IsEmpty() bool {
	return v.Kind == KindEmpty || strings.TrimSpace(v.Text) == ""
}

// Cell is one cell of a data row
type Cell struct {
	Column int       `json:"column"` // 1-based
	Value  CellValue `json:"value"`
}

// Row is a data row below the header row
type Row struct {
	Index  int            `json:"index"` // 1-based sheet row
	Cells  []Cell         `json:"cells"`
	lookup map[string]int // header -> position in Cells
}

// NewRow builds a row whose cells are addressable by header.
// headers[i] names the cell in column i+1.
func NewRow(index int, headers []string, cells []Cell) Row {
	r := Row{
		Index:  index,
		Cells:  cells,
		lookup: make(map[string]int, len(cells)),
	}
	for i, c := range cells {
		if c.Column >= 1 && c.Column <= len(headers) {
			r.lookup[headers[c.Column-1]] = i
		}
	}
	return r
}

// Value returns the cell under the given header
func (r Row) Value(header string) (Cell, bool) {
	i, ok := r.lookup[header]
	if !ok {
		return Cell{}, false
	}
	return r.Cells[i], true
}

// Table is one sheet as header-addressed rows. Immutable after load.
type Table struct {
	SheetName string   `json:"sheet_name"`
	Headers   []string `json:"headers"`
	HeaderRow int      `json:"header_row"` // 1-based, 0 when the sheet is empty
	Rows      []Row    `json:"rows"`
}

// Column returns the 1-based column of a header, or 0
func (t *Table) Column(header string) int {
	for i, h := range t.Headers {
		if h == header {
			return i + 1
		}
	}
	return 0
}

// Workbook holds the tables of a workbook in sheet order
type Workbook struct {
	FileName string   `json:"file_name"`
	Sheets   []*Table `json:"sheets"`
}

// SheetNames returns sheet names in workbook order
func (w *Workbook) SheetNames() []string {
	names := make([]string, len(w.Sheets))
	for i, s := range w.Sheets {
		names[i] = s.SheetName
	}
	return names
}

// Sheet returns the table with the exact given name
func (w *Workbook) Sheet(name string) (*Table, bool) {
	for _, s := range w.Sheets {
		if s.SheetName == name {
			return s, true
		}
	}
	return nil, false
}

// ColumnLetter converts a 1-based column index to its spreadsheet letter (1 -> A, 27 -> AA)
func ColumnLetter(col int) string {
	result := ""
	for col > 0 {
		col--
		result = string(rune('A'+(col%26))) + result
		col /= 26
	}
	return result
}
