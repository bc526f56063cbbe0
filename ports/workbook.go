package ports

import (
	"io"

	"gortm/domain/requirement"
	"gortm/domain/workbook"
)

// WorkbookReader parses workbook bytes into tables
type WorkbookReader interface {
	ReadWorkbook(data []byte, fileName string) (*workbook.Workbook, error)
}

// MatrixWriter renders an assembled collection
type MatrixWriter interface {
	Write(collection *requirement.Collection, out io.Writer) error
}
