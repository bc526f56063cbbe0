package excel

// Output sheet titles
const (
	detailSheetPrefix = "Detailed Analysis - "
	completeSheetName = "Complete RTM - All Sheets"
	summarySheetName  = "Summary Statistics"

	// sheet names are limited to 31 characters
	maxSheetNameLength = 31
)

// column describes one column of a matrix sheet
type column struct {
	Header string
	Width  float64
	Wrap   bool
}
