package excel

// ReaderConfig holds configuration for workbook ingestion
type ReaderConfig struct {
	HeaderScanRows int `json:"header_scan_rows"`
}

// DefaultReaderConfig returns sensible defaults for workbook ingestion
func DefaultReaderConfig() ReaderConfig {
	return ReaderConfig{HeaderScanRows: 5}
}

// WriterConfig holds styling for the generated traceability matrix
type WriterConfig struct {
	HeaderFill      string `json:"header_fill"`
	HeaderFontColor string `json:"header_font_color"`
	FontFamily      string `json:"font_family"`
}

// DefaultWriterConfig returns the standard matrix styling
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		HeaderFill:      "366092",
		HeaderFontColor: "FFFFFF",
		FontFamily:      "Calibri",
	}
}
