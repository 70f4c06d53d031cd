package export

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
)

var errNoColumns = errors.New("listing has no columns")

// CSVExporter writes listings as comma separated values with a header row.
type CSVExporter struct {
	// Comma overrides the field separator; zero means ','.
	Comma rune
}

// NewCSVExporter builds a CSV exporter using the default separator.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Render returns the encoded listing.
func (e *CSVExporter) Render(data Dataset) ([]byte, error) {
	var buf bytes.Buffer
	if err := e.Write(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write streams the listing to w. Cells missing from a row are left empty.
func (e *CSVExporter) Write(w io.Writer, data Dataset) error {
	if len(data.Headers) == 0 {
		return fmt.Errorf("render csv: %w", errNoColumns)
	}
	writer := csv.NewWriter(w)
	if e.Comma != 0 {
		writer.Comma = e.Comma
	}
	if err := writer.Write(data.Headers); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	record := make([]string, len(data.Headers))
	for n, row := range data.Rows {
		for i, column := range data.Headers {
			record[i] = row[column]
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write csv row %d: %w", n+1, err)
		}
	}
	writer.Flush()
	return writer.Error()
}
