// Package exporter encodes processed tables into the byte artifacts the
// uploader persists. Artifacts stay in memory; object storage is the only
// destination.
package exporter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
	"time"

	"wmsreports/internal/dataprocessing"
)

// Artifact is one named output of a pipeline run, tagged with the logical
// key ("complete", "up", "hr", "mtd", ...) the uploader maps to a storage
// location.
type Artifact struct {
	Key         string
	Filename    string
	ContentType string
	Data        []byte
}

// EncodeOptions configures CSV encoding behavior.
type EncodeOptions struct {
	// BOMPrefix adds a UTF-8 BOM so Excel opens the file correctly.
	BOMPrefix bool
}

// EncodeTable renders a table as CSV bytes, header row first, columns in
// the table's declared order.
func EncodeTable(t dataprocessing.Table, options EncodeOptions) ([]byte, error) {
	var buf bytes.Buffer
	if options.BOMPrefix {
		buf.Write([]byte{0xEF, 0xBB, 0xBF})
	}

	w := csv.NewWriter(&buf)
	if err := w.Write(t.Columns); err != nil {
		return nil, fmt.Errorf("failed to write headers: %w", err)
	}
	record := make([]string, len(t.Columns))
	for i, row := range t.Rows {
		for j, col := range t.Columns {
			record[j] = row[col]
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// CSVArtifact encodes a table into a date-stamped CSV artifact. The
// filename contract is {BASENAME}{YYYYMMDD}.csv with the base name upper
// cased.
func CSVArtifact(key, basename string, day time.Time, t dataprocessing.Table) (Artifact, error) {
	data, err := EncodeTable(t, EncodeOptions{BOMPrefix: true})
	if err != nil {
		return Artifact{}, fmt.Errorf("encode %s: %w", key, err)
	}
	return Artifact{
		Key:         key,
		Filename:    StampName(basename, day) + ".csv",
		ContentType: "text/csv",
		Data:        data,
	}, nil
}

// WorkbookArtifact wraps already-serialized workbook bytes. The MTD
// workbook is named per month, not per day.
func WorkbookArtifact(key string, month time.Time, data []byte) Artifact {
	return Artifact{
		Key:         key,
		Filename:    MTDWorkbookName(month),
		ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		Data:        data,
	}
}

// StampName applies the {BASENAME}{YYYYMMDD} naming contract.
func StampName(basename string, day time.Time) string {
	return strings.ToUpper(basename) + day.Format("20060102")
}

// MTDWorkbookName returns the month's workbook filename, e.g.
// "Sep_Sales_Data_2026.xlsx".
func MTDWorkbookName(month time.Time) string {
	return fmt.Sprintf("%s_Sales_Data_%d.xlsx", month.Format("Jan"), month.Year())
}
