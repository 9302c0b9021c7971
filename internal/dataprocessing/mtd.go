package dataprocessing

import (
	"bytes"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"wmsreports/internal/errors"
)

// MTDSheetName is the single sheet holding the month's accumulated sales
// rows.
const MTDSheetName = "Sales_Data"

// MTDMerger maintains the month-to-date workbook: one workbook per calendar
// month, mutated as a whole each run. Re-running a day replaces that day's
// rows; rows for other days keep their content and order.
type MTDMerger struct {
	logger *slog.Logger
}

// NewMTDMerger creates a merger.
func NewMTDMerger(logger *slog.Logger) *MTDMerger {
	if logger == nil {
		logger = slog.Default()
	}
	return &MTDMerger{logger: logger}
}

// Update merges the day's projected sales rows into the stored workbook.
// existing holds the previously persisted workbook bytes; pass nil when no
// workbook exists yet, and a fresh one is created with a header row.
//
// Any stored row whose order date falls on day is removed before the new
// rows are appended, which makes a re-run for the same day idempotent. A
// stored header that differs from the incoming column set is a
// *errors.WorkbookMergeConflict: the merge fails rather than mixing
// mismatched schemas.
func (m *MTDMerger) Update(complete Table, day time.Time, existing []byte) ([]byte, error) {
	target := day.Format("2006-01-02")

	var kept [][]string
	if len(existing) > 0 {
		var err error
		kept, err = m.surviveExisting(existing, complete.Columns, target)
		if err != nil {
			return nil, err
		}
	}

	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", MTDSheetName); err != nil {
		return nil, fmt.Errorf("name workbook sheet: %w", err)
	}

	header := make([]interface{}, len(complete.Columns))
	for i, c := range complete.Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(MTDSheetName, "A1", &header); err != nil {
		return nil, fmt.Errorf("write header row: %w", err)
	}

	line := 2
	for _, row := range kept {
		if err := m.writeLine(f, line, stringCells(complete.Columns, row)); err != nil {
			return nil, err
		}
		line++
	}
	for _, row := range complete.Rows {
		cells := make([]interface{}, len(complete.Columns))
		for i, col := range complete.Columns {
			cells[i] = cellValue(col, row.Get(col))
		}
		if err := m.writeLine(f, line, cells); err != nil {
			return nil, err
		}
		line++
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("serialize workbook: %w", err)
	}

	m.logger.Info("MTD workbook updated",
		slog.String("day", target),
		slog.Int("rows_kept", len(kept)),
		slog.Int("rows_appended", complete.Len()),
		slog.Int("rows_total", len(kept)+complete.Len()))

	return buf.Bytes(), nil
}

// surviveExisting loads the stored workbook, verifies its header against
// the incoming schema, and returns the data rows that do not belong to the
// target day, in their original order.
func (m *MTDMerger) surviveExisting(existing []byte, want []string, target string) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(existing))
	if err != nil {
		return nil, fmt.Errorf("open existing workbook: %w", err)
	}
	defer f.Close()

	if idx, err := f.GetSheetIndex(MTDSheetName); err != nil || idx < 0 {
		return nil, &errors.WorkbookMergeConflict{Sheet: MTDSheetName, Want: want}
	}
	rows, err := f.GetRows(MTDSheetName)
	if err != nil {
		return nil, fmt.Errorf("read existing workbook rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	if !equalHeader(rows[0], want) {
		return nil, &errors.WorkbookMergeConflict{Sheet: MTDSheetName, Want: want, Have: rows[0]}
	}

	dateIdx := -1
	for i, c := range want {
		if c == ColOrderDate {
			dateIdx = i
			break
		}
	}

	var kept [][]string
	removed := 0
	for _, row := range rows[1:] {
		if dateIdx >= 0 && dateIdx < len(row) && row[dateIdx] == target {
			removed++
			continue
		}
		kept = append(kept, row)
	}

	m.logger.Info("existing MTD rows scanned",
		slog.Int("stored_rows", len(rows)-1),
		slog.Int("removed_for_day", removed))

	return kept, nil
}

func (m *MTDMerger) writeLine(f *excelize.File, line int, cells []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, line)
	if err != nil {
		return fmt.Errorf("row %d coordinates: %w", line, err)
	}
	if err := f.SetSheetRow(MTDSheetName, cell, &cells); err != nil {
		return fmt.Errorf("write row %d: %w", line, err)
	}
	return nil
}

// cellValue writes quantity and value columns as numbers so the workbook
// stays usable for spreadsheet math; everything else stays text.
func cellValue(col, v string) interface{} {
	switch col {
	case ColSalesQty, ColSalesValue:
		if f, ok := parseNumeric(v); ok {
			return f
		}
	}
	return v
}

func stringCells(columns []string, row []string) []interface{} {
	cells := make([]interface{}, len(columns))
	for i := range columns {
		if i < len(row) {
			cells[i] = cellValue(columns[i], row[i])
		} else {
			cells[i] = ""
		}
	}
	return cells
}

func equalHeader(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
