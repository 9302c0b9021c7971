package dataprocessing

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	wmserrors "wmsreports/internal/errors"
)

func salesTable(rows ...[3]string) Table {
	t := NewTable(salesColumns...)
	for _, r := range rows {
		t.Append(Row{
			ColMerge:          "UP108_KUM_LS1" + r[0],
			ColWarehouse:      "UP108_KUM_LS1",
			ColSKUCode:        r[0],
			ColSKUDescription: "desc " + r[0],
			ColOrderDate:      r[1],
			ColSKUCategory:    "FMCG",
			ColSKUSubCategory: "Staples",
			ColSalesQty:       r[2],
			ColSalesValue:     "10",
		})
	}
	return t
}

func workbookRows(t *testing.T, data []byte) [][]string {
	t.Helper()
	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(MTDSheetName)
	require.NoError(t, err)
	return rows
}

func TestMTDMerger_CreatesFreshWorkbook(t *testing.T) {
	m := NewMTDMerger(nil)
	day := time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)

	data, err := m.Update(salesTable([3]string{"A1", "2026-08-25", "5"}), day, nil)
	require.NoError(t, err)

	rows := workbookRows(t, data)
	require.Len(t, rows, 2)
	assert.Equal(t, salesColumns, rows[0])
	assert.Equal(t, "A1", rows[1][2])
}

func TestMTDMerger_ReplacesSameDayRows(t *testing.T) {
	m := NewMTDMerger(nil)
	day := time.Date(2026, 8, 5, 0, 0, 0, 0, time.UTC)

	first, err := m.Update(salesTable(
		[3]string{"A1", "2026-08-05", "5"},
		[3]string{"B2", "2026-08-05", "2"},
		[3]string{"C3", "2026-08-05", "1"},
	), day, nil)
	require.NoError(t, err)
	require.Len(t, workbookRows(t, first), 4)

	// Re-running the same day with a corrected extract replaces all three
	// stored rows, never appends alongside them.
	second, err := m.Update(salesTable(
		[3]string{"A1", "2026-08-05", "6"},
		[3]string{"B2", "2026-08-05", "2"},
		[3]string{"C3", "2026-08-05", "1"},
		[3]string{"D4", "2026-08-05", "9"},
		[3]string{"E5", "2026-08-05", "3"},
	), day, first)
	require.NoError(t, err)

	rows := workbookRows(t, second)
	require.Len(t, rows, 6)
	assert.Equal(t, "A1", rows[1][2])
	assert.Equal(t, "6", rows[1][7])
}

func TestMTDMerger_KeepsOtherDaysInOrder(t *testing.T) {
	m := NewMTDMerger(nil)

	day4 := time.Date(2026, 8, 4, 0, 0, 0, 0, time.UTC)
	day5 := time.Date(2026, 8, 5, 0, 0, 0, 0, time.UTC)

	first, err := m.Update(salesTable([3]string{"A1", "2026-08-04", "5"}), day4, nil)
	require.NoError(t, err)

	second, err := m.Update(salesTable([3]string{"B2", "2026-08-05", "2"}), day5, first)
	require.NoError(t, err)

	rows := workbookRows(t, second)
	require.Len(t, rows, 3)
	assert.Equal(t, "A1", rows[1][2])
	assert.Equal(t, "B2", rows[2][2])

	// Re-running day 5 leaves day 4 untouched.
	third, err := m.Update(salesTable([3]string{"B2", "2026-08-05", "3"}), day5, second)
	require.NoError(t, err)

	rows = workbookRows(t, third)
	require.Len(t, rows, 3)
	assert.Equal(t, "A1", rows[1][2])
	assert.Equal(t, "3", rows[2][7])
}

func TestMTDMerger_IsIdempotent(t *testing.T) {
	m := NewMTDMerger(nil)
	day := time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)
	table := salesTable(
		[3]string{"A1", "2026-08-25", "5"},
		[3]string{"B2", "2026-08-25", "2"},
	)

	first, err := m.Update(table, day, nil)
	require.NoError(t, err)
	second, err := m.Update(table, day, first)
	require.NoError(t, err)
	third, err := m.Update(table, day, second)
	require.NoError(t, err)

	assert.Equal(t, workbookRows(t, second), workbookRows(t, third))
}

func TestMTDMerger_HeaderMismatchIsConflict(t *testing.T) {
	m := NewMTDMerger(nil)
	day := time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)

	f := excelize.NewFile()
	require.NoError(t, f.SetSheetName("Sheet1", MTDSheetName))
	header := []interface{}{"Completely", "Different", "Schema"}
	require.NoError(t, f.SetSheetRow(MTDSheetName, "A1", &header))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = m.Update(salesTable([3]string{"A1", "2026-08-25", "5"}), day, buf.Bytes())
	require.Error(t, err)

	var conflict *wmserrors.WorkbookMergeConflict
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, MTDSheetName, conflict.Sheet)
}

func TestMTDMerger_MissingSheetIsConflict(t *testing.T) {
	m := NewMTDMerger(nil)
	day := time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)

	f := excelize.NewFile()
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = m.Update(salesTable([3]string{"A1", "2026-08-25", "5"}), day, buf.Bytes())

	var conflict *wmserrors.WorkbookMergeConflict
	require.ErrorAs(t, err, &conflict)
}
