package exporter

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wmsreports/internal/dataprocessing"
)

func TestEncodeTable(t *testing.T) {
	table := dataprocessing.NewTable("SKU Code", "Sales Qty")
	table.Append(dataprocessing.Row{"SKU Code": "A1", "Sales Qty": "5"})
	table.Append(dataprocessing.Row{"SKU Code": "B2", "Sales Qty": "2"})

	data, err := EncodeTable(table, EncodeOptions{})
	require.NoError(t, err)
	assert.Equal(t, "SKU Code,Sales Qty\nA1,5\nB2,2\n", string(data))
}

func TestEncodeTable_BOMPrefix(t *testing.T) {
	table := dataprocessing.NewTable("SKU Code")
	table.Append(dataprocessing.Row{"SKU Code": "A1"})

	data, err := EncodeTable(table, EncodeOptions{BOMPrefix: true})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}))
}

func TestCSVArtifact_NamingContract(t *testing.T) {
	day := time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)
	table := dataprocessing.NewTable("SKU Code")

	artifact, err := CSVArtifact("complete", "complete_sales", day, table)
	require.NoError(t, err)

	assert.Equal(t, "complete", artifact.Key)
	assert.Equal(t, "COMPLETE_SALES20260825.csv", artifact.Filename)
	assert.Equal(t, "text/csv", artifact.ContentType)
}

func TestStampName(t *testing.T) {
	day := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "UP_SALES20260102", StampName("up_sales", day))
}

func TestMTDWorkbookName(t *testing.T) {
	assert.Equal(t, "Aug_Sales_Data_2026.xlsx",
		MTDWorkbookName(time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "Jan_Sales_Data_2027.xlsx",
		MTDWorkbookName(time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)))
}
