package dataprocessing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClosingStockProcessor(t *testing.T, cfg ClosingStockConfig) *ClosingStockProcessor {
	t.Helper()
	if cfg.WarehousePattern == "" {
		cfg.WarehousePattern = "hm1|ls1"
	}
	if cfg.RegionMapping == nil {
		cfg.RegionMapping = RegionMapping{
			"UP108_KUM_LS1": RegionUP,
			"UP110_LAL_HM1": RegionUP,
			"HR007_RJV_LS1": RegionHR,
		}
	}
	p, err := NewClosingStockProcessor(nil, cfg)
	require.NoError(t, err)
	return p
}

func stockRow(sku, warehouse, zone, qty, price string) Row {
	return Row{
		ColWarehouse:      warehouse,
		ColSKUCode:        sku,
		ColProductDesc:    "desc " + sku,
		ColSKUCategory:    "FMCG",
		ColSKUSubCategory: "Staples",
		ColZone:           zone,
		ColAvailableQty:   qty,
		ColPrice:          price,
	}
}

func stockTable(rows ...Row) Table {
	t := NewTable(ColWarehouse, ColSKUCode, ColProductDesc, ColSKUCategory,
		ColSKUSubCategory, ColZone, ColAvailableQty, ColPrice)
	for _, r := range rows {
		t.Append(r)
	}
	return t
}

func TestFilterWarehouses_KeepsOnlyTargetFamilies(t *testing.T) {
	p := testClosingStockProcessor(t, ClosingStockConfig{})

	cleaned, err := p.CleanClosingStock(stockTable(
		stockRow("A1", "up108_kum_ls1", "GOOD", "5", "2"),
		stockRow("B2", "up110_lal_hm1", "GOOD", "3", "4"),
		stockRow("C3", "dc01_central", "GOOD", "9", "1"),
	))
	require.NoError(t, err)

	filtered, excluded := p.FilterWarehouses(cleaned.Table)
	assert.Equal(t, 2, filtered.Len())
	assert.Equal(t, 1, excluded)
}

func TestFilterCategoryZone_EmptyListsAreNoOp(t *testing.T) {
	p := testClosingStockProcessor(t, ClosingStockConfig{})

	cleaned, err := p.CleanClosingStock(stockTable(
		stockRow("A1", "up108_kum_ls1", "GOOD", "5", "2"),
		stockRow("B2", "up108_kum_ls1", "BULK", "3", "4"),
	))
	require.NoError(t, err)

	filtered, excluded := p.FilterCategoryZone(cleaned.Table)
	assert.Equal(t, 2, filtered.Len())
	assert.Zero(t, excluded)
}

func TestFilterCategoryZone_AllowListsRestrict(t *testing.T) {
	p := testClosingStockProcessor(t, ClosingStockConfig{
		AllowedCategories: []string{"FMCG"},
		AllowedZones:      []string{"GOOD"},
	})

	other := stockRow("C3", "up108_kum_ls1", "GOOD", "1", "1")
	other[ColSKUCategory] = "Electronics"

	cleaned, err := p.CleanClosingStock(stockTable(
		stockRow("A1", "up108_kum_ls1", "GOOD", "5", "2"),
		stockRow("B2", "up108_kum_ls1", "BULK", "3", "4"),
		other,
	))
	require.NoError(t, err)

	filtered, excluded := p.FilterCategoryZone(cleaned.Table)
	require.Equal(t, 1, filtered.Len())
	assert.Equal(t, 2, excluded)
	assert.Equal(t, "A1", filtered.Rows[0].Get(ColSKUCode))
}

func TestSummarize_ValuesRowsAndTotals(t *testing.T) {
	p := testClosingStockProcessor(t, ClosingStockConfig{})

	cleaned, err := p.CleanClosingStock(stockTable(
		stockRow("A1", "up108_kum_ls1", "GOOD", "5", "2.5"),
		stockRow("B2", "up108_kum_ls1", "GOOD", "3", "4"),
	))
	require.NoError(t, err)

	summary := p.Summarize(cleaned.Table)
	assert.True(t, summary.Table.HasColumn(ColValue))
	assert.Equal(t, "12.5", summary.Table.Rows[0].Get(ColValue))
	assert.Equal(t, "12", summary.Table.Rows[1].Get(ColValue))
	assert.InDelta(t, 24.5, summary.GrandTotal, 1e-6)
}

func TestProcessCompletePipeline_ClosingStockScenario(t *testing.T) {
	p := testClosingStockProcessor(t, ClosingStockConfig{})

	result, err := p.ProcessCompletePipeline(stockTable(
		stockRow("A1", "up108_kum_ls1", "GOOD", "5", "2"),
		stockRow("B2", "other_y", "GOOD", "3", "4"),
	))
	require.NoError(t, err)

	assert.Equal(t, 1, result.Filtered.Table.Len())
	assert.Equal(t, 1, result.FilteredOut)
	assert.Equal(t, 1, result.UP.Table.Len())
	assert.Zero(t, result.HR.Table.Len())
	assert.InDelta(t, 10, result.Filtered.GrandTotal, 1e-6)
}

func TestProcessCompletePipeline_RegionalTotalsAddUp(t *testing.T) {
	p := testClosingStockProcessor(t, ClosingStockConfig{})

	result, err := p.ProcessCompletePipeline(stockTable(
		stockRow("A1", "up108_kum_ls1", "GOOD", "5", "2.5"),
		stockRow("B2", "up110_lal_hm1", "GOOD", "3", "4.01"),
		stockRow("C3", "hr007_rjv_ls1", "GOOD", "7", "1.99"),
		stockRow("D4", "mh001_unknown_ls1", "GOOD", "2", "9"),
	))
	require.NoError(t, err)

	assert.Equal(t, 1, result.RegionUnmapped)
	// The unmapped warehouse drops out of both regional summaries, so the
	// regional totals conserve the mapped portion only.
	mapped := result.UP.GrandTotal + result.HR.GrandTotal
	assert.InDelta(t, result.Filtered.GrandTotal-2*9, mapped, 1e-6)

	total := result.Filtered.Table.Len()
	assert.Equal(t, total, result.UP.Table.Len()+result.HR.Table.Len()+result.RegionUnmapped)
}

func TestCleanClosingStock_AppliesCleaningExclusions(t *testing.T) {
	p := testClosingStockProcessor(t, ClosingStockConfig{
		ExcludedCategories:   []string{"Asset"},
		ExcludedZoneKeywords: []string{"damage"},
	})

	asset := stockRow("B2", "up108_kum_ls1", "GOOD", "1", "1")
	asset[ColSKUCategory] = "Asset"

	cleaned, err := p.CleanClosingStock(stockTable(
		stockRow("A1 loose", "up108_kum_ls1", "GOOD", "5", "2"),
		stockRow("FR99", "up108_kum_ls1", "GOOD", "1", "1"),
		asset,
		stockRow("C3", "up108_kum_ls1", "Damage Bay", "1", "1"),
	))
	require.NoError(t, err)

	require.Equal(t, 1, cleaned.Table.Len())
	assert.Equal(t, 3, cleaned.Skipped)
	assert.Equal(t, "A1", cleaned.Table.Rows[0].Get(ColSKUCode))
}
