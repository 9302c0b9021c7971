package dataprocessing

import (
	"fmt"
	"log/slog"
	"strings"
)

// PriceRule fixes which observed price is used when a SKU appears in
// multiple inventory batches. The rule is explicit configuration so the
// choice never depends on input ordering by accident.
type PriceRule int

const (
	// PriceRuleFirst takes the first observed price per SKU. This is the
	// production rule.
	PriceRuleFirst PriceRule = iota
	// PriceRuleLast takes the last observed price.
	PriceRuleLast
	// PriceRuleMax takes the highest observed price.
	PriceRuleMax
)

// InventoryConfig carries the injected configuration for the inventory
// summary processor.
type InventoryConfig struct {
	ExcludedCategories []string
	// ExcludedZoneKeywords drops batch rows whose zone contains any of
	// these fragments (damaged, expiry, qc and similar quarantine zones).
	ExcludedZoneKeywords []string
	PriceRule            PriceRule
	// ClampNegativeFinalQty floors the final quantity at zero. Off by
	// default: a negative final quantity is a real backorder signal.
	ClampNegativeFinalQty bool
	NumericPolicy         NumericPolicy
}

// InventorySummaryRow is one aggregated output row per SKU.
type InventorySummaryRow struct {
	SKUCode      string
	Description  string
	Category     string
	SubCategory  string
	AvailableQty float64
	OpenQty      float64
	FinalQty     float64
	Price        float64
	Value        float64
}

// InventorySummary is the per-SKU aggregation result. MissingPrice counts
// SKUs with nonzero final quantity but no observed price; their value is
// zero, and they stay in Rows rather than being dropped.
type InventorySummary struct {
	Rows         []InventorySummaryRow
	MissingPrice int
}

// InventorySummaryProcessor aggregates batch-level inventory and open
// order extracts into one net-available row per SKU.
type InventorySummaryProcessor struct {
	logger *slog.Logger
	cfg    InventoryConfig
}

// NewInventorySummaryProcessor builds a processor.
func NewInventorySummaryProcessor(logger *slog.Logger, cfg InventoryConfig) *InventorySummaryProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &InventorySummaryProcessor{logger: logger, cfg: cfg}
}

// CleanInventory normalizes the batch-level inventory extract: header
// normalization, numeric coercion, FR/CAP SKU removal, excluded categories
// and quarantine zones.
func (p *InventorySummaryProcessor) CleanInventory(t Table) (CleanResult, error) {
	res, err := Clean(t, CleanSpec{
		Dataset:       "batch_level_inventory",
		Required:      []string{ColWarehouse, ColSKUCode},
		Expected:      []string{ColProductDesc, ColSKUCategory, ColSKUSubCategory, ColZone, ColBatch},
		Numeric:       []string{ColAvailableQty, ColPrice},
		NumericPolicy: p.cfg.NumericPolicy,
		Renames:       map[string]string{ColProductDesc: ColSKUDescription},
	})
	if err != nil {
		return CleanResult{}, err
	}

	res = p.applyInventoryFilters(res, ColZone)
	p.logger.Info("batch inventory cleaned",
		slog.Int("input_rows", t.Len()),
		slog.Int("output_rows", res.Table.Len()),
		slog.Int("skipped_rows", res.Skipped))
	return res, nil
}

// CleanOpenOrders normalizes the open order summary extract.
func (p *InventorySummaryProcessor) CleanOpenOrders(t Table) (CleanResult, error) {
	res, err := Clean(t, CleanSpec{
		Dataset:       "open_order_summary",
		Required:      []string{ColWarehouse, ColSKUCode},
		Expected:      []string{ColSKUDesc, ColSKUCategory, ColSKUSubCategory, ColWarehouseZone},
		Numeric:       []string{ColOpenOrderQty},
		NumericPolicy: p.cfg.NumericPolicy,
		Renames:       map[string]string{ColSKUDesc: ColSKUDescription},
	})
	if err != nil {
		return CleanResult{}, err
	}

	res = p.applyInventoryFilters(res, "")
	p.logger.Info("open orders cleaned",
		slog.Int("input_rows", t.Len()),
		slog.Int("output_rows", res.Table.Len()),
		slog.Int("skipped_rows", res.Skipped))
	return res, nil
}

// applyInventoryFilters drops FR/CAP SKUs, excluded categories and, when a
// zone column is given, quarantine zones. SKU codes lose their "loose"
// marker and warehouse codes are restored to upper case.
func (p *InventorySummaryProcessor) applyInventoryFilters(res CleanResult, zoneColumn string) CleanResult {
	excluded := make(map[string]bool, len(p.cfg.ExcludedCategories))
	for _, c := range p.cfg.ExcludedCategories {
		excluded[c] = true
	}

	out := NewTable(res.Table.Columns...)
	for _, row := range res.Table.Rows {
		sku := stripLoose(row.Get(ColSKUCode))
		upperSKU := strings.ToUpper(sku)
		if strings.HasPrefix(upperSKU, "FR") || strings.HasPrefix(upperSKU, "CAP") {
			res.Skipped++
			continue
		}
		if excluded[row.Get(ColSKUCategory)] {
			res.Skipped++
			continue
		}
		if zoneColumn != "" && p.isExcludedZone(row.Get(zoneColumn)) {
			res.Skipped++
			continue
		}

		kept := row.Clone()
		kept[ColSKUCode] = sku
		kept[ColWarehouse] = strings.ToUpper(kept.Get(ColWarehouse))
		out.Append(kept)
	}
	res.Table = out
	return res
}

func (p *InventorySummaryProcessor) isExcludedZone(zone string) bool {
	lower := strings.ToLower(zone)
	for _, keyword := range p.cfg.ExcludedZoneKeywords {
		if strings.Contains(lower, strings.ToLower(keyword)) {
			return true
		}
	}
	return false
}

// Aggregate groups both cleaned extracts by SKU, summing available and
// open quantities, and joins them. A SKU present on only one side keeps
// the other side's quantity at zero; no SKU is excluded. The final
// quantity is computed at the aggregation level, so per-batch negatives
// and positives net out before any clamping.
func (p *InventorySummaryProcessor) Aggregate(inventory, openOrders Table) (InventorySummary, error) {
	type skuAgg struct {
		row      InventorySummaryRow
		hasPrice bool
	}
	bySKU := make(map[string]*skuAgg)

	get := func(sku string) *skuAgg {
		agg, ok := bySKU[sku]
		if !ok {
			agg = &skuAgg{row: InventorySummaryRow{SKUCode: sku}}
			bySKU[sku] = agg
		}
		return agg
	}

	for _, row := range inventory.Rows {
		agg := get(row.Get(ColSKUCode))
		agg.row.AvailableQty += row.Float(ColAvailableQty)
		if agg.row.Description == "" {
			agg.row.Description = row.Get(ColSKUDescription)
			agg.row.Category = row.Get(ColSKUCategory)
			agg.row.SubCategory = row.Get(ColSKUSubCategory)
		}
		if price, ok := parseNumeric(row[ColPrice]); ok && row.Get(ColPrice) != "" {
			switch {
			case !agg.hasPrice:
				agg.row.Price = price
				agg.hasPrice = true
			case p.cfg.PriceRule == PriceRuleLast:
				agg.row.Price = price
			case p.cfg.PriceRule == PriceRuleMax && price > agg.row.Price:
				agg.row.Price = price
			}
		}
	}

	for _, row := range openOrders.Rows {
		agg := get(row.Get(ColSKUCode))
		agg.row.OpenQty += row.Float(ColOpenOrderQty)
		if agg.row.Description == "" {
			agg.row.Description = row.Get(ColSKUDescription)
			agg.row.Category = row.Get(ColSKUCategory)
			agg.row.SubCategory = row.Get(ColSKUSubCategory)
		}
	}

	summary := InventorySummary{Rows: make([]InventorySummaryRow, 0, len(bySKU))}
	for _, sku := range sortedKeys(bySKU) {
		agg := bySKU[sku]
		agg.row.FinalQty = agg.row.AvailableQty - agg.row.OpenQty
		if p.cfg.ClampNegativeFinalQty && agg.row.FinalQty < 0 {
			agg.row.FinalQty = 0
		}
		if !agg.hasPrice && agg.row.FinalQty != 0 {
			summary.MissingPrice++
			p.logger.Warn("SKU has final quantity but no observed price, value set to zero",
				slog.String("sku", sku),
				slog.Float64("final_qty", agg.row.FinalQty))
		}
		agg.row.Value = agg.row.Price * agg.row.FinalQty
		summary.Rows = append(summary.Rows, agg.row)
	}

	p.logger.Info("inventory aggregated",
		slog.Int("inventory_rows", inventory.Len()),
		slog.Int("open_order_rows", openOrders.Len()),
		slog.Int("sku_count", len(summary.Rows)),
		slog.Int("missing_price", summary.MissingPrice))

	return summary, nil
}

// SummaryTable renders the aggregation as a publishable table.
func (p *InventorySummaryProcessor) SummaryTable(summary InventorySummary) Table {
	out := NewTable(ColSKUCode, ColSKUDescription, ColSKUCategory, ColSKUSubCategory,
		ColAvailableQty, ColOpenOrderQty, ColFinalQty, ColPrice, ColFinalValue)
	for _, row := range summary.Rows {
		out.Append(Row{
			ColSKUCode:        row.SKUCode,
			ColSKUDescription: row.Description,
			ColSKUCategory:    row.Category,
			ColSKUSubCategory: row.SubCategory,
			ColAvailableQty:   formatNumeric(row.AvailableQty),
			ColOpenOrderQty:   formatNumeric(row.OpenQty),
			ColFinalQty:       formatNumeric(row.FinalQty),
			ColPrice:          formatNumeric(row.Price),
			ColFinalValue:     formatNumeric(row.Value),
		})
	}
	return out
}

// InventoryPipelineResult carries the artifact and counters of one run.
type InventoryPipelineResult struct {
	Summary      Table
	SKUCount     int
	Skipped      int
	MissingPrice int
}

// ProcessCompletePipeline runs clean and aggregate in order.
func (p *InventorySummaryProcessor) ProcessCompletePipeline(inventory, openOrders Table) (*InventoryPipelineResult, error) {
	cleanedInventory, err := p.CleanInventory(inventory)
	if err != nil {
		return nil, fmt.Errorf("clean batch inventory: %w", err)
	}
	cleanedOpen, err := p.CleanOpenOrders(openOrders)
	if err != nil {
		return nil, fmt.Errorf("clean open orders: %w", err)
	}

	summary, err := p.Aggregate(cleanedInventory.Table, cleanedOpen.Table)
	if err != nil {
		return nil, fmt.Errorf("aggregate inventory: %w", err)
	}

	return &InventoryPipelineResult{
		Summary:      p.SummaryTable(summary),
		SKUCount:     len(summary.Rows),
		Skipped:      cleanedInventory.Skipped + cleanedOpen.Skipped,
		MissingPrice: summary.MissingPrice,
	}, nil
}
