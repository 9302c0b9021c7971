package dataprocessing

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
)

// OrderConfig carries the injected configuration for the order summary
// processor. The core never reads environment state; the caller constructs
// this once at the program boundary.
type OrderConfig struct {
	// WarehousePattern is the whitelist regexp matched against lower-cased
	// warehouse codes, e.g. `hm1|ls1`.
	WarehousePattern string
	// ExcludedCategories are dropped from the cleaned orders.
	ExcludedCategories []string
	// RegionMapping resolves warehouse codes to UP/HR.
	RegionMapping RegionMapping
	// NumericPolicy applies to non-parseable quantity and amount cells.
	NumericPolicy NumericPolicy
}

// OrderSummaryProcessor cleans the daily order summary and sales return
// extracts, merges them into the complete dataset, splits it by region and
// maintains the month-to-date workbook.
type OrderSummaryProcessor struct {
	logger      *slog.Logger
	cfg         OrderConfig
	warehouseRe *regexp.Regexp
	mtd         *MTDMerger
}

// NewOrderSummaryProcessor validates cfg and builds a processor.
func NewOrderSummaryProcessor(logger *slog.Logger, cfg OrderConfig) (*OrderSummaryProcessor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	re, err := regexp.Compile(cfg.WarehousePattern)
	if err != nil {
		return nil, fmt.Errorf("invalid warehouse pattern %q: %w", cfg.WarehousePattern, err)
	}
	return &OrderSummaryProcessor{
		logger:      logger,
		cfg:         cfg,
		warehouseRe: re,
		mtd:         NewMTDMerger(logger),
	}, nil
}

// CleanOrderSummary normalizes the order summary extract and applies the
// business filters: warehouse whitelist, FR/CAP SKU removal, excluded
// categories, stock-transfer references and cancelled orders. Return
// columns are initialized to zero for the merge step.
func (p *OrderSummaryProcessor) CleanOrderSummary(t Table) (CleanResult, error) {
	res, err := Clean(t, CleanSpec{
		Dataset:       "order_summary",
		Required:      []string{ColWarehouse, ColSKUCode, ColInvoiceNumber, ColOrderDate},
		Expected:      []string{ColSKUDesc, ColSKUCategory, ColSKUSubCategory, ColOrderReference, ColOrderStatus},
		Numeric:       []string{ColInvoiceQty, ColInvoiceAmount},
		NumericPolicy: p.cfg.NumericPolicy,
	})
	if err != nil {
		return CleanResult{}, err
	}

	excluded := make(map[string]bool, len(p.cfg.ExcludedCategories))
	for _, c := range p.cfg.ExcludedCategories {
		excluded[c] = true
	}

	out := NewTable(append(res.Table.Columns, ColReturnQty, ColReturnValue)...)
	var byWarehouse, bySKU, byCategory, byReference, byStatus int
	for _, row := range res.Table.Rows {
		warehouse := strings.ToLower(row.Get(ColWarehouse))
		if !p.warehouseRe.MatchString(warehouse) {
			byWarehouse++
			continue
		}

		sku := stripLoose(row.Get(ColSKUCode))
		upperSKU := strings.ToUpper(sku)
		if strings.HasPrefix(upperSKU, "FR") || strings.HasPrefix(upperSKU, "CAP") {
			bySKU++
			continue
		}
		if excluded[row.Get(ColSKUCategory)] {
			byCategory++
			continue
		}
		if strings.Contains(strings.ToLower(row.Get(ColOrderReference)), "st") {
			byReference++
			continue
		}
		if strings.EqualFold(row.Get(ColOrderStatus), "cancelled") {
			byStatus++
			continue
		}

		kept := row.Clone()
		kept[ColWarehouse] = warehouse
		kept[ColSKUCode] = sku
		kept[ColReturnQty] = "0"
		kept[ColReturnValue] = "0"
		out.Append(kept)
	}

	filtered := byWarehouse + bySKU + byCategory + byReference + byStatus
	p.logger.Info("order summary cleaned",
		slog.Int("input_rows", t.Len()),
		slog.Int("output_rows", out.Len()),
		slog.Int("skipped_rows", res.Skipped),
		slog.Int("filtered_warehouse", byWarehouse),
		slog.Int("filtered_sku", bySKU),
		slog.Int("filtered_category", byCategory),
		slog.Int("filtered_reference", byReference),
		slog.Int("filtered_status", byStatus))

	res.Table = out
	res.Skipped += filtered
	return res, nil
}

// CleanSalesReturns normalizes the sales return extract. The key columns
// mirror the order summary key (challan number + SKU) so the merge can
// match line items.
func (p *OrderSummaryProcessor) CleanSalesReturns(t Table) (CleanResult, error) {
	res, err := Clean(t, CleanSpec{
		Dataset:       "sales_return",
		Required:      []string{ColReturnSKUCode, ColChallanNumber},
		Numeric:       []string{ColReturnQuantity, ColCreditNoteAmount},
		NumericPolicy: p.cfg.NumericPolicy,
	})
	if err != nil {
		return CleanResult{}, err
	}

	for _, row := range res.Table.Rows {
		row[ColReturnSKUCode] = stripLoose(row.Get(ColReturnSKUCode))
	}

	p.logger.Info("sales returns cleaned",
		slog.Int("input_rows", t.Len()),
		slog.Int("output_rows", res.Table.Len()),
		slog.Int("skipped_rows", res.Skipped))
	return res, nil
}

// CompleteResult is the left merge of cleaned orders and returns plus the
// audit counters for the merge.
type CompleteResult struct {
	Table            Table
	MatchedKeys      int
	UnmatchedReturns int
	Warnings         []string
}

// BuildComplete aggregates returns by invoice+SKU (summing quantity and
// credit amount, so duplicate return lines never double-count) and
// left-merges them onto the cleaned orders. Every order row appears exactly
// once in the output; return keys with no matching order are excluded and
// counted, never invented as new rows.
func (p *OrderSummaryProcessor) BuildComplete(orders, returns Table) (CompleteResult, error) {
	type returnTotals struct {
		qty, value float64
		matched    bool
	}
	totals := make(map[string]*returnTotals, returns.Len())
	for _, row := range returns.Rows {
		key := row.Get(ColChallanNumber) + "\x1f" + row.Get(ColReturnSKUCode)
		agg, ok := totals[key]
		if !ok {
			agg = &returnTotals{}
			totals[key] = agg
		}
		agg.qty += row.Float(ColReturnQuantity)
		agg.value += row.Float(ColCreditNoteAmount)
	}

	result := CompleteResult{Table: NewTable(orders.Columns...)}
	for _, row := range orders.Rows {
		merged := row.Clone()
		key := row.Get(ColInvoiceNumber) + "\x1f" + row.Get(ColSKUCode)
		if agg, ok := totals[key]; ok {
			merged[ColReturnQty] = formatNumeric(agg.qty)
			merged[ColReturnValue] = formatNumeric(agg.value)
			if !agg.matched {
				agg.matched = true
				result.MatchedKeys++
			}
		}

		merged[ColSalesQty] = formatNumeric(merged.Float(ColInvoiceQty) - merged.Float(ColReturnQty))
		merged[ColSalesValue] = formatNumeric(merged.Float(ColInvoiceAmount) - merged.Float(ColReturnValue))
		merged[ColWarehouse] = strings.ToUpper(merged.Get(ColWarehouse))
		if normalized, ok := normalizeDate(merged.Get(ColOrderDate)); ok {
			merged[ColOrderDate] = normalized
		} else {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("order date %q not normalized", merged.Get(ColOrderDate)))
		}
		result.Table.Append(merged)
	}

	for key, agg := range totals {
		if !agg.matched {
			result.UnmatchedReturns++
			p.logger.Warn("sales return has no matching order line, excluded",
				slog.String("key", strings.ReplaceAll(key, "\x1f", "/")))
		}
	}

	if !result.Table.HasColumn(ColSalesQty) {
		result.Table.Columns = append(result.Table.Columns, ColSalesQty, ColSalesValue)
	}

	p.logger.Info("complete dataset built",
		slog.Int("order_rows", orders.Len()),
		slog.Int("return_rows", returns.Len()),
		slog.Int("matched_keys", result.MatchedKeys),
		slog.Int("unmatched_returns", result.UnmatchedReturns))
	return result, nil
}

// SplitByRegion partitions the complete dataset on the warehouse code.
func (p *OrderSummaryProcessor) SplitByRegion(t Table) RegionSplit {
	return SplitByRegion(t, ColWarehouse, p.cfg.RegionMapping, p.logger)
}

// salesColumns is the projected column order of every published sales
// dataset (complete, UP, HR and the MTD workbook sheet).
var salesColumns = []string{
	ColMerge, ColWarehouse, ColSKUCode, ColSKUDescription, ColOrderDate,
	ColSKUCategory, ColSKUSubCategory, ColSalesQty, ColSalesValue,
}

// ProjectSales shapes a complete (or regional) dataset into the published
// column order, deriving the Merge key from warehouse + SKU.
func (p *OrderSummaryProcessor) ProjectSales(t Table) Table {
	out := NewTable(salesColumns...)
	for _, row := range t.Rows {
		projected := make(Row, len(salesColumns))
		projected[ColMerge] = row.Get(ColWarehouse) + row.Get(ColSKUCode)
		projected[ColWarehouse] = row.Get(ColWarehouse)
		projected[ColSKUCode] = row.Get(ColSKUCode)
		projected[ColSKUDescription] = row.Get(ColSKUDesc)
		projected[ColOrderDate] = row.Get(ColOrderDate)
		projected[ColSKUCategory] = row.Get(ColSKUCategory)
		projected[ColSKUSubCategory] = row.Get(ColSKUSubCategory)
		projected[ColSalesQty] = row.Get(ColSalesQty)
		projected[ColSalesValue] = row.Get(ColSalesValue)
		out.Append(projected)
	}
	return out
}

// UpdateMTDWorkbook merges the projected complete dataset for day into the
// month-to-date workbook. existing holds the stored workbook bytes, or nil
// when no workbook exists yet for the month.
func (p *OrderSummaryProcessor) UpdateMTDWorkbook(complete Table, day time.Time, existing []byte) ([]byte, error) {
	return p.mtd.Update(complete, day, existing)
}

// OrderPipelineResult carries every artifact of one order summary run,
// keyed for the uploader, plus the audit counters.
type OrderPipelineResult struct {
	Complete         Table
	UP               Table
	HR               Table
	MTDWorkbook      []byte
	Skipped          int
	UnmatchedReturns int
	RegionUnmapped   int
	Warnings         []string
}

// ProcessCompletePipeline runs clean, merge, split and MTD update in order.
// This is the only entry point the orchestrator calls.
func (p *OrderSummaryProcessor) ProcessCompletePipeline(orders, returns Table, day time.Time, existingWorkbook []byte) (*OrderPipelineResult, error) {
	cleanedOrders, err := p.CleanOrderSummary(orders)
	if err != nil {
		return nil, fmt.Errorf("clean order summary: %w", err)
	}
	cleanedReturns, err := p.CleanSalesReturns(returns)
	if err != nil {
		return nil, fmt.Errorf("clean sales returns: %w", err)
	}

	complete, err := p.BuildComplete(cleanedOrders.Table, cleanedReturns.Table)
	if err != nil {
		return nil, fmt.Errorf("build complete dataset: %w", err)
	}

	split := p.SplitByRegion(complete.Table)

	result := &OrderPipelineResult{
		Complete:         p.ProjectSales(complete.Table),
		UP:               p.ProjectSales(split.UP),
		HR:               p.ProjectSales(split.HR),
		Skipped:          cleanedOrders.Skipped + cleanedReturns.Skipped,
		UnmatchedReturns: complete.UnmatchedReturns,
		RegionUnmapped:   split.Unmapped,
	}
	result.Warnings = append(result.Warnings, cleanedOrders.Warnings...)
	result.Warnings = append(result.Warnings, cleanedReturns.Warnings...)
	result.Warnings = append(result.Warnings, complete.Warnings...)

	result.MTDWorkbook, err = p.UpdateMTDWorkbook(result.Complete, day, existingWorkbook)
	if err != nil {
		return nil, fmt.Errorf("update MTD workbook: %w", err)
	}

	return result, nil
}

// stripLoose removes the "loose" marker, any case, from a SKU code.
var looseRe = regexp.MustCompile(`(?i)loose`)

func stripLoose(sku string) string {
	return strings.TrimSpace(looseRe.ReplaceAllString(sku, ""))
}

// dateLayouts are the order-date spellings seen in the extracts.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"02-01-2006",
	"02/01/2006",
}

// normalizeDate parses a date cell and reformats it as YYYY-MM-DD.
func normalizeDate(s string) (string, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), true
		}
	}
	return s, false
}
