package dataprocessing

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

// ClosingStockConfig carries the injected configuration for the closing
// stock processor.
type ClosingStockConfig struct {
	// WarehousePattern is the whitelist regexp for the two target
	// warehouse families, matched against lower-cased codes.
	WarehousePattern string
	// ExcludedCategories and ExcludedZoneKeywords are applied during
	// cleaning, as for inventory.
	ExcludedCategories   []string
	ExcludedZoneKeywords []string
	// AllowedCategories / AllowedZones restrict the filtered dataset. An
	// empty set is a no-op on that dimension, never exclude-all.
	AllowedCategories []string
	AllowedZones      []string
	RegionMapping     RegionMapping
	NumericPolicy     NumericPolicy
}

// ValueSummary is a valued closing stock table plus its grand total. The
// total is the running float64 sum over the rows, so regional totals add
// up to the unsplit total exactly.
type ValueSummary struct {
	Table      Table
	GrandTotal float64
}

// ClosingStockProcessor cleans the multi-warehouse closing stock extract,
// filters it to the target warehouses, categories and zones, splits it by
// region and computes stock value.
type ClosingStockProcessor struct {
	logger      *slog.Logger
	cfg         ClosingStockConfig
	warehouseRe *regexp.Regexp
}

// NewClosingStockProcessor validates cfg and builds a processor.
func NewClosingStockProcessor(logger *slog.Logger, cfg ClosingStockConfig) (*ClosingStockProcessor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	re, err := regexp.Compile(cfg.WarehousePattern)
	if err != nil {
		return nil, fmt.Errorf("invalid warehouse pattern %q: %w", cfg.WarehousePattern, err)
	}
	return &ClosingStockProcessor{logger: logger, cfg: cfg, warehouseRe: re}, nil
}

// CleanClosingStock normalizes the closing stock extract and applies the
// cleaning exclusions: FR/CAP SKUs, excluded categories, quarantine zones.
func (p *ClosingStockProcessor) CleanClosingStock(t Table) (CleanResult, error) {
	res, err := Clean(t, CleanSpec{
		Dataset:       "closing_stock",
		Required:      []string{ColWarehouse, ColSKUCode},
		Expected:      []string{ColProductDesc, ColSKUCategory, ColSKUSubCategory, ColZone},
		Numeric:       []string{ColAvailableQty, ColPrice},
		NumericPolicy: p.cfg.NumericPolicy,
		Renames:       map[string]string{ColProductDesc: ColSKUDescription},
	})
	if err != nil {
		return CleanResult{}, err
	}

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
		if p.isExcludedZone(row.Get(ColZone)) {
			res.Skipped++
			continue
		}

		kept := row.Clone()
		kept[ColSKUCode] = sku
		kept[ColWarehouse] = strings.ToUpper(kept.Get(ColWarehouse))
		out.Append(kept)
	}
	res.Table = out

	p.logger.Info("closing stock cleaned",
		slog.Int("input_rows", t.Len()),
		slog.Int("output_rows", res.Table.Len()),
		slog.Int("skipped_rows", res.Skipped))
	return res, nil
}

func (p *ClosingStockProcessor) isExcludedZone(zone string) bool {
	lower := strings.ToLower(zone)
	for _, keyword := range p.cfg.ExcludedZoneKeywords {
		if strings.Contains(lower, strings.ToLower(keyword)) {
			return true
		}
	}
	return false
}

// FilterWarehouses keeps only rows whose warehouse code matches the
// whitelist pattern; everything else is excluded and counted.
func (p *ClosingStockProcessor) FilterWarehouses(t Table) (Table, int) {
	out := NewTable(t.Columns...)
	excluded := 0
	for _, row := range t.Rows {
		if p.warehouseRe.MatchString(strings.ToLower(row.Get(ColWarehouse))) {
			out.Append(row.Clone())
		} else {
			excluded++
		}
	}
	p.logger.Info("warehouse filter applied",
		slog.String("pattern", p.cfg.WarehousePattern),
		slog.Int("kept_rows", out.Len()),
		slog.Int("excluded_rows", excluded))
	return out, excluded
}

// FilterCategoryZone restricts the dataset to the configured category and
// zone allow-lists. An empty list leaves that dimension untouched.
func (p *ClosingStockProcessor) FilterCategoryZone(t Table) (Table, int) {
	categories := toSet(p.cfg.AllowedCategories)
	zones := toSet(p.cfg.AllowedZones)

	out := NewTable(t.Columns...)
	excluded := 0
	for _, row := range t.Rows {
		if len(categories) > 0 && !categories[row.Get(ColSKUCategory)] {
			excluded++
			continue
		}
		if len(zones) > 0 && !zones[row.Get(ColZone)] {
			excluded++
			continue
		}
		out.Append(row.Clone())
	}
	p.logger.Info("category/zone filter applied",
		slog.Int("kept_rows", out.Len()),
		slog.Int("excluded_rows", excluded))
	return out, excluded
}

// SplitByRegion partitions the filtered dataset on the warehouse code.
func (p *ClosingStockProcessor) SplitByRegion(t Table) RegionSplit {
	return SplitByRegion(t, ColWarehouse, p.cfg.RegionMapping, p.logger)
}

// Summarize computes per-row stock value (price x available quantity) and
// the grand total over the table.
func (p *ClosingStockProcessor) Summarize(t Table) ValueSummary {
	columns := append(append([]string(nil), t.Columns...), ColValue)
	summary := ValueSummary{Table: NewTable(columns...)}
	for _, row := range t.Rows {
		valued := row.Clone()
		value := valued.Float(ColPrice) * valued.Float(ColAvailableQty)
		valued[ColValue] = formatNumeric(value)
		summary.GrandTotal += value
		summary.Table.Append(valued)
	}
	return summary
}

// ClosingStockPipelineResult carries the regional artifacts and audit
// counters of one run. The regional grand totals sum to FilteredTotal.
type ClosingStockPipelineResult struct {
	Filtered       ValueSummary
	UP             ValueSummary
	HR             ValueSummary
	Skipped        int
	FilteredOut    int
	RegionUnmapped int
}

// ProcessCompletePipeline runs clean, warehouse filter, category/zone
// filter, region split and valuation in order.
func (p *ClosingStockProcessor) ProcessCompletePipeline(stock Table) (*ClosingStockPipelineResult, error) {
	cleaned, err := p.CleanClosingStock(stock)
	if err != nil {
		return nil, fmt.Errorf("clean closing stock: %w", err)
	}

	byWarehouse, excludedWarehouse := p.FilterWarehouses(cleaned.Table)
	filtered, excludedCategoryZone := p.FilterCategoryZone(byWarehouse)

	split := p.SplitByRegion(filtered)

	return &ClosingStockPipelineResult{
		Filtered:       p.Summarize(filtered),
		UP:             p.Summarize(split.UP),
		HR:             p.Summarize(split.HR),
		Skipped:        cleaned.Skipped,
		FilteredOut:    excludedWarehouse + excludedCategoryZone,
		RegionUnmapped: split.Unmapped,
	}, nil
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}
