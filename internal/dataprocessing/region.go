package dataprocessing

import (
	"log/slog"
	"strings"
)

// Region is a canonical two-value region code.
type Region string

const (
	RegionUP Region = "UP"
	RegionHR Region = "HR"
)

// RegionMapping maps upper-cased warehouse codes to their region. The
// mapping is exact-match: a code not present here is unmapped, never
// defaulted to either region.
type RegionMapping map[string]Region

// Lookup resolves a warehouse code to its region.
func (m RegionMapping) Lookup(warehouse string) (Region, bool) {
	r, ok := m[strings.ToUpper(strings.TrimSpace(warehouse))]
	return r, ok
}

// RegionSplit partitions a dataset into disjoint UP and HR subsets. Rows
// whose warehouse code is not in the mapping are excluded and counted in
// Unmapped, so len(UP) + len(HR) + Unmapped == len(input).
type RegionSplit struct {
	UP       Table
	HR       Table
	Unmapped int
}

// SplitByRegion partitions t on the warehouse column using mapping. Each
// input row lands in exactly one output; unmapped codes are logged with
// their offending value.
func SplitByRegion(t Table, warehouseColumn string, mapping RegionMapping, logger *slog.Logger) RegionSplit {
	if logger == nil {
		logger = slog.Default()
	}

	split := RegionSplit{
		UP: NewTable(t.Columns...),
		HR: NewTable(t.Columns...),
	}

	for _, row := range t.Rows {
		code := row.Get(warehouseColumn)
		region, ok := mapping.Lookup(code)
		if !ok {
			split.Unmapped++
			logger.Warn("warehouse code not in region mapping, row excluded",
				slog.String("warehouse", code))
			continue
		}
		switch region {
		case RegionUP:
			split.UP.Append(row.Clone())
		case RegionHR:
			split.HR.Append(row.Clone())
		default:
			split.Unmapped++
			logger.Warn("warehouse mapped to unknown region, row excluded",
				slog.String("warehouse", code),
				slog.String("region", string(region)))
		}
	}

	logger.Info("region split complete",
		slog.Int("up_rows", split.UP.Len()),
		slog.Int("hr_rows", split.HR.Len()),
		slog.Int("unmapped_rows", split.Unmapped))

	return split
}
