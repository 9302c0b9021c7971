package dataprocessing

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"wmsreports/internal/errors"
)

// Row maps canonical column names to cell values. Cells stay strings; the
// numeric accessors parse on demand so a table can round-trip through CSV
// without losing formatting.
type Row map[string]string

// Table is an ordered tabular dataset decoded from one source extract.
type Table struct {
	Columns []string
	Rows    []Row
}

// NewTable creates an empty table with the given column order.
func NewTable(columns ...string) Table {
	return Table{Columns: append([]string(nil), columns...)}
}

// Len returns the number of data rows.
func (t Table) Len() int { return len(t.Rows) }

// HasColumn reports whether the table declares the given column.
func (t Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Append adds a row to the table.
func (t *Table) Append(r Row) { t.Rows = append(t.Rows, r) }

// Select returns a new table containing only the given columns, in the
// given order. Missing cells become empty strings.
func (t Table) Select(columns ...string) Table {
	out := NewTable(columns...)
	for _, row := range t.Rows {
		selected := make(Row, len(columns))
		for _, c := range columns {
			selected[c] = row[c]
		}
		out.Append(selected)
	}
	return out
}

// Get returns the cell value for col, trimmed.
func (r Row) Get(col string) string { return strings.TrimSpace(r[col]) }

// Float parses the cell for col as a float64. Thousands separators are
// tolerated; blank or unparseable cells yield zero.
func (r Row) Float(col string) float64 {
	v, _ := parseNumeric(r[col])
	return v
}

// Clone returns a copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

func parseNumeric(s string) (float64, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0, true
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func formatNumeric(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// NumericPolicy controls what happens to a non-blank cell in a declared
// numeric column that does not parse.
type NumericPolicy int

const (
	// NumericZero replaces the unparseable value with zero and records a
	// warning.
	NumericZero NumericPolicy = iota
	// NumericDropRow skips the whole row and counts it.
	NumericDropRow
)

// DedupPolicy controls how rows sharing the same key are reduced. The
// policy is explicit per dataset so the result never depends on accidental
// input ordering.
type DedupPolicy int

const (
	DedupNone DedupPolicy = iota
	DedupKeepFirst
	DedupKeepLast
	// DedupSum keeps the first row and sums the SumColumns of later
	// duplicates into it.
	DedupSum
)

// CleanSpec declares how a raw extract is normalized.
type CleanSpec struct {
	Dataset       string            // logical name used in errors and warnings
	Required      []string          // canonical columns that must exist; rows with blank values are skipped
	Expected      []string          // columns that must exist but may be blank in a row
	Numeric       []string          // columns coerced to numeric form
	NumericPolicy NumericPolicy
	Renames       map[string]string // canonical name -> output name, applied after the required check
	Key           []string          // dedup key columns (post-rename names)
	Dedup         DedupPolicy
	SumColumns    []string // summed when Dedup == DedupSum
}

// CleanResult carries a cleaned table plus the row-level accounting the
// caller logs. Row-level issues never abort the batch.
type CleanResult struct {
	Table    Table
	Skipped  int
	Warnings []string
}

// Clean normalizes a raw table against spec: headers are trimmed and
// case-normalized to their canonical spelling, required columns are
// enforced, numeric columns coerced, incomplete rows skipped and counted,
// and duplicate keys reduced per the declared policy.
//
// A required column missing from the input entirely is a *errors.SchemaError;
// a blank value in one row is a row skip.
func Clean(t Table, spec CleanSpec) (CleanResult, error) {
	canonical := canonicalLookup(spec)

	colNames := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		trimmed := strings.TrimSpace(c)
		if want, ok := canonical[strings.ToLower(trimmed)]; ok {
			colNames[i] = want
		} else {
			colNames[i] = trimmed
		}
	}

	have := make(map[string]bool, len(colNames))
	for _, c := range colNames {
		have[c] = true
	}
	for _, req := range append(append([]string(nil), spec.Required...), spec.Expected...) {
		if !have[req] {
			return CleanResult{}, errors.NewSchemaError(spec.Dataset, req, colNames)
		}
	}

	outColumns := make([]string, len(colNames))
	for i, c := range colNames {
		if renamed, ok := spec.Renames[c]; ok {
			outColumns[i] = renamed
		} else {
			outColumns[i] = c
		}
	}
	required := renameAll(spec.Required, spec.Renames)
	numeric := renameAll(spec.Numeric, spec.Renames)

	result := CleanResult{Table: NewTable(outColumns...)}

rows:
	for i, raw := range t.Rows {
		row := make(Row, len(outColumns))
		for j, src := range t.Columns {
			row[outColumns[j]] = strings.TrimSpace(raw[src])
		}

		for _, req := range required {
			if row[req] == "" {
				result.Skipped++
				continue rows
			}
		}

		for _, num := range numeric {
			// Blank stays blank: Float reads it as zero, while callers that
			// care about missing observations (price rules) can still tell
			// absent from literal zero.
			if row[num] == "" {
				continue
			}
			v, ok := parseNumeric(row[num])
			if !ok {
				if spec.NumericPolicy == NumericDropRow {
					result.Skipped++
					continue rows
				}
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("%s row %d: non-numeric %s %q treated as zero", spec.Dataset, i, num, row[num]))
				v = 0
			}
			row[num] = formatNumeric(v)
		}

		result.Table.Append(row)
	}

	if spec.Dedup != DedupNone && len(spec.Key) > 0 {
		result.Table, result.Skipped = dedupe(result.Table, spec, result.Skipped)
	}

	return result, nil
}

// canonicalLookup maps lower-cased header spellings to their canonical form
// for every column the spec knows about.
func canonicalLookup(spec CleanSpec) map[string]string {
	lookup := make(map[string]string)
	add := func(names []string) {
		for _, n := range names {
			lookup[strings.ToLower(n)] = n
		}
	}
	add(spec.Required)
	add(spec.Expected)
	add(spec.Numeric)
	for from := range spec.Renames {
		lookup[strings.ToLower(from)] = from
	}
	return lookup
}

func renameAll(names []string, renames map[string]string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		if renamed, ok := renames[n]; ok {
			out[i] = renamed
		} else {
			out[i] = n
		}
	}
	return out
}

func dedupe(t Table, spec CleanSpec, skipped int) (Table, int) {
	out := NewTable(t.Columns...)
	index := make(map[string]int, t.Len())

	for _, row := range t.Rows {
		key := rowKey(row, spec.Key)
		at, seen := index[key]
		if !seen {
			index[key] = out.Len()
			out.Append(row.Clone())
			continue
		}
		skipped++
		switch spec.Dedup {
		case DedupKeepFirst:
			// first occurrence already kept
		case DedupKeepLast:
			out.Rows[at] = row.Clone()
		case DedupSum:
			kept := out.Rows[at]
			for _, col := range spec.SumColumns {
				kept[col] = formatNumeric(kept.Float(col) + row.Float(col))
			}
		}
	}
	return out, skipped
}

func rowKey(r Row, key []string) string {
	parts := make([]string, len(key))
	for i, k := range key {
		parts[i] = r.Get(k)
	}
	return strings.Join(parts, "\x1f")
}

// sortedKeys returns map keys in deterministic order.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
