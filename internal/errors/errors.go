// Package errors defines the error taxonomy shared by the report processors.
//
// Fatal conditions (a required column missing from a source extract, a
// workbook whose stored schema no longer matches the incoming data) are
// returned as typed errors so callers can report exactly what to fix in the
// source system. Row-level data-quality issues are never errors: they are
// accumulated into the skip counters carried on each operation's result.
package errors

import (
	"fmt"
	"strings"
)

// Error codes attached to PipelineError values.
const (
	CodeSchema        = "SCHEMA_ERROR"
	CodeMergeConflict = "WORKBOOK_MERGE_CONFLICT"
	CodeFetchFailed   = "FETCH_FAILED"
	CodeStorageFailed = "STORAGE_FAILED"
	CodeStageFailed   = "STAGE_FAILED"
)

// SchemaError reports a required column that is entirely absent from an
// input extract. A blank value in an individual row is a row skip, not a
// SchemaError.
type SchemaError struct {
	Dataset string   // logical dataset name, e.g. "order_summary"
	Column  string   // the missing canonical column
	Have    []string // columns actually present, post-normalization
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s: required column %q not found (have: %s)",
		e.Dataset, e.Column, strings.Join(e.Have, ", "))
}

// NewSchemaError creates a SchemaError for the given dataset and column.
func NewSchemaError(dataset, column string, have []string) *SchemaError {
	return &SchemaError{Dataset: dataset, Column: column, Have: have}
}

// WorkbookMergeConflict reports an existing MTD workbook whose header row
// does not match the schema of the rows being merged in. The merge must
// fail rather than silently overwrite mismatched columns.
type WorkbookMergeConflict struct {
	Sheet string
	Want  []string // header expected by the incoming data
	Have  []string // header found in the stored workbook
}

func (e *WorkbookMergeConflict) Error() string {
	return fmt.Sprintf("workbook sheet %q schema mismatch: want [%s], found [%s]",
		e.Sheet, strings.Join(e.Want, ", "), strings.Join(e.Have, ", "))
}

// PipelineError is a coded error for stage-level failures, used at the
// orchestration boundary where the failing stage matters more than the
// concrete error type.
type PipelineError struct {
	Stage   string
	Code    string
	Message string
	Err     error
}

func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s [%s]: %s: %v", e.Stage, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s [%s]: %s", e.Stage, e.Code, e.Message)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// NewStageError wraps err as a PipelineError for the given stage.
func NewStageError(stage, code, message string, err error) *PipelineError {
	return &PipelineError{Stage: stage, Code: code, Message: message, Err: err}
}
