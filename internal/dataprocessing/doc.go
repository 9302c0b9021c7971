// Package dataprocessing implements the warehouse report transformation
// core: cleaning and filtering of daily CSV extracts, the order summary /
// sales return merge, per-SKU inventory aggregation, closing stock
// filtering and valuation, UP/HR regional partitioning, and the
// month-to-date workbook merge.
//
// The package is purely data-shaped: every operation takes in-memory tables
// or bytes and returns in-memory tables or bytes. Fetching extracts and
// persisting artifacts belong to the fetch and storage packages.
package dataprocessing
