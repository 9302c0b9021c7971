package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestJoinKey(t *testing.T) {
	assert.Equal(t, "rzn1/order_summary/raw/file.csv",
		JoinKey("rzn1/order_summary/raw/", "/file.csv"))
	assert.Equal(t, "a/b", JoinKey("a", "", "b"))
	assert.Equal(t, "", JoinKey("", "/"))
}

func TestDatedKey(t *testing.T) {
	day := time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "rzn1/order_summary/processed/20260825/UP_SALES20260825.csv",
		DatedKey("rzn1/order_summary/processed", day, "UP_SALES20260825.csv"))
}
