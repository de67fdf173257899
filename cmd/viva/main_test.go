package main

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSummaryRowTruncatesByRune(t *testing.T) {
	t.Parallel()

	row := summaryRow("Evaluator", "anthropic / "+strings.Repeat("é", 20))
	if !utf8.ValidString(row) {
		t.Fatalf("row is not valid UTF-8: %q", row)
	}
	if !strings.Contains(row, "…") {
		t.Errorf("long value not truncated: %q", row)
	}

	short := summaryRow("Storage", "postgres")
	if !strings.Contains(short, "postgres") {
		t.Errorf("short value altered: %q", short)
	}
}
