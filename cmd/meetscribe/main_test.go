package main

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestFormatRowTruncatesOnRuneBoundaries(t *testing.T) {
	// A device name full of multibyte runes must not be split mid-rune.
	value := strings.Repeat("Mikrofonübertragung ", 2)
	row := formatRow("Device", value)

	if !utf8.ValidString(row) {
		t.Fatalf("formatRow produced invalid UTF-8: %q", row)
	}
	if !strings.Contains(row, "…") {
		t.Errorf("long value was not truncated: %q", row)
	}
}

func TestFormatRowKeepsShortValues(t *testing.T) {
	row := formatRow("Backend", "whisper-server")
	if !strings.Contains(row, "whisper-server") {
		t.Errorf("short value was altered: %q", row)
	}
	if strings.Contains(row, "…") {
		t.Errorf("short value was truncated: %q", row)
	}
}
