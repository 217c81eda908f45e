package main

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// formatTokenCount formats an integer with comma separators (e.g. 45230 -> "45,230").
func formatTokenCount(n int64) string {
	if n < 0 {
		return "-" + formatTokenCount(-n)
	}
	s := strconv.FormatInt(n, 10)
	if len(s) <= 3 {
		return s
	}

	var b strings.Builder
	remainder := len(s) % 3
	if remainder > 0 {
		b.WriteString(s[:remainder])
	}
	for i := remainder; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// pricePerMillion converts a provider per-token USD price ("0.00000015")
// into a per-million-token display value ("$0.15"). Unparseable or empty
// prices render as "-".
func pricePerMillion(perToken string) string {
	if perToken == "" {
		return "-"
	}
	p, err := strconv.ParseFloat(perToken, 64)
	if err != nil || p < 0 {
		return "-"
	}
	return fmt.Sprintf("$%.2f", p*1_000_000)
}

// truncate shortens s to maxLen runes, marking the cut with "...".
func truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	r := []rune(s)
	return string(r[:maxLen-3]) + "..."
}
