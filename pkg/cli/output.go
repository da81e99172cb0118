package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/dshills/pathguard/pkg/validation"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
)

// colorize wraps s in color unless colors are disabled.
func colorize(color, s string) string {
	if GlobalConfig.NoColor {
		return s
	}
	return color + s + colorReset
}

// colorizeKind colors text by outcome kind.
func colorizeKind(kind, text string) string {
	switch kind {
	case validation.KindSafe.String():
		return colorize(colorGreen, text)
	case validation.KindTraversal.String():
		return colorize(colorRed, text)
	case validation.KindInvalid.String():
		return colorize(colorYellow, text)
	default:
		return text
	}
}

// truncateString truncates a string to the specified length
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 2 {
		return s[:maxLen]
	}
	return s[:maxLen-2] + ".."
}

// printable escapes control characters so stored inputs are safe to echo.
func printable(s string) string {
	q := fmt.Sprintf("%q", s)
	return q[1 : len(q)-1]
}

// parseSinceFlag parses the --since flag into a time.Time
// Supports formats: "7d" (7 days), "24h" (24 hours), "2025-01-05" (date)
func parseSinceFlag(since string) (time.Time, error) {
	now := time.Now()

	if d, ok, err := parseAge(since); ok {
		if err != nil {
			return time.Time{}, err
		}
		return now.Add(-d), nil
	}

	// Try parsing as date (e.g., "2025-01-05")
	layouts := []string{
		"2006-01-02",
		"2006-01-02 15:04:05",
		time.RFC3339,
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, since); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("invalid date format (use: 7d, 24h, or 2025-01-05)")
}

// parseAge parses "7d" or "24h" style ages. ok is false when s is not in
// that form.
func parseAge(s string) (d time.Duration, ok bool, err error) {
	if len(s) < 2 {
		return 0, false, nil
	}
	unit := s[len(s)-1]
	if unit != 'd' && unit != 'h' {
		return 0, false, nil
	}
	n, convErr := strconv.Atoi(s[:len(s)-1])
	if convErr != nil {
		return 0, false, nil
	}
	if n < 0 {
		return 0, true, fmt.Errorf("age cannot be negative: %s", s)
	}
	if unit == 'd' {
		return time.Duration(n) * 24 * time.Hour, true, nil
	}
	return time.Duration(n) * time.Hour, true, nil
}
