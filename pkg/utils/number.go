package utils

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// faPrinter formats numbers with fa-IR digit grouping for rendered templates.
var faPrinter = message.NewPrinter(language.Persian)

// persianDigits maps ASCII digits to their Persian equivalents.
var persianDigits = strings.NewReplacer(
	"0", "۰", "1", "۱", "2", "۲", "3", "۳", "4", "۴",
	"5", "۵", "6", "۶", "7", "۷", "8", "۸", "9", "۹",
)

// AbbreviateNumber renders a value in compact form with one decimal place
// and a K/M/B/T suffix, e.g. 5_000_000_000 -> "5.0B".
func AbbreviateNumber(v float64) string {
	abs := math.Abs(v)

	switch {
	case abs >= 1e12:
		return fmt.Sprintf("%.1fT", v/1e12)
	case abs >= 1e9:
		return fmt.Sprintf("%.1fB", v/1e9)
	case abs >= 1e6:
		return fmt.Sprintf("%.1fM", v/1e6)
	case abs >= 1e3:
		return fmt.Sprintf("%.1fK", v/1e3)
	default:
		return fmt.Sprintf("%.0f", v)
	}
}

// GroupDigits renders an integral value with locale-aware digit grouping
// for the Persian audience, e.g. 1234567 -> "۱٬۲۳۴٬۵۶۷".
func GroupDigits(v int64) string {
	return faPrinter.Sprintf("%d", v)
}

// LocalizeDigits transliterates ASCII digits in s to Persian digits.
// Non-digit characters pass through untouched.
func LocalizeDigits(s string) string {
	return persianDigits.Replace(s)
}
