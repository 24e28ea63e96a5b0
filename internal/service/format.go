package service

import (
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var spanish = message.NewPrinter(language.Spanish)

// FormatAmount renders an amount with two decimals in Spanish notation.
func FormatAmount(amount decimal.Decimal, code string) string {
	f, _ := amount.Round(2).Float64()
	unit, err := currency.ParseISO(strings.ToUpper(code))
	if err != nil {
		return strings.TrimSpace(spanish.Sprintf("$%.2f %s", f, code))
	}
	return spanish.Sprintf("$%.2f %s", f, unit.String())
}

// NormalizeCurrency returns the upper-case ISO 4217 code for raw, or
// fallback when raw is not a known currency.
func NormalizeCurrency(raw, fallback string) string {
	unit, err := currency.ParseISO(strings.ToUpper(strings.TrimSpace(raw)))
	if err != nil {
		return fallback
	}
	return unit.String()
}

// truncate shortens s to at most n runes, marking the cut with "…".
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n-1]) + "…"
}

// cleanText drops invalid UTF-8 bytes and surrounding whitespace from text
// produced by models and PDF extraction.
func cleanText(s string) string {
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}
	return strings.TrimSpace(s)
}
