package service

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// isCurrencyAffix reports whether text around an amount holds nothing but
// currency symbols, ISO codes or currency names.
func isCurrencyAffix(s string) bool {
	for _, tok := range strings.FieldsFunc(s, func(r rune) bool { return unicode.IsSpace(r) || r == '.' || r == ':' }) {
		if currencyWords[strings.ToLower(tok)] || NormalizeCurrency(tok, "") != "" {
			continue
		}
		if strings.IndexFunc(tok, func(r rune) bool { return !unicode.Is(unicode.Sc, r) }) >= 0 {
			return false
		}
	}
	return true
}

// matchName resolves input against names: exact match first, then a
// case-insensitive match on trimmed values. Returns -1 when nothing matches.
func matchName(names []string, input string) int {
	if strings.TrimSpace(input) == "" {
		return -1
	}
	for i, n := range names {
		if n == input {
			return i
		}
	}
	want := strings.TrimSpace(input)
	for i, n := range names {
		if strings.EqualFold(strings.TrimSpace(n), want) {
			return i
		}
	}
	return -1
}

// selectOption resolves a free-form reply against a numbered list. A reply
// is either a 1-based index or text that contains, or is contained in, one of
// the option's labels (case-insensitive). The first option in list order
// wins. Empty replies never match.
func selectOption(options [][]string, reply string) int {
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return -1
	}

	if n, err := strconv.Atoi(strings.TrimSuffix(reply, ".")); err == nil {
		if n >= 1 && n <= len(options) {
			return n - 1
		}
		return -1
	}

	lower := strings.ToLower(reply)
	for i, labels := range options {
		for _, label := range labels {
			l := strings.ToLower(strings.TrimSpace(label))
			if l == "" {
				continue
			}
			if strings.Contains(l, lower) || strings.Contains(lower, l) {
				return i
			}
		}
	}
	return -1
}

var currencyWords = map[string]bool{
	"peso": true, "pesos": true,
	"dolar": true, "dólar": true, "dolares": true, "dólares": true,
	"euro": true, "euros": true,
}

// ParseAmount reads a user or model supplied amount. A decimal comma is
// accepted; when both separators appear the last one is the decimal mark.
// Only currency symbols, codes and names may surround the number.
func ParseAmount(raw string) (decimal.Decimal, error) {
	s := strings.Trim(strings.TrimSpace(raw), `"`)

	first := strings.IndexFunc(s, unicode.IsDigit)
	if first < 0 {
		return decimal.Zero, fmt.Errorf("%w: amount %q is not a number", ErrValidation, raw)
	}
	if first > 0 && s[first-1] == '-' {
		first--
	}
	last := strings.LastIndexFunc(s, unicode.IsDigit)
	if !isCurrencyAffix(s[:first]) || !isCurrencyAffix(s[last+1:]) {
		return decimal.Zero, fmt.Errorf("%w: amount %q is not a number", ErrValidation, raw)
	}

	s = s[first : last+1]
	for i, r := range s {
		if unicode.IsDigit(r) || r == '.' || r == ',' || (r == '-' && i == 0) {
			continue
		}
		return decimal.Zero, fmt.Errorf("%w: amount %q is not a number", ErrValidation, raw)
	}

	lastDot, lastComma := strings.LastIndex(s, "."), strings.LastIndex(s, ",")
	switch {
	case lastComma >= 0 && lastDot >= 0 && lastComma > lastDot:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case lastComma >= 0 && lastDot >= 0:
		s = strings.ReplaceAll(s, ",", "")
	case strings.Count(s, ",") == 1:
		s = strings.Replace(s, ",", ".", 1)
	case strings.Count(s, ",") > 1:
		s = strings.ReplaceAll(s, ",", "")
	}

	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: amount %q is not a number", ErrValidation, raw)
	}
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: amount %q must be positive", ErrValidation, raw)
	}
	return amount.Round(2), nil
}
