// Package core holds the typed records of both datasets and the
// filter, aggregate and salary routines the dashboard pages are built on.
//
// This file contains parsing of form amounts and peso formatting.
package core

import (
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// ParseAmount converts a user-typed amount to a decimal.
//
// It accepts dot (1234.56) and comma (1234,56) decimal separators and drops
// thousands separators and a leading peso sign. When both separators occur,
// the last one is the decimal separator. Negative values are rejected; zero
// is accepted so callers can apply their own lower bound.
//
// Examples:
//
//	ParseAmount("1,234.56") -> 1234.56
//	ParseAmount("1.234,56") -> 1234.56
//	ParseAmount("₱ 12,5")   -> 12.5
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "₱")
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		return decimal.Zero, ErrInvalidAmount
	}

	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		// A single comma followed by exactly three digits is a thousands
		// separator ("1,234"); anything else is a decimal comma.
		if strings.Count(s, ",") > 1 || len(s)-lastComma-1 == 3 {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.Replace(s, ",", ".", 1)
		}
	case strings.Count(s, ".") > 1:
		s = strings.ReplaceAll(s, ".", "")
	}

	for _, r := range s {
		if !unicode.IsDigit(r) && r != '.' {
			return decimal.Zero, ErrInvalidAmount
		}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// FormatPeso renders d as ₱1,234.56.
func FormatPeso(d decimal.Decimal) string {
	neg := d.IsNegative()
	s := d.Abs().StringFixed(2)
	intPart, frac, _ := strings.Cut(s, ".")
	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	b.WriteString("₱")
	b.WriteString(groupThousands(intPart))
	b.WriteByte('.')
	b.WriteString(frac)
	return b.String()
}

// FormatPesoFloat is FormatPeso for aggregate values.
func FormatPesoFloat(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "no data"
	}
	return FormatPeso(decimal.NewFromFloat(f))
}

// FormatValue renders v as pesos or "no data".
func FormatValue(v Value) string {
	if v.NoData {
		return v.String()
	}
	return FormatPesoFloat(v.Number)
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

// FormatPercent renders a rate like 12.5 as "12.50%".
func FormatPercent(f float64) string {
	return strconv.FormatFloat(f, 'f', 2, 64) + "%"
}
