package http

// This file turns query strings and forms into the criteria, row ranges and
// salary inputs the dashboard service works with.

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"finboard/internal/core"
)

// Query and form parameter names.
const (
	ParamStart    = "start"
	ParamEnd      = "end"
	ParamCountry  = "country"
	ParamDay      = "day"
	ParamYear     = "year"
	ParamColumn   = "column"
	ParamRowStart = "row_start"
	ParamRowEnd   = "row_end"
	ParamGross    = "gross"
	ParamRate     = "rate"
)

var ErrBadParameter = errors.New("bad parameter")

// ParseCriteria reads start, end and the repeated category parameter from
// query, falling back to defaults for anything not supplied.
//
// A category parameter that is present replaces the default selection, and
// empty values are dropped. Forms send one empty value as a sentinel so that
// unchecking every box selects nothing instead of everything.
func ParseCriteria(query url.Values, categoryParam string, defaults core.FilterCriteria) (core.FilterCriteria, error) {
	c := defaults

	if v := strings.TrimSpace(query.Get(ParamStart)); v != "" {
		d, err := core.ParseDate(v)
		if err != nil {
			return c, fmt.Errorf("%w %s=%q: %w", ErrBadParameter, ParamStart, v, err)
		}
		c.Start = d
	}
	if v := strings.TrimSpace(query.Get(ParamEnd)); v != "" {
		d, err := core.ParseDate(v)
		if err != nil {
			return c, fmt.Errorf("%w %s=%q: %w", ErrBadParameter, ParamEnd, v, err)
		}
		c.End = d
	}

	if values, ok := query[categoryParam]; ok {
		selected := make([]string, 0, len(values))
		for _, v := range values {
			if v = strings.TrimSpace(sanitizeInput(v)); v != "" {
				selected = append(selected, v)
			}
		}
		c.Categories = selected
	}
	return c, nil
}

// ParseYear returns the year parameter, 0 when absent.
func ParseYear(query url.Values) (int, error) {
	return parseInt(query, ParamYear, 0)
}

// ParseRowRange returns [row_start, row_end) with the given defaults.
// Bounds are checked against the dataset by the service.
func ParseRowRange(query url.Values, defStart, defEnd int) (int, int, error) {
	start, err := parseInt(query, ParamRowStart, defStart)
	if err != nil {
		return 0, 0, err
	}
	end, err := parseInt(query, ParamRowEnd, defEnd)
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

func parseInt(query url.Values, name string, def int) (int, error) {
	v := strings.TrimSpace(query.Get(name))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w %s=%q: not a whole number", ErrBadParameter, name, v)
	}
	return n, nil
}

// SalaryInput is the calculator form as typed by the user.
type SalaryInput struct {
	Gross string
	Rate  string
}

// ParseSalaryForm reads and converts the calculator fields. The returned
// input echoes the raw values back into the form.
func ParseSalaryForm(form url.Values) (SalaryInput, decimal.Decimal, decimal.Decimal, error) {
	in := SalaryInput{
		Gross: strings.TrimSpace(sanitizeInput(form.Get(ParamGross))),
		Rate:  strings.TrimSpace(sanitizeInput(form.Get(ParamRate))),
	}
	gross, err := core.ParseAmount(in.Gross)
	if err != nil {
		return in, decimal.Zero, decimal.Zero, fmt.Errorf("gross salary: %w", err)
	}
	rate, err := core.ParseAmount(strings.TrimSuffix(in.Rate, "%"))
	if err != nil {
		return in, decimal.Zero, decimal.Zero, fmt.Errorf("tax rate: %w", err)
	}
	return in, gross, rate, nil
}

// sanitizeInput drops control characters other than tab and newlines.
func sanitizeInput(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
}
