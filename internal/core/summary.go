package core

import (
	"fmt"
	"math"
	"slices"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

type (
	// ColumnSummary mirrors one column of a describe() table.
	ColumnSummary struct {
		Field string `json:"field"`
		Count int    `json:"count"`
		Mean  Value  `json:"mean"`
		Std   Value  `json:"std"`
		Min   Value  `json:"min"`
		Q25   Value  `json:"q25"`
		Q50   Value  `json:"q50"`
		Q75   Value  `json:"q75"`
		Max   Value  `json:"max"`
	}

	// Bin is a histogram bucket covering [Lower, Upper); the last bin of a
	// histogram also includes its upper edge.
	Bin struct {
		Lower float64 `json:"lower"`
		Upper float64 `json:"upper"`
		Count int     `json:"count"`
	}

	TimePoint struct {
		Date  Date    `json:"date"`
		Value float64 `json:"value"`
	}

	// Point is one scatter mark. Label is the record's category; Style is
	// an optional second label that picks the marker shape.
	Point struct {
		X     float64 `json:"x"`
		Y     float64 `json:"y"`
		Label string  `json:"label"`
		Style string  `json:"style,omitempty"`
	}

	Share struct {
		Label   string  `json:"label"`
		Value   float64 `json:"value"`
		Percent float64 `json:"percent"`
	}
)

// Column extracts a numeric column from records.
func Column[R Record](records []R, field string) ([]float64, error) {
	if !hasNumber(schemaOf(records), field) {
		return nil, fmt.Errorf("%w %q", ErrUnknownField, field)
	}
	out := make([]float64, len(records))
	for i, r := range records {
		out[i], _ = r.Number(field)
	}
	return out, nil
}

// Describe summarizes each numeric field: count, mean, sample standard
// deviation, min, quartiles and max. Quartiles interpolate linearly between
// the closest ranks.
func Describe[R Record](records []R, fields []string) ([]ColumnSummary, error) {
	out := make([]ColumnSummary, 0, len(fields))
	for _, f := range fields {
		xs, err := Column(records, f)
		if err != nil {
			return nil, err
		}
		out = append(out, describeColumn(f, xs))
	}
	return out, nil
}

func describeColumn(field string, xs []float64) ColumnSummary {
	s := ColumnSummary{Field: field, Count: len(xs)}
	none := Value{NoData: true}
	if len(xs) == 0 {
		s.Mean, s.Std, s.Min, s.Q25, s.Q50, s.Q75, s.Max = none, none, none, none, none, none, none
		return s
	}
	sorted := slices.Clone(xs)
	sort.Float64s(sorted)

	s.Mean = Value{Number: stat.Mean(sorted, nil)}
	s.Std = none
	if len(sorted) > 1 {
		s.Std = Value{Number: stat.StdDev(sorted, nil)}
	}
	s.Min = Value{Number: floats.Min(sorted)}
	s.Max = Value{Number: floats.Max(sorted)}
	s.Q25 = Value{Number: quantile(sorted, 0.25)}
	s.Q50 = Value{Number: quantile(sorted, 0.50)}
	s.Q75 = Value{Number: quantile(sorted, 0.75)}
	return s
}

// quantile expects sorted input with at least one element.
func quantile(sorted []float64, p float64) float64 {
	pos := p * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// Histogram splits values into bins equal-width buckets between their min
// and max. Empty input yields no bins.
func Histogram(values []float64, bins int) ([]Bin, error) {
	if bins < 1 {
		return nil, fmt.Errorf("%w: bins must be positive, got %d", ErrInvalidMetric, bins)
	}
	if len(values) == 0 {
		return nil, nil
	}
	sorted := slices.Clone(values)
	sort.Float64s(sorted)

	lo, hi := sorted[0], sorted[len(sorted)-1]
	if lo == hi {
		lo -= 0.5
		hi += 0.5
	}
	dividers := make([]float64, bins+1)
	floats.Span(dividers, lo, hi)
	edges := slices.Clone(dividers)
	// stat.Histogram treats the last divider as exclusive.
	dividers[bins] = math.Nextafter(hi, math.Inf(1))

	counts := stat.Histogram(nil, dividers, sorted, nil)
	out := make([]Bin, bins)
	for i := range out {
		out[i] = Bin{Lower: edges[i], Upper: edges[i+1], Count: int(counts[i])}
	}
	return out, nil
}

// TimeSeries returns field against the record timestamp, ordered by date.
// Records without a timestamp are skipped.
func TimeSeries[R Record](records []R, field string) ([]TimePoint, error) {
	if !hasNumber(schemaOf(records), field) {
		return nil, fmt.Errorf("%w %q", ErrUnknownField, field)
	}
	out := make([]TimePoint, 0, len(records))
	for _, r := range records {
		ts := r.Timestamp()
		if ts.IsZero() {
			continue
		}
		v, _ := r.Number(field)
		out = append(out, TimePoint{Date: Date{Time: ts}, Value: v})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.Before(out[j].Date.Time)
	})
	return out, nil
}

// Scatter pairs two numeric fields per record, labelled by category. A
// non-empty styleField fills Point.Style from that text field.
func Scatter[R Record](records []R, xField, yField, styleField string) ([]Point, error) {
	probe := schemaOf(records)
	for _, f := range []string{xField, yField} {
		if !hasNumber(probe, f) {
			return nil, fmt.Errorf("%w %q", ErrUnknownField, f)
		}
	}
	if styleField != "" && probe != nil {
		if _, ok := probe.Label(styleField); !ok {
			return nil, fmt.Errorf("%w %q", ErrUnknownField, styleField)
		}
	}
	out := make([]Point, len(records))
	for i, r := range records {
		x, _ := r.Number(xField)
		y, _ := r.Number(yField)
		out[i] = Point{X: x, Y: y, Label: r.CategoryLabel()}
		if styleField != "" {
			out[i].Style, _ = r.Label(styleField)
		}
	}
	return out, nil
}

// Breakdown sums each field and reports its share of the combined total.
// Shares are zero when the total is zero.
func Breakdown[R Record](records []R, fields []string) ([]Share, error) {
	out := make([]Share, 0, len(fields))
	var total float64
	for _, f := range fields {
		xs, err := Column(records, f)
		if err != nil {
			return nil, err
		}
		v := floats.Sum(xs)
		total += v
		out = append(out, Share{Label: f, Value: v})
	}
	if total != 0 {
		for i := range out {
			out[i].Percent = out[i].Value / total * 100
		}
	}
	return out, nil
}
