package core

import (
	"encoding/json"
	"fmt"
	"reflect"
	"slices"
	"strconv"
)

const (
	Sum       Reduction = "sum"
	Mean      Reduction = "mean"
	Count     Reduction = "count"
	GroupSum  Reduction = "group_sum"
	GroupMean Reduction = "group_mean"
)

const (
	ByKey       GroupOrder = "key"
	ByInsertion GroupOrder = "insertion"
)

type (
	Reduction  string
	GroupOrder string

	// MetricSpec names one reduction over a column. GroupBy is required for
	// the grouped reductions and ignored otherwise.
	MetricSpec struct {
		Name      string
		Field     string
		Reduction Reduction
		GroupBy   string
		Order     GroupOrder
	}

	// Value is a numeric result that may be undefined, as with the mean of
	// an empty set.
	Value struct {
		Number float64
		NoData bool
	}

	GroupValue struct {
		Key   string `json:"key"`
		Value Value  `json:"value"`
	}

	// MetricValue holds either Scalar or Groups depending on the reduction.
	MetricValue struct {
		Spec   MetricSpec   `json:"-"`
		Scalar *Value       `json:"value,omitempty"`
		Groups []GroupValue `json:"groups,omitempty"`
	}

	AggregateResult map[string]MetricValue
)

func SumOf(name, field string) MetricSpec {
	return MetricSpec{Name: name, Field: field, Reduction: Sum}
}

func MeanOf(name, field string) MetricSpec {
	return MetricSpec{Name: name, Field: field, Reduction: Mean}
}

func CountOf(name string) MetricSpec {
	return MetricSpec{Name: name, Reduction: Count}
}

func GroupSumOf(name, field, groupBy string, order GroupOrder) MetricSpec {
	return MetricSpec{Name: name, Field: field, Reduction: GroupSum, GroupBy: groupBy, Order: order}
}

func GroupMeanOf(name, field, groupBy string, order GroupOrder) MetricSpec {
	return MetricSpec{Name: name, Field: field, Reduction: GroupMean, GroupBy: groupBy, Order: order}
}

func (r Reduction) grouped() bool {
	return r == GroupSum || r == GroupMean
}

// Validate checks the spec against the columns of probe. A nil probe
// skips the column checks.
func (s MetricSpec) Validate(probe Record) error {
	if s.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidMetric)
	}
	switch s.Reduction {
	case Count:
		return nil
	case Sum, Mean, GroupSum, GroupMean:
	default:
		return fmt.Errorf("%w: %s: unknown reduction %q", ErrInvalidMetric, s.Name, s.Reduction)
	}
	if !hasNumber(probe, s.Field) {
		return fmt.Errorf("%s: %w %q", s.Name, ErrUnknownField, s.Field)
	}
	if !s.Reduction.grouped() {
		return nil
	}
	if probe != nil {
		if _, ok := probe.Label(s.GroupBy); !ok {
			return fmt.Errorf("%s: %w %q", s.Name, ErrUnknownField, s.GroupBy)
		}
	}
	switch s.Order {
	case "", ByKey, ByInsertion:
	default:
		return fmt.Errorf("%w: %s: unknown order %q", ErrInvalidMetric, s.Name, s.Order)
	}
	return nil
}

// schemaOf returns a record that can answer field lookups for R. The zero
// value serves for concrete record types; for interface or pointer types it
// would be nil, so the first record stands in. It returns nil when R has no
// usable zero value and subset is empty.
func schemaOf[R Record](subset []R) Record {
	var zero R
	switch reflect.TypeOf(&zero).Elem().Kind() {
	case reflect.Interface, reflect.Pointer:
		if len(subset) == 0 {
			return nil
		}
		return subset[0]
	}
	return zero
}

func hasNumber(probe Record, field string) bool {
	if probe == nil {
		return true
	}
	_, ok := probe.Number(field)
	return ok
}

// Aggregate computes every spec over subset. Specs are validated against the
// record type before anything is computed, so an empty subset still reports
// unknown fields.
func Aggregate[R Record](subset []R, specs []MetricSpec) (AggregateResult, error) {
	probe := schemaOf(subset)
	for _, s := range specs {
		if err := s.Validate(probe); err != nil {
			return nil, err
		}
	}
	out := make(AggregateResult, len(specs))
	for _, s := range specs {
		mv := MetricValue{Spec: s}
		switch s.Reduction {
		case Count:
			v := Value{Number: float64(len(subset))}
			mv.Scalar = &v
		case Sum:
			v := Value{Number: sumField(subset, s.Field)}
			mv.Scalar = &v
		case Mean:
			v := mean(sumField(subset, s.Field), len(subset))
			mv.Scalar = &v
		case GroupSum, GroupMean:
			mv.Groups = groupBy(subset, s)
		}
		out[s.Name] = mv
	}
	return out, nil
}

func sumField[R Record](subset []R, field string) float64 {
	var total float64
	for _, r := range subset {
		v, _ := r.Number(field)
		total += v
	}
	return total
}

func mean(total float64, n int) Value {
	if n == 0 {
		return Value{NoData: true}
	}
	return Value{Number: total / float64(n)}
}

func groupBy[R Record](subset []R, s MetricSpec) []GroupValue {
	type acc struct {
		sum float64
		n   int
	}
	var keys []string
	accs := make(map[string]*acc)
	for _, r := range subset {
		k, _ := r.Label(s.GroupBy)
		a, ok := accs[k]
		if !ok {
			a = &acc{}
			accs[k] = a
			keys = append(keys, k)
		}
		v, _ := r.Number(s.Field)
		a.sum += v
		a.n++
	}
	if s.Order != ByInsertion {
		slices.Sort(keys)
	}
	out := make([]GroupValue, 0, len(keys))
	for _, k := range keys {
		a := accs[k]
		v := Value{Number: a.sum}
		if s.Reduction == GroupMean {
			v = mean(a.sum, a.n)
		}
		out = append(out, GroupValue{Key: k, Value: v})
	}
	return out
}

// Scalar returns the scalar value of metric name, NoData when absent.
func (r AggregateResult) Scalar(name string) Value {
	mv, ok := r[name]
	if !ok || mv.Scalar == nil {
		return Value{NoData: true}
	}
	return *mv.Scalar
}

// Groups returns the grouped values of metric name.
func (r AggregateResult) Groups(name string) []GroupValue {
	return r[name].Groups
}

func (v Value) MarshalJSON() ([]byte, error) {
	if v.NoData {
		return []byte("null"), nil
	}
	return json.Marshal(v.Number)
}

func (v Value) String() string {
	if v.NoData {
		return "no data"
	}
	return strconv.FormatFloat(v.Number, 'f', 2, 64)
}
