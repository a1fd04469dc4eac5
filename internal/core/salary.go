package core

import "github.com/shopspring/decimal"

var (
	hundred = decimal.NewFromInt(100)
)

// SalaryBreakdown is the result of applying a flat tax rate to a salary.
type SalaryBreakdown struct {
	Gross decimal.Decimal
	Rate  decimal.Decimal
	Tax   decimal.Decimal
	Net   decimal.Decimal
}

// ComputeNetSalary applies ratePercent to gross. The gross salary must be
// positive and the rate within [0, 100]; nothing is computed otherwise.
// Tax and net are rounded to centavos.
//
//	ComputeNetSalary(1000, 12) -> Tax 120.00, Net 880.00
func ComputeNetSalary(gross, ratePercent decimal.Decimal) (SalaryBreakdown, error) {
	if !gross.IsPositive() {
		return SalaryBreakdown{}, ErrInvalidGross
	}
	if ratePercent.IsNegative() || ratePercent.GreaterThan(hundred) {
		return SalaryBreakdown{}, ErrInvalidRate
	}
	tax := gross.Mul(ratePercent).Div(hundred).Round(2)
	return SalaryBreakdown{
		Gross: gross.Round(2),
		Rate:  ratePercent,
		Tax:   tax,
		Net:   gross.Sub(tax).Round(2),
	}, nil
}
