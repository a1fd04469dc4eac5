// Package services builds the metric sets behind each dashboard page from
// the datasets loaded at startup.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/shopspring/decimal"

	"finboard/internal/core"
	"finboard/internal/dataset"
)

// Metric names shared by the pages and the JSON API.
const (
	MetricTotalSales        = "total_sales"
	MetricTotalIncome       = "total_income"
	MetricTotalTax          = "total_tax"
	MetricIncomeByCategory  = "income_by_category"
	MetricTotalGrossSales   = "total_gross_sales"
	MetricTotalNetSales     = "total_net_sales"
	MetricTotalGrossIncome  = "total_gross_income"
	MetricMeanNetSales      = "mean_net_sales"
	MetricTotalTaxDue       = "total_tax_due"
	MetricTotalTaxable      = "total_taxable_income"
	MetricTaxByCountry      = "tax_by_country"
	MetricAvgBillByDay      = "avg_total_bill_by_day"
	MetricMeanTip           = "mean_tip"
	MetricTotalTips         = "total_tips"
	MetricRecords           = "records"
	SalesHistogramBins      = 25
	TipsHistogramBins       = 20
	DefaultTipsColumn       = core.FieldTip
	DefaultPreviewRowsCount = 20
)

var (
	overviewSpecs = []core.MetricSpec{
		core.SumOf(MetricTotalSales, core.FieldGrossSales),
		core.SumOf(MetricTotalIncome, core.FieldGrossIncome),
		core.SumOf(MetricTotalTax, core.FieldTaxDue),
		core.GroupSumOf(MetricIncomeByCategory, core.FieldGrossIncome, core.FieldCategory, core.ByKey),
		core.CountOf(MetricRecords),
	}
	salesSpecs = []core.MetricSpec{
		core.SumOf(MetricTotalGrossSales, core.FieldGrossSales),
		core.SumOf(MetricTotalNetSales, core.FieldNetSales),
		core.SumOf(MetricTotalGrossIncome, core.FieldGrossIncome),
		core.MeanOf(MetricMeanNetSales, core.FieldNetSales),
		core.CountOf(MetricRecords),
	}
	taxSpecs = []core.MetricSpec{
		core.SumOf(MetricTotalTaxDue, core.FieldTaxDue),
		core.SumOf(MetricTotalTaxable, core.FieldTotalTaxableIncome),
		core.GroupSumOf(MetricTaxByCountry, core.FieldTaxDue, core.FieldCountry, core.ByKey),
		core.CountOf(MetricRecords),
	}
	tipsSpecs = []core.MetricSpec{
		core.GroupMeanOf(MetricAvgBillByDay, core.FieldTotalBill, core.FieldDay, core.ByInsertion),
		core.MeanOf(MetricMeanTip, core.FieldTip),
		core.SumOf(MetricTotalTips, core.FieldTip),
		core.CountOf(MetricRecords),
	}

	taxBreakdownFields = []string{core.FieldTotalTaxableIncome, core.FieldOSD40, core.FieldNetTaxableIncome}

	// TipsNumericFields are the columns offered for the tips histogram and
	// summarized by the row preview.
	TipsNumericFields = []string{core.FieldTotalBill, core.FieldTip, core.FieldSize}
)

type (
	// Overview is the landing page: totals, gross sales trend and income
	// per category for the filtered rows.
	Overview struct {
		Criteria         core.FilterCriteria
		NoData           bool
		Metrics          core.AggregateResult
		Trend            []core.TimePoint
		IncomeByCategory []core.GroupValue
		Records          []core.TaxRecord
	}

	// Sales narrows the filtered rows to one year.
	Sales struct {
		Criteria     core.FilterCriteria
		Years        []int
		Year         int
		NoData       bool
		Metrics      core.AggregateResult
		Trend        []core.TimePoint
		Distribution []core.Bin
	}

	Tax struct {
		Criteria  core.FilterCriteria
		NoData    bool
		Metrics   core.AggregateResult
		ByCountry []core.GroupValue
		Breakdown []core.Share
	}

	Tips struct {
		Criteria     core.FilterCriteria
		Dated        bool
		NoData       bool
		Column       string
		Metrics      core.AggregateResult
		AvgBillByDay []core.GroupValue
		Distribution []core.Bin
		Scatter      []core.Point
		Trend        []core.TimePoint
	}

	// TipsRows is the raw data preview with its summary statistics.
	TipsRows struct {
		Start, End int
		Total      int
		Records    []core.TipRecord
		Summary    []core.ColumnSummary
	}
)

// DashboardService holds the read-only datasets shared by all requests.
type DashboardService struct {
	tax  *dataset.TaxDataset
	tips *dataset.TipDataset
}

func NewDashboardService(tax *dataset.TaxDataset, tips *dataset.TipDataset) *DashboardService {
	return &DashboardService{tax: tax, tips: tips}
}

func (s *DashboardService) TaxDataset() *dataset.TaxDataset { return s.tax }

func (s *DashboardService) TipsDataset() *dataset.TipDataset { return s.tips }

// Countries lists the COUNTRY values in order of first appearance.
func (s *DashboardService) Countries() []string { return s.tax.Categories() }

// Days lists the tips day values in order of first appearance.
func (s *DashboardService) Days() []string { return s.tips.Categories() }

// DefaultTaxCriteria spans the whole tax dataset.
func (s *DashboardService) DefaultTaxCriteria() core.FilterCriteria {
	start, end, _ := s.tax.DateBounds()
	return core.FilterCriteria{Start: start, End: end, Categories: s.Countries()}
}

// DefaultTipsCriteria spans the whole tips dataset. Start and End are zero
// when the source has no billdate column.
func (s *DashboardService) DefaultTipsCriteria() core.FilterCriteria {
	start, end, _ := s.tips.DateBounds()
	return core.FilterCriteria{Start: start, End: end, Categories: s.Days()}
}

// filterTax applies c and folds ErrNoMatchingData into an empty subset.
// A dataset without dated rows has no default range, so nothing can match.
func (s *DashboardService) filterTax(ctx context.Context, c core.FilterCriteria) ([]core.TaxRecord, bool, error) {
	if _, _, ok := s.tax.DateBounds(); !ok {
		return noData[core.TaxRecord](ctx, nil, fmt.Errorf("%s has no dated rows: %w", s.tax.Name(), core.ErrNoMatchingData))
	}
	subset, err := core.Filter(s.tax.Records(), c)
	return noData(ctx, subset, err)
}

func (s *DashboardService) filterTips(ctx context.Context, c core.FilterCriteria) ([]core.TipRecord, bool, error) {
	var (
		subset []core.TipRecord
		err    error
	)
	if s.tips.HasTimestamps() {
		subset, err = core.Filter(s.tips.Records(), c)
	} else {
		subset, err = core.FilterCategories(s.tips.Records(), c.Categories)
	}
	return noData(ctx, subset, err)
}

func noData[R core.Record](ctx context.Context, subset []R, err error) ([]R, bool, error) {
	if errors.Is(err, core.ErrNoMatchingData) {
		slog.DebugContext(ctx, "Criteria cannot match", "reason", err)
		return nil, true, nil
	}
	if err != nil {
		return nil, false, err
	}
	return subset, len(subset) == 0, nil
}

func (s *DashboardService) Overview(ctx context.Context, c core.FilterCriteria) (*Overview, error) {
	subset, empty, err := s.filterTax(ctx, c)
	if err != nil {
		return nil, err
	}
	res, err := core.Aggregate(subset, overviewSpecs)
	if err != nil {
		return nil, fmt.Errorf("overview metrics: %w", err)
	}
	trend, err := core.TimeSeries(subset, core.FieldGrossSales)
	if err != nil {
		return nil, fmt.Errorf("gross sales trend: %w", err)
	}
	return &Overview{
		Criteria:         c,
		NoData:           empty,
		Metrics:          res,
		Trend:            trend,
		IncomeByCategory: res.Groups(MetricIncomeByCategory),
		Records:          subset,
	}, nil
}

// Sales computes the page for one year of the filtered rows. A zero year
// selects the most recent year present after filtering.
func (s *DashboardService) Sales(ctx context.Context, c core.FilterCriteria, year int) (*Sales, error) {
	subset, _, err := s.filterTax(ctx, c)
	if err != nil {
		return nil, err
	}
	years := core.AvailableYears(subset)
	if year == 0 && len(years) > 0 {
		year = years[0]
	}
	inYear := core.FilterYear(subset, year)

	res, err := core.Aggregate(inYear, salesSpecs)
	if err != nil {
		return nil, fmt.Errorf("sales metrics: %w", err)
	}
	trend, err := core.TimeSeries(inYear, core.FieldNetSales)
	if err != nil {
		return nil, fmt.Errorf("net sales trend: %w", err)
	}
	values, err := core.Column(inYear, core.FieldNetSales)
	if err != nil {
		return nil, err
	}
	bins, err := core.Histogram(values, SalesHistogramBins)
	if err != nil {
		return nil, fmt.Errorf("net sales distribution: %w", err)
	}
	return &Sales{
		Criteria:     c,
		Years:        years,
		Year:         year,
		NoData:       len(inYear) == 0,
		Metrics:      res,
		Trend:        trend,
		Distribution: bins,
	}, nil
}

func (s *DashboardService) Tax(ctx context.Context, c core.FilterCriteria) (*Tax, error) {
	subset, empty, err := s.filterTax(ctx, c)
	if err != nil {
		return nil, err
	}
	res, err := core.Aggregate(subset, taxSpecs)
	if err != nil {
		return nil, fmt.Errorf("tax metrics: %w", err)
	}
	shares, err := core.Breakdown(subset, taxBreakdownFields)
	if err != nil {
		return nil, fmt.Errorf("tax breakdown: %w", err)
	}
	return &Tax{
		Criteria:  c,
		NoData:    empty,
		Metrics:   res,
		ByCountry: res.Groups(MetricTaxByCountry),
		Breakdown: shares,
	}, nil
}

// Tips computes the tips page. column picks the histogram column and
// defaults to tip. Without a billdate column only the day selection applies.
func (s *DashboardService) Tips(ctx context.Context, c core.FilterCriteria, column string) (*Tips, error) {
	if column == "" {
		column = DefaultTipsColumn
	}
	if !slices.Contains(TipsNumericFields, column) {
		return nil, fmt.Errorf("histogram column: %w %q", core.ErrUnknownField, column)
	}
	subset, empty, err := s.filterTips(ctx, c)
	if err != nil {
		return nil, err
	}
	res, err := core.Aggregate(subset, tipsSpecs)
	if err != nil {
		return nil, fmt.Errorf("tips metrics: %w", err)
	}
	values, err := core.Column(subset, column)
	if err != nil {
		return nil, err
	}
	bins, err := core.Histogram(values, TipsHistogramBins)
	if err != nil {
		return nil, fmt.Errorf("%s distribution: %w", column, err)
	}
	points, err := core.Scatter(subset, core.FieldTotalBill, core.FieldTip, core.FieldSex)
	if err != nil {
		return nil, err
	}

	out := &Tips{
		Criteria:     c,
		Dated:        s.tips.HasTimestamps(),
		NoData:       empty,
		Column:       column,
		Metrics:      res,
		AvgBillByDay: res.Groups(MetricAvgBillByDay),
		Distribution: bins,
		Scatter:      points,
	}
	if out.Dated {
		if out.Trend, err = core.TimeSeries(subset, core.FieldTotalBill); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// TipsRows returns rows [start, end) of the tips dataset with describe()
// style statistics over them.
func (s *DashboardService) TipsRows(ctx context.Context, start, end int) (*TipsRows, error) {
	rows, err := core.RowRange(s.tips.Records(), start, end)
	if err != nil {
		return nil, err
	}
	summary, err := core.Describe(rows, TipsNumericFields)
	if err != nil {
		return nil, fmt.Errorf("summary statistics: %w", err)
	}
	slog.DebugContext(ctx, "Tips rows selected", "start", start, "end", end)
	return &TipsRows{
		Start:   start,
		End:     end,
		Total:   s.tips.Len(),
		Records: rows,
		Summary: summary,
	}, nil
}

// DefaultRowRange mirrors the preview defaults: the first twenty rows, fewer
// when the dataset is smaller.
func (s *DashboardService) DefaultRowRange() (int, int) {
	return 0, min(DefaultPreviewRowsCount, s.tips.Len())
}

// Salary runs the standalone calculator.
func (s *DashboardService) Salary(gross, ratePercent decimal.Decimal) (core.SalaryBreakdown, error) {
	return core.ComputeNetSalary(gross, ratePercent)
}
