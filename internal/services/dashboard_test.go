package services

import (
	"bytes"
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"finboard/internal/core"
	"finboard/internal/dataset"
)

const taxHeader = "PROJDATE,COUNTRY,CATEGORY,GROSSSALES,NETSALES,GROSSINCOME,TAXDUE,TOTALTAXABLEINCOME,OSD40,NETTAXABLEINCOME\n"

const taxCSV = taxHeader +
	"2022-01-10,PH,Retail,100,90,50,5,60,24,36\n" +
	"2022-06-01,SG,Food,200,180,80,8,90,36,54\n" +
	"2023-03-15,PH,Food,300,270,120,12,150,60,90\n"

const tipsCSV = "total_bill,tip,sex,smoker,day,time,size\n" +
	"16.99,1.01,Female,No,Sun,Dinner,2\n" +
	"10.34,1.66,Male,No,Sun,Dinner,3\n" +
	"21.01,3.5,Male,No,Sat,Dinner,3\n" +
	"23.68,3.31,Male,No,Thur,Lunch,2\n"

const datedTipsCSV = "billdate,total_bill,tip,sex,smoker,day,time,size\n" +
	"2024-01-05,16.99,1.01,Female,No,Sun,Dinner,2\n" +
	"2024-01-03,10.34,1.66,Male,No,Sun,Dinner,3\n" +
	"2024-02-01,21.01,3.5,Male,No,Sat,Dinner,3\n"

func newService(t *testing.T, tips string) *DashboardService {
	t.Helper()
	taxTable, err := dataset.ReadCSV("CAPSTONEDATA.csv", strings.NewReader(taxCSV))
	if err != nil {
		t.Fatal(err)
	}
	tax, err := dataset.BindTax(taxTable)
	if err != nil {
		t.Fatal(err)
	}
	tipsTable, err := dataset.ReadCSV("tips.csv", strings.NewReader(tips))
	if err != nil {
		t.Fatal(err)
	}
	tipsDS, err := dataset.BindTips(tipsTable)
	if err != nil {
		t.Fatal(err)
	}
	return NewDashboardService(tax, tipsDS)
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func wantScalar(t *testing.T, res core.AggregateResult, name string, want float64) {
	t.Helper()
	v := res.Scalar(name)
	if v.NoData || !approx(v.Number, want) {
		t.Fatalf("%s = %v, want %v", name, v, want)
	}
}

func TestOverview(t *testing.T) {
	s := newService(t, tipsCSV)
	ctx := context.Background()

	ov, err := s.Overview(ctx, s.DefaultTaxCriteria())
	if err != nil {
		t.Fatal(err)
	}
	if ov.NoData || len(ov.Records) != 3 {
		t.Fatalf("expected 3 records, got %d (no data %v)", len(ov.Records), ov.NoData)
	}
	wantScalar(t, ov.Metrics, MetricTotalSales, 600)
	wantScalar(t, ov.Metrics, MetricTotalIncome, 250)
	wantScalar(t, ov.Metrics, MetricTotalTax, 25)

	if len(ov.IncomeByCategory) != 2 || ov.IncomeByCategory[0].Key != "Food" || ov.IncomeByCategory[0].Value.Number != 200 {
		t.Fatalf("unexpected income by category %+v", ov.IncomeByCategory)
	}
	if len(ov.Trend) != 3 || ov.Trend[0].Value != 100 || ov.Trend[2].Value != 300 {
		t.Fatalf("unexpected trend %+v", ov.Trend)
	}
}

func TestOverviewCriteria(t *testing.T) {
	s := newService(t, tipsCSV)
	ctx := context.Background()

	c := s.DefaultTaxCriteria()
	c.Categories = []string{"SG"}
	ov, err := s.Overview(ctx, c)
	if err != nil {
		t.Fatal(err)
	}
	wantScalar(t, ov.Metrics, MetricTotalSales, 200)

	tests := []struct {
		name   string
		mutate func(*core.FilterCriteria)
	}{
		{"no countries", func(c *core.FilterCriteria) { c.Categories = nil }},
		{"inverted range", func(c *core.FilterCriteria) { c.Start, c.End = c.End, c.Start }},
		{"outside data", func(c *core.FilterCriteria) { c.Start, c.End = core.NewDate(2030, 1, 1), core.NewDate(2030, 12, 31) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := s.DefaultTaxCriteria()
			tt.mutate(&c)
			ov, err := s.Overview(ctx, c)
			if err != nil {
				t.Fatal(err)
			}
			if !ov.NoData || len(ov.Records) != 0 {
				t.Fatalf("expected no data, got %+v", ov)
			}
			wantScalar(t, ov.Metrics, MetricTotalSales, 0)
		})
	}

	c = s.DefaultTaxCriteria()
	c.Start = core.Date{}
	if _, err := s.Overview(ctx, c); !errors.Is(err, core.ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}
}

func TestSales(t *testing.T) {
	s := newService(t, tipsCSV)
	ctx := context.Background()

	sales, err := s.Sales(ctx, s.DefaultTaxCriteria(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(sales.Years) != 2 || sales.Years[0] != 2023 || sales.Year != 2023 {
		t.Fatalf("unexpected years %v / %d", sales.Years, sales.Year)
	}
	wantScalar(t, sales.Metrics, MetricTotalGrossSales, 300)
	wantScalar(t, sales.Metrics, MetricMeanNetSales, 270)
	if len(sales.Distribution) != SalesHistogramBins {
		t.Fatalf("expected %d bins, got %d", SalesHistogramBins, len(sales.Distribution))
	}

	sales, err = s.Sales(ctx, s.DefaultTaxCriteria(), 2022)
	if err != nil {
		t.Fatal(err)
	}
	wantScalar(t, sales.Metrics, MetricTotalNetSales, 270)
	wantScalar(t, sales.Metrics, MetricMeanNetSales, 135)
	var n int
	for _, b := range sales.Distribution {
		n += b.Count
	}
	if n != 2 {
		t.Fatalf("histogram holds %d values, want 2", n)
	}

	sales, err = s.Sales(ctx, s.DefaultTaxCriteria(), 1999)
	if err != nil {
		t.Fatal(err)
	}
	if !sales.NoData || !sales.Metrics.Scalar(MetricMeanNetSales).NoData || sales.Distribution != nil {
		t.Fatalf("expected no data for 1999, got %+v", sales)
	}
}

func TestTax(t *testing.T) {
	s := newService(t, tipsCSV)

	tax, err := s.Tax(context.Background(), s.DefaultTaxCriteria())
	if err != nil {
		t.Fatal(err)
	}
	wantScalar(t, tax.Metrics, MetricTotalTaxDue, 25)
	wantScalar(t, tax.Metrics, MetricTotalTaxable, 300)

	if len(tax.ByCountry) != 2 || tax.ByCountry[0].Key != "PH" || tax.ByCountry[0].Value.Number != 17 || tax.ByCountry[1].Value.Number != 8 {
		t.Fatalf("unexpected tax by country %+v", tax.ByCountry)
	}
	wantPct := []float64{50, 20, 30}
	for i, sh := range tax.Breakdown {
		if !approx(sh.Percent, wantPct[i]) {
			t.Fatalf("share %s = %v%%, want %v%%", sh.Label, sh.Percent, wantPct[i])
		}
	}
}

func TestTipsWithoutDates(t *testing.T) {
	s := newService(t, tipsCSV)
	ctx := context.Background()

	c := s.DefaultTipsCriteria()
	if !c.Start.IsZero() {
		t.Fatalf("expected no date bounds, got %s", c.Start)
	}
	tips, err := s.Tips(ctx, c, "")
	if err != nil {
		t.Fatal(err)
	}
	if tips.Dated || tips.Trend != nil || tips.Column != core.FieldTip {
		t.Fatalf("unexpected tips page %+v", tips)
	}
	keys := []string{"Sun", "Sat", "Thur"}
	for i, g := range tips.AvgBillByDay {
		if g.Key != keys[i] {
			t.Fatalf("group %d = %s, want %s", i, g.Key, keys[i])
		}
	}
	if !approx(tips.AvgBillByDay[0].Value.Number, 13.665) {
		t.Fatalf("Sun average = %v", tips.AvgBillByDay[0].Value)
	}
	if len(tips.Scatter) != 4 || len(tips.Distribution) != TipsHistogramBins {
		t.Fatalf("unexpected series sizes %d, %d", len(tips.Scatter), len(tips.Distribution))
	}

	c.Categories = []string{"Sat"}
	tips, err = s.Tips(ctx, c, core.FieldSize)
	if err != nil {
		t.Fatal(err)
	}
	wantScalar(t, tips.Metrics, MetricMeanTip, 3.5)

	c.Categories = nil
	tips, err = s.Tips(ctx, c, "")
	if err != nil {
		t.Fatal(err)
	}
	if !tips.NoData || !tips.Metrics.Scalar(MetricMeanTip).NoData || len(tips.AvgBillByDay) != 0 {
		t.Fatalf("expected no data, got %+v", tips)
	}

	if _, err := s.Tips(ctx, s.DefaultTipsCriteria(), core.FieldSex); !errors.Is(err, core.ErrUnknownField) {
		t.Fatalf("expected ErrUnknownField, got %v", err)
	}
}

func TestTipsWithDates(t *testing.T) {
	s := newService(t, datedTipsCSV)
	ctx := context.Background()

	c := s.DefaultTipsCriteria()
	if !c.Start.Equal(core.NewDate(2024, 1, 3).Time) || !c.End.Equal(core.NewDate(2024, 2, 1).Time) {
		t.Fatalf("unexpected bounds %s..%s", c.Start, c.End)
	}
	c.End = core.NewDate(2024, 1, 31)
	tips, err := s.Tips(ctx, c, core.FieldTotalBill)
	if err != nil {
		t.Fatal(err)
	}
	if !tips.Dated || len(tips.Trend) != 2 || tips.Trend[0].Value != 10.34 {
		t.Fatalf("unexpected trend %+v", tips.Trend)
	}
	wantScalar(t, tips.Metrics, MetricRecords, 2)
}

func TestTipsRows(t *testing.T) {
	s := newService(t, tipsCSV)
	ctx := context.Background()

	if start, end := s.DefaultRowRange(); start != 0 || end != 4 {
		t.Fatalf("default range %d..%d", start, end)
	}
	rows, err := s.TipsRows(ctx, 0, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows.Records) != 2 || rows.Total != 4 {
		t.Fatalf("unexpected rows %+v", rows)
	}
	tip := rows.Summary[1]
	if tip.Field != core.FieldTip || tip.Count != 2 || !approx(tip.Mean.Number, 1.335) {
		t.Fatalf("unexpected tip summary %+v", tip)
	}

	if _, err := s.TipsRows(ctx, 2, 2); !errors.Is(err, core.ErrInvalidRowRange) {
		t.Fatalf("expected ErrInvalidRowRange, got %v", err)
	}
}

func TestSalary(t *testing.T) {
	s := newService(t, tipsCSV)
	b, err := s.Salary(decimal.NewFromInt(1000), decimal.NewFromInt(12))
	if err != nil {
		t.Fatal(err)
	}
	if !b.Tax.Equal(decimal.NewFromInt(120)) || !b.Net.Equal(decimal.NewFromInt(880)) {
		t.Fatalf("unexpected breakdown %+v", b)
	}
	if _, err := s.Salary(decimal.Zero, decimal.NewFromInt(12)); !errors.Is(err, core.ErrInvalidGross) {
		t.Fatalf("expected ErrInvalidGross, got %v", err)
	}
}

func TestExportTax(t *testing.T) {
	s := newService(t, tipsCSV)
	ctx := context.Background()

	c := s.DefaultTaxCriteria()
	c.Categories = []string{"SG"}
	var buf bytes.Buffer
	n, err := s.ExportTax(ctx, &buf, c, FormatCSV)
	if err != nil {
		t.Fatal(err)
	}
	want := taxHeader + "2022-06-01,SG,Food,200,180,80,8,90,36,54\n"
	if n != 1 || buf.String() != want {
		t.Fatalf("unexpected export (%d rows):\n%q", n, buf.String())
	}

	buf.Reset()
	c.Categories = nil
	if n, err = s.ExportTax(ctx, &buf, c, FormatCSV); err != nil || n != 0 || buf.String() != taxHeader {
		t.Fatalf("expected header only, got %d %v %q", n, err, buf.String())
	}

	buf.Reset()
	if n, err = s.ExportTax(ctx, &buf, s.DefaultTaxCriteria(), FormatXLSX); err != nil || n != 3 {
		t.Fatalf("xlsx export: %d %v", n, err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("PK")) {
		t.Fatal("xlsx export is not a zip archive")
	}

	if _, err := s.ExportTax(ctx, &buf, c, "pdf"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestExportTips(t *testing.T) {
	s := newService(t, tipsCSV)
	var buf bytes.Buffer
	n, err := s.ExportTips(context.Background(), &buf, 1, 3, FormatCSV)
	if err != nil {
		t.Fatal(err)
	}
	want := "total_bill,tip,sex,smoker,day,time,size\n" +
		"10.34,1.66,Male,No,Sun,Dinner,3\n" +
		"21.01,3.5,Male,No,Sat,Dinner,3\n"
	if n != 2 || buf.String() != want {
		t.Fatalf("unexpected export:\n%q", buf.String())
	}
	if _, err := s.ExportTips(context.Background(), &buf, 3, 9, FormatCSV); !errors.Is(err, core.ErrInvalidRowRange) {
		t.Fatalf("expected ErrInvalidRowRange, got %v", err)
	}
}

func TestExportHelpers(t *testing.T) {
	if got := ExportFileName("CAPSTONEDATA.csv", FormatXLSX); got != "CAPSTONEDATA_filtered.xlsx" {
		t.Fatalf("ExportFileName = %s", got)
	}
	if !strings.HasPrefix(ContentType(FormatCSV), "text/csv") {
		t.Fatal("csv content type")
	}
}
