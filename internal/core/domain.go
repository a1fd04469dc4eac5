package core

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// Column names of the tax/sales dataset.
const (
	FieldProjDate           = "PROJDATE"
	FieldCountry            = "COUNTRY"
	FieldCategory           = "CATEGORY"
	FieldGrossSales         = "GROSSSALES"
	FieldNetSales           = "NETSALES"
	FieldGrossIncome        = "GROSSINCOME"
	FieldTaxDue             = "TAXDUE"
	FieldTotalTaxableIncome = "TOTALTAXABLEINCOME"
	FieldOSD40              = "OSD40"
	FieldNetTaxableIncome   = "NETTAXABLEINCOME"
)

// Column names of the tips dataset.
const (
	FieldBillDate  = "billdate"
	FieldTotalBill = "total_bill"
	FieldTip       = "tip"
	FieldSex       = "sex"
	FieldSmoker    = "smoker"
	FieldDay       = "day"
	FieldTime      = "time"
	FieldSize      = "size"
)

const dateLayout = "2006-01-02"

type (
	Date struct {
		time.Time
	}

	// TaxRecord is one row of the tax/sales dataset.
	TaxRecord struct {
		Index              int // position in the source table
		ProjDate           Date
		Country            string
		Category           string
		GrossSales         float64
		NetSales           float64
		GrossIncome        float64
		TaxDue             float64
		TotalTaxableIncome float64
		OSD40              float64
		NetTaxableIncome   float64
	}

	// TipRecord is one row of the tips dataset. BillDate is zero when the
	// source has no billdate column.
	TipRecord struct {
		Index     int
		BillDate  Date
		TotalBill float64
		Tip       float64
		Sex       string
		Smoker    string
		Day       string
		Time      string
		Size      int
	}

	// Record is the view of a row the filter and aggregate routines work on.
	// Number and Label resolve a column name to the typed field; ok is false
	// for columns the record type does not have.
	Record interface {
		Position() int
		Timestamp() time.Time
		CategoryLabel() string
		Number(field string) (float64, bool)
		Label(field string) (string, bool)
	}
)

var (
	ErrInvalidDate     = errors.New("invalid date")
	ErrNoMatchingData  = errors.New("no matching data")
	ErrUnknownField    = errors.New("unknown field")
	ErrInvalidMetric   = errors.New("invalid metric spec")
	ErrInvalidRowRange = errors.New("invalid row range")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidGross    = errors.New("gross salary must be greater than zero")
	ErrInvalidRate     = errors.New("tax rate must be between 0 and 100")
)

var dateLayouts = []string{
	dateLayout,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"01/02/2006",
	"1/2/2006",
	"01/02/2006 15:04",
	"1/2/2006 15:04",
	"01-02-06", // spreadsheet short date
	"1/2/06",
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate accepts ISO dates, ISO date-times and US month/day/year dates.
// The time of day is kept; comparisons in Filter work on whole days.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, ErrInvalidDate
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return Date{Time: t}, nil
		}
	}
	return Date{}, ErrInvalidDate
}

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	return nil
}

// Day returns the date truncated to midnight UTC.
func (d Date) Day() Date {
	if d.IsZero() {
		return d
	}
	y, m, dd := d.Time.Date()
	return NewDate(y, int(m), dd)
}

// Year returns the year
func (d Date) Year() int {
	return d.Time.Year()
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

// MarshalJSON renders the date as "YYYY-MM-DD", or null when zero.
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.String() + `"`), nil
}

func (r TaxRecord) Position() int         { return r.Index }
func (r TaxRecord) Timestamp() time.Time  { return r.ProjDate.Time }
func (r TaxRecord) CategoryLabel() string { return r.Country }

func (r TaxRecord) Number(field string) (float64, bool) {
	switch field {
	case FieldGrossSales:
		return r.GrossSales, true
	case FieldNetSales:
		return r.NetSales, true
	case FieldGrossIncome:
		return r.GrossIncome, true
	case FieldTaxDue:
		return r.TaxDue, true
	case FieldTotalTaxableIncome:
		return r.TotalTaxableIncome, true
	case FieldOSD40:
		return r.OSD40, true
	case FieldNetTaxableIncome:
		return r.NetTaxableIncome, true
	}
	return 0, false
}

func (r TaxRecord) Label(field string) (string, bool) {
	switch field {
	case FieldCountry:
		return r.Country, true
	case FieldCategory:
		return r.Category, true
	case FieldProjDate:
		return r.ProjDate.Day().String(), true
	}
	return "", false
}

func (r TipRecord) Position() int         { return r.Index }
func (r TipRecord) Timestamp() time.Time  { return r.BillDate.Time }
func (r TipRecord) CategoryLabel() string { return r.Day }

func (r TipRecord) Number(field string) (float64, bool) {
	switch field {
	case FieldTotalBill:
		return r.TotalBill, true
	case FieldTip:
		return r.Tip, true
	case FieldSize:
		return float64(r.Size), true
	}
	return 0, false
}

func (r TipRecord) Label(field string) (string, bool) {
	switch field {
	case FieldSex:
		return r.Sex, true
	case FieldSmoker:
		return r.Smoker, true
	case FieldDay:
		return r.Day, true
	case FieldTime:
		return r.Time, true
	case FieldSize:
		return strconv.Itoa(r.Size), true
	case FieldBillDate:
		return r.BillDate.Day().String(), true
	}
	return "", false
}
