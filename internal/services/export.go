package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"finboard/internal/core"
	"finboard/internal/dataset"
)

// Download formats.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

var ErrUnsupportedFormat = errors.New("unsupported export format")

// ContentType returns the MIME type of a download format.
func ContentType(format string) string {
	if format == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// ExportFileName names a download after its source, e.g. tips_filtered.xlsx.
func ExportFileName(source, format string) string {
	base := strings.TrimSuffix(source, path.Ext(source))
	if base == "" {
		base = "data"
	}
	return base + "_filtered." + format
}

func checkFormat(format string) error {
	switch format {
	case FormatCSV, FormatXLSX:
		return nil
	default:
		return fmt.Errorf("%w %q", ErrUnsupportedFormat, format)
	}
}

func write[R core.Record](w io.Writer, d *dataset.Dataset[R], subset []R, format string) error {
	if format == FormatXLSX {
		return dataset.WriteXLSX(w, d, subset)
	}
	return dataset.WriteCSV(w, d, subset)
}

// ExportTax writes the tax rows matching c. Criteria that cannot match
// produce a file holding only the header. It returns the number of rows
// written.
func (s *DashboardService) ExportTax(ctx context.Context, w io.Writer, c core.FilterCriteria, format string) (int, error) {
	if err := checkFormat(format); err != nil {
		return 0, err
	}
	subset, _, err := s.filterTax(ctx, c)
	if err != nil {
		return 0, err
	}
	if err := write(w, s.tax, subset, format); err != nil {
		return 0, fmt.Errorf("export %s: %w", s.tax.Name(), err)
	}
	return len(subset), nil
}

// ExportTips writes rows [start, end) of the tips dataset.
func (s *DashboardService) ExportTips(ctx context.Context, w io.Writer, start, end int, format string) (int, error) {
	if err := checkFormat(format); err != nil {
		return 0, err
	}
	rows, err := core.RowRange(s.tips.Records(), start, end)
	if err != nil {
		return 0, err
	}
	if err := write(w, s.tips, rows, format); err != nil {
		return 0, fmt.Errorf("export %s: %w", s.tips.Name(), err)
	}
	return len(rows), nil
}
