package http

import (
	"bytes"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"

	"finboard/internal/chart"
	"finboard/internal/core"
	"finboard/internal/log"
	"finboard/internal/services"
)

// Dataset names used in download URLs, e.g. /export/tax.csv.
const (
	exportTax  = "tax"
	exportTips = "tips"
)

func rowRangeQuery(start, end int) string {
	return url.Values{
		ParamRowStart: {strconv.Itoa(start)},
		ParamRowEnd:   {strconv.Itoa(end)},
	}.Encode()
}

// handleExport streams the filtered tax rows or a tips row range. The
// file is built in memory first so that a failure still yields a clean
// error status.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	file := r.PathValue("file")
	format := strings.TrimPrefix(path.Ext(file), ".")
	name := strings.TrimSuffix(file, path.Ext(file))

	var (
		buf    bytes.Buffer
		rows   int
		source string
		err    error
	)
	switch name {
	case exportTax:
		c, ok := s.taxCriteria(w, r)
		if !ok {
			return
		}
		source = s.svc.TaxDataset().Name()
		rows, err = s.svc.ExportTax(r.Context(), &buf, c, format)

	case exportTips:
		defStart, defEnd := s.svc.DefaultRowRange()
		start, end, perr := ParseRowRange(r.URL.Query(), defStart, defEnd)
		if perr != nil {
			s.badRequest(w, r, perr)
			return
		}
		source = s.svc.TipsDataset().Name()
		rows, err = s.svc.ExportTips(r.Context(), &buf, start, end, format)

	default:
		NotFoundError("Unknown dataset " + name).Write(w)
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}

	s.metrics.IncrExport(name, format)
	s.events.LogExport(r.Context(), source, format, rows)
	NewResponse().
		Attachment(services.ExportFileName(source, format), services.ContentType(format)).
		Body(buf.Bytes()).
		Write(w)
}

// chartRenderer computes one chart from the request's criteria.
type chartRenderer func(s *Server, r *http.Request) ([]byte, error)

var charts = map[string]chartRenderer{
	"overview-trend": func(s *Server, r *http.Request) ([]byte, error) {
		ov, err := s.overviewFor(r)
		if err != nil {
			return nil, err
		}
		return chart.Line(chart.Labels{Title: "Gross Sales Over Time", X: "Date", Y: "Gross Sales"}, ov.Trend)
	},
	"overview-income": func(s *Server, r *http.Request) ([]byte, error) {
		ov, err := s.overviewFor(r)
		if err != nil {
			return nil, err
		}
		return chart.Bar(chart.Labels{Title: "Income by Category", X: "Category", Y: "Gross Income"}, ov.IncomeByCategory, false)
	},
	"sales-trend": func(s *Server, r *http.Request) ([]byte, error) {
		sales, err := s.salesFor(r)
		if err != nil {
			return nil, err
		}
		return chart.Line(chart.Labels{Title: "Net Sales Trend", X: "Date", Y: "Net Sales"}, sales.Trend)
	},
	"sales-distribution": func(s *Server, r *http.Request) ([]byte, error) {
		sales, err := s.salesFor(r)
		if err != nil {
			return nil, err
		}
		return chart.Histogram(chart.Labels{Title: "Net Sales Distribution", X: "Net Sales", Y: "Frequency"}, sales.Distribution)
	},
	"tax-country": func(s *Server, r *http.Request) ([]byte, error) {
		tax, err := s.taxFor(r)
		if err != nil {
			return nil, err
		}
		return chart.Bar(chart.Labels{Title: "Tax Due by Country", X: "Tax Due", Y: "Country"}, tax.ByCountry, true)
	},
	"tax-breakdown": func(s *Server, r *http.Request) ([]byte, error) {
		tax, err := s.taxFor(r)
		if err != nil {
			return nil, err
		}
		return chart.Breakdown(chart.Labels{Title: "Tax Breakdown"}, tax.Breakdown)
	},
	"tips-avg": func(s *Server, r *http.Request) ([]byte, error) {
		tips, err := s.tipsFor(r)
		if err != nil {
			return nil, err
		}
		return chart.GroupLine(chart.Labels{Title: "Average Total Bill per Day", X: "Day", Y: "Average Total Bill"}, tips.AvgBillByDay)
	},
	"tips-distribution": func(s *Server, r *http.Request) ([]byte, error) {
		tips, err := s.tipsFor(r)
		if err != nil {
			return nil, err
		}
		return chart.Histogram(chart.Labels{Title: "Distribution of " + tips.Column, X: tips.Column, Y: "Frequency"}, tips.Distribution)
	},
	"tips-scatter": func(s *Server, r *http.Request) ([]byte, error) {
		tips, err := s.tipsFor(r)
		if err != nil {
			return nil, err
		}
		return chart.Scatter(chart.Labels{Title: "Total Bill vs Tip", X: "Total Bill", Y: "Tip"}, tips.Scatter)
	},
	"tips-trend": func(s *Server, r *http.Request) ([]byte, error) {
		tips, err := s.tipsFor(r)
		if err != nil {
			return nil, err
		}
		return chart.Line(chart.Labels{Title: "Total Bill by Date", X: "Date", Y: "Total Bill"}, tips.Trend)
	},
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSuffix(r.PathValue("name"), ".png")
	renderChart, ok := charts[name]
	if !ok {
		NotFoundError("Unknown chart " + name).Write(w)
		return
	}
	// Criteria are re-encoded so that equivalent queries share an entry.
	key := name + "?" + r.URL.Query().Encode()
	if s.charts != nil {
		if png, ok := s.charts.Get(key); ok {
			s.metrics.IncrChartCache(true)
			NewResponse().Header("Content-Type", "image/png").Body(png).Write(w)
			return
		}
		s.metrics.IncrChartCache(false)
	}
	png, err := renderChart(s, r)
	if err != nil {
		if isClientError(err) {
			s.badRequest(w, r, err)
			return
		}
		log.FromContext(r.Context()).LogError(r.Context(), "Chart rendering failed", err, log.ErrorTypeInternal,
			log.FieldComponent, log.ComponentChart,
			"chart", name)
		InternalServerError("Chart could not be rendered.").Write(w)
		return
	}
	if s.charts != nil {
		s.charts.Set(key, png)
	}
	NewResponse().Header("Content-Type", "image/png").Body(png).Write(w)
}

func (s *Server) overviewFor(r *http.Request) (*services.Overview, error) {
	c, err := ParseCriteria(r.URL.Query(), ParamCountry, s.svc.DefaultTaxCriteria())
	if err != nil {
		return nil, err
	}
	return s.svc.Overview(r.Context(), c)
}

func (s *Server) salesFor(r *http.Request) (*services.Sales, error) {
	c, err := ParseCriteria(r.URL.Query(), ParamCountry, s.svc.DefaultTaxCriteria())
	if err != nil {
		return nil, err
	}
	year, err := ParseYear(r.URL.Query())
	if err != nil {
		return nil, err
	}
	return s.svc.Sales(r.Context(), c, year)
}

func (s *Server) taxFor(r *http.Request) (*services.Tax, error) {
	c, err := ParseCriteria(r.URL.Query(), ParamCountry, s.svc.DefaultTaxCriteria())
	if err != nil {
		return nil, err
	}
	return s.svc.Tax(r.Context(), c)
}

func (s *Server) tipsFor(r *http.Request) (*services.Tips, error) {
	c, err := ParseCriteria(r.URL.Query(), ParamDay, s.svc.DefaultTipsCriteria())
	if err != nil {
		return nil, err
	}
	return s.svc.Tips(r.Context(), c, r.URL.Query().Get(ParamColumn))
}

// criteriaJSON is the criteria echoed back by the API.
type criteriaJSON struct {
	Start      core.Date `json:"start"`
	End        core.Date `json:"end"`
	Categories []string  `json:"categories"`
}

func toCriteriaJSON(c core.FilterCriteria) criteriaJSON {
	cats := c.Categories
	if cats == nil {
		cats = []string{}
	}
	return criteriaJSON{Start: c.Start, End: c.End, Categories: cats}
}

// apiResponse is the document returned by /api/{page}.
type apiResponse struct {
	Page     string               `json:"page"`
	NoData   bool                 `json:"no_data"`
	Criteria criteriaJSON         `json:"criteria"`
	Year     int                  `json:"year,omitempty"`
	Years    []int                `json:"years,omitempty"`
	Column   string               `json:"column,omitempty"`
	Metrics  core.AggregateResult `json:"metrics"`
	Series   map[string]any       `json:"series,omitempty"`
}

func (s *Server) handleAPI(w http.ResponseWriter, r *http.Request) {
	pageName := r.PathValue("page")
	var (
		resp apiResponse
		err  error
	)
	switch pageName {
	case "overview":
		var ov *services.Overview
		if ov, err = s.overviewFor(r); err == nil {
			resp = apiResponse{
				NoData: ov.NoData, Criteria: toCriteriaJSON(ov.Criteria), Metrics: ov.Metrics,
				Series: map[string]any{"gross_sales": ov.Trend},
			}
		}
	case "sales":
		var sales *services.Sales
		if sales, err = s.salesFor(r); err == nil {
			resp = apiResponse{
				NoData: sales.NoData, Criteria: toCriteriaJSON(sales.Criteria), Metrics: sales.Metrics,
				Year: sales.Year, Years: sales.Years,
				Series: map[string]any{"net_sales": sales.Trend, "net_sales_distribution": sales.Distribution},
			}
		}
	case "tax":
		var tax *services.Tax
		if tax, err = s.taxFor(r); err == nil {
			resp = apiResponse{
				NoData: tax.NoData, Criteria: toCriteriaJSON(tax.Criteria), Metrics: tax.Metrics,
				Series: map[string]any{"breakdown": tax.Breakdown},
			}
		}
	case "tips":
		var tips *services.Tips
		if tips, err = s.tipsFor(r); err == nil {
			series := map[string]any{"distribution": tips.Distribution, "scatter": tips.Scatter}
			if tips.Dated {
				series["total_bill"] = tips.Trend
			}
			resp = apiResponse{
				NoData: tips.NoData, Criteria: toCriteriaJSON(tips.Criteria), Metrics: tips.Metrics,
				Column: tips.Column, Series: series,
			}
		}
	default:
		JSONError(http.StatusNotFound, "unknown page "+pageName).Write(w)
		return
	}

	if err != nil {
		if isClientError(err) {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Bad API request", log.FieldPath, r.URL.Path, log.FieldError, err)
			JSONError(http.StatusBadRequest, err.Error()).Write(w)
			return
		}
		log.FromContext(r.Context()).LogError(r.Context(), "API request failed", err, log.ErrorTypeInternal, log.FieldPath, r.URL.Path)
		JSONError(http.StatusInternalServerError, "internal error").Write(w)
		return
	}
	resp.Page = pageName
	if resp.NoData {
		s.metrics.IncrNoData(pageName)
	}
	NewResponse().JSON(resp).Write(w)
}
