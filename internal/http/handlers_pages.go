package http

import (
	"context"
	"errors"
	"net/http"

	"finboard/internal/core"
	"finboard/internal/log"
	"finboard/internal/services"
)

const overviewPreviewRows = 100

// taxCriteria parses the tax page criteria and answers 400 on bad input.
func (s *Server) taxCriteria(w http.ResponseWriter, r *http.Request) (core.FilterCriteria, bool) {
	c, err := ParseCriteria(r.URL.Query(), ParamCountry, s.svc.DefaultTaxCriteria())
	if err != nil {
		s.badRequest(w, r, err)
		return c, false
	}
	return c, true
}

func (s *Server) tipsCriteria(w http.ResponseWriter, r *http.Request) (core.FilterCriteria, bool) {
	c, err := ParseCriteria(r.URL.Query(), ParamDay, s.svc.DefaultTipsCriteria())
	if err != nil {
		s.badRequest(w, r, err)
		return c, false
	}
	return c, true
}

func (s *Server) badRequest(w http.ResponseWriter, r *http.Request, err error) {
	log.FromContext(r.Context()).WarnContext(r.Context(), "Bad request parameters",
		log.FieldPath, r.URL.Path,
		log.FieldError, err,
		"error_type", log.ErrorTypeValidation)
	BadRequestError(err.Error()).Write(w)
}

// fail maps service errors to a status: caller mistakes are 400, the rest
// is logged and reported as 500.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	if isClientError(err) {
		s.badRequest(w, r, err)
		return
	}
	log.FromContext(r.Context()).LogError(r.Context(), "Request failed", err, log.ErrorTypeInternal, log.FieldPath, r.URL.Path)
	InternalServerError("Something went wrong while computing this page.").Write(w)
}

func isClientError(err error) bool {
	for _, target := range []error{
		ErrBadParameter,
		core.ErrInvalidDate,
		core.ErrUnknownField,
		core.ErrInvalidRowRange,
		services.ErrUnsupportedFormat,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// observe records the filtered row count of a page and reports empty
// results.
func (s *Server) observe(ctx context.Context, page string, c core.FilterCriteria, rows int, noData bool) {
	s.metrics.ObserveRows(page, rows)
	if noData {
		s.metrics.IncrNoData(page)
		s.events.LogNoData(ctx, page, c.Start.String(), c.End.String(), c.Categories)
	}
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	c, ok := s.taxCriteria(w, r)
	if !ok {
		return
	}
	ov, err := s.svc.Overview(r.Context(), c)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.observe(r.Context(), "overview", c, len(ov.Records), ov.NoData)

	preview := ov.Records
	if len(preview) > overviewPreviewRows {
		preview = preview[:overviewPreviewRows]
	}
	s.render(w, r, "overview_page", overviewView{
		Page:    newPage("overview", r.URL.Query()),
		Form:    criteriaForm("/", ParamCountry, "Country", c, s.svc.Countries()),
		Data:    ov,
		Preview: preview,
		More:    len(ov.Records) - len(preview),
	})
}

func (s *Server) handleSales(w http.ResponseWriter, r *http.Request) {
	c, ok := s.taxCriteria(w, r)
	if !ok {
		return
	}
	year, err := ParseYear(r.URL.Query())
	if err != nil {
		s.badRequest(w, r, err)
		return
	}
	sales, err := s.svc.Sales(r.Context(), c, year)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	records := sales.Metrics.Scalar(services.MetricRecords)
	s.observe(r.Context(), "sales", c, int(records.Number), sales.NoData)

	form := criteriaForm("/sales", ParamCountry, "Country", c, s.svc.Countries())
	form.Years, form.Year = sales.Years, sales.Year
	s.render(w, r, "sales_page", salesView{
		Page: newPage("sales", r.URL.Query()),
		Form: form,
		Data: sales,
	})
}

func (s *Server) handleTax(w http.ResponseWriter, r *http.Request) {
	c, ok := s.taxCriteria(w, r)
	if !ok {
		return
	}
	tax, err := s.svc.Tax(r.Context(), c)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	records := tax.Metrics.Scalar(services.MetricRecords)
	s.observe(r.Context(), "tax", c, int(records.Number), tax.NoData)

	s.render(w, r, "tax_page", taxView{
		Page: newPage("tax", r.URL.Query()),
		Form: criteriaForm("/tax", ParamCountry, "Country", c, s.svc.Countries()),
		Data: tax,
	})
}

func (s *Server) handleTips(w http.ResponseWriter, r *http.Request) {
	c, ok := s.tipsCriteria(w, r)
	if !ok {
		return
	}
	tips, err := s.svc.Tips(r.Context(), c, r.URL.Query().Get(ParamColumn))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	records := tips.Metrics.Scalar(services.MetricRecords)
	s.observe(r.Context(), "tips", c, int(records.Number), tips.NoData)

	form := criteriaForm("/tips", ParamDay, "Day", c, s.svc.Days())
	form.Hidden = map[string]string{ParamColumn: tips.Column}
	s.render(w, r, "tips_page", tipsView{
		Page:    newPage("tips", r.URL.Query()),
		Form:    form,
		Data:    tips,
		Columns: services.TipsNumericFields,
	})
}

func (s *Server) handleTipsData(w http.ResponseWriter, r *http.Request) {
	defStart, defEnd := s.svc.DefaultRowRange()
	start, end, err := ParseRowRange(r.URL.Query(), defStart, defEnd)
	if err != nil {
		s.badRequest(w, r, err)
		return
	}

	view := tipsDataView{
		Page:   newPage("tips-data", r.URL.Query()),
		Fields: services.TipsNumericFields,
	}
	if s.svc.TipsDataset().Len() == 0 {
		view.Empty = true
		view.Data = &services.TipsRows{}
		s.render(w, r, "tips_data_page", view)
		return
	}

	rows, err := s.svc.TipsRows(r.Context(), start, end)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.metrics.ObserveRows("tips-data", len(rows.Records))
	view.Data = rows
	view.Page.Query = rowRangeQuery(start, end)
	s.render(w, r, "tips_data_page", view)
}
