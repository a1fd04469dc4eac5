package http

import (
	"html/template"
	"net/url"
	"slices"

	"github.com/shopspring/decimal"

	"finboard/internal/core"
	"finboard/internal/services"
)

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"peso":      core.FormatValue,
		"pesoFloat": core.FormatPesoFloat,
		"pesoDec":   core.FormatPeso,
		"percent":   core.FormatPercent,
		"percentDec": func(d decimal.Decimal) string {
			return core.FormatPercent(d.InexactFloat64())
		},
		"number": func(v core.Value) string { return v.String() },
		"scalar": func(res core.AggregateResult, name string) core.Value {
			return res.Scalar(name)
		},
		"selected": func(options []string, v string) bool { return slices.Contains(options, v) },
		"link":     link,
	}
}

// link builds a same-origin URL carrying the page's current query string.
// query comes from url.Values.Encode and is safe to embed.
func link(path, query string) template.URL {
	if query == "" {
		return template.URL(path)
	}
	return template.URL(path + "?" + query)
}

// nav lists the pages in menu order.
var nav = []navItem{
	{Path: "/", Name: "overview", Title: "Overview"},
	{Path: "/sales", Name: "sales", Title: "Sales & Income"},
	{Path: "/tax", Name: "tax", Title: "Tax Analysis"},
	{Path: "/salary", Name: "salary", Title: "Salary Calculator"},
	{Path: "/tips", Name: "tips", Title: "Tips"},
	{Path: "/tips/data", Name: "tips-data", Title: "Tips Data"},
}

type (
	navItem struct {
		Path, Name, Title string
	}

	// page carries what the layout needs on every page.
	page struct {
		Name  string
		Title string
		Nav   []navItem
		Query string // encoded criteria, reused by chart and download links
	}

	// filterForm describes the criteria controls of a page.
	filterForm struct {
		Action      string
		Start, End  string
		Dated       bool
		Param       string
		ParamLabel  string
		Options     []string
		Selected    []string
		Hidden      map[string]string
		Years       []int // year selector, sales page only
		Year        int
		SubmitLabel string
	}

	overviewView struct {
		Page    page
		Form    filterForm
		Data    *services.Overview
		Preview []core.TaxRecord
		More    int
	}

	salesView struct {
		Page page
		Form filterForm
		Data *services.Sales
	}

	taxView struct {
		Page page
		Form filterForm
		Data *services.Tax
	}

	tipsView struct {
		Page    page
		Form    filterForm
		Data    *services.Tips
		Columns []string
	}

	tipsDataView struct {
		Page   page
		Data   *services.TipsRows
		Empty  bool
		Fields []string
	}

	salaryView struct {
		Page   page
		Input  SalaryInput
		Result *core.SalaryBreakdown
		Error  string
	}
)

func newPage(name string, query url.Values) page {
	p := page{Name: name, Nav: nav, Query: query.Encode()}
	for _, item := range nav {
		if item.Name == name {
			p.Title = item.Title
		}
	}
	return p
}

func criteriaForm(action, param, label string, c core.FilterCriteria, options []string) filterForm {
	return filterForm{
		Action:      action,
		Start:       c.Start.String(),
		End:         c.End.String(),
		Dated:       !c.Start.IsZero() && !c.End.IsZero(),
		Param:       param,
		ParamLabel:  label,
		Options:     options,
		Selected:    c.Categories,
		SubmitLabel: "Apply",
	}
}
