package http

import (
	"errors"
	"net/http"

	"finboard/internal/core"
	"finboard/internal/log"
)

func (s *Server) handleSalaryForm(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, "salary_page", salaryView{
		Page:  newPage("salary", nil),
		Input: SalaryInput{Rate: "12"},
	})
}

// handleSalary computes the breakdown. Invalid input re-renders the form
// with a message and a 422 status; nothing is computed in that case.
func (s *Server) handleSalary(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Parse form error", log.FieldError, err, log.FieldPath, r.URL.Path)
		BadRequestError("Invalid request format").Write(w)
		return
	}

	view := salaryView{Page: newPage("salary", nil)}
	in, gross, rate, err := ParseSalaryForm(r.PostForm)
	view.Input = in
	if err == nil {
		var res core.SalaryBreakdown
		res, err = s.svc.Salary(gross, rate)
		if err == nil {
			view.Result = &res
			log.FromContext(r.Context()).DebugContext(r.Context(), "Salary computed",
				"gross", res.Gross.String(),
				"rate", res.Rate.String())
			s.render(w, r, "salary_page", view)
			return
		}
	}

	view.Error = salaryMessage(err)
	log.FromContext(r.Context()).InfoContext(r.Context(), "Salary input rejected",
		log.FieldError, err,
		"error_type", log.ErrorTypeValidation)
	s.renderStatus(w, r, http.StatusUnprocessableEntity, "salary_page", view)
}

func salaryMessage(err error) string {
	switch {
	case errors.Is(err, core.ErrInvalidGross):
		return "Enter a gross salary greater than zero."
	case errors.Is(err, core.ErrInvalidRate):
		return "The tax rate must be between 0 and 100 percent."
	default:
		return "Enter amounts as plain numbers, for example 25000 or 25,000.50."
	}
}
