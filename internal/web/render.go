package web

import (
	"embed"
	"html/template"
	"net/http"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/ycliao/daigou-storefront/internal/domain"
)

//go:embed templates/*.gohtml
var templateFS embed.FS

var amountPrinter = message.NewPrinter(language.English)

// formatAmount renders an integer amount in the smallest whole currency
// unit for display. Formatting is the only arithmetic the client ever does
// with money.
func formatAmount(amount int64) string {
	return amountPrinter.Sprintf("NT$ %d", amount)
}

// formatDate accepts both time.Time and the optional *time.Time fields
// orders carry for delivery dates.
func formatDate(v any) string {
	var t time.Time
	switch d := v.(type) {
	case time.Time:
		t = d
	case *time.Time:
		if d == nil {
			return "-"
		}
		t = *d
	}
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func newTemplates() (*template.Template, error) {
	funcs := template.FuncMap{
		"amount": formatAmount,
		"date":   formatDate,
		"add":    func(a, b int) int { return a + b },
		"sub":    func(a, b int) int { return a - b },
		"displayName": func(s domain.OrderStatus) string {
			return s.DisplayName()
		},
		"nextStatuses": func(s domain.OrderStatus) []domain.OrderStatus {
			return domain.NextStatuses(s)
		},
		"canCancel": func(s domain.OrderStatus) bool {
			return domain.CanCancel(s)
		},
	}
	return template.New("").Funcs(funcs).ParseFS(templateFS, "templates/*.gohtml")
}

// page is the envelope every template receives.
type page struct {
	Title string
	User  *domain.User
	Cart  cartView
	Flash string
	Error string
	Data  any
}

type cartView struct {
	ItemCount int
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, name string, p page) {
	start := time.Now()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.templates.ExecuteTemplate(w, name, p); err != nil {
		h.logger.Error("failed to render template", "error", err, "template", name)
	}

	h.metrics.RecordPageRender(r.Context(), name, time.Since(start))
}

func (h *Handler) renderError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	w.WriteHeader(status)
	h.render(w, r, "error.gohtml", page{
		Title: "Something went wrong",
		Error: msg,
	})
}

func redirectWithFlash(w http.ResponseWriter, r *http.Request, path, flash string) {
	http.Redirect(w, r, path+"?msg="+template.URLQueryEscaper(flash), http.StatusSeeOther)
}

func redirectWithError(w http.ResponseWriter, r *http.Request, path, errMsg string) {
	http.Redirect(w, r, path+"?err="+template.URLQueryEscaper(errMsg), http.StatusSeeOther)
}
