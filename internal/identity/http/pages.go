package http

import (
	"embed"
	"encoding/base64"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/aussiebroadwan/propulse/internal/identity/service"
	"github.com/aussiebroadwan/propulse/pkg/httpx"
	"github.com/aussiebroadwan/propulse/pkg/slogx"
)

//go:embed templates/*.html
var templatesFS embed.FS

var templates = template.Must(template.New("").Funcs(template.FuncMap{
	"join": strings.Join,
	"prev": func(n int) int { return n - 1 },
	"next": func(n int) int { return n + 1 },
	"hasValue": func(form url.Values, key, value string) bool {
		return slices.ContainsFunc(form[key], func(v string) bool { return strings.EqualFold(v, value) })
	},
}).ParseFS(templatesFS, "templates/*.html"))

// Form-level messages shown by the account pages.
const (
	msgInvalidLogin      = "Invalid login attempt."
	msgInvalidEmail      = "Invalid email address."
	msgTwoFactorRequired = "Enter the code from your authenticator app."
)

// page is the data every template receives.
type page struct {
	Title    string
	SignedIn bool
	Form     url.Values
	Errors   service.FormErrors
	Flash    string
	Data     any
}

func newPage(title string, form url.Values) *page {
	if form == nil {
		form = url.Values{}
	}
	return &page{Title: title, Form: form, Errors: service.FormErrors{}}
}

func render(w http.ResponseWriter, r *http.Request, status int, name string, p *page) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := templates.ExecuteTemplate(w, name, p); err != nil {
		slogx.FromContext(r.Context()).Error("failed to render page",
			slog.String("template", name),
			slog.Any("error", err),
		)
	}
}

// formErrors moves validation messages onto p. It reports false for any
// other error.
func formErrors(p *page, err error) bool {
	var f service.FormErrors
	if !errors.As(err, &f) {
		return false
	}
	for field, msgs := range f {
		for _, m := range msgs {
			p.Errors.Add(field, m)
		}
	}
	return true
}

func serverError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	slogx.FromContext(r.Context()).Error(msg, slog.Any("error", err))
	p := newPage("Error", nil)
	p.Errors.AddForm("An error occurred while processing your request.")
	render(w, r, http.StatusInternalServerError, "error.html", p)
}

func encodeFlash(msg string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(msg))
}

func decodeFlash(v string) (string, error) {
	b, err := base64.RawURLEncoding.DecodeString(v)
	return string(b), err
}

// withQuery appends params to a path.
func withQuery(path string, params url.Values) string {
	if len(params) == 0 {
		return path
	}
	return path + "?" + params.Encode()
}

// returnURL picks the local return target of a form or query, or "/".
func returnURL(r *http.Request) string {
	for _, key := range []string{"ReturnUrl", "returnUrl"} {
		if v := r.FormValue(key); v != "" && httpx.IsLocalURL(v) {
			return v
		}
	}
	return "/"
}
