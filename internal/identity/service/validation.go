package service

import (
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/aussiebroadwan/propulse/pkg/cryptox"
)

// FormErrors collects field and form level validation messages. Form level
// messages use the empty field name.
type FormErrors map[string][]string

func (f FormErrors) Add(field, msg string) { f[field] = append(f[field], msg) }
func (f FormErrors) AddForm(msg string)    { f.Add("", msg) }
func (f FormErrors) Any() bool             { return len(f) > 0 }
func (f FormErrors) Error() string         { return "validation failed" }

// Field returns the messages of one field.
func (f FormErrors) Field(name string) []string { return f[name] }

// OrNil returns nil when no message was added, so callers can return it
// as an error directly.
func (f FormErrors) OrNil() error {
	if !f.Any() {
		return nil
	}
	return f
}

var displayNamePattern = regexp.MustCompile(`^[\p{L}\p{N} .'\-_]+$`)

func validateEmail(f FormErrors, field, email string) {
	email = strings.TrimSpace(email)
	switch {
	case email == "":
		f.Add(field, "The Email field is required.")
	case utf8.RuneCountInString(email) < 3 || utf8.RuneCountInString(email) > 256:
		f.Add(field, "The Email field must be between 3 and 256 characters.")
	default:
		if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
			f.Add(field, "The Email field is not a valid e-mail address.")
		}
	}
}

func validatePassword(f FormErrors, field, password string) {
	n := utf8.RuneCountInString(password)
	switch {
	case password == "":
		f.Add(field, "The Password field is required.")
		return
	case n < 3 || n > 64:
		f.Add(field, "The Password must be between 3 and 64 characters.")
	}
	for _, msg := range cryptox.CheckPasswordPolicy(password) {
		f.Add(field, msg)
	}
}

func validateConfirmPassword(f FormErrors, field, password, confirm string) {
	if password != confirm {
		f.Add(field, "Password and confirmation must match")
	}
}

func validateDisplayName(f FormErrors, field, name string) {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		f.Add(field, "The DisplayName field is required.")
	case utf8.RuneCountInString(name) > 128:
		f.Add(field, "The DisplayName field must be between 1 and 128 characters.")
	case !displayNamePattern.MatchString(name):
		f.Add(field, "The DisplayName may only contain letters, digits, spaces and .'-_ characters.")
	}
}
