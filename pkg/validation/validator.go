package validation

import (
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/platinummonkey/thoughtnest/pkg/apperr"
)

// DefaultMessage is the error message used when Err is called without one.
const DefaultMessage = "Validation failed"

// Validator accumulates field errors
type Validator struct {
	fields map[string]string
	order  []string
}

// New creates an empty Validator.
func New() *Validator {
	return &Validator{fields: make(map[string]string)}
}

// Add records reason for field unless the field already failed.
func (v *Validator) Add(field, reason string) {
	if _, ok := v.fields[field]; ok {
		return
	}
	v.fields[field] = reason
	v.order = append(v.order, field)
}

// Check records reason for field when ok is false.
func (v *Validator) Check(ok bool, field, reason string) {
	if !ok {
		v.Add(field, reason)
	}
}

// Required fails blank values.
func (v *Validator) Required(field, value, reason string) {
	v.Check(strings.TrimSpace(value) != "", field, reason)
}

// Length fails values whose rune count is outside [min, max]. Blank values
// are left to Required.
func (v *Validator) Length(field, value string, min, max int, reason string) {
	if value == "" {
		return
	}
	n := utf8.RuneCountInString(value)
	v.Check(n >= min && n <= max, field, reason)
}

// MaxBytes fails values longer than max bytes.
func (v *Validator) MaxBytes(field, value string, max int, reason string) {
	v.Check(len(value) <= max, field, reason)
}

// Email fails values that are not a bare address. Blank values are left to
// Required.
func (v *Validator) Email(field, value, reason string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	v.Check(IsEmail(value), field, reason)
}

// Valid reports whether no field failed.
func (v *Validator) Valid() bool {
	return len(v.fields) == 0
}

// Fields returns the collected reasons.
func (v *Validator) Fields() map[string]string {
	out := make(map[string]string, len(v.fields))
	for k, r := range v.fields {
		out[k] = r
	}
	return out
}

// Err returns nil when valid, otherwise a ValidationFailed error. An empty
// message uses the first failure's reason when only one field failed.
func (v *Validator) Err(message string) error {
	if v.Valid() {
		return nil
	}
	if message == "" {
		if len(v.order) == 1 {
			message = v.fields[v.order[0]]
		} else {
			message = DefaultMessage
		}
	}
	return apperr.Validation(message, v.Fields())
}

// String lists failures in the order they were found.
func (v *Validator) String() string {
	parts := make([]string, 0, len(v.order))
	for _, f := range v.order {
		parts = append(parts, fmt.Sprintf("%s: %s", f, v.fields[f]))
	}
	return strings.Join(parts, "; ")
}

// maxEmailLength is the longest address SMTP can carry in a path.
const maxEmailLength = 254

// IsEmail reports whether s is a single address without a display name.
func IsEmail(s string) bool {
	if len(s) > maxEmailLength {
		return false
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return false
	}
	at := strings.LastIndex(s, "@")
	return at > 0 && at < len(s)-1
}
