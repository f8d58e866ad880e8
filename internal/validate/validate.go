// Package validate provides the parameter rules checked before a Picsart
// request is built. Rules are plain functions composed per operation; a
// rule returns nil when the value is acceptable or unset.
package validate

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	validator "github.com/go-playground/validator/v10"
)

var tags = validator.New()

// FieldError describes one rejected parameter.
type FieldError struct {
	Field   string
	Message string
	Err     error
}

// Error implements the error interface.
func (e FieldError) Error() string {
	return e.Message
}

func (e FieldError) Unwrap() error {
	return e.Err
}

// Errors is a set of field errors reported together.
type Errors []FieldError

// Error joins the messages in sorted order so the text is stable.
func (es Errors) Error() string {
	return strings.Join(es.Messages(), ", ")
}

// Unwrap exposes each field error to errors.Is and errors.As.
func (es Errors) Unwrap() []error {
	errs := make([]error, len(es))
	for i, e := range es {
		errs[i] = e
	}
	return errs
}

// Messages returns the sorted messages.
func (es Errors) Messages() []string {
	msgs := make([]string, len(es))
	for i, e := range es {
		msgs[i] = e.Message
	}
	sort.Strings(msgs)
	return msgs
}

// Fields returns the names of the rejected fields in sorted order.
func (es Errors) Fields() []string {
	fields := make([]string, len(es))
	for i, e := range es {
		fields[i] = e.Field
	}
	sort.Strings(fields)
	return fields
}

// Summary formats the errors the way every operation reports them:
// "<action> failed with errors: msg1, msg2".
func (es Errors) Summary(action string) string {
	return fmt.Sprintf("%s failed with errors: %s", action, es.Error())
}

// Rule checks one constraint.
type Rule func() *FieldError

// Check runs every rule and returns the violations, or nil.
func Check(rules ...Rule) Errors {
	var errs Errors
	for _, r := range rules {
		if r == nil {
			continue
		}
		if fe := r(); fe != nil {
			errs = append(errs, *fe)
		}
	}
	return errs
}

func fail(field, format string, args ...any) *FieldError {
	return &FieldError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// NotBlank rejects empty or whitespace-only strings.
func NotBlank(field, value, message string) Rule {
	return func() *FieldError {
		if strings.TrimSpace(value) == "" {
			return fail(field, "%s", message)
		}
		return nil
	}
}

// Number is the set of numeric parameter types.
type Number interface {
	~int | ~int64 | ~float64
}

// Range rejects a set value outside [min, max]. A nil value is unset.
func Range[T Number](field string, value *T, min, max T, message string) Rule {
	return func() *FieldError {
		if value == nil {
			return nil
		}
		if *value < min || *value > max {
			return fail(field, "%s", message)
		}
		return nil
	}
}

// Min rejects a set value below min.
func Min[T Number](field string, value *T, min T, message string) Rule {
	return func() *FieldError {
		if value != nil && *value < min {
			return fail(field, "%s", message)
		}
		return nil
	}
}

// OneOf rejects a set value that is not one of allowed. A nil value is
// unset.
func OneOf[T comparable](field string, value *T, allowed []T, message string) Rule {
	return func() *FieldError {
		if value == nil || slices.Contains(allowed, *value) {
			return nil
		}
		return fail(field, "%s", message)
	}
}

// Enum rejects a non-empty string value that is not one of allowed.
func Enum[T ~string](field string, value T, allowed []T, message string) Rule {
	return func() *FieldError {
		if value == "" || slices.Contains(allowed, value) {
			return nil
		}
		return fail(field, "%s", message)
	}
}

// ExactlyOne requires exactly one of the flags to be set.
func ExactlyOne(field, message string, set ...bool) Rule {
	return func() *FieldError {
		if count(set) != 1 {
			return fail(field, "%s", message)
		}
		return nil
	}
}

// AtMostOne allows zero or one of the flags to be set.
func AtMostOne(field, message string, set ...bool) Rule {
	return func() *FieldError {
		if count(set) > 1 {
			return fail(field, "%s", message)
		}
		return nil
	}
}

// Length requires min <= n <= max.
func Length(field string, n, min, max int, message string) Rule {
	return func() *FieldError {
		if n < min || n > max {
			return fail(field, "%s", message)
		}
		return nil
	}
}

// URL rejects a non-empty value that is not an absolute URL.
func URL(field, value string) Rule {
	return func() *FieldError {
		if value == "" {
			return nil
		}
		if err := tags.Var(value, "url"); err != nil {
			return fail(field, "%s must be a valid URL", field)
		}
		return nil
	}
}

// Color rejects a non-empty value that is neither a CSS color name nor a
// hex, rgb(a) or hsl(a) color.
func Color(field, value string) Rule {
	return func() *FieldError {
		if value == "" {
			return nil
		}
		if isColorName(value) {
			return nil
		}
		if err := tags.Var(value, "iscolor"); err != nil {
			return fail(field, "%s must be a color name or hex code", field)
		}
		return nil
	}
}

func isColorName(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}

func count(set []bool) int {
	n := 0
	for _, s := range set {
		if s {
			n++
		}
	}
	return n
}
