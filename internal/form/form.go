// Package form binds and validates submitted HTML form data.
//
// A form is either unbound (freshly constructed, rendered empty on GET) or
// bound to submitted values. Only a bound form can be valid. Validation
// errors are kept on the form so the same instance can be re-rendered with
// its values and messages after a failed POST.
package form

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/unicode/norm"
)

// MaxUsernameLength is the longest username accepted.
const MaxUsernameLength = 150

const (
	msgRequired        = "This field is required."
	msgInvalidUsername = "Enter a valid username. This value may contain only letters, numbers, and @/./+/-/_ characters."
)

var usernamePattern = regexp.MustCompile(`^[\p{L}\p{N}_.@+-]+$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("form"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernamePattern.MatchString(fl.Field().String())
	}); err != nil {
		panic(fmt.Sprintf("register username validation: %v", err))
	}
	return v
}

// Form holds the state shared by every form: whether it is bound and the
// errors collected while cleaning it.
type Form struct {
	bound       bool
	cleaned     bool
	fieldErrors map[string][]string
	nonField    []string
}

// IsBound reports whether the form was built from submitted data.
func (f *Form) IsBound() bool {
	return f.bound
}

// AddError records a validation error. An empty field name records a
// non-field error that applies to the form as a whole.
func (f *Form) AddError(field, message string) {
	if field == "" {
		f.nonField = append(f.nonField, message)
		return
	}
	if f.fieldErrors == nil {
		f.fieldErrors = make(map[string][]string)
	}
	f.fieldErrors[field] = append(f.fieldErrors[field], message)
}

// FieldErrors returns the errors recorded for field, in the order added.
func (f *Form) FieldErrors(field string) []string {
	return f.fieldErrors[field]
}

// NonFieldErrors returns errors that apply to the whole form.
func (f *Form) NonFieldErrors() []string {
	return f.nonField
}

// HasErrors reports whether any error has been recorded.
func (f *Form) HasErrors() bool {
	return len(f.nonField) > 0 || len(f.fieldErrors) > 0
}

// run cleans the form once. Later calls reuse the recorded errors.
func (f *Form) run(clean func()) bool {
	if !f.bound {
		return false
	}
	if !f.cleaned {
		f.cleaned = true
		clean()
	}
	return !f.HasErrors()
}

// addValidationErrors converts struct validation failures into form errors.
func (f *Form) addValidationErrors(err error) {
	if err == nil {
		return
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		f.AddError("", err.Error())
		return
	}
	for _, fe := range verrs {
		f.AddError(fe.Field(), message(fe))
	}
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return msgRequired
	case "max":
		s, _ := fe.Value().(string)
		return fmt.Sprintf("Ensure this value has at most %s characters (it has %d).", fe.Param(), utf8.RuneCountInString(s))
	case "username":
		return msgInvalidUsername
	default:
		return "Enter a valid value."
	}
}

// NormalizeUsername trims surrounding space and applies Unicode NFKC
// normalization, so visually identical names such as "ａｌｉｃｅ" and "alice"
// map to the same account.
func NormalizeUsername(username string) string {
	return norm.NFKC.String(strings.TrimSpace(username))
}

// ValidateUsername returns the problems with username as a standalone value,
// or nil if it is acceptable.
func ValidateUsername(username string) []string {
	var problems []string
	err := validate.Var(username, fmt.Sprintf("required,max=%d,username", MaxUsernameLength))
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			problems = append(problems, message(fe))
		}
	}
	return problems
}
