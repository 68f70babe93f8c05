package form

import "net/url"

const (
	MsgInvalidLogin = "Please enter a correct username and password. Note that both fields may be case-sensitive."
	MsgInactive     = "This account is inactive."
)

// AuthenticationForm collects login credentials. Checking them against the
// user store is the caller's job; failures are reported with AddError("", ...).
type AuthenticationForm struct {
	Form
	Username string `form:"username" validate:"required,max=150"`
	Password string `form:"password" validate:"required"`
}

// NewAuthenticationForm returns an empty, unbound form.
func NewAuthenticationForm() *AuthenticationForm {
	return &AuthenticationForm{}
}

// BindAuthenticationForm binds submitted values, normalizing the username the
// same way registration does.
func BindAuthenticationForm(values url.Values) *AuthenticationForm {
	f := &AuthenticationForm{
		Username: NormalizeUsername(values.Get("username")),
		Password: values.Get("password"),
	}
	f.bound = true
	return f
}

// IsValid cleans the form on first call and reports whether it has no errors.
func (f *AuthenticationForm) IsValid() bool {
	return f.run(func() {
		f.addValidationErrors(validate.Struct(f))
	})
}
