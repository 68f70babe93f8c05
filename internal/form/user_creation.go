package form

import "net/url"

const (
	msgPasswordMismatch  = "The two password fields didn’t match."
	MsgDuplicateUsername = "A user with that username already exists."
)

// UserCreationForm creates a user from a username and a confirmed password.
type UserCreationForm struct {
	Form
	Username  string `form:"username" validate:"required,max=150,username"`
	Password1 string `form:"password1" validate:"required"`
	Password2 string `form:"password2" validate:"required"`
}

// NewUserCreationForm returns an empty, unbound form.
func NewUserCreationForm() *UserCreationForm {
	return &UserCreationForm{}
}

// BindUserCreationForm binds submitted values. The username is normalized
// with NormalizeUsername; passwords are taken verbatim.
func BindUserCreationForm(values url.Values) *UserCreationForm {
	f := &UserCreationForm{
		Username:  NormalizeUsername(values.Get("username")),
		Password1: values.Get("password1"),
		Password2: values.Get("password2"),
	}
	f.bound = true
	return f
}

// IsValid cleans the form on first call and reports whether it has no errors.
func (f *UserCreationForm) IsValid() bool {
	return f.run(f.clean)
}

func (f *UserCreationForm) clean() {
	f.addValidationErrors(validate.Struct(f))

	if len(f.FieldErrors("password1")) > 0 || len(f.FieldErrors("password2")) > 0 {
		return
	}
	if f.Password1 != f.Password2 {
		f.AddError("password2", msgPasswordMismatch)
		return
	}
	for _, problem := range ValidatePassword(f.Password2, f.Username) {
		f.AddError("password2", problem)
	}
}
