package auth

import (
	"net/mail"
	"strings"
	"unicode/utf8"
)

const (
	minFullNameLength = 3
	maxFullNameLength = 150
	maxEmailLength    = 254
	minPasswordLength = 6
)

// RegisterInput is the registration form
type RegisterInput struct {
	FullName string `json:"fullname"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginInput is the login form
type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ForgotPasswordInput is the password reset request form
type ForgotPasswordInput struct {
	Email string `json:"email"`
}

// ResetPasswordInput is the new password form submitted with the emailed token
type ResetPasswordInput struct {
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	Token           string `json:"token"`
}

func (in *RegisterInput) Validate() error {
	in.FullName = strings.TrimSpace(in.FullName)
	in.Email = strings.TrimSpace(in.Email)

	v := &ValidationError{}
	switch n := utf8.RuneCountInString(in.FullName); {
	case n == 0:
		v.add("fullname", "Fullname is required")
	case n > maxFullNameLength:
		v.add("fullname", "Fullname must be less than 150 characters.")
	case n < minFullNameLength:
		v.add("fullname", "Fullname must be at least 3 characters.")
	}
	validateEmail(v, in.Email)
	validatePassword(v, "password", in.Password)
	return v.orNil()
}

func (in *LoginInput) Validate() error {
	in.Email = strings.TrimSpace(in.Email)

	v := &ValidationError{}
	validateEmail(v, in.Email)
	validatePassword(v, "password", in.Password)
	return v.orNil()
}

func (in *ForgotPasswordInput) Validate() error {
	in.Email = strings.TrimSpace(in.Email)

	v := &ValidationError{}
	validateEmail(v, in.Email)
	return v.orNil()
}

// Validate checks both password fields. A mismatch between them is reported
// as ErrPasswordMismatch rather than a field error.
func (in *ResetPasswordInput) Validate() error {
	v := &ValidationError{}
	validatePassword(v, "password", in.Password)
	validatePassword(v, "confirm_password", in.ConfirmPassword)
	if err := v.orNil(); err != nil {
		return err
	}
	if in.Password != in.ConfirmPassword {
		return ErrPasswordMismatch
	}
	return nil
}

func validateEmail(v *ValidationError, email string) {
	if email == "" {
		v.add("email", "Email is required.")
		return
	}
	if len(email) > maxEmailLength {
		v.add("email", "Invalid email.")
		return
	}
	addr, err := mail.ParseAddress(email)
	// Reject display-name forms such as "Jane <jane@example.com>"
	if err != nil || addr.Address != email {
		v.add("email", "Invalid email.")
	}
}

func validatePassword(v *ValidationError, field, password string) {
	if password == "" {
		v.add(field, "Password is required.")
		return
	}
	if utf8.RuneCountInString(password) < minPasswordLength {
		v.add(field, "Password must be at least 6 characters.")
	}
}
