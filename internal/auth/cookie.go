package auth

import (
	"net/http"
	"time"
)

// CookieSpec describes a cookie the HTTP layer should set
type CookieSpec struct {
	Name       string
	Value      string
	Attributes CookieAttributes
}

// CookieAttributes are the flags sent with a cookie. MaxAge is in seconds;
// zero means the cookie must be removed by the client.
type CookieAttributes struct {
	HTTPOnly bool
	Secure   bool
	SameSite http.SameSite
	Path     string
	Domain   string
	MaxAge   int
	Expires  time.Time
}

// HTTPCookie converts c to a net/http cookie
func (c CookieSpec) HTTPCookie() *http.Cookie {
	maxAge := c.Attributes.MaxAge
	if maxAge <= 0 {
		// net/http writes "Max-Age=0" for negative values
		maxAge = -1
	}

	return &http.Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Path:     c.Attributes.Path,
		Domain:   c.Attributes.Domain,
		Expires:  c.Attributes.Expires,
		MaxAge:   maxAge,
		Secure:   c.Attributes.Secure,
		HttpOnly: c.Attributes.HTTPOnly,
		SameSite: c.Attributes.SameSite,
	}
}

// SetCookie writes the cookie to the response
func SetCookie(w http.ResponseWriter, spec CookieSpec) {
	http.SetCookie(w, spec.HTTPCookie())
}

// CookieConfig controls the attributes of the session cookie
type CookieConfig struct {
	Name     string
	Secure   bool
	SameSite http.SameSite
	Path     string
	Domain   string
}

// DefaultCookieConfig returns the session cookie defaults. Secure is only
// enabled in production so local development works over plain HTTP.
func DefaultCookieConfig(isProduction bool) CookieConfig {
	return CookieConfig{
		Name:     "auth_session",
		Secure:   isProduction,
		SameSite: http.SameSiteLaxMode,
		Path:     "/",
	}
}
