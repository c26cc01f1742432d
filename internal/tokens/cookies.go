package tokens

import (
	"net/http"
	"time"
)

// CreateCookie builds the HTTP-only session cookies. Secure is set only in
// production so local HTTP development keeps working.
func CreateCookie(name, value, path string, exp time.Time, production bool) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Expires:  exp,
		HttpOnly: true,
		Secure:   production,
		SameSite: http.SameSiteStrictMode,
	}
}

func DeleteCookie(name, path string, production bool) *http.Cookie {
	return CreateCookie(name, "", path, time.Now().Add(-time.Hour), production)
}
