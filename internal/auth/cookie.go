package auth

import (
	"net/http"
	"time"
)

// CookieSettings describe how the session cookie is written.
type CookieSettings struct {
	Name   string
	Domain string
	Secure bool
}

// SetSessionCookie stores token in an HttpOnly cookie that expires with the
// session.
func SetSessionCookie(w http.ResponseWriter, cs CookieSettings, token string, expiresAt time.Time) {
	c := &http.Cookie{
		Name:     cs.Name,
		Value:    token,
		Path:     "/",
		Domain:   cs.Domain,
		HttpOnly: true,
		Secure:   cs.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	if !expiresAt.IsZero() {
		c.Expires = expiresAt
		c.MaxAge = int(time.Until(expiresAt).Seconds())
		if c.MaxAge <= 0 {
			c.MaxAge = -1
		}
	}
	http.SetCookie(w, c)
}

// ClearSessionCookie expires the session cookie.
func ClearSessionCookie(w http.ResponseWriter, cs CookieSettings) {
	http.SetCookie(w, &http.Cookie{
		Name:     cs.Name,
		Value:    "",
		Path:     "/",
		Domain:   cs.Domain,
		HttpOnly: true,
		Secure:   cs.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
	})
}
