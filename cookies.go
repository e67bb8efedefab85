package authcore

import (
	"net/http"
	"time"
)

// Cookie names under the engine's control.
const (
	CookieAccessToken          = "access_token"
	CookieRefreshToken         = "refresh_token"
	CookieRegistrationToken    = "registration_token"
	CookieOTPVerificationToken = "otp_verification_token"
)

// CookieWriter emits auth cookies with one fixed attribute tuple. Clearing
// must reuse the exact tuple of the set, otherwise browsers keep the stale
// cookie, so both paths go through the same constructor.
type CookieWriter struct {
	cfg CookieConfig
}

// NewCookieWriter returns a writer bound to the given cookie settings.
func NewCookieWriter(cfg CookieConfig) *CookieWriter {
	return &CookieWriter{cfg: cfg}
}

// Set writes a cookie whose lifetime matches the token it carries.
func (w *CookieWriter) Set(rw http.ResponseWriter, name, value string, ttl time.Duration) {
	http.SetCookie(rw, w.cookie(name, value, int(ttl.Seconds())))
}

// Clear expires a cookie using the same attribute tuple it was set with.
func (w *CookieWriter) Clear(rw http.ResponseWriter, name string) {
	http.SetCookie(rw, w.cookie(name, "", -1))
}

func (w *CookieWriter) cookie(name, value string, maxAge int) *http.Cookie {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   w.cfg.Domain,
		MaxAge:   maxAge,
		HttpOnly: true,
	}
	if w.cfg.Production {
		c.Secure = true
		c.SameSite = http.SameSiteNoneMode
	} else {
		c.Secure = false
		c.SameSite = http.SameSiteLaxMode
	}
	return c
}
