package security

import (
	"net/http"
	"strings"
	"time"
)

// CSRFCookieName is readable by page scripts, which echo it back in the
// X-CSRF-Token header on state-changing requests.
const (
	CSRFCookieName = "csrf_token"
	CSRFHeaderName = "X-CSRF-Token"

	csrfPepper = "csrf"
)

type CookieManager struct {
	Name     string
	Domain   string
	Secure   bool
	SameSite http.SameSite
}

func NewCookieManager(name, domain string, secure bool, sameSite string) *CookieManager {
	return &CookieManager{Name: name, Domain: domain, Secure: secure, SameSite: parseSameSite(sameSite)}
}

// SetSession writes the session cookie and its CSRF companion. The token is
// opaque; only its hash is stored server side.
func (m *CookieManager) SetSession(w http.ResponseWriter, token string, ttl time.Duration) {
	expires := time.Now().Add(ttl)
	http.SetCookie(w, &http.Cookie{
		Name:     m.Name,
		Value:    token,
		Path:     "/",
		Domain:   m.Domain,
		MaxAge:   int(ttl.Seconds()),
		Expires:  expires,
		HttpOnly: true,
		Secure:   m.Secure,
		SameSite: m.SameSite,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    m.CSRFToken(token),
		Path:     "/",
		Domain:   m.Domain,
		MaxAge:   int(ttl.Seconds()),
		Expires:  expires,
		Secure:   m.Secure,
		SameSite: m.SameSite,
	})
}

func (m *CookieManager) ClearSession(w http.ResponseWriter) {
	for _, c := range []struct {
		name     string
		httpOnly bool
	}{{m.Name, true}, {CSRFCookieName, false}} {
		http.SetCookie(w, &http.Cookie{
			Name:     c.name,
			Value:    "",
			Path:     "/",
			Domain:   m.Domain,
			MaxAge:   -1,
			Expires:  time.Unix(0, 0),
			HttpOnly: c.httpOnly,
			Secure:   m.Secure,
			SameSite: m.SameSite,
		})
	}
}

// CSRFToken is bound to the session token, so a cookie planted by another
// origin without the session cannot satisfy the check.
func (m *CookieManager) CSRFToken(sessionToken string) string {
	return HashToken(sessionToken, csrfPepper)
}

func (m *CookieManager) SessionToken(r *http.Request) string {
	return GetCookie(r, m.Name)
}

func GetCookie(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

func parseSameSite(v string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}
