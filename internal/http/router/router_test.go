package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ayolclub/travel-auth/internal/domain"
	"github.com/ayolclub/travel-auth/internal/health"
	"github.com/ayolclub/travel-auth/internal/http/handler"
	"github.com/ayolclub/travel-auth/internal/security"
	"github.com/ayolclub/travel-auth/internal/service"
)

type noSessions struct{}

func (noSessions) Resolve(context.Context, string) (*domain.Session, error) {
	return nil, service.ErrUnauthenticated
}

type fixedSessions struct{ token string }

func (f fixedSessions) Resolve(_ context.Context, token string) (*domain.Session, error) {
	if token != f.token {
		return nil, service.ErrUnauthenticated
	}
	return &domain.Session{ID: 1, AccountID: 7}, nil
}

type logoutOnlyAuth struct {
	service.AuthServiceInterface
	calls int
}

func (a *logoutOnlyAuth) Logout(context.Context, string) error {
	a.calls++
	return nil
}

type unhealthy struct{}

func (unhealthy) Check(context.Context) health.CheckResult {
	return health.CheckResult{Name: "db", Healthy: false, Error: "down"}
}

func newTestRouter(readiness *health.ProbeRunner) http.Handler {
	cookies := security.NewCookieManager("sessionid", "", false, "lax")
	return NewRouter(Dependencies{
		AuthHandler:      handler.NewAuthHandler(nil, nil, cookies, time.Hour),
		TelegramHandler:  handler.NewTelegramHandler(nil, nil, nil, cookies, time.Hour, handler.TelegramRedirects{}),
		ProfileHandler:   handler.NewProfileHandler(nil),
		Sessions:         noSessions{},
		Cookies:          cookies,
		AuthRateLimitRPM: 5,
		APIRateLimitRPM:  100,
		Readiness:        readiness,
	})
}

func serve(h http.Handler, method, target string) (*httptest.ResponseRecorder, map[string]any) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, nil)
	req.RemoteAddr = "192.0.2.1:1234"
	h.ServeHTTP(rr, req)
	var body map[string]any
	_ = json.NewDecoder(rr.Body).Decode(&body)
	return rr, body
}

func TestRouterUnknownRouteIsJSON404(t *testing.T) {
	rr, body := serve(newTestRouter(nil), http.MethodGet, "/api/auth/nope")
	if rr.Code != http.StatusNotFound || body["successful"] != false {
		t.Fatalf("unexpected response %d %+v", rr.Code, body)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Fatalf("unexpected content type %q", ct)
	}
}

func TestRouterMeIsAnonymousWithoutSession(t *testing.T) {
	rr, body := serve(newTestRouter(nil), http.MethodGet, "/api/auth/me")
	if rr.Code != http.StatusOK || body["authenticated"] != false {
		t.Fatalf("unexpected response %d %+v", rr.Code, body)
	}
}

func TestRouterUploadAvatarRequiresSession(t *testing.T) {
	rr, _ := serve(newTestRouter(nil), http.MethodPost, "/api/auth/upload-avatar")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestRouterHealthProbes(t *testing.T) {
	rr, body := serve(newTestRouter(nil), http.MethodGet, "/health/live")
	if rr.Code != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("unexpected live response %d %+v", rr.Code, body)
	}

	rr, body = serve(newTestRouter(health.NewProbeRunner(time.Second, 0, unhealthy{})), http.MethodGet, "/health/ready")
	if rr.Code != http.StatusServiceUnavailable || body["successful"] != false {
		t.Fatalf("unexpected ready response %d %+v", rr.Code, body)
	}
}

func TestRouterAuthLimiterAppliesToLoginEndpoints(t *testing.T) {
	h := newTestRouter(nil)
	var last int
	for i := 0; i < 6; i++ {
		rr, _ := serve(h, http.MethodPost, "/api/auth/telegram/login")
		last = rr.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected the sixth auth request to be limited, got %d", last)
	}
}

func TestRouterLogoutRequiresMatchingCSRFToken(t *testing.T) {
	cookies := security.NewCookieManager("sessionid", "", true, "none")
	auth := &logoutOnlyAuth{}
	h := NewRouter(Dependencies{
		AuthHandler:      handler.NewAuthHandler(auth, nil, cookies, time.Hour),
		TelegramHandler:  handler.NewTelegramHandler(nil, nil, nil, cookies, time.Hour, handler.TelegramRedirects{}),
		ProfileHandler:   handler.NewProfileHandler(nil),
		Sessions:         fixedSessions{token: "live"},
		Cookies:          cookies,
		AuthRateLimitRPM: 5,
		APIRateLimitRPM:  100,
	})
	logout := func(header string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
		req.RemoteAddr = "192.0.2.1:1234"
		req.AddCookie(&http.Cookie{Name: "sessionid", Value: "live"})
		req.AddCookie(&http.Cookie{Name: security.CSRFCookieName, Value: cookies.CSRFToken("live")})
		if header != "" {
			req.Header.Set(security.CSRFHeaderName, header)
		}
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr.Code
	}

	if code := logout("forged"); code != http.StatusForbidden {
		t.Fatalf("expected mismatched csrf token to be rejected, got %d", code)
	}
	if code := logout(""); code != http.StatusForbidden {
		t.Fatalf("expected missing csrf header to be rejected, got %d", code)
	}
	if auth.calls != 0 {
		t.Fatalf("session must not be revoked by a rejected request, got %d calls", auth.calls)
	}
	if code := logout(cookies.CSRFToken("live")); code != http.StatusOK {
		t.Fatalf("expected logout with matching token to succeed, got %d", code)
	}
	if auth.calls != 1 {
		t.Fatalf("expected one logout call, got %d", auth.calls)
	}
}

func TestRouterUploadAvatarRejectsMissingCSRFToken(t *testing.T) {
	cookies := security.NewCookieManager("sessionid", "", false, "lax")
	h := NewRouter(Dependencies{
		AuthHandler:      handler.NewAuthHandler(nil, nil, cookies, time.Hour),
		TelegramHandler:  handler.NewTelegramHandler(nil, nil, nil, cookies, time.Hour, handler.TelegramRedirects{}),
		ProfileHandler:   handler.NewProfileHandler(nil),
		Sessions:         fixedSessions{token: "live"},
		Cookies:          cookies,
		AuthRateLimitRPM: 5,
		APIRateLimitRPM:  100,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/auth/upload-avatar", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	req.AddCookie(&http.Cookie{Name: "sessionid", Value: "live"})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}
