package handler

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/ayolclub/travel-auth/internal/domain"
	"github.com/ayolclub/travel-auth/internal/security"
	"github.com/ayolclub/travel-auth/internal/service"
)

func newAuthHandlerForTest(authSvc *stubAuthService) *AuthHandler {
	cookies := security.NewCookieManager("sessionid", "", false, "lax")
	return NewAuthHandler(authSvc, &stubProfileService{avatarURL: "https://cdn.example.com/a.png"}, cookies, time.Hour)
}

func formRequest(method, target string, values url.Values) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.RemoteAddr = "192.0.2.10:5555"
	return req
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "192.0.2.10:5555"
	return req
}

func TestAuthHandlerRequestCodeAcceptsFormAndJSON(t *testing.T) {
	var got []string
	h := newAuthHandlerForTest(&stubAuthService{
		requestCodeFn: func(name, email, password string) error {
			got = append(got, name+"|"+email+"|"+password)
			return nil
		},
	})

	rr := httptest.NewRecorder()
	h.RequestCode(rr, formRequest(http.MethodPost, "/api/auth/request-code", url.Values{
		"name": {" Anna "}, "email": {"anna@example.com"}, "password": {"secret123"},
	}))
	if rr.Code != http.StatusOK {
		t.Fatalf("form: expected 200, got %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["successful"] != true || body["message"] == "" {
		t.Fatalf("unexpected body %+v", body)
	}

	rr = httptest.NewRecorder()
	h.RequestCode(rr, jsonRequest(http.MethodPost, "/api/auth/request-code", `{"name":"Anna","email":"anna@example.com","password":"secret123"}`))
	if rr.Code != http.StatusOK {
		t.Fatalf("json: expected 200, got %d", rr.Code)
	}
	if len(got) != 2 || got[0] != "Anna|anna@example.com|secret123" || got[1] != got[0] {
		t.Fatalf("unexpected service calls %v", got)
	}
}

func TestAuthHandlerMapsServiceErrorsToStatus(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		msg    string
	}{
		{"validation", service.ErrInvalidEmail, http.StatusBadRequest, "invalid email"},
		{"conflict", service.ErrAccountExists, http.StatusConflict, "account already exists"},
		{"not found", service.ErrCodeNotFound, http.StatusNotFound, "no pending code"},
		{"expired", service.ErrCodeExpired, http.StatusGone, "code expired"},
		{"internal", errors.New("db exploded"), http.StatusInternalServerError, "internal server error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newAuthHandlerForTest(&stubAuthService{
				requestCodeFn: func(string, string, string) error { return tc.err },
			})
			rr := httptest.NewRecorder()
			h.RequestCode(rr, jsonRequest(http.MethodPost, "/api/auth/request-code", `{}`))
			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rr.Code)
			}
			body := decodeBody(t, rr)
			if body["successful"] != false || body["message"] != tc.msg {
				t.Fatalf("unexpected body %+v", body)
			}
		})
	}
}

func TestAuthHandlerRateLimitSetsRetryAfter(t *testing.T) {
	h := newAuthHandlerForTest(&stubAuthService{
		requestCodeFn: func(string, string, string) error {
			return &service.Error{Kind: service.KindRateLimit, Message: "too many requests", RetryAfter: 1500 * time.Millisecond}
		},
	})
	rr := httptest.NewRecorder()
	h.RequestCode(rr, jsonRequest(http.MethodPost, "/api/auth/request-code", `{}`))
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if got := rr.Header().Get("Retry-After"); got != "2" {
		t.Fatalf("expected Retry-After=2, got %q", got)
	}
}

func TestAuthHandlerRejectsMalformedJSON(t *testing.T) {
	h := newAuthHandlerForTest(&stubAuthService{
		loginFn: func(string, string, service.SessionMeta) (*service.LoginResult, error) {
			t.Fatal("service must not be called")
			return nil, nil
		},
	})
	rr := httptest.NewRecorder()
	h.Login(rr, jsonRequest(http.MethodPost, "/api/auth/login", `{"email":`))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestAuthHandlerLoginSetsSessionCookie(t *testing.T) {
	var meta service.SessionMeta
	h := newAuthHandlerForTest(&stubAuthService{
		loginFn: func(email, password string, m service.SessionMeta) (*service.LoginResult, error) {
			meta = m
			return &service.LoginResult{Account: testAccount(5), SessionToken: "tok-123", NeedAvatar: true}, nil
		},
	})
	req := formRequest(http.MethodPost, "/api/auth/login", url.Values{"email": {"a@example.com"}, "password": {"secret123"}})
	req.Header.Set("User-Agent", "test-agent")
	rr := httptest.NewRecorder()
	h.Login(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	c := findCookie(rr.Result().Cookies(), "sessionid")
	if c == nil || c.Value != "tok-123" || !c.HttpOnly {
		t.Fatalf("expected http-only session cookie, got %+v", c)
	}
	if meta.IP != "192.0.2.10" || meta.UserAgent != "test-agent" {
		t.Fatalf("unexpected session meta %+v", meta)
	}
	if body := decodeBody(t, rr); body["need_avatar"] != true {
		t.Fatalf("expected need_avatar=true, got %+v", body)
	}
}

func TestAuthHandlerLoginUnverifiedEmailIsForbidden(t *testing.T) {
	h := newAuthHandlerForTest(&stubAuthService{
		loginFn: func(string, string, service.SessionMeta) (*service.LoginResult, error) {
			return nil, service.ErrEmailNotVerified
		},
	})
	rr := httptest.NewRecorder()
	h.Login(rr, jsonRequest(http.MethodPost, "/api/auth/login", `{"email":"a@example.com","password":"x"}`))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
	if findCookie(rr.Result().Cookies(), "sessionid") != nil {
		t.Fatal("no cookie expected on failed login")
	}
}

func TestAuthHandlerVerifyCodeIssuesSession(t *testing.T) {
	h := newAuthHandlerForTest(&stubAuthService{
		verifyCodeFn: func(email, code string, _ service.SessionMeta) (*service.LoginResult, error) {
			if email != "a@example.com" || code != "123456" {
				return nil, service.ErrInvalidCode
			}
			return &service.LoginResult{Account: testAccount(8), SessionToken: "fresh", NeedAvatar: true}, nil
		},
	})
	rr := httptest.NewRecorder()
	h.VerifyCode(rr, jsonRequest(http.MethodPost, "/api/auth/verify-code", `{"email":"a@example.com","code":"123456"}`))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if c := findCookie(rr.Result().Cookies(), "sessionid"); c == nil || c.Value != "fresh" {
		t.Fatalf("expected session cookie, got %+v", c)
	}

	rr = httptest.NewRecorder()
	h.VerifyCode(rr, jsonRequest(http.MethodPost, "/api/auth/verify-code", `{"email":"a@example.com","code":"000000"}`))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for wrong code, got %d", rr.Code)
	}
}

func TestAuthHandlerLogoutRevokesAndClearsCookie(t *testing.T) {
	var revoked string
	h := newAuthHandlerForTest(&stubAuthService{
		logoutFn: func(token string) error {
			revoked = token
			return nil
		},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: "sessionid", Value: "live-token"})
	rr := httptest.NewRecorder()
	h.Logout(rr, withSession(req, 3))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if revoked != "live-token" {
		t.Fatalf("expected token to be revoked, got %q", revoked)
	}
	if c := findCookie(rr.Result().Cookies(), "sessionid"); c == nil || c.MaxAge >= 0 {
		t.Fatalf("expected cleared cookie, got %+v", c)
	}
}

func TestAuthHandlerMe(t *testing.T) {
	email := "anna@example.com"
	h := newAuthHandlerForTest(&stubAuthService{
		meFn: func(id uint) (*domain.Account, error) {
			if id != 7 {
				return nil, service.ErrUnauthenticated
			}
			return &domain.Account{ID: 7, Handle: email, Email: &email, FirstName: "Anna", EmailVerified: true, AvatarKey: "avatars/account-7/x.png"}, nil
		},
	})

	t.Run("anonymous", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.Me(rr, httptest.NewRequest(http.MethodGet, "/api/auth/me", nil))
		body := decodeBody(t, rr)
		if rr.Code != http.StatusOK || body["authenticated"] != false || body["successful"] != true {
			t.Fatalf("unexpected anonymous response %d %+v", rr.Code, body)
		}
	})

	t.Run("authenticated", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.Me(rr, withSession(httptest.NewRequest(http.MethodGet, "/api/auth/me", nil), 7))
		body := decodeBody(t, rr)
		if body["authenticated"] != true || body["email"] != email || body["name"] != "Anna" {
			t.Fatalf("unexpected body %+v", body)
		}
		if body["is_email_verified"] != true || body["avatar_url"] != "https://cdn.example.com/a.png" {
			t.Fatalf("unexpected profile fields %+v", body)
		}
	})

	t.Run("account gone", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.Me(rr, withSession(httptest.NewRequest(http.MethodGet, "/api/auth/me", nil), 99))
		if body := decodeBody(t, rr); body["authenticated"] != false {
			t.Fatalf("expected authenticated=false, got %+v", body)
		}
	})
}

func TestAuthHandlerPasswordReset(t *testing.T) {
	var confirmIP string
	h := newAuthHandlerForTest(&stubAuthService{
		resetRequestFn: func(email, newPassword string) error {
			if newPassword == "" {
				return service.ErrWeakPassword
			}
			return nil
		},
		resetConfirmFn: func(email, code, ip string) error {
			confirmIP = ip
			if code != "654321" {
				return service.ErrCodeNotFound
			}
			return nil
		},
	})

	rr := httptest.NewRecorder()
	h.PasswordResetRequest(rr, jsonRequest(http.MethodPost, "/api/auth/password/reset-request", `{"email":"a@example.com","password":"newpass123"}`))
	if rr.Code != http.StatusOK {
		t.Fatalf("reset request: expected 200, got %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	h.PasswordResetRequest(rr, jsonRequest(http.MethodPost, "/api/auth/password/reset-request", `{"email":"a@example.com"}`))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("reset request without password: expected 400, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	req := jsonRequest(http.MethodPost, "/api/auth/password/reset-confirm", `{"email":"a@example.com","code":"654321"}`)
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	h.PasswordResetConfirm(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("reset confirm: expected 200, got %d", rr.Code)
	}
	if confirmIP != "203.0.113.9" {
		t.Fatalf("expected forwarded client ip, got %q", confirmIP)
	}
	rr = httptest.NewRecorder()
	h.PasswordResetConfirm(rr, jsonRequest(http.MethodPost, "/api/auth/password/reset-confirm", `{"email":"a@example.com","code":"1"}`))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("reset confirm with unknown code: expected 404, got %d", rr.Code)
	}
}
