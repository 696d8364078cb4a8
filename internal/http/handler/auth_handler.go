package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ayolclub/travel-auth/internal/http/response"
	"github.com/ayolclub/travel-auth/internal/observability"
	"github.com/ayolclub/travel-auth/internal/security"
	"github.com/ayolclub/travel-auth/internal/service"
)

type AuthHandler struct {
	authSvc    service.AuthServiceInterface
	profileSvc service.ProfileServiceInterface
	cookieMgr  *security.CookieManager
	sessionTTL time.Duration
}

func NewAuthHandler(authSvc service.AuthServiceInterface, profileSvc service.ProfileServiceInterface, cookieMgr *security.CookieManager, sessionTTL time.Duration) *AuthHandler {
	return &AuthHandler{authSvc: authSvc, profileSvc: profileSvc, cookieMgr: cookieMgr, sessionTTL: sessionTTL}
}

func (h *AuthHandler) RequestCode(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "success"
	defer func() {
		observability.RecordAuthRequestDuration(r.Context(), "request_code", status, time.Since(start))
	}()

	fields, err := readFields(r)
	if err != nil {
		status = "failure"
		response.Error(w, r, http.StatusBadRequest, err.Error(), nil)
		return
	}
	err = h.authSvc.RequestSignupCode(r.Context(), stringField(fields, "name"), stringField(fields, "email"), stringField(fields, "password"))
	if err != nil {
		status = "failure"
		observability.Audit(r, observability.AuditInput{
			EventName: "auth.code.request", TargetType: "email", Action: "request_code",
			Outcome: "failure", Reason: failureReason(err),
		})
		writeServiceError(w, r, err)
		return
	}
	observability.Audit(r, observability.AuditInput{
		EventName: "auth.code.request", TargetType: "email", Action: "request_code", Outcome: "success",
	})
	response.Message(w, r, http.StatusOK, "Verification code sent.")
}

func (h *AuthHandler) VerifyCode(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "success"
	defer func() {
		observability.RecordAuthRequestDuration(r.Context(), "verify_code", status, time.Since(start))
	}()

	fields, err := readFields(r)
	if err != nil {
		status = "failure"
		response.Error(w, r, http.StatusBadRequest, err.Error(), nil)
		return
	}
	res, err := h.authSvc.VerifySignupCode(r.Context(), stringField(fields, "email"), stringField(fields, "code"), sessionMeta(r))
	if err != nil {
		status = "failure"
		observability.Audit(r, observability.AuditInput{
			EventName: "auth.code.verify", TargetType: "email", Action: "verify_code",
			Outcome: "failure", Reason: failureReason(err),
		})
		writeServiceError(w, r, err)
		return
	}
	h.cookieMgr.SetSession(w, res.SessionToken, h.sessionTTL)
	observability.Audit(r, observability.AuditInput{
		EventName: "auth.code.verify", ActorUserID: accountIDString(res.Account.ID),
		TargetType: "account", TargetID: accountIDString(res.Account.ID), Action: "verify_code", Outcome: "success",
	})
	response.OK(w, r, response.Body{"message": "Email confirmed.", "need_avatar": res.NeedAvatar})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "success"
	defer func() {
		observability.RecordAuthRequestDuration(r.Context(), "login", status, time.Since(start))
	}()

	fields, err := readFields(r)
	if err != nil {
		status = "failure"
		response.Error(w, r, http.StatusBadRequest, err.Error(), nil)
		return
	}
	res, err := h.authSvc.Login(r.Context(), stringField(fields, "email"), stringField(fields, "password"), sessionMeta(r))
	if err != nil {
		status = "failure"
		observability.Audit(r, observability.AuditInput{
			EventName: "auth.login", TargetType: "account", Action: "login",
			Outcome: "failure", Reason: failureReason(err),
		})
		writeServiceError(w, r, err)
		return
	}
	h.cookieMgr.SetSession(w, res.SessionToken, h.sessionTTL)
	observability.Audit(r, observability.AuditInput{
		EventName: "auth.login", ActorUserID: accountIDString(res.Account.ID),
		TargetType: "account", TargetID: accountIDString(res.Account.ID), Action: "login", Outcome: "success",
	})
	response.OK(w, r, response.Body{"message": "Logged in.", "need_avatar": res.NeedAvatar})
}

// Logout always clears the cookie, even when revoking the stored session
// fails.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	actor := ""
	if id, ok := accountIDFromRequest(r); ok {
		actor = accountIDString(id)
	}
	err := h.authSvc.Logout(r.Context(), h.cookieMgr.SessionToken(r))
	h.cookieMgr.ClearSession(w)
	if err != nil {
		observability.Audit(r, observability.AuditInput{
			EventName: "auth.logout", ActorUserID: actor, TargetType: "session", Action: "logout",
			Outcome: "failure", Reason: failureReason(err),
		})
		writeServiceError(w, r, err)
		return
	}
	observability.Audit(r, observability.AuditInput{
		EventName: "auth.logout", ActorUserID: actor, TargetType: "session", Action: "logout", Outcome: "success",
	})
	response.Message(w, r, http.StatusOK, "Logged out.")
}

// Me never fails with 401; anonymous callers get authenticated=false.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	id, ok := accountIDFromRequest(r)
	if !ok {
		response.OK(w, r, response.Body{"authenticated": false})
		return
	}
	acc, err := h.authSvc.Me(r.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrUnauthenticated) {
			response.OK(w, r, response.Body{"authenticated": false})
			return
		}
		writeServiceError(w, r, err)
		return
	}
	body := response.Body{
		"authenticated":     true,
		"name":              acc.DisplayName(),
		"is_email_verified": acc.EmailVerified,
		"avatar_url":        nil,
	}
	if email := acc.EmailAddress(); email != "" {
		body["email"] = email
	}
	if u := h.profileSvc.AvatarURL(r.Context(), acc); u != "" {
		body["avatar_url"] = u
	}
	response.OK(w, r, body)
}

func (h *AuthHandler) PasswordResetRequest(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "success"
	defer func() {
		observability.RecordAuthRequestDuration(r.Context(), "password_reset_request", status, time.Since(start))
	}()

	fields, err := readFields(r)
	if err != nil {
		status = "failure"
		response.Error(w, r, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if err := h.authSvc.RequestPasswordReset(r.Context(), stringField(fields, "email"), stringField(fields, "password")); err != nil {
		status = "failure"
		writeServiceError(w, r, err)
		return
	}
	observability.Audit(r, observability.AuditInput{
		EventName: "auth.password.reset_request", TargetType: "email", Action: "reset_request", Outcome: "success",
	})
	response.Message(w, r, http.StatusOK, "If the account exists, a code has been sent.")
}

func (h *AuthHandler) PasswordResetConfirm(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "success"
	defer func() {
		observability.RecordAuthRequestDuration(r.Context(), "password_reset_confirm", status, time.Since(start))
	}()

	fields, err := readFields(r)
	if err != nil {
		status = "failure"
		response.Error(w, r, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if err := h.authSvc.ConfirmPasswordReset(r.Context(), stringField(fields, "email"), stringField(fields, "code"), clientIP(r)); err != nil {
		status = "failure"
		observability.Audit(r, observability.AuditInput{
			EventName: "auth.password.reset_confirm", TargetType: "email", Action: "reset_confirm",
			Outcome: "failure", Reason: failureReason(err),
		})
		writeServiceError(w, r, err)
		return
	}
	observability.Audit(r, observability.AuditInput{
		EventName: "auth.password.reset_confirm", TargetType: "email", Action: "reset_confirm", Outcome: "success",
	})
	response.Message(w, r, http.StatusOK, "Password updated.")
}

func accountIDString(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
