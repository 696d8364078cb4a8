package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ayolclub/travel-auth/internal/domain"
	"github.com/ayolclub/travel-auth/internal/http/response"
	"github.com/ayolclub/travel-auth/internal/observability"
	"github.com/ayolclub/travel-auth/internal/security"
	"github.com/ayolclub/travel-auth/internal/service"
	"github.com/ayolclub/travel-auth/internal/telegram"
)

const botSecretHeader = "X-Bot-Secret"

type TelegramRedirects struct {
	Success string
	Failure string
}

type TelegramHandler struct {
	telegramSvc service.TelegramAuthServiceInterface
	botSvc      service.BotLoginServiceInterface
	profileSvc  service.ProfileServiceInterface
	cookieMgr   *security.CookieManager
	sessionTTL  time.Duration
	redirects   TelegramRedirects
}

func NewTelegramHandler(
	telegramSvc service.TelegramAuthServiceInterface,
	botSvc service.BotLoginServiceInterface,
	profileSvc service.ProfileServiceInterface,
	cookieMgr *security.CookieManager,
	sessionTTL time.Duration,
	redirects TelegramRedirects,
) *TelegramHandler {
	return &TelegramHandler{
		telegramSvc: telegramSvc,
		botSvc:      botSvc,
		profileSvc:  profileSvc,
		cookieMgr:   cookieMgr,
		sessionTTL:  sessionTTL,
		redirects:   redirects,
	}
}

// Login accepts either a WebApp initData string or the flat fields posted by
// the Login Widget, as a form or a JSON object.
func (h *TelegramHandler) Login(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "success"
	defer func() {
		observability.RecordAuthRequestDuration(r.Context(), "telegram_login", status, time.Since(start))
	}()

	fields, err := readFields(r)
	if err != nil {
		status = "failure"
		response.Error(w, r, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if len(fields) == 0 {
		status = "failure"
		response.Error(w, r, http.StatusBadRequest, "empty body", nil)
		return
	}

	var res *service.LoginResult
	if initData := stringField(fields, "initData"); initData != "" {
		res, err = h.telegramSvc.LoginWithInitData(r.Context(), initData, sessionMeta(r))
	} else {
		entry := service.TelegramEntryWidget
		if _, nested := fields[telegram.FieldUser]; nested {
			entry = service.TelegramEntryWebApp
		}
		res, err = h.telegramSvc.Login(r.Context(), telegram.Fields(fields), entry, sessionMeta(r))
	}
	if err != nil {
		status = "failure"
		observability.Audit(r, observability.AuditInput{
			EventName: "auth.telegram", TargetType: "account", Action: "telegram_login",
			Outcome: "failure", Reason: failureReason(err),
		})
		writeServiceError(w, r, err)
		return
	}

	h.cookieMgr.SetSession(w, res.SessionToken, h.sessionTTL)
	observability.Audit(r, observability.AuditInput{
		EventName: "auth.telegram", ActorUserID: accountIDString(res.Account.ID),
		TargetType: "account", TargetID: accountIDString(res.Account.ID), Action: "telegram_login", Outcome: "success",
	})
	response.OK(w, r, response.Body{
		"message":     "Logged in via Telegram.",
		"need_avatar": res.NeedAvatar,
		"user":        h.userBody(r, res.Account),
	})
}

// Callback is the Login Widget redirect target. It never renders JSON; the
// browser is sent to the configured success or failure page.
func (h *TelegramHandler) Callback(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "success"
	defer func() {
		observability.RecordAuthRequestDuration(r.Context(), "telegram_callback", status, time.Since(start))
	}()

	fields := telegram.FieldsFromValues(r.URL.Query())
	res, err := h.telegramSvc.Login(r.Context(), fields, service.TelegramEntryWidget, sessionMeta(r))
	if err != nil {
		status = "failure"
		observability.Audit(r, observability.AuditInput{
			EventName: "auth.telegram", TargetType: "account", Action: "telegram_callback",
			Outcome: "failure", Reason: failureReason(err),
		})
		http.Redirect(w, r, h.redirects.Failure, http.StatusFound)
		return
	}
	h.cookieMgr.SetSession(w, res.SessionToken, h.sessionTTL)
	observability.Audit(r, observability.AuditInput{
		EventName: "auth.telegram", ActorUserID: accountIDString(res.Account.ID),
		TargetType: "account", TargetID: accountIDString(res.Account.ID), Action: "telegram_callback", Outcome: "success",
	})
	http.Redirect(w, r, h.redirects.Success, http.StatusFound)
}

func (h *TelegramHandler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	req, err := h.botSvc.CreateRequest(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.OK(w, r, response.Body{"rid": req.RID, "deeplink": req.DeepLink})
}

// RequestStatus is polled by the browser that created the request. The first
// poll after the bot confirmed receives the session cookie.
func (h *TelegramHandler) RequestStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.botSvc.Status(r.Context(), chi.URLParam(r, "rid"), sessionMeta(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if st.Result == nil {
		response.OK(w, r, response.Body{"status": string(service.PendingStatusPending)})
		return
	}
	h.cookieMgr.SetSession(w, st.Result.SessionToken, h.sessionTTL)
	observability.Audit(r, observability.AuditInput{
		EventName: "auth.telegram", ActorUserID: accountIDString(st.Result.Account.ID),
		TargetType: "account", TargetID: accountIDString(st.Result.Account.ID), Action: "bot_login", Outcome: "success",
	})
	response.OK(w, r, response.Body{"status": "ok", "need_avatar": st.Result.NeedAvatar})
}

func (h *TelegramHandler) BotConfirm(w http.ResponseWriter, r *http.Request) {
	fields, err := readFields(r)
	if err != nil {
		response.Error(w, r, http.StatusBadRequest, err.Error(), nil)
		return
	}
	identity := telegram.Identity{
		ProviderUserID: stringField(fields, "id"),
		Username:       stringField(fields, "username"),
		FirstName:      stringField(fields, "first_name"),
		LastName:       stringField(fields, "last_name"),
	}
	acc, err := h.botSvc.BotConfirm(r.Context(), r.Header.Get(botSecretHeader), stringField(fields, "rid"), identity)
	if err != nil {
		observability.Audit(r, observability.AuditInput{
			EventName: "auth.telegram.bot_confirm", TargetType: "pending_login", TargetID: stringField(fields, "rid"),
			Action: "bot_confirm", Outcome: "failure", Reason: failureReason(err),
		})
		writeServiceError(w, r, err)
		return
	}
	observability.Audit(r, observability.AuditInput{
		EventName: "auth.telegram.bot_confirm", ActorUserID: accountIDString(acc.ID),
		TargetType: "pending_login", TargetID: stringField(fields, "rid"), Action: "bot_confirm", Outcome: "success",
	})
	response.OK(w, r, nil)
}

func (h *TelegramHandler) userBody(r *http.Request, acc *domain.Account) response.Body {
	var avatar any
	if u := h.profileSvc.AvatarURL(r.Context(), acc); u != "" {
		avatar = u
	}
	return response.Body{
		"id":         acc.ID,
		"username":   acc.Handle,
		"first_name": acc.FirstName,
		"last_name":  acc.LastName,
		"avatar_url": avatar,
	}
}
