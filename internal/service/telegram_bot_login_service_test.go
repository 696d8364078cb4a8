package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ayolclub/travel-auth/internal/repository"
	"github.com/ayolclub/travel-auth/internal/telegram"
)

func newBotLoginForTest(t *testing.T, opts BotLoginOptions) *TelegramBotLoginService {
	t.Helper()
	db := newServiceDBForTest(t)
	accounts := repository.NewAccountRepository(db)
	sessions := NewSessionService(repository.NewSessionRepository(db), accounts, "pepper", time.Hour)
	binder := NewAccountBinder(accounts, discardLogger())
	tg := NewTelegramAuthService(TelegramAuthOptions{BotToken: testBotToken}, binder, sessions, discardLogger())
	return NewTelegramBotLoginService(opts, NewMemoryPendingLoginStore(time.Minute), binder, accounts, tg, discardLogger())
}

var botOpts = BotLoginOptions{BotName: "@travel_bot", BotSecret: "bot-shared-secret-123", TTL: 600 * time.Second}

func TestBotLoginFullFlowIssuesSessionOnce(t *testing.T) {
	ctx := context.Background()
	svc := newBotLoginForTest(t, botOpts)

	req, err := svc.CreateRequest(ctx)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	if !strings.HasPrefix(req.DeepLink, "https://t.me/travel_bot?start=login_") || !strings.HasSuffix(req.DeepLink, req.RID) {
		t.Fatalf("unexpected deeplink %q", req.DeepLink)
	}

	st, err := svc.Status(ctx, req.RID, SessionMeta{})
	if err != nil || st.Status != PendingStatusPending || st.Result != nil {
		t.Fatalf("expected pending, got %+v %v", st, err)
	}

	acc, err := svc.BotConfirm(ctx, botOpts.BotSecret, req.RID, telegram.Identity{ProviderUserID: "900", Username: "@bek", FirstName: "Bek"})
	if err != nil {
		t.Fatalf("bot confirm: %v", err)
	}
	if acc.Handle != "bek" {
		t.Fatalf("expected @ stripped from handle, got %q", acc.Handle)
	}

	st, err = svc.Status(ctx, req.RID, SessionMeta{})
	if err != nil {
		t.Fatalf("status after confirm: %v", err)
	}
	if st.Status != PendingStatusConfirmed || st.Result == nil || st.Result.SessionToken == "" || st.Result.Account.ID != acc.ID {
		t.Fatalf("expected session for confirmed login, got %+v", st)
	}
	if _, err := svc.Status(ctx, req.RID, SessionMeta{}); !errors.Is(err, ErrPendingNotFound) {
		t.Fatalf("expected consumed request to be gone, got %v", err)
	}
}

func TestBotConfirmRejectsBadSecret(t *testing.T) {
	ctx := context.Background()
	svc := newBotLoginForTest(t, botOpts)
	req, err := svc.CreateRequest(ctx)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	_, err = svc.BotConfirm(ctx, "wrong", req.RID, telegram.Identity{ProviderUserID: "1"})
	if !errors.Is(err, ErrBotSecret) || KindOf(err) != KindForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestBotLoginUnknownAndExpiredRequests(t *testing.T) {
	ctx := context.Background()
	svc := newBotLoginForTest(t, botOpts)

	if _, err := svc.Status(ctx, "nope", SessionMeta{}); !errors.Is(err, ErrPendingNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	req, err := svc.CreateRequest(ctx)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	created := time.Now().UTC()
	svc.now = func() time.Time { return created.Add(botOpts.TTL + time.Second) }

	if _, err := svc.Status(ctx, req.RID, SessionMeta{}); !errors.Is(err, ErrPendingExpired) || KindOf(err) != KindExpired {
		t.Fatalf("expected expired, got %v", err)
	}
	if _, err := svc.BotConfirm(ctx, botOpts.BotSecret, req.RID, telegram.Identity{ProviderUserID: "1"}); !errors.Is(err, ErrPendingExpired) {
		t.Fatalf("expected expired on confirm, got %v", err)
	}
}

func TestBotLoginDisabledWithoutBotName(t *testing.T) {
	svc := newBotLoginForTest(t, BotLoginOptions{})
	if _, err := svc.CreateRequest(context.Background()); !errors.Is(err, ErrBotLoginDisabled) || KindOf(err) != KindUnavailable {
		t.Fatalf("expected unavailable, got %v", err)
	}
}

func TestBotConfirmRequiresProviderID(t *testing.T) {
	ctx := context.Background()
	svc := newBotLoginForTest(t, botOpts)
	req, _ := svc.CreateRequest(ctx)
	if _, err := svc.BotConfirm(ctx, botOpts.BotSecret, req.RID, telegram.Identity{Username: "x"}); KindOf(err) != KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}
