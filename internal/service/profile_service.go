package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ayolclub/travel-auth/internal/domain"
	"github.com/ayolclub/travel-auth/internal/observability"
	"github.com/ayolclub/travel-auth/internal/repository"
)

const MaxAvatarSize = 5 * 1024 * 1024

var allowedAvatarTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
	"image/webp": {},
}

// ProfileService owns the avatar of an account.
type ProfileService struct {
	accounts repository.AccountRepository
	storage  AvatarStorage
	logger   *slog.Logger
}

func NewProfileService(accounts repository.AccountRepository, storage AvatarStorage, logger *slog.Logger) *ProfileService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProfileService{accounts: accounts, storage: storage, logger: logger}
}

// UploadAvatar validates size and sniffed content type, stores the object,
// points the account at it and returns a URL for it. The previous object is
// removed best-effort.
func (s *ProfileService) UploadAvatar(ctx context.Context, accountID uint, file io.Reader, size int64) (string, error) {
	if file == nil {
		return "", ErrMissingFile
	}
	if size > MaxAvatarSize {
		observability.RecordAvatarUpload(ctx, "rejected_size")
		return "", ErrFileTooLarge
	}

	head := make([]byte, 512)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", internalError("read avatar", err)
	}
	head = head[:n]
	if n == 0 {
		return "", ErrMissingFile
	}
	contentType := strings.ToLower(http.DetectContentType(head))
	if _, ok := allowedAvatarTypes[contentType]; !ok {
		observability.RecordAvatarUpload(ctx, "rejected_type")
		return "", ErrUnsupportedType
	}

	acc, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return "", ErrUnauthenticated
		}
		return "", internalError("load account", err)
	}

	key, err := s.storage.PutAvatar(ctx, accountID, io.MultiReader(bytes.NewReader(head), file), size, contentType)
	if err != nil {
		observability.RecordAvatarUpload(ctx, "error")
		return "", s.storageError("store avatar", err)
	}
	if err := s.accounts.UpdateAvatarKey(ctx, accountID, key); err != nil {
		_ = s.storage.DeleteAvatar(ctx, accountID, key)
		return "", internalError("save avatar key", err)
	}
	if acc.AvatarKey != "" && acc.AvatarKey != key {
		if err := s.storage.DeleteAvatar(ctx, accountID, acc.AvatarKey); err != nil {
			s.logger.WarnContext(ctx, "old avatar cleanup failed", "account_id", accountID, "error", err)
		}
	}
	observability.RecordAvatarUpload(ctx, "success")

	avatarURL, err := s.storage.AvatarURL(ctx, key)
	if err != nil {
		return "", s.storageError("avatar url", err)
	}
	return avatarURL, nil
}

// AvatarURL returns "" for accounts without an avatar or when storage fails.
func (s *ProfileService) AvatarURL(ctx context.Context, acc *domain.Account) string {
	if acc == nil || acc.AvatarKey == "" {
		return ""
	}
	u, err := s.storage.AvatarURL(ctx, acc.AvatarKey)
	if err != nil {
		s.logger.WarnContext(ctx, "avatar url unavailable", "account_id", acc.ID, "error", err)
		return ""
	}
	return u
}

func (s *ProfileService) storageError(msg string, err error) error {
	if errors.Is(err, ErrStorageDisabled) {
		return &Error{Kind: KindUnavailable, Message: "avatar storage is not configured", Err: err}
	}
	return internalError(msg, err)
}
