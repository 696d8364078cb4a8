package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/ayolclub/travel-auth/internal/http/response"
	"github.com/ayolclub/travel-auth/internal/observability"
	"github.com/ayolclub/travel-auth/internal/service"
)

// MaxAvatarRequestBytes bounds the whole multipart body. It leaves headroom
// above service.MaxAvatarSize so oversized files get a precise error.
const MaxAvatarRequestBytes = 8 << 20

type ProfileHandler struct {
	profileSvc service.ProfileServiceInterface
}

func NewProfileHandler(profileSvc service.ProfileServiceInterface) *ProfileHandler {
	return &ProfileHandler{profileSvc: profileSvc}
}

func (h *ProfileHandler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "success"
	defer func() {
		observability.RecordAuthRequestDuration(r.Context(), "upload_avatar", status, time.Since(start))
	}()

	accountID, ok := accountIDFromRequest(r)
	if !ok {
		status = "failure"
		writeServiceError(w, r, service.ErrUnauthenticated)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxAvatarRequestBytes)
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		status = "failure"
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeServiceError(w, r, service.ErrFileTooLarge)
			return
		}
		response.Error(w, r, http.StatusBadRequest, errInvalidPayload.Error(), nil)
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("avatar")
	if err != nil {
		status = "failure"
		writeServiceError(w, r, service.ErrMissingFile)
		return
	}
	defer file.Close()

	avatarURL, err := h.profileSvc.UploadAvatar(r.Context(), accountID, file, header.Size)
	if err != nil {
		status = "failure"
		observability.Audit(r, observability.AuditInput{
			EventName: "account.avatar.upload", ActorUserID: accountIDString(accountID),
			TargetType: "account", TargetID: accountIDString(accountID), Action: "upload_avatar",
			Outcome: "failure", Reason: failureReason(err),
		})
		writeServiceError(w, r, err)
		return
	}
	observability.Audit(r, observability.AuditInput{
		EventName: "account.avatar.upload", ActorUserID: accountIDString(accountID),
		TargetType: "account", TargetID: accountIDString(accountID), Action: "upload_avatar", Outcome: "success",
	})
	response.OK(w, r, response.Body{"message": "Avatar saved.", "avatar_url": avatarURL})
}
