package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const avatarPathPrefix = "avatars"

var (
	ErrBucketCreationFailed = errors.New("failed to create storage bucket")
	ErrUploadFailed         = errors.New("failed to upload file")
	ErrDeleteFailed         = errors.New("failed to delete file")
	ErrURLGenerationFailed  = errors.New("failed to generate presigned URL")
	ErrForeignObjectKey     = errors.New("object key does not belong to account")
	ErrStorageDisabled      = errors.New("avatar storage is disabled")
)

// AvatarStorage stores avatar objects. Content checks happen before any
// call reaches it.
type AvatarStorage interface {
	PutAvatar(ctx context.Context, accountID uint, body io.Reader, size int64, contentType string) (string, error)
	DeleteAvatar(ctx context.Context, accountID uint, objectKey string) error
	AvatarURL(ctx context.Context, objectKey string) (string, error)
	Ping(ctx context.Context) error
}

type MinIOAvatarStorage struct {
	client     *minio.Client
	bucketName string
	urlTTL     time.Duration
	initOnce   sync.Once
	initErr    error
}

func NewMinIOAvatarStorage(endpoint, accessKey, secretKey, bucketName string, useSSL bool, urlTTL time.Duration) (*MinIOAvatarStorage, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	if urlTTL <= 0 {
		urlTTL = 15 * time.Minute
	}
	return &MinIOAvatarStorage{client: client, bucketName: bucketName, urlTTL: urlTTL}, nil
}

// lazyInit creates the bucket on first use so startup never blocks on MinIO.
func (s *MinIOAvatarStorage) lazyInit(ctx context.Context) error {
	s.initOnce.Do(func() {
		exists, err := s.client.BucketExists(ctx, s.bucketName)
		if err != nil {
			s.initErr = fmt.Errorf("%w: check bucket existence: %v", ErrBucketCreationFailed, err)
			return
		}
		if !exists {
			if err := s.client.MakeBucket(ctx, s.bucketName, minio.MakeBucketOptions{}); err != nil {
				s.initErr = fmt.Errorf("%w: create bucket: %v", ErrBucketCreationFailed, err)
			}
		}
	})
	return s.initErr
}

func (s *MinIOAvatarStorage) PutAvatar(ctx context.Context, accountID uint, body io.Reader, size int64, contentType string) (string, error) {
	if err := s.lazyInit(ctx); err != nil {
		return "", err
	}
	objectKey := avatarObjectKey(accountID, contentType)
	_, err := s.client.PutObject(ctx, s.bucketName, objectKey, body, size, minio.PutObjectOptions{
		ContentType: contentType,
		UserMetadata: map[string]string{
			"Account-ID":  fmt.Sprintf("%d", accountID),
			"Uploaded-At": time.Now().UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	return objectKey, nil
}

// DeleteAvatar only removes keys under the account's own prefix.
func (s *MinIOAvatarStorage) DeleteAvatar(ctx context.Context, accountID uint, objectKey string) error {
	if strings.TrimSpace(objectKey) == "" {
		return nil
	}
	if err := checkAvatarOwnership(accountID, objectKey); err != nil {
		return err
	}
	if err := s.lazyInit(ctx); err != nil {
		return err
	}
	if err := s.client.RemoveObject(ctx, s.bucketName, objectKey, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("%w: %v", ErrDeleteFailed, err)
	}
	return nil
}

func (s *MinIOAvatarStorage) AvatarURL(ctx context.Context, objectKey string) (string, error) {
	if strings.TrimSpace(objectKey) == "" {
		return "", fmt.Errorf("%w: empty object key", ErrURLGenerationFailed)
	}
	if err := s.lazyInit(ctx); err != nil {
		return "", err
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucketName, objectKey, s.urlTTL, url.Values{})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrURLGenerationFailed, err)
	}
	return u.String(), nil
}

func (s *MinIOAvatarStorage) Ping(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucketName)
	return err
}

// DisabledAvatarStorage backs profiles when MinIO is not configured.
type DisabledAvatarStorage struct{}

func (DisabledAvatarStorage) PutAvatar(context.Context, uint, io.Reader, int64, string) (string, error) {
	return "", ErrStorageDisabled
}

func (DisabledAvatarStorage) DeleteAvatar(context.Context, uint, string) error { return nil }

func (DisabledAvatarStorage) AvatarURL(context.Context, string) (string, error) {
	return "", ErrStorageDisabled
}

func (DisabledAvatarStorage) Ping(context.Context) error { return nil }

func avatarObjectKey(accountID uint, contentType string) string {
	return fmt.Sprintf("%s/account-%d/%s%s", avatarPathPrefix, accountID, uuid.NewString(), contentTypeToExtension(contentType))
}

func checkAvatarOwnership(accountID uint, objectKey string) error {
	if strings.Contains(objectKey, "..") {
		return ErrForeignObjectKey
	}
	if !strings.HasPrefix(objectKey, fmt.Sprintf("%s/account-%d/", avatarPathPrefix, accountID)) {
		return ErrForeignObjectKey
	}
	return nil
}

func contentTypeToExtension(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	default:
		return ""
	}
}
