package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"strings"

	"golang.org/x/crypto/argon2"
)

var ErrInvalidPasswordHash = errors.New("invalid password hash")

// ArgonParams are the argon2id cost parameters encoded into every hash.
type ArgonParams struct {
	Time    uint32
	Memory  uint32
	Threads uint8
	KeyLen  uint32
	SaltLen int
}

var DefaultArgonParams = ArgonParams{Time: 3, Memory: 64 * 1024, Threads: 2, KeyLen: 32, SaltLen: 16}

// PasswordHasher hashes and verifies passwords in the PHC argon2id format.
type PasswordHasher struct {
	params ArgonParams
}

func NewPasswordHasher(params ArgonParams) *PasswordHasher {
	return &PasswordHasher{params: params}
}

func NewDefaultPasswordHasher() *PasswordHasher {
	return NewPasswordHasher(DefaultArgonParams)
}

func (h *PasswordHasher) Hash(password string) (string, error) {
	salt := make([]byte, h.params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	hash := argon2.IDKey([]byte(password), salt, h.params.Time, h.params.Memory, h.params.Threads, h.params.KeyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, h.params.Memory, h.params.Time, h.params.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash)), nil
}

// Verify checks password against an encoded hash using the parameters stored
// in the hash, so older hashes keep verifying after the defaults change.
func (h *PasswordHasher) Verify(encoded, password string) (bool, error) {
	p, salt, expected, err := decodeHash(encoded)
	if err != nil {
		return false, err
	}
	if uint64(len(expected)) > uint64(math.MaxUint32) {
		return false, ErrInvalidPasswordHash
	}
	// #nosec G115 -- bounded by explicit MaxUint32 check above.
	actual := argon2.IDKey([]byte(password), salt, p.Time, p.Memory, p.Threads, uint32(len(expected)))
	return subtle.ConstantTimeCompare(actual, expected) == 1, nil
}

func HashPassword(password string) (string, error) {
	return NewDefaultPasswordHasher().Hash(password)
}

func VerifyPassword(encoded, password string) (bool, error) {
	return NewDefaultPasswordHasher().Verify(encoded, password)
}

// IsPasswordHash reports whether v looks like an encoded argon2id hash.
func IsPasswordHash(v string) bool {
	_, _, _, err := decodeHash(v)
	return err == nil
}

func decodeHash(encoded string) (ArgonParams, []byte, []byte, error) {
	var p ArgonParams
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" || parts[2] != fmt.Sprintf("v=%d", argon2.Version) {
		return p, nil, nil, ErrInvalidPasswordHash
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Time, &p.Threads); err != nil {
		return p, nil, nil, fmt.Errorf("%w: params", ErrInvalidPasswordHash)
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return p, nil, nil, fmt.Errorf("%w: salt", ErrInvalidPasswordHash)
	}
	hash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(hash) == 0 {
		return p, nil, nil, fmt.Errorf("%w: payload", ErrInvalidPasswordHash)
	}
	return p, salt, hash, nil
}
