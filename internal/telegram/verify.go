// Package telegram verifies Telegram Login Widget and WebApp payloads and
// extracts the identity they carry.
package telegram

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	FieldHash     = "hash"
	FieldAuthDate = "auth_date"
	FieldUser     = "user"
)

var (
	ErrMissingHash       = errors.New("telegram: hash is missing")
	ErrSignatureMismatch = errors.New("telegram: signature mismatch")
	ErrMissingAuthDate   = errors.New("telegram: auth_date is missing or malformed")
	ErrStale             = errors.New("telegram: auth_date outside freshness window")
	ErrUnsupportedValue  = errors.New("telegram: unsupported field value")
)

// Fields is an unverified claim. Values are strings, json.Number values, or
// nested objects (map[string]any).
type Fields map[string]any

// Verify reports whether fields carry a valid signature made with secret and
// an auth_date within maxAge of now.
func Verify(fields Fields, secret []byte, now time.Time, maxAge time.Duration) bool {
	return Check(fields, secret, now, maxAge) == nil
}

// Check is Verify with the rejection reason. Callers must not expose the
// reason to clients.
func Check(fields Fields, secret []byte, now time.Time, maxAge time.Duration) error {
	claimed, err := valueString(fields[FieldHash])
	if err != nil || strings.TrimSpace(claimed) == "" {
		return ErrMissingHash
	}
	claimedMAC, err := hex.DecodeString(strings.TrimSpace(claimed))
	if err != nil {
		return ErrSignatureMismatch
	}

	checkString, err := DataCheckString(fields)
	if err != nil {
		return err
	}
	if !hmac.Equal(claimedMAC, computeMAC(secret, checkString)) {
		return ErrSignatureMismatch
	}

	rawDate, err := valueString(fields[FieldAuthDate])
	if err != nil {
		return ErrMissingAuthDate
	}
	authDate, err := strconv.ParseInt(strings.TrimSpace(rawDate), 10, 64)
	if err != nil {
		return ErrMissingAuthDate
	}
	age := now.Sub(time.Unix(authDate, 0))
	if age < 0 {
		age = -age
	}
	if age > maxAge {
		return ErrStale
	}
	return nil
}

// Sign returns the hex signature for fields, ignoring any hash already present.
func Sign(fields Fields, secret []byte) (string, error) {
	checkString, err := DataCheckString(fields)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(computeMAC(secret, checkString)), nil
}

// DataCheckString joins every field except hash as key=value lines sorted by
// key. Nested objects are encoded as compact JSON with sorted keys.
func DataCheckString(fields Fields) (string, error) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if k == FieldHash {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		v, err := valueString(fields[k])
		if err != nil {
			return "", fmt.Errorf("%w: %s", err, k)
		}
		lines = append(lines, k+"="+v)
	}
	return strings.Join(lines, "\n"), nil
}

func computeMAC(secret []byte, checkString string) []byte {
	key := sha256.Sum256(secret)
	mac := hmac.New(sha256.New, key[:])
	mac.Write([]byte(checkString))
	return mac.Sum(nil)
}

func valueString(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", ErrUnsupportedValue
	case string:
		return t, nil
	case json.Number:
		return t.String(), nil
	case bool:
		return strconv.FormatBool(t), nil
	case int:
		return strconv.Itoa(t), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case map[string]any, []any:
		return compactJSON(t)
	default:
		return "", ErrUnsupportedValue
	}
}

func compactJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("encode nested field: %w", err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}
