package telegram

import (
	"encoding/json"
	"errors"
	"net/url"
	"strings"
)

var ErrInvalidPayload = errors.New("telegram: invalid payload")

// Identity is the canonical provider identity extracted from a claim.
type Identity struct {
	ProviderUserID string
	Username       string
	FirstName      string
	LastName       string
	PhotoURL       string
}

// Normalize extracts an Identity from either a nested user object (WebApp)
// or flat fields (Login Widget, bot callback). The nested shape wins.
func Normalize(fields Fields) (Identity, error) {
	if raw, ok := fields[FieldUser]; ok {
		if user, err := userObject(raw); err == nil {
			if id := scalar(user["id"]); id != "" {
				return identityFrom(user, id), nil
			}
		}
	}
	if id := scalar(fields["id"]); id != "" {
		return identityFrom(fields, id), nil
	}
	return Identity{}, ErrInvalidPayload
}

// ParseInitData decodes a WebApp initData query string. The user field is
// kept as the raw JSON text because that is what Telegram signs.
func ParseInitData(raw string) (Fields, error) {
	raw = strings.TrimPrefix(strings.TrimSpace(raw), "?")
	if raw == "" {
		return nil, ErrInvalidPayload
	}
	values, err := url.ParseQuery(raw)
	if err != nil {
		return nil, ErrInvalidPayload
	}
	fields := make(Fields, len(values))
	for k, vs := range values {
		if len(vs) != 1 {
			return nil, ErrInvalidPayload
		}
		fields[k] = vs[0]
	}
	return fields, nil
}

// FieldsFromValues builds a claim from flat query or form values, keeping the
// first value of each key.
func FieldsFromValues(values url.Values) Fields {
	fields := make(Fields, len(values))
	for k, vs := range values {
		if len(vs) == 0 {
			continue
		}
		fields[k] = vs[0]
	}
	return fields
}

func userObject(raw any) (map[string]any, error) {
	switch t := raw.(type) {
	case map[string]any:
		return t, nil
	case string:
		dec := json.NewDecoder(strings.NewReader(t))
		dec.UseNumber()
		var out map[string]any
		if err := dec.Decode(&out); err != nil {
			return nil, err
		}
		return out, nil
	default:
		return nil, ErrInvalidPayload
	}
}

func identityFrom(src map[string]any, id string) Identity {
	return Identity{
		ProviderUserID: id,
		Username:       scalar(src["username"]),
		FirstName:      scalar(src["first_name"]),
		LastName:       scalar(src["last_name"]),
		PhotoURL:       scalar(src["photo_url"]),
	}
}

func scalar(v any) string {
	switch v.(type) {
	case string, json.Number, int, int64, float64:
		s, err := valueString(v)
		if err != nil {
			return ""
		}
		return strings.TrimSpace(s)
	default:
		return ""
	}
}
