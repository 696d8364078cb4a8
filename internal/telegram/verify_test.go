package telegram

import (
	"encoding/json"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var testBotToken = []byte("123456:ABC-DEF1234ghIkl-zyx57W2v1u123ew11")

func signedWidgetFields(t *testing.T, authDate time.Time) Fields {
	t.Helper()
	fields := Fields{
		"id":         "424242",
		"username":   "traveler",
		"first_name": "Ana",
		"last_name":  "Lee",
		"photo_url":  "https://t.me/i/userpic/320/traveler.jpg",
		FieldAuthDate: strconv.FormatInt(authDate.Unix(), 10),
	}
	hash, err := Sign(fields, testBotToken)
	require.NoError(t, err)
	fields[FieldHash] = hash
	return fields
}

func TestVerifyAcceptsValidSignature(t *testing.T) {
	now := time.Unix(1_760_000_000, 0)
	fields := signedWidgetFields(t, now.Add(-time.Minute))

	require.True(t, Verify(fields, testBotToken, now, 15*time.Minute))
}

func TestVerifyRejectsAnySingleByteFlipInHash(t *testing.T) {
	now := time.Unix(1_760_000_000, 0)
	fields := signedWidgetFields(t, now)
	original := fields[FieldHash].(string)

	for i := 0; i < len(original); i++ {
		flipped := []byte(original)
		if flipped[i] == '0' {
			flipped[i] = '1'
		} else {
			flipped[i] = '0'
		}
		fields[FieldHash] = string(flipped)
		require.Falsef(t, Verify(fields, testBotToken, now, time.Hour), "flip at %d accepted", i)
	}

	fields[FieldHash] = original
	require.True(t, Verify(fields, testBotToken, now, time.Hour))
}

func TestVerifyAcceptsUppercaseHash(t *testing.T) {
	now := time.Unix(1_760_000_000, 0)
	fields := signedWidgetFields(t, now)
	hash := fields[FieldHash].(string)
	upper := []byte(hash)
	for i, c := range upper {
		if c >= 'a' && c <= 'f' {
			upper[i] = c - 'a' + 'A'
		}
	}
	fields[FieldHash] = string(upper)

	require.True(t, Verify(fields, testBotToken, now, time.Hour))
}

func TestVerifyRejectsStaleAndFuturePayloads(t *testing.T) {
	now := time.Unix(1_760_000_000, 0)
	maxAge := 15 * time.Minute

	cases := map[string]time.Time{
		"stale":  now.Add(-maxAge - time.Second),
		"future": now.Add(maxAge + time.Second),
	}
	for name, authDate := range cases {
		t.Run(name, func(t *testing.T) {
			fields := signedWidgetFields(t, authDate)
			require.ErrorIs(t, Check(fields, testBotToken, now, maxAge), ErrStale)
			require.False(t, Verify(fields, testBotToken, now, maxAge))
		})
	}

	edge := signedWidgetFields(t, now.Add(-maxAge))
	require.True(t, Verify(edge, testBotToken, now, maxAge))
}

func TestVerifyRejectsMalformedPayloads(t *testing.T) {
	now := time.Unix(1_760_000_000, 0)

	t.Run("missing hash", func(t *testing.T) {
		fields := signedWidgetFields(t, now)
		delete(fields, FieldHash)
		require.ErrorIs(t, Check(fields, testBotToken, now, time.Hour), ErrMissingHash)
	})

	t.Run("non hex hash", func(t *testing.T) {
		fields := signedWidgetFields(t, now)
		fields[FieldHash] = "zz"
		require.ErrorIs(t, Check(fields, testBotToken, now, time.Hour), ErrSignatureMismatch)
	})

	t.Run("missing auth_date", func(t *testing.T) {
		fields := Fields{"id": "1"}
		hash, err := Sign(fields, testBotToken)
		require.NoError(t, err)
		fields[FieldHash] = hash
		require.ErrorIs(t, Check(fields, testBotToken, now, time.Hour), ErrMissingAuthDate)
	})

	t.Run("unparsable auth_date", func(t *testing.T) {
		fields := Fields{"id": "1", FieldAuthDate: "yesterday"}
		hash, err := Sign(fields, testBotToken)
		require.NoError(t, err)
		fields[FieldHash] = hash
		require.ErrorIs(t, Check(fields, testBotToken, now, time.Hour), ErrMissingAuthDate)
	})

	t.Run("wrong secret", func(t *testing.T) {
		fields := signedWidgetFields(t, now)
		require.False(t, Verify(fields, []byte("another-token"), now, time.Hour))
	})

	t.Run("tampered field", func(t *testing.T) {
		fields := signedWidgetFields(t, now)
		fields["username"] = "intruder"
		require.False(t, Verify(fields, testBotToken, now, time.Hour))
	})
}

func TestDataCheckStringSortsKeysAndCompactsNestedObjects(t *testing.T) {
	fields := Fields{
		"query_id":    "AAH",
		FieldAuthDate: json.Number("1700000000"),
		FieldUser: map[string]any{
			"username":   "a<b",
			"id":         json.Number("7"),
			"first_name": "Zoë",
		},
		FieldHash: "ignored",
	}

	got, err := DataCheckString(fields)
	require.NoError(t, err)
	require.Equal(t, "auth_date=1700000000\nquery_id=AAH\nuser={\"first_name\":\"Zoë\",\"id\":7,\"username\":\"a<b\"}", got)
}

func TestVerifyWebAppInitDataRoundTrip(t *testing.T) {
	now := time.Unix(1_760_000_000, 0)
	user := `{"id":99,"first_name":"Ivan","username":"ivan_t"}`
	unsigned := Fields{
		"query_id":    "AAHdF6IQAAAAAN0XohDhrOrc",
		FieldUser:     user,
		FieldAuthDate: strconv.FormatInt(now.Unix(), 10),
	}
	hash, err := Sign(unsigned, testBotToken)
	require.NoError(t, err)

	raw := "query_id=AAHdF6IQAAAAAN0XohDhrOrc&user=" +
		"%7B%22id%22%3A99%2C%22first_name%22%3A%22Ivan%22%2C%22username%22%3A%22ivan_t%22%7D" +
		"&auth_date=" + strconv.FormatInt(now.Unix(), 10) + "&hash=" + hash

	fields, err := ParseInitData(raw)
	require.NoError(t, err)
	require.Equal(t, user, fields[FieldUser])
	require.True(t, Verify(fields, testBotToken, now, 15*time.Minute))
}
