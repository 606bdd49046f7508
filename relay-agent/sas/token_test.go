package sas

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testKey = "c2VjcmV0LWRldmljZS1rZXk=" // "secret-device-key"

func newTestToken(now time.Time) *Token {
	t := New("broker.example.com/devices/relay-1", testKey)
	t.now = func() time.Time { return now }
	return t
}

func TestGenerateFormat(t *testing.T) {
	now := time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)
	token := newTestToken(now)

	require.NoError(t, token.Generate(time.Hour))
	password, err := token.Password()
	require.NoError(t, err)

	expiry := strconv.FormatInt(now.Add(time.Hour).Unix(), 10)
	resource := url.QueryEscape("broker.example.com/devices/relay-1")

	key, err := base64.StdEncoding.DecodeString(testKey)
	require.NoError(t, err)
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(resource + "\n" + expiry))
	signature := url.QueryEscape(base64.StdEncoding.EncodeToString(mac.Sum(nil)))

	require.Equal(t, "SharedAccessSignature sr="+resource+"&sig="+signature+"&se="+expiry, password)
	require.Equal(t, now.Add(time.Hour), token.Expiry())
}

func TestIsExpiredInclusive(t *testing.T) {
	now := time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)
	token := newTestToken(now)
	require.NoError(t, token.Generate(time.Hour))

	require.False(t, token.IsExpired())

	token.now = func() time.Time { return now.Add(time.Hour - time.Second) }
	require.False(t, token.IsExpired())

	// at the expiry instant exactly the token is no longer valid
	token.now = func() time.Time { return now.Add(time.Hour) }
	require.True(t, token.IsExpired())
}

func TestGenerateInvalidKeyPreservesPreviousToken(t *testing.T) {
	now := time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)
	token := newTestToken(now)
	require.NoError(t, token.Generate(time.Hour))
	previous, err := token.Password()
	require.NoError(t, err)

	token.key = "%%% not base64 %%%"
	err = token.Generate(time.Hour)
	require.ErrorIs(t, err, ErrInvalidKey)

	current, err := token.Password()
	require.NoError(t, err)
	require.Equal(t, previous, current)
	require.Equal(t, now.Add(time.Hour), token.Expiry())
}

func TestGenerateNoResource(t *testing.T) {
	token := New("", testKey)
	require.ErrorIs(t, token.Generate(time.Hour), ErrNoResource)
	_, err := token.Password()
	require.ErrorIs(t, err, ErrNotGenerated)
}

func TestPasswordBeforeGenerate(t *testing.T) {
	token := New("broker.example.com/devices/relay-1", testKey)
	_, err := token.Password()
	require.ErrorIs(t, err, ErrNotGenerated)
	require.True(t, token.IsExpired())
}
