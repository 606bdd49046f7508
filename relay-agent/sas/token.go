// Package sas maintains the shared-access credential a relay device
// authenticates its broker connection with. Tokens are signed for a fixed
// lifetime and never renewed in place; the owner regenerates and reconnects.
package sas

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

var (
	// ErrNoResource is returned by Generate when the token has no target
	// resource to sign for.
	ErrNoResource = errors.New("no resource to sign for")
	// ErrInvalidKey is returned by Generate when the device key is not
	// valid base64.
	ErrInvalidKey = errors.New("device key is not valid base64")
	// ErrNotGenerated is returned by Password before the first successful
	// Generate.
	ErrNotGenerated = errors.New("no token generated")
)

// Token holds the device key and the most recently generated credential.
// A failed Generate leaves the previous credential in place.
type Token struct {
	resource string
	key      string

	password string
	expiry   time.Time

	now func() time.Time
}

// New creates a credential manager for the resource (typically
// "{host}/devices/{deviceID}") signed with the base64-encoded device key.
func New(resource, base64Key string) *Token {
	return &Token{
		resource: resource,
		key:      base64Key,
		now:      time.Now,
	}
}

// SetClock overrides the time source. Intended for tests.
func (t *Token) SetClock(now func() time.Time) {
	t.now = now
}

// Generate signs a fresh credential valid for the given lifetime. Each
// failure mode returns its own error and keeps the previous credential
// untouched.
func (t *Token) Generate(lifetime time.Duration) error {
	expiry := t.now().Add(lifetime)

	toSign, err := stringToSign(t.resource, expiry)
	if err != nil {
		return err
	}

	key, err := base64.StdEncoding.DecodeString(t.key)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(toSign))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	t.password = "SharedAccessSignature sr=" + url.QueryEscape(t.resource) +
		"&sig=" + url.QueryEscape(signature) +
		"&se=" + strconv.FormatInt(expiry.Unix(), 10)
	t.expiry = expiry
	return nil
}

func stringToSign(resource string, expiry time.Time) (string, error) {
	if resource == "" {
		return "", ErrNoResource
	}
	return url.QueryEscape(resource) + "\n" + strconv.FormatInt(expiry.Unix(), 10), nil
}

// IsExpired reports whether the credential has reached its expiry. The
// comparison is inclusive: at the expiry instant the token no longer counts
// as valid.
func (t *Token) IsExpired() bool {
	return !t.now().Before(t.expiry)
}

// Expiry returns the expiry of the current credential, zero before the
// first successful Generate.
func (t *Token) Expiry() time.Time {
	return t.expiry
}

// Password returns the credential in the transport's password format.
func (t *Token) Password() (string, error) {
	if t.password == "" {
		return "", ErrNotGenerated
	}
	return t.password, nil
}
