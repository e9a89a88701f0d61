package foreignprincipal

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const separator = "%"

var (
	errMalformed    = errors.New("malformed token")
	errBadSignature = errors.New("bad signature")
	errExpired      = errors.New("token expired")
)

var encoding = base64.RawURLEncoding

func sign(secret []byte, message string) string {
	mac := hmac.New(sha1.New, secret)
	mac.Write([]byte(message))
	return encoding.EncodeToString(mac.Sum(nil))
}

// encodeToken signs payload so that it can be handed to the browser.
// The token is "hmac%expiresMillis%base64(payload)".
func encodeToken(secret []byte, payload string, expires time.Time) string {
	message := strconv.FormatInt(expires.UnixMilli(), 10) + separator + encoding.EncodeToString([]byte(payload))
	return sign(secret, message) + separator + message
}

// decodeToken verifies a token from encodeToken and returns its payload.
func decodeToken(secret []byte, token string, now time.Time) (string, error) {
	mac, message, ok := strings.Cut(token, separator)
	if !ok {
		return "", errMalformed
	}
	if !hmac.Equal([]byte(mac), []byte(sign(secret, message))) {
		return "", errBadSignature
	}
	expiresStr, encoded, ok := strings.Cut(message, separator)
	if !ok {
		return "", errMalformed
	}
	expires, err := strconv.ParseInt(expiresStr, 10, 64)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errMalformed, err)
	}
	if now.UnixMilli() > expires {
		return "", errExpired
	}
	payload, err := encoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errMalformed, err)
	}
	return string(payload), nil
}
