// Package imagetoken issues and verifies HMAC-SHA256 signed access
// tokens for stored card images.
//
// Tokens have the form `{expiry}.{hex-hmac}` where expiry is a Unix
// timestamp in seconds and the HMAC covers "{key}:{expiry}".
package imagetoken

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultExpiry is the token lifetime handed out by the public API
const DefaultExpiry = 24 * time.Hour

// Create returns a time-limited signed token for an image key
func Create(key, secret string, expiry time.Duration) string {
	exp := time.Now().Add(expiry).Unix()
	sig := sign(fmt.Sprintf("%s:%d", key, exp), secret)
	return fmt.Sprintf("%d.%s", exp, sig)
}

// Verify checks a signed token against an image key. Returns false for
// expired, malformed, or mis-signed tokens.
func Verify(key, token, secret string) bool {
	dot := strings.IndexByte(token, '.')
	if dot < 0 {
		return false
	}

	exp, err := strconv.ParseInt(token[:dot], 10, 64)
	if err != nil || exp <= 0 {
		return false
	}
	if time.Now().Unix() > exp {
		return false
	}

	expected := sign(fmt.Sprintf("%s:%d", key, exp), secret)
	return subtle.ConstantTimeCompare([]byte(token[dot+1:]), []byte(expected)) == 1
}

func sign(message, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}
