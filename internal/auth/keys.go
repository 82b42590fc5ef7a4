package auth

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Key labels for the secrets derived from SESSION_SECRET.
const (
	tokenKeyLabel  = "campusmart bearer token v1"
	cookieKeyLabel = "campusmart session cookie v1"
)

// DeriveKey expands secret into a 32-byte key bound to label.
// Keys for different labels are independent of each other.
func DeriveKey(secret []byte, label string) []byte {
	key := make([]byte, 32)
	// 32 bytes is well under the HKDF output limit.
	_, _ = io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(label)), key)
	return key
}
