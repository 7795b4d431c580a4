package util

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

const tokenBytes = 32

// GenerateToken returns a random hex token, used to mint webhook verify
// tokens for the Meta app configuration.
func GenerateToken() (string, error) {
	bytes := make([]byte, tokenBytes)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// HmacSHA256 computes the hex digest Meta expects in X-Hub-Signature-256
// (without the "sha256=" prefix).
func HmacSHA256(secret, data string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}

func ConstantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// MaskCredential hides all but a short prefix of an insurance credential so
// logs and event previews never carry the full number.
func MaskCredential(token string) string {
	if len(token) <= 4 {
		return "****"
	}
	return token[:4] + "****"
}
