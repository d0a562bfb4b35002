package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// verifySignature checks the Tally webhook signature: base64 of the
// HMAC-SHA256 over the raw body, keyed with the signing secret. With no
// secret configured every request passes.
func (s *Server) verifySignature(body []byte, header string) bool {
	if s.secret == "" {
		return true
	}
	got, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(s.secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), got)
}
