package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/chatrelay/chatrelay/internal/profile"
)

const (
	headerSignature256 = "X-Hub-Signature-256"
	headerSignature    = "X-Hub-Signature"
	signaturePrefix    = "sha256="
)

// Verifier checks the HMAC signature Meta attaches to each delivery.
type Verifier struct {
	profile *profile.Profile
}

// NewVerifier creates a signature verifier.
func NewVerifier(p *profile.Profile) *Verifier {
	return &Verifier{profile: p}
}

// Verify reports whether the request body matches its signature
// header. Enforcement is skipped in dev mode and when signature
// validation is disabled; a missing app secret with enforcement on
// always fails.
func (v *Verifier) Verify(header http.Header, body []byte) bool {
	if v.profile.IsDev() || !v.profile.ValidateSignature {
		return true
	}
	if v.profile.AppSecret == "" {
		return false
	}

	signature := header.Get(headerSignature256)
	if signature == "" {
		signature = header.Get(headerSignature)
	}
	if signature == "" {
		return false
	}
	signature = strings.TrimPrefix(signature, signaturePrefix)

	mac := hmac.New(sha256.New, []byte(v.profile.AppSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
