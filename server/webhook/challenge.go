package webhook

import "net/url"

// VerifyChallenge implements the webhook subscription handshake: Meta
// calls GET with hub.mode=subscribe and the configured verify token,
// and expects the raw challenge echoed back. Returns the challenge
// and whether the request is valid.
func (v *Verifier) VerifyChallenge(query url.Values) (string, bool) {
	mode := query.Get("hub.mode")
	token := query.Get("hub.verify_token")
	challenge := query.Get("hub.challenge")

	if mode != "subscribe" || challenge == "" {
		return "", false
	}
	if v.profile.WebhookVerifyToken == "" || token != v.profile.WebhookVerifyToken {
		return "", false
	}
	return challenge, true
}
