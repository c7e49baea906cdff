// Package v1 hosts the HTTP surface: the WhatsApp webhook endpoints,
// the login-link landing page, and the browser-facing JSON API.
package v1

import (
	"github.com/labstack/echo/v4"

	"github.com/chatrelay/chatrelay/internal/observability"
	"github.com/chatrelay/chatrelay/internal/profile"
	"github.com/chatrelay/chatrelay/server/auth"
	"github.com/chatrelay/chatrelay/server/handshake"
	"github.com/chatrelay/chatrelay/server/webhook"
	"github.com/chatrelay/chatrelay/store"
)

// WebhookPath is where the platform delivers notifications.
const WebhookPath = "/webhook/whatsapp"

type APIV1Service struct {
	Profile       *profile.Profile
	Store         *store.Store
	Authenticator *auth.Authenticator
	Handshake     *handshake.Service
	Verifier      *webhook.Verifier
	Processor     *webhook.Processor
	Metrics       *observability.Metrics
}

func NewAPIV1Service(
	p *profile.Profile,
	st *store.Store,
	authenticator *auth.Authenticator,
	hs *handshake.Service,
	verifier *webhook.Verifier,
	processor *webhook.Processor,
	metrics *observability.Metrics,
) *APIV1Service {
	return &APIV1Service{
		Profile:       p,
		Store:         st,
		Authenticator: authenticator,
		Handshake:     hs,
		Verifier:      verifier,
		Processor:     processor,
		Metrics:       metrics,
	}
}

// RegisterRoutes registers all routes with the given echo instance.
func (s *APIV1Service) RegisterRoutes(e *echo.Echo) {
	e.GET(WebhookPath, s.handleWebhookChallenge)
	e.POST(WebhookPath, s.handleWebhook)

	e.GET("/bot-login", s.handleBotLogin)

	apiGroup := e.Group("/api/v1")
	apiGroup.POST("/auth/signup", s.handleSignUp)
	apiGroup.POST("/auth/signin", s.handleSignIn)
	apiGroup.POST("/auth/signout", s.handleSignOut)

	authed := apiGroup.Group("", s.cookieAuth)
	authed.GET("/auth/me", s.handleMe)
	authed.GET("/messages", s.handleListMessages)
}
