package v1

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
)

// handleWebhookChallenge answers the platform's subscription
// handshake.
func (s *APIV1Service) handleWebhookChallenge(c echo.Context) error {
	challenge, ok := s.Verifier.VerifyChallenge(c.QueryParams())
	if !ok {
		return echo.NewHTTPError(http.StatusForbidden, "verification failed")
	}
	return c.String(http.StatusOK, challenge)
}

// handleWebhook ingests a delivery. The platform retries anything
// that is not a 200, so the endpoint acknowledges everything it can
// read; bad signatures and processing failures are logged and
// counted, never bounced back.
func (s *APIV1Service) handleWebhook(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read body")
	}

	if !s.Verifier.Verify(c.Request().Header, body) {
		s.Metrics.SignatureFailures.Inc()
		slog.Warn("rejecting unsigned webhook payload")
		return c.String(http.StatusOK, "OK")
	}

	if err := s.Processor.Submit(c.Request().Context(), body); err != nil {
		slog.Error("webhook processing failed", "error", err)
	}
	return c.String(http.StatusOK, "OK")
}
