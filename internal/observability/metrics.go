package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the chatrelay prometheus collectors.
type Metrics struct {
	WebhookAccepted   prometheus.Counter
	WebhookDropped    prometheus.Counter
	WebhookFailed     prometheus.Counter
	SessionsResumed   prometheus.Counter
	SignatureFailures prometheus.Counter
	LoginLinksIssued  prometheus.Counter
	TokensRedeemed    *prometheus.CounterVec
}

// NewMetrics registers the collectors on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		WebhookAccepted: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatrelay_webhook_accepted_total",
			Help: "Webhook payloads accepted for processing.",
		}),
		WebhookDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatrelay_webhook_dropped_total",
			Help: "Webhook payloads dropped because the per-user lock wait elapsed.",
		}),
		WebhookFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatrelay_webhook_failed_total",
			Help: "Webhook payloads whose processing returned an error.",
		}),
		SessionsResumed: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatrelay_sessions_resumed_total",
			Help: "Webhook requests that resumed an authenticated web session.",
		}),
		SignatureFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatrelay_signature_failures_total",
			Help: "Webhook requests with a missing or invalid signature.",
		}),
		LoginLinksIssued: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatrelay_login_links_issued_total",
			Help: "One-time login links generated for chat users.",
		}),
		TokensRedeemed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chatrelay_tokens_redeemed_total",
			Help: "Login token redemption attempts by outcome.",
		}, []string{"outcome"}),
	}
}
