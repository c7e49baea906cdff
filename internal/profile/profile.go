package profile

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Profile is the configuration to start the main server.
type Profile struct {
	// Mode can be "prod" or "dev" or "demo"
	Mode string
	// Addr is the binding address for server
	Addr string
	// Port is the binding port for server
	Port int
	// Data is the data directory
	Data string
	// DSN points to where chatrelay stores its own data
	DSN string
	// Driver is the database driver (sqlite or postgres)
	Driver string
	// Version is the current version of server
	Version string
	// InstanceURL is the public url of this chatrelay instance,
	// used to build absolute login links.
	InstanceURL string
	// Secret signs browser session tokens.
	Secret string

	// WhatsApp webhook configuration.
	WebhookVerifyToken string
	// AppSecret is the per-deployment secret used for webhook
	// signature verification (X-Hub-Signature-256).
	AppSecret string
	// BotNumber is the bot's WhatsApp phone number, digits only.
	BotNumber string
	// PhoneNumberID is the Cloud API phone number id used to send
	// outbound messages.
	PhoneNumberID string
	// AccessToken authorizes outbound Graph API calls. When empty,
	// outbound messages are logged instead of sent.
	AccessToken string
	// ValidateSignature toggles webhook signature enforcement.
	// Signature checks are always bypassed in dev mode.
	ValidateSignature bool
	// ProcessInBackground enqueues webhook processing instead of
	// running it inline with the request.
	ProcessInBackground bool

	// Session lifetimes.
	LoginLinkExpiry time.Duration // one-time login token lifetime
	LoginDuration   time.Duration // requested resumable-session duration
	SessionTTL      time.Duration // conversation-scoped state TTL
	GlobalTTL       time.Duration // global-scoped state TTL

	// Per-user webhook lock bounds.
	LockLease time.Duration // max hold time for one processing run
	LockWait  time.Duration // max time a request queues behind the holder
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	if p.Secret == "" {
		return errors.New("secret is required")
	}

	if p.InstanceURL != "" {
		if _, err := url.Parse(p.InstanceURL); err != nil {
			return errors.Wrapf(err, "invalid instance url %q", p.InstanceURL)
		}
		p.InstanceURL = strings.TrimRight(p.InstanceURL, "/")
	}

	if p.Driver == "sqlite" && p.DSN == "" {
		dbFile := fmt.Sprintf("chatrelay_%s.db", p.Mode)
		p.DSN = filepath.Join(p.Data, dbFile)
	}

	if p.LoginLinkExpiry <= 0 {
		p.LoginLinkExpiry = 5 * time.Minute
	}
	if p.LoginDuration <= 0 {
		p.LoginDuration = 10 * time.Minute
	}
	if p.SessionTTL <= 0 {
		p.SessionTTL = 30 * time.Minute
	}
	if p.GlobalTTL <= 0 {
		p.GlobalTTL = 24 * time.Hour
	}
	if p.LockLease <= 0 {
		p.LockLease = 5 * time.Minute
	}
	if p.LockWait < 0 {
		p.LockWait = 30 * time.Second
	}

	return nil
}
