// Package engine implements the conversation logic that runs behind
// the webhook, one sender at a time.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/chatrelay/chatrelay/internal/observability"
	"github.com/chatrelay/chatrelay/server/handshake"
	"github.com/chatrelay/chatrelay/server/session"
	"github.com/chatrelay/chatrelay/server/webhook"
)

// Sender delivers an outbound text message to a chat user.
type Sender interface {
	SendText(ctx context.Context, waID, text string) error
}

// LogSender is a Sender that only logs. Used in dev mode and tests,
// where no WhatsApp credentials are configured.
type LogSender struct{}

func (LogSender) SendText(_ context.Context, waID, text string) error {
	slog.Info("outbound message", "wa_id", waID, "text", text)
	return nil
}

// keys the engine tracks between messages.
const (
	keyLastCommand  = "last_command"
	keyMessageCount = "message_count"
)

// ScriptedEngine is the built-in command-driven conversation: login,
// logout, status, and a menu fallback. It is deliberately small; the
// interesting work is the session handshake around it.
type ScriptedEngine struct {
	handshake *handshake.Service
	sessions  *session.Manager
	sender    Sender
	metrics   *observability.Metrics
}

// NewScriptedEngine creates the engine.
func NewScriptedEngine(hs *handshake.Service, sessions *session.Manager, sender Sender, metrics *observability.Metrics) *ScriptedEngine {
	return &ScriptedEngine{
		handshake: hs,
		sessions:  sessions,
		sender:    sender,
		metrics:   metrics,
	}
}

// ProcessWebhook implements webhook.Engine. It runs with the
// sender's lock held, so session reads and writes for this wa_id do
// not race other deliveries from the same user.
func (e *ScriptedEngine) ProcessWebhook(ctx context.Context, user *webhook.WaUser, payload *webhook.Payload) error {
	for _, msg := range payload.AllMessages() {
		text := webhook.MessageText(&msg)
		if id := webhook.ReplyID(&msg); id != "" {
			text = id
		}
		if err := e.handleCommand(ctx, user, text); err != nil {
			return err
		}
	}
	return nil
}

func (e *ScriptedEngine) handleCommand(ctx context.Context, user *webhook.WaUser, text string) error {
	command := strings.ToLower(strings.TrimSpace(text))
	e.bumpMessageCount(ctx, user.WaID)
	e.sessions.Save(ctx, user.WaID, keyLastCommand, command)

	switch command {
	case "login":
		return e.handleLogin(ctx, user)
	case "logout":
		return e.handleLogout(ctx, user)
	case "status":
		return e.handleStatus(ctx, user)
	default:
		return e.sendMenu(ctx, user)
	}
}

func (e *ScriptedEngine) handleLogin(ctx context.Context, user *webhook.WaUser) error {
	if e.authenticated(ctx, user.WaID) {
		return e.sender.SendText(ctx, user.WaID, "You are already logged in. Send *logout* first to switch accounts.")
	}

	link, err := e.handshake.Generate(ctx, user.WaID)
	if err != nil {
		// Generate already returns a user-safe message.
		return e.sender.SendText(ctx, user.WaID, err.Error())
	}
	e.metrics.LoginLinksIssued.Inc()

	reply := fmt.Sprintf(
		"Tap to log in:\n%s\n\nThe link works once and expires in %d minutes.",
		link.URL, link.ExpiryMinutes,
	)
	return e.sender.SendText(ctx, user.WaID, reply)
}

func (e *ScriptedEngine) handleLogout(ctx context.Context, user *webhook.WaUser) error {
	// Preferences under props survive; everything else goes.
	e.sessions.Clear(ctx, user.WaID, session.PropsKey)
	return e.sender.SendText(ctx, user.WaID, "You have been logged out.")
}

func (e *ScriptedEngine) handleStatus(ctx context.Context, user *webhook.WaUser) error {
	if !e.authenticated(ctx, user.WaID) {
		return e.sender.SendText(ctx, user.WaID, "You are browsing as a guest. Send *login* to connect your account.")
	}

	reply := "You are logged in."
	if raw, ok := e.sessions.Get(ctx, user.WaID, session.KeyAuthExpireAt); ok {
		if expireAt, ok := raw.(string); ok {
			if until, err := time.Parse(time.RFC3339, expireAt); err == nil {
				reply = fmt.Sprintf("You are logged in until %s.", until.Format("15:04 MST"))
			}
		}
	}
	return e.sender.SendText(ctx, user.WaID, reply)
}

func (e *ScriptedEngine) sendMenu(ctx context.Context, user *webhook.WaUser) error {
	greeting := "Hi"
	if user.Name != "" {
		greeting = "Hi " + user.Name
	}
	menu := greeting + "! I understand:\n" +
		"• *login* – connect your web account\n" +
		"• *logout* – disconnect it\n" +
		"• *status* – check your connection"
	if err := e.sender.SendText(ctx, user.WaID, menu); err != nil {
		return errors.Wrap(err, "failed to send menu")
	}
	return nil
}

// authenticated reports whether the conversation holds a live login.
// The marker alone is not enough: the recorded expiry must still be
// in the future, since the scope blob can outlive the mapping.
func (e *ScriptedEngine) authenticated(ctx context.Context, waID string) bool {
	if !e.sessions.KeyInSession(ctx, waID, session.KeyValidAuthSession, false) {
		return false
	}
	raw, ok := e.sessions.Get(ctx, waID, session.KeyAuthExpireAt)
	if !ok {
		return false
	}
	expireAt, ok := raw.(string)
	if !ok {
		return false
	}
	until, err := time.Parse(time.RFC3339, expireAt)
	if err != nil {
		return false
	}
	return time.Now().Before(until)
}

func (e *ScriptedEngine) bumpMessageCount(ctx context.Context, waID string) {
	count := 0.0
	if raw, ok := e.sessions.Get(ctx, waID, keyMessageCount); ok {
		if n, ok := raw.(float64); ok {
			count = n
		}
	}
	e.sessions.Save(ctx, waID, keyMessageCount, count+1)
}

var _ webhook.Engine = (*ScriptedEngine)(nil)
