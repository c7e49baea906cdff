package webhook

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/chatrelay/chatrelay/internal/observability"
	"github.com/chatrelay/chatrelay/internal/profile"
	"github.com/chatrelay/chatrelay/store"
	"github.com/chatrelay/chatrelay/store/cache"
)

// lockKeyPrefix namespaces per-user webhook locks inside the cache
// store's key space.
const lockKeyPrefix = "lock:"

// backgroundQueueSize bounds how many payloads may sit waiting for a
// worker before enqueue starts dropping.
const backgroundQueueSize = 256

// Engine consumes one webhook delivery on behalf of a chat user. It
// runs with the sender's lock held.
type Engine interface {
	ProcessWebhook(ctx context.Context, user *WaUser, payload *Payload) error
}

// LockKey returns the lock key for a wa_id.
func LockKey(waID string) string {
	return lockKeyPrefix + waID
}

// Processor serializes webhook deliveries per sender and hands them
// to the engine. Deliveries from distinct senders run concurrently;
// deliveries from the same sender are strictly one at a time, and a
// delivery that cannot take the sender's lock within the wait bound
// is dropped, not queued forever.
type Processor struct {
	profile *profile.Profile
	store   *store.Store
	locker  cache.Locker
	engine  Engine
	metrics *observability.Metrics

	queue chan []byte
	group *errgroup.Group
}

// NewProcessor creates a webhook processor.
func NewProcessor(p *profile.Profile, st *store.Store, locker cache.Locker, engine Engine, metrics *observability.Metrics) *Processor {
	return &Processor{
		profile: p,
		store:   st,
		locker:  locker,
		engine:  engine,
		metrics: metrics,
		queue:   make(chan []byte, backgroundQueueSize),
	}
}

// Start launches the background workers. Only needed when processing
// runs in the background; Submit falls back to inline processing
// otherwise.
func (p *Processor) Start(ctx context.Context, workers int) {
	if workers <= 0 {
		workers = 4
	}
	p.group, ctx = errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		p.group.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case body, ok := <-p.queue:
					if !ok {
						return nil
					}
					if err := p.Process(ctx, body); err != nil {
						slog.Error("background webhook processing failed", "error", err)
					}
				}
			}
		})
	}
}

// Shutdown stops accepting work and waits for in-flight payloads.
func (p *Processor) Shutdown() {
	close(p.queue)
	if p.group != nil {
		_ = p.group.Wait()
	}
}

// Submit routes a payload to a worker or processes it inline,
// depending on configuration. The webhook endpoint acknowledges the
// platform either way.
func (p *Processor) Submit(ctx context.Context, body []byte) error {
	if !p.profile.ProcessInBackground {
		return p.Process(ctx, body)
	}
	select {
	case p.queue <- body:
		return nil
	default:
		p.metrics.WebhookDropped.Inc()
		return errors.New("webhook queue is full")
	}
}

// Process handles one delivery end to end: parse, persist, dispatch.
func (p *Processor) Process(ctx context.Context, body []byte) error {
	payload, err := ParsePayload(body)
	if err != nil {
		p.metrics.WebhookFailed.Inc()
		return err
	}

	// Status-only deliveries carry no sender and need no lock.
	p.recordStatuses(ctx, payload)

	user, ok := payload.Sender()
	if !ok {
		return nil
	}
	logger := observability.RequestLogger(slog.Default(), user.WaID).With("msg_id", user.MsgID)

	lock, err := p.locker.Acquire(ctx, LockKey(user.WaID), p.profile.LockLease, p.profile.LockWait)
	if err != nil {
		if errors.Is(err, cache.ErrLockTimeout) {
			// Drop rather than pile up behind a stuck conversation.
			p.metrics.WebhookDropped.Inc()
			logger.Error("dropping webhook: user lock wait elapsed")
			return err
		}
		p.metrics.WebhookFailed.Inc()
		return errors.Wrap(err, "failed to acquire user lock")
	}
	defer lock.Release()

	p.metrics.WebhookAccepted.Inc()
	p.recordMessages(ctx, user, payload)

	if err := p.engine.ProcessWebhook(ctx, user, payload); err != nil {
		p.metrics.WebhookFailed.Inc()
		return errors.Wrap(err, "engine failed to process webhook")
	}
	return nil
}

func (p *Processor) recordMessages(ctx context.Context, user *WaUser, payload *Payload) {
	for _, msg := range payload.AllMessages() {
		raw, err := json.Marshal(msg)
		if err != nil {
			raw = nil
		}
		create := &store.ChatMessage{
			UID:         shortuuid.New(),
			PhoneNumber: NormalizePhone(msg.From),
			MessageID:   msg.ID,
			Direction:   store.DirectionIncoming,
			MessageType: msg.Type,
			MessageText: MessageText(&msg),
			ContactName: user.Name,
			Payload:     string(raw),
			Ts:          parseTimestamp(msg.Timestamp),
		}
		if media := MessageMedia(&msg); media != nil {
			create.MediaID = media.ID
			create.MediaType = media.MimeType
		}
		if _, err := p.store.CreateChatMessage(ctx, create); err != nil {
			slog.Warn("failed to persist chat message", "msg_id", msg.ID, "error", err)
		}
	}
}

func (p *Processor) recordStatuses(ctx context.Context, payload *Payload) {
	for _, status := range payload.AllStatuses() {
		err := p.store.UpdateChatMessageStatus(ctx, &store.UpdateChatMessageStatus{
			MessageID: status.ID,
			Status:    status.Status,
		})
		if err != nil {
			slog.Warn("failed to update message status", "msg_id", status.ID, "error", err)
		}
	}
}

func parseTimestamp(ts string) int64 {
	if unix, err := strconv.ParseInt(ts, 10, 64); err == nil {
		return unix
	}
	return time.Now().Unix()
}
