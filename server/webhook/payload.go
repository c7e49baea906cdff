// Package webhook receives and processes WhatsApp Cloud API webhook
// deliveries.
package webhook

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

// Payload is the top-level webhook notification body.
type Payload struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

// Entry is one account-level notification batch.
type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

// Change wraps one field-scoped notification.
type Change struct {
	Field string `json:"field"`
	Value Value  `json:"value"`
}

// Value carries the messages, statuses and contact metadata of a
// notification.
type Value struct {
	MessagingProduct string    `json:"messaging_product"`
	Metadata         Metadata  `json:"metadata"`
	Contacts         []Contact `json:"contacts"`
	Messages         []Message `json:"messages"`
	Statuses         []Status  `json:"statuses"`
}

// Metadata identifies the receiving business number.
type Metadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

// Contact is the sender's profile as reported by the platform.
type Contact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

// Message is one inbound message. Only the fields chatrelay consumes
// are modeled; the raw JSON is persisted alongside.
type Message struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`

	Text *struct {
		Body string `json:"body"`
	} `json:"text,omitempty"`
	Image       *Media `json:"image,omitempty"`
	Video       *Media `json:"video,omitempty"`
	Audio       *Media `json:"audio,omitempty"`
	Voice       *Media `json:"voice,omitempty"`
	Document    *Media `json:"document,omitempty"`
	Sticker     *Media `json:"sticker,omitempty"`
	Location    *struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
		Name      string  `json:"name"`
		Address   string  `json:"address"`
	} `json:"location,omitempty"`
	Contacts []struct {
		Name struct {
			FormattedName string `json:"formatted_name"`
		} `json:"name"`
	} `json:"contacts,omitempty"`
	Button *struct {
		Text    string `json:"text"`
		Payload string `json:"payload"`
	} `json:"button,omitempty"`
	Interactive *struct {
		Type        string `json:"type"`
		ButtonReply *struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"button_reply,omitempty"`
		ListReply *struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"list_reply,omitempty"`
	} `json:"interactive,omitempty"`
}

// Media is an uploaded attachment reference.
type Media struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"`
}

// Status is a delivery status update for an outbound message.
type Status struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
	RecipientID string `json:"recipient_id"`
}

// WaUser identifies the sender of a webhook delivery.
type WaUser struct {
	WaID  string
	Name  string
	MsgID string
}

// ParsePayload decodes a webhook body.
func ParsePayload(body []byte) (*Payload, error) {
	payload := &Payload{}
	if err := json.Unmarshal(body, payload); err != nil {
		return nil, errors.Wrap(err, "failed to decode webhook payload")
	}
	return payload, nil
}

// Sender extracts the sending user from the payload. Status-only
// deliveries have no sender.
func (p *Payload) Sender() (*WaUser, bool) {
	for _, entry := range p.Entry {
		for _, change := range entry.Changes {
			for _, msg := range change.Value.Messages {
				user := &WaUser{
					WaID:  NormalizePhone(msg.From),
					MsgID: msg.ID,
				}
				for _, contact := range change.Value.Contacts {
					if NormalizePhone(contact.WaID) == user.WaID {
						user.Name = contact.Profile.Name
					}
				}
				return user, true
			}
		}
	}
	return nil, false
}

// AllMessages flattens the payload's inbound messages.
func (p *Payload) AllMessages() []Message {
	var messages []Message
	for _, entry := range p.Entry {
		for _, change := range entry.Changes {
			messages = append(messages, change.Value.Messages...)
		}
	}
	return messages
}

// AllStatuses flattens the payload's delivery status updates.
func (p *Payload) AllStatuses() []Status {
	var statuses []Status
	for _, entry := range p.Entry {
		for _, change := range entry.Changes {
			statuses = append(statuses, change.Value.Statuses...)
		}
	}
	return statuses
}

// NormalizePhone strips everything but digits so numbers compare
// stably regardless of platform formatting.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// MessageText returns the human-readable text of a message, per type.
// Media messages yield their caption; replies yield the chosen title.
func MessageText(msg *Message) string {
	switch msg.Type {
	case "text":
		if msg.Text != nil {
			return msg.Text.Body
		}
	case "image":
		if msg.Image != nil {
			return msg.Image.Caption
		}
	case "video":
		if msg.Video != nil {
			return msg.Video.Caption
		}
	case "document":
		if msg.Document != nil {
			if msg.Document.Caption != "" {
				return msg.Document.Caption
			}
			return msg.Document.Filename
		}
	case "location":
		if msg.Location != nil {
			if msg.Location.Name != "" {
				return msg.Location.Name
			}
			return msg.Location.Address
		}
	case "contacts":
		if len(msg.Contacts) > 0 {
			return msg.Contacts[0].Name.FormattedName
		}
	case "button":
		if msg.Button != nil {
			return msg.Button.Text
		}
	case "interactive":
		if msg.Interactive != nil {
			if msg.Interactive.ButtonReply != nil {
				return msg.Interactive.ButtonReply.Title
			}
			if msg.Interactive.ListReply != nil {
				return msg.Interactive.ListReply.Title
			}
		}
	}
	return ""
}

// MessageMedia returns the attachment reference of a message, if any.
func MessageMedia(msg *Message) *Media {
	switch msg.Type {
	case "image":
		return msg.Image
	case "video":
		return msg.Video
	case "audio":
		return msg.Audio
	case "voice":
		return msg.Voice
	case "document":
		return msg.Document
	case "sticker":
		return msg.Sticker
	}
	return nil
}

// ReplyID returns the machine id behind a button or list reply, so
// the engine can branch on stable ids rather than display titles.
func ReplyID(msg *Message) string {
	if msg.Type == "button" && msg.Button != nil {
		return msg.Button.Payload
	}
	if msg.Type == "interactive" && msg.Interactive != nil {
		if msg.Interactive.ButtonReply != nil {
			return msg.Interactive.ButtonReply.ID
		}
		if msg.Interactive.ListReply != nil {
			return msg.Interactive.ListReply.ID
		}
	}
	return ""
}
