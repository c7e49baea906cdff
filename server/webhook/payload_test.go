package webhook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const textPayload = `{
  "object": "whatsapp_business_account",
  "entry": [{
    "id": "ENTRY_ID",
    "changes": [{
      "field": "messages",
      "value": {
        "messaging_product": "whatsapp",
        "metadata": {"display_phone_number": "263716000000", "phone_number_id": "PHONE_ID"},
        "contacts": [{"wa_id": "263770123456", "profile": {"name": "Ada"}}],
        "messages": [{
          "id": "wamid.abc123",
          "from": "263770123456",
          "timestamp": "1756700000",
          "type": "text",
          "text": {"body": "login"}
        }]
      }
    }]
  }]
}`

const statusPayload = `{
  "object": "whatsapp_business_account",
  "entry": [{
    "id": "ENTRY_ID",
    "changes": [{
      "field": "messages",
      "value": {
        "messaging_product": "whatsapp",
        "statuses": [{
          "id": "wamid.out1",
          "status": "delivered",
          "timestamp": "1756700001",
          "recipient_id": "263770123456"
        }]
      }
    }]
  }]
}`

func TestParsePayloadText(t *testing.T) {
	payload, err := ParsePayload([]byte(textPayload))
	require.NoError(t, err)

	user, ok := payload.Sender()
	require.True(t, ok)
	assert.Equal(t, "263770123456", user.WaID)
	assert.Equal(t, "Ada", user.Name)
	assert.Equal(t, "wamid.abc123", user.MsgID)

	messages := payload.AllMessages()
	require.Len(t, messages, 1)
	assert.Equal(t, "login", MessageText(&messages[0]))
	assert.Nil(t, MessageMedia(&messages[0]))
}

func TestParsePayloadStatusOnly(t *testing.T) {
	payload, err := ParsePayload([]byte(statusPayload))
	require.NoError(t, err)

	_, ok := payload.Sender()
	assert.False(t, ok, "status-only payloads have no sender")

	statuses := payload.AllStatuses()
	require.Len(t, statuses, 1)
	assert.Equal(t, "wamid.out1", statuses[0].ID)
	assert.Equal(t, "delivered", statuses[0].Status)
}

func TestParsePayloadMalformed(t *testing.T) {
	_, err := ParsePayload([]byte(`{"entry": "not-an-array"}`))
	assert.Error(t, err)
}

func TestMessageText(t *testing.T) {
	t.Run("image caption", func(t *testing.T) {
		msg := &Message{Type: "image", Image: &Media{ID: "m1", MimeType: "image/jpeg", Caption: "receipt"}}
		assert.Equal(t, "receipt", MessageText(msg))
		require.NotNil(t, MessageMedia(msg))
		assert.Equal(t, "m1", MessageMedia(msg).ID)
	})

	t.Run("document falls back to filename", func(t *testing.T) {
		msg := &Message{Type: "document", Document: &Media{ID: "d1", Filename: "invoice.pdf"}}
		assert.Equal(t, "invoice.pdf", MessageText(msg))
	})

	t.Run("audio has no text", func(t *testing.T) {
		msg := &Message{Type: "audio", Audio: &Media{ID: "a1", MimeType: "audio/ogg"}}
		assert.Empty(t, MessageText(msg))
		assert.Equal(t, "a1", MessageMedia(msg).ID)
	})

	t.Run("unknown type", func(t *testing.T) {
		msg := &Message{Type: "reaction"}
		assert.Empty(t, MessageText(msg))
		assert.Nil(t, MessageMedia(msg))
	})
}

func TestInteractiveReplies(t *testing.T) {
	raw := `{
	  "entry": [{"changes": [{"value": {"messages": [{
	    "id": "wamid.btn",
	    "from": "263770123456",
	    "type": "interactive",
	    "interactive": {
	      "type": "button_reply",
	      "button_reply": {"id": "opt_login", "title": "Log in"}
	    }
	  }]}}]}]
	}`
	payload, err := ParsePayload([]byte(raw))
	require.NoError(t, err)

	messages := payload.AllMessages()
	require.Len(t, messages, 1)
	assert.Equal(t, "Log in", MessageText(&messages[0]))
	assert.Equal(t, "opt_login", ReplyID(&messages[0]))
}

func TestNormalizePhone(t *testing.T) {
	assert.Equal(t, "263770123456", NormalizePhone("+263 77 012 3456"))
	assert.Equal(t, "263770123456", NormalizePhone("263770123456"))
	assert.Equal(t, "", NormalizePhone("not a number"))
}
