package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatrelay/chatrelay/internal/profile"
)

func TestGraphSenderSendText(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody textMessageRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sender := &GraphSender{
		client:        &http.Client{Timeout: time.Second},
		baseURL:       server.URL,
		accessToken:   "token-123",
		phoneNumberID: "555000",
	}

	require.NoError(t, sender.SendText(context.Background(), "263770123456", "hello"))
	assert.Equal(t, "/555000/messages", gotPath)
	assert.Equal(t, "Bearer token-123", gotAuth)
	assert.Equal(t, "whatsapp", gotBody.MessagingProduct)
	assert.Equal(t, "263770123456", gotBody.To)
	assert.Equal(t, "hello", gotBody.Text.Body)
}

func TestGraphSenderErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad token"}}`))
	}))
	defer server.Close()

	sender := &GraphSender{
		client:        &http.Client{Timeout: time.Second},
		baseURL:       server.URL,
		accessToken:   "expired",
		phoneNumberID: "555000",
	}

	err := sender.SendText(context.Background(), "263770123456", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
}

func TestNewSenderSelection(t *testing.T) {
	withCreds := &profile.Profile{AccessToken: "t", PhoneNumberID: "p"}
	_, ok := NewSender(withCreds).(*GraphSender)
	assert.True(t, ok)

	_, ok = NewSender(&profile.Profile{}).(LogSender)
	assert.True(t, ok)
}
