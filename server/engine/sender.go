package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/chatrelay/chatrelay/internal/profile"
)

const graphAPIBase = "https://graph.facebook.com/v21.0"

// GraphSender delivers messages through the WhatsApp Cloud API.
type GraphSender struct {
	client        *http.Client
	baseURL       string
	accessToken   string
	phoneNumberID string
}

// NewGraphSender creates a Cloud API sender from the profile.
func NewGraphSender(p *profile.Profile) *GraphSender {
	return &GraphSender{
		client:        &http.Client{Timeout: 15 * time.Second},
		baseURL:       graphAPIBase,
		accessToken:   p.AccessToken,
		phoneNumberID: p.PhoneNumberID,
	}
}

type textMessageRequest struct {
	MessagingProduct string `json:"messaging_product"`
	To               string `json:"to"`
	Type             string `json:"type"`
	Text             struct {
		Body string `json:"body"`
	} `json:"text"`
}

// SendText implements Sender.
func (s *GraphSender) SendText(ctx context.Context, waID, text string) error {
	payload := textMessageRequest{
		MessagingProduct: "whatsapp",
		To:               waID,
		Type:             "text",
	}
	payload.Text.Body = text

	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "failed to encode outbound message")
	}

	url := fmt.Sprintf("%s/%s/messages", s.baseURL, s.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "failed to build outbound request")
	}
	req.Header.Set("Authorization", "Bearer "+s.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to send message")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return errors.Errorf("message send failed with status %d: %s", resp.StatusCode, string(raw))
	}
	return nil
}

// NewSender picks the Cloud API sender when credentials are
// configured and the logging sender otherwise.
func NewSender(p *profile.Profile) Sender {
	if p.AccessToken != "" && p.PhoneNumberID != "" {
		return NewGraphSender(p)
	}
	return LogSender{}
}

var (
	_ Sender = (*GraphSender)(nil)
	_ Sender = LogSender{}
)
