package v1

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/chatrelay/chatrelay/server/webhook"
	"github.com/chatrelay/chatrelay/store"
)

const (
	defaultMessageLimit = 50
	maxMessageLimit     = 200
)

type messageResponse struct {
	UID         string `json:"uid"`
	PhoneNumber string `json:"phoneNumber"`
	Direction   string `json:"direction"`
	MessageType string `json:"messageType"`
	MessageText string `json:"messageText,omitempty"`
	MediaID     string `json:"mediaId,omitempty"`
	MediaType   string `json:"mediaType,omitempty"`
	ContactName string `json:"contactName,omitempty"`
	Status      string `json:"status,omitempty"`
	Ts          int64  `json:"ts"`
}

// handleListMessages returns recent chat history for a phone number,
// newest first.
func (s *APIV1Service) handleListMessages(c echo.Context) error {
	phone := webhook.NormalizePhone(c.QueryParam("phone"))
	if phone == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "phone is required")
	}

	limit := defaultMessageLimit
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
		limit = parsed
	}
	if limit > maxMessageLimit {
		limit = maxMessageLimit
	}

	messages, err := s.Store.ListChatMessages(c.Request().Context(), &store.FindChatMessage{
		PhoneNumber: &phone,
		Limit:       &limit,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list messages")
	}

	response := make([]*messageResponse, 0, len(messages))
	for _, msg := range messages {
		response = append(response, &messageResponse{
			UID:         msg.UID,
			PhoneNumber: msg.PhoneNumber,
			Direction:   msg.Direction,
			MessageType: msg.MessageType,
			MessageText: msg.MessageText,
			MediaID:     msg.MediaID,
			MediaType:   msg.MediaType,
			ContactName: msg.ContactName,
			Status:      msg.Status,
			Ts:          msg.Ts,
		})
	}
	return c.JSON(http.StatusOK, response)
}
