// Package notify posts sponsorship and order events to the external
// notification sink. Delivery is fire-and-forget: failures are logged and
// never propagated to the triggering operation.
package notify

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/edupoints/edupoints/cmd/config"
	"github.com/edupoints/edupoints/internal/logger"
)

// Recipient types.
const (
	RecipientDonor   = "donor"
	RecipientStudent = "student"
	RecipientAdmin   = "admin"
)

// Events.
const (
	EventSponsorshipCreated = "sponsorship_created"
	EventOptOutRequested    = "opt_out_requested"
	EventOptOutCancelled    = "opt_out_cancelled"
	EventSponsorshipEnded   = "sponsorship_ended"
	EventOrderCreated       = "order_created"
	EventOrderStatusChanged = "order_status_changed"
	EventWithdrawalDecided  = "withdrawal_decided"
)

type payload struct {
	RecipientType string    `json:"recipient_type"`
	RecipientID   uuid.UUID `json:"recipient_id"`
	Event         string    `json:"event"`
	Detail        string    `json:"detail,omitempty"`
}

var client = &http.Client{Timeout: 5 * time.Second}

// Send delivers one event to the sink. A missing sink address disables
// delivery entirely.
func Send(recipientType string, recipientID uuid.UUID, event string, detail string) {
	if config.NotifyAddress == "" {
		return
	}

	body, err := json.Marshal(payload{
		RecipientType: recipientType,
		RecipientID:   recipientID,
		Event:         event,
		Detail:        detail,
	})
	if err != nil {
		logger.Log.Error("Failed to encode notification", zap.Error(err))
		return
	}

	resp, err := client.Post(config.NotifyAddress, "application/json", bytes.NewBuffer(body))
	if err != nil {
		logger.Log.Warn("Failed to deliver notification",
			zap.String("event", event), zap.Error(err))
		return
	}
	resp.Body.Close()

	logger.Log.Info("Notification sent",
		zap.String("event", event), zap.String("recipient", recipientID.String()))
}
