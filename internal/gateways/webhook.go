package gateway

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DeliveryItem is one entry of an inbound delivery webhook.
type DeliveryItem struct {
	MessageID string `json:"message_id"`
	Phone     string `json:"phone"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Key identifies a report so a re-delivered webhook item can be recognised.
func (d DeliveryItem) Key() string {
	return d.MessageID + ":" + d.Phone + ":" + strings.ToLower(d.Status)
}

// ReportedAt parses the gateway timestamp, nil when absent or unreadable.
func (d DeliveryItem) ReportedAt() *time.Time {
	if d.Timestamp == "" {
		return nil
	}
	for _, layout := range []string{ScheduleLayout, time.RFC3339} {
		if t, err := time.Parse(layout, d.Timestamp); err == nil {
			return &t
		}
	}
	return nil
}

type deliveryWebhook struct {
	Handshake *Handshake     `json:"handshake"`
	Data      []DeliveryItem `json:"data"`
}

// ParseDeliveryWebhook decodes the callback body. Items without a message id are dropped.
func ParseDeliveryWebhook(body []byte) ([]DeliveryItem, error) {
	var hook deliveryWebhook
	if err := json.Unmarshal(body, &hook); err != nil {
		return nil, fmt.Errorf("malformed delivery webhook: %w", err)
	}
	items := make([]DeliveryItem, 0, len(hook.Data))
	for _, it := range hook.Data {
		if it.MessageID == "" {
			continue
		}
		items = append(items, it)
	}
	return items, nil
}
