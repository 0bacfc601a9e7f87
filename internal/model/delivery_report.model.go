package model

import "time"

// DeliveryReport is one item of a gateway delivery webhook.
type DeliveryReport struct {
	ID         string     `json:"id"`
	MessageID  string     `json:"message_id"`
	Phone      string     `json:"phone"`
	Status     string     `json:"status"`
	Error      string     `json:"error,omitempty"`
	ReportedAt *time.Time `json:"reported_at,omitempty"`
	ReceivedAt time.Time  `json:"received_at"`
}

func (DeliveryReport) Collection() string { return "delivery_reports" }
