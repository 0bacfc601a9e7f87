package repository

import (
	"time"

	"github.com/nimasrn/congregation-messenger/internal/model"
	"github.com/nimasrn/congregation-messenger/internal/store"
)

type DeliveryReportEntity struct {
	MessageID  string     `json:"message_id"`
	Phone      string     `json:"phone"`
	Status     string     `json:"status"`
	Error      string     `json:"error,omitempty"`
	ReportedAt *time.Time `json:"reported_at,omitempty"`
	ReceivedAt time.Time  `json:"received_at"`
}

func toDeliveryReportEntity(m *model.DeliveryReport) *DeliveryReportEntity {
	if m == nil {
		return nil
	}
	return &DeliveryReportEntity{
		MessageID:  m.MessageID,
		Phone:      m.Phone,
		Status:     m.Status,
		Error:      m.Error,
		ReportedAt: m.ReportedAt,
		ReceivedAt: m.ReceivedAt,
	}
}

func toDeliveryReportModel(r store.Record) (*model.DeliveryReport, error) {
	var e DeliveryReportEntity
	if err := fromFields(r.Fields, &e); err != nil {
		return nil, err
	}
	return &model.DeliveryReport{
		ID:         r.ID,
		MessageID:  e.MessageID,
		Phone:      e.Phone,
		Status:     e.Status,
		Error:      e.Error,
		ReportedAt: e.ReportedAt,
		ReceivedAt: e.ReceivedAt,
	}, nil
}
