package repository

import (
	"time"

	"github.com/nimasrn/congregation-messenger/internal/model"
	"github.com/nimasrn/congregation-messenger/internal/store"
)

type HistoryEntity struct {
	MemberID        string     `json:"member_id"`
	RecipientName   string     `json:"recipient_name"`
	RecipientPhone  string     `json:"recipient_phone"`
	Content         string     `json:"content"`
	Category        string     `json:"category"`
	Status          string     `json:"status"`
	ProviderBatchID string     `json:"provider_batch_id,omitempty"`
	Error           string     `json:"error,omitempty"`
	ScheduledFor    *time.Time `json:"scheduled_for,omitempty"`
	SentAt          time.Time  `json:"sent_at"`
}

func toHistoryEntity(m *model.HistoryEntry) *HistoryEntity {
	if m == nil {
		return nil
	}
	return &HistoryEntity{
		MemberID:        m.MemberID,
		RecipientName:   m.RecipientName,
		RecipientPhone:  string(m.RecipientPhone),
		Content:         m.Content,
		Category:        string(m.Category),
		Status:          string(m.Status),
		ProviderBatchID: m.ProviderBatchID,
		Error:           m.Error,
		ScheduledFor:    m.ScheduledFor,
		SentAt:          m.CreatedAt,
	}
}

func toHistoryModel(r store.Record) (*model.HistoryEntry, error) {
	var e HistoryEntity
	if err := fromFields(r.Fields, &e); err != nil {
		return nil, err
	}
	created := e.SentAt
	if created.IsZero() {
		created = r.CreatedAt
	}
	return &model.HistoryEntry{
		ID:              r.ID,
		MemberID:        e.MemberID,
		RecipientName:   e.RecipientName,
		RecipientPhone:  model.PhoneNumber(e.RecipientPhone),
		Content:         e.Content,
		Category:        model.Category(e.Category),
		Status:          model.HistoryStatus(e.Status),
		ProviderBatchID: e.ProviderBatchID,
		Error:           e.Error,
		ScheduledFor:    e.ScheduledFor,
		CreatedAt:       created,
	}, nil
}
