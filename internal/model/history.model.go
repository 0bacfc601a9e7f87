package model

import "time"

type Category string

const (
	CategoryBirthday Category = "birthday"
	CategoryGeneral  Category = "general"
)

func (c Category) Valid() bool {
	return c == CategoryBirthday || c == CategoryGeneral
}

type HistoryStatus string

const (
	HistoryStatusSent      HistoryStatus = "sent"
	HistoryStatusFailed    HistoryStatus = "failed"
	HistoryStatusScheduled HistoryStatus = "scheduled"
)

// HistoryEntry is written once per logical recipient and send event and never changed.
type HistoryEntry struct {
	ID              string        `json:"id"`
	MemberID        string        `json:"member_id"`
	RecipientName   string        `json:"recipient_name"`
	RecipientPhone  PhoneNumber   `json:"recipient_phone"`
	Content         string        `json:"content"`
	Category        Category      `json:"category"`
	Status          HistoryStatus `json:"status"`
	ProviderBatchID string        `json:"provider_batch_id,omitempty"`
	Error           string        `json:"error,omitempty"`
	ScheduledFor    *time.Time    `json:"scheduled_for,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
}

func (HistoryEntry) Collection() string { return "history" }

// HistoryFilter controls List queries.
type HistoryFilter struct {
	MemberID string
	Category Category
	Status   HistoryStatus
	Limit    int // default 50
	Offset   int
}
