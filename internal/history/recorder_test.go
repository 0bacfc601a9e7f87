package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nimasrn/congregation-messenger/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryAppender struct {
	entries []*model.HistoryEntry
	failFor string
}

func (m *memoryAppender) Append(_ context.Context, e *model.HistoryEntry) (*model.HistoryEntry, error) {
	if e.MemberID == m.failFor {
		return nil, errors.New("store unavailable")
	}
	cp := *e
	cp.ID = e.MemberID + "-h"
	m.entries = append(m.entries, &cp)
	return &cp, nil
}

func TestRecorder_OneEntryPerRecipient(t *testing.T) {
	repo := &memoryAppender{}
	r := NewRecorder(repo)

	recipients := []model.Recipient{
		{MemberID: "alice", Name: "Alice Owusu", Phone: "233244111111"},
		{MemberID: "bob", Name: "Bob Owusu", Phone: "233244111111"},
	}
	saved, err := r.RecordSent(context.Background(), Send{Recipients: recipients, Text: "Reminder", BatchID: "b-1"})
	require.NoError(t, err)
	require.Len(t, saved, 2)

	for i, e := range repo.entries {
		assert.Equal(t, recipients[i].MemberID, e.MemberID)
		assert.Equal(t, model.PhoneNumber("233244111111"), e.RecipientPhone)
		assert.Equal(t, "Reminder", e.Content)
		assert.Equal(t, model.CategoryGeneral, e.Category)
		assert.Equal(t, model.HistoryStatusSent, e.Status)
		assert.Equal(t, "b-1", e.ProviderBatchID)
	}
}

func TestRecorder_PersonalizedContent(t *testing.T) {
	repo := &memoryAppender{}
	r := NewRecorder(repo)

	_, err := r.RecordSent(context.Background(), Send{
		Recipients: []model.Recipient{
			{MemberID: "a", Phone: "233244111111", Values: []string{"Alice"}},
			{MemberID: "b", Phone: "233244111111", Values: []string{"Bob"}},
		},
		Text: "Hi {$name}, see you Sunday",
	})
	require.NoError(t, err)

	assert.Equal(t, "Hi Alice, see you Sunday", repo.entries[0].Content)
	assert.Equal(t, "Hi Bob, see you Sunday", repo.entries[1].Content)
}

func TestRecorder_FailedAndScheduled(t *testing.T) {
	repo := &memoryAppender{}
	r := NewRecorder(repo)
	recipients := []model.Recipient{{MemberID: "a", Phone: "233244111111"}}

	_, err := r.RecordFailed(context.Background(), Send{Recipients: recipients, Text: "x", Category: model.CategoryBirthday}, errors.New("send failed after 3 attempts: down"))
	require.NoError(t, err)
	assert.Equal(t, model.HistoryStatusFailed, repo.entries[0].Status)
	assert.Equal(t, model.CategoryBirthday, repo.entries[0].Category)
	assert.Contains(t, repo.entries[0].Error, "3 attempts")

	at := time.Date(2026, 12, 24, 18, 0, 0, 0, time.UTC)
	_, err = r.RecordScheduled(context.Background(), Send{Recipients: recipients, Text: "x", ScheduledFor: &at})
	require.NoError(t, err)
	assert.Equal(t, model.HistoryStatusScheduled, repo.entries[1].Status)
	assert.Equal(t, &at, repo.entries[1].ScheduledFor)
}

func TestRecorder_ContinuesPastStoreErrors(t *testing.T) {
	repo := &memoryAppender{failFor: "a"}
	r := NewRecorder(repo)

	saved, err := r.RecordSent(context.Background(), Send{
		Recipients: []model.Recipient{{MemberID: "a"}, {MemberID: "b"}},
		Text:       "x",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "member a")
	require.Len(t, saved, 1)
	assert.Equal(t, "b", saved[0].MemberID)
}
