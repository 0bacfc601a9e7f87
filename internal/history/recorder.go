package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nimasrn/congregation-messenger/internal/model"
	"github.com/nimasrn/congregation-messenger/internal/templates"
	"github.com/nimasrn/congregation-messenger/pkg/logger"
	"github.com/nimasrn/congregation-messenger/pkg/prom"
)

type Appender interface {
	Append(ctx context.Context, entry *model.HistoryEntry) (*model.HistoryEntry, error)
}

// Send describes one dispatch to log, one entry per recipient.
type Send struct {
	Recipients   []model.Recipient
	Text         string
	Category     model.Category
	BatchID      string
	ScheduledFor *time.Time
}

// Recorder writes one immutable entry per logical recipient, in recipient order.
type Recorder struct {
	repo Appender
}

func NewRecorder(repo Appender) *Recorder {
	return &Recorder{repo: repo}
}

func (r *Recorder) RecordSent(ctx context.Context, s Send) ([]*model.HistoryEntry, error) {
	return r.record(ctx, s, model.HistoryStatusSent, nil)
}

func (r *Recorder) RecordFailed(ctx context.Context, s Send, cause error) ([]*model.HistoryEntry, error) {
	return r.record(ctx, s, model.HistoryStatusFailed, cause)
}

func (r *Recorder) RecordScheduled(ctx context.Context, s Send) ([]*model.HistoryEntry, error) {
	return r.record(ctx, s, model.HistoryStatusScheduled, nil)
}

// Content is the text the recipient receives: positional values applied when present.
func Content(text string, rc model.Recipient) string {
	if len(rc.Values) == 0 {
		return text
	}
	return templates.RenderPositional(text, rc.Values)
}

func (r *Recorder) record(ctx context.Context, s Send, status model.HistoryStatus, cause error) ([]*model.HistoryEntry, error) {
	category := s.Category
	if category == "" {
		category = model.CategoryGeneral
	}

	var errs []error
	out := make([]*model.HistoryEntry, 0, len(s.Recipients))
	for _, rc := range s.Recipients {
		entry := &model.HistoryEntry{
			MemberID:        rc.MemberID,
			RecipientName:   rc.Name,
			RecipientPhone:  rc.Phone,
			Content:         Content(s.Text, rc),
			Category:        category,
			Status:          status,
			ProviderBatchID: s.BatchID,
			ScheduledFor:    s.ScheduledFor,
		}
		if cause != nil {
			entry.Error = cause.Error()
		}

		saved, err := r.repo.Append(ctx, entry)
		if err != nil {
			logger.Error("failed to write history entry", "member_id", rc.MemberID, "status", status, "error", err)
			errs = append(errs, fmt.Errorf("history for member %s: %w", rc.MemberID, err))
			continue
		}
		out = append(out, saved)
	}

	prom.AddRecipients(string(category), string(status), len(out))
	return out, errors.Join(errs...)
}
