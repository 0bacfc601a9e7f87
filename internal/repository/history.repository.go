package repository

import (
	"context"
	"time"

	"github.com/nimasrn/congregation-messenger/internal/model"
	"github.com/nimasrn/congregation-messenger/internal/store"
)

// HistoryRepository only appends; entries are never updated or deleted.
type HistoryRepository struct {
	store store.Store
	now   func() time.Time
}

func NewHistoryRepository(s store.Store) *HistoryRepository {
	return &HistoryRepository{store: s, now: time.Now}
}

func (r *HistoryRepository) Append(ctx context.Context, entry *model.HistoryEntry) (*model.HistoryEntry, error) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.now().UTC()
	}
	fields, err := toFields(toHistoryEntity(entry))
	if err != nil {
		return nil, err
	}
	id, err := r.store.Create(ctx, model.HistoryEntry{}.Collection(), fields)
	if err != nil {
		return nil, err
	}
	saved := *entry
	saved.ID = id
	return &saved, nil
}

// List returns the newest entries first.
func (r *HistoryRepository) List(ctx context.Context, f model.HistoryFilter) ([]*model.HistoryEntry, error) {
	q := store.Query{Desc: true, Limit: f.Limit, Offset: f.Offset}
	if q.Limit <= 0 {
		q.Limit = 50
	}
	if f.MemberID != "" {
		q = q.Eq("member_id", f.MemberID)
	}
	if f.Category != "" {
		q = q.Eq("category", string(f.Category))
	}
	if f.Status != "" {
		q = q.Eq("status", string(f.Status))
	}

	recs, err := r.store.List(ctx, model.HistoryEntry{}.Collection(), q)
	if err != nil {
		return nil, err
	}
	out := make([]*model.HistoryEntry, 0, len(recs))
	for _, rec := range recs {
		h, err := toHistoryModel(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, nil
}
