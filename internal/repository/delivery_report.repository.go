package repository

import (
	"context"
	"time"

	"github.com/nimasrn/congregation-messenger/internal/model"
	"github.com/nimasrn/congregation-messenger/internal/store"
)

type DeliveryReportRepository struct {
	store store.Store
}

func NewDeliveryReportRepository(s store.Store) *DeliveryReportRepository {
	return &DeliveryReportRepository{store: s}
}

func (r *DeliveryReportRepository) Create(ctx context.Context, dr *model.DeliveryReport) (*model.DeliveryReport, error) {
	if dr.ReceivedAt.IsZero() {
		dr.ReceivedAt = time.Now().UTC()
	}
	fields, err := toFields(toDeliveryReportEntity(dr))
	if err != nil {
		return nil, err
	}
	id, err := r.store.Create(ctx, model.DeliveryReport{}.Collection(), fields)
	if err != nil {
		return nil, err
	}
	saved := *dr
	saved.ID = id
	return &saved, nil
}

func (r *DeliveryReportRepository) ListByMessageID(ctx context.Context, messageID string) ([]*model.DeliveryReport, error) {
	recs, err := r.store.List(ctx, model.DeliveryReport{}.Collection(), store.Query{}.Eq("message_id", messageID))
	if err != nil {
		return nil, err
	}
	out := make([]*model.DeliveryReport, 0, len(recs))
	for _, rec := range recs {
		dr, err := toDeliveryReportModel(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, dr)
	}
	return out, nil
}
