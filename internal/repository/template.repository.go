package repository

import (
	"context"

	"github.com/nimasrn/congregation-messenger/internal/model"
	"github.com/nimasrn/congregation-messenger/internal/store"
)

type TemplateRepository struct {
	store store.Store
}

func NewTemplateRepository(s store.Store) *TemplateRepository {
	return &TemplateRepository{store: s}
}

func (r *TemplateRepository) Create(ctx context.Context, t *model.MessageTemplate) (*model.MessageTemplate, error) {
	fields, err := toFields(toTemplateEntity(t))
	if err != nil {
		return nil, err
	}
	id, err := r.store.Create(ctx, model.MessageTemplate{}.Collection(), fields)
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

func (r *TemplateRepository) Get(ctx context.Context, id string) (*model.MessageTemplate, error) {
	rec, err := r.store.Get(ctx, model.MessageTemplate{}.Collection(), id)
	if err != nil {
		return nil, err
	}
	return toTemplateModel(*rec)
}

func (r *TemplateRepository) Delete(ctx context.Context, id string) error {
	return r.store.Delete(ctx, model.MessageTemplate{}.Collection(), id)
}

// List filters by category when one is given.
func (r *TemplateRepository) List(ctx context.Context, category model.Category) ([]model.MessageTemplate, error) {
	q := store.Query{}
	if category != "" {
		q = q.Eq("category", string(category))
	}
	recs, err := r.store.List(ctx, model.MessageTemplate{}.Collection(), q)
	if err != nil {
		return nil, err
	}
	out := make([]model.MessageTemplate, 0, len(recs))
	for _, rec := range recs {
		t, err := toTemplateModel(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, nil
}
