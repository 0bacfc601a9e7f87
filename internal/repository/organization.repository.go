package repository

import (
	"context"

	"github.com/nimasrn/congregation-messenger/internal/model"
	"github.com/nimasrn/congregation-messenger/internal/store"
)

type OrganizationRepository struct {
	store store.Store
}

func NewOrganizationRepository(s store.Store) *OrganizationRepository {
	return &OrganizationRepository{store: s}
}

func (r *OrganizationRepository) Create(ctx context.Context, o *model.Organization) (*model.Organization, error) {
	fields, err := toFields(OrganizationEntity{Name: o.Name})
	if err != nil {
		return nil, err
	}
	id, err := r.store.Create(ctx, model.Organization{}.Collection(), fields)
	if err != nil {
		return nil, err
	}
	rec, err := r.store.Get(ctx, model.Organization{}.Collection(), id)
	if err != nil {
		return nil, err
	}
	return toOrganizationModel(*rec)
}

func (r *OrganizationRepository) Delete(ctx context.Context, id string) error {
	return r.store.Delete(ctx, model.Organization{}.Collection(), id)
}

func (r *OrganizationRepository) List(ctx context.Context) ([]model.Organization, error) {
	recs, err := r.store.List(ctx, model.Organization{}.Collection(), store.Query{})
	if err != nil {
		return nil, err
	}
	out := make([]model.Organization, 0, len(recs))
	for _, rec := range recs {
		o, err := toOrganizationModel(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, nil
}
