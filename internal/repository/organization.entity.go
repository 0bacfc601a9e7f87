package repository

import (
	"github.com/nimasrn/congregation-messenger/internal/model"
	"github.com/nimasrn/congregation-messenger/internal/store"
)

type OrganizationEntity struct {
	Name string `json:"name"`
}

func toOrganizationModel(r store.Record) (*model.Organization, error) {
	var e OrganizationEntity
	if err := fromFields(r.Fields, &e); err != nil {
		return nil, err
	}
	return &model.Organization{ID: r.ID, Name: e.Name, CreatedAt: r.CreatedAt}, nil
}
