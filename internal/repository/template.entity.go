package repository

import (
	"github.com/nimasrn/congregation-messenger/internal/model"
	"github.com/nimasrn/congregation-messenger/internal/store"
)

type TemplateEntity struct {
	Title    string `json:"title"`
	Body     string `json:"body"`
	Category string `json:"category"`
}

func toTemplateEntity(m *model.MessageTemplate) *TemplateEntity {
	return &TemplateEntity{Title: m.Title, Body: m.Body, Category: string(m.Category)}
}

func toTemplateModel(r store.Record) (*model.MessageTemplate, error) {
	var e TemplateEntity
	if err := fromFields(r.Fields, &e); err != nil {
		return nil, err
	}
	return &model.MessageTemplate{
		ID:        r.ID,
		Title:     e.Title,
		Body:      e.Body,
		Category:  model.Category(e.Category),
		CreatedAt: r.CreatedAt,
	}, nil
}
