package services

import (
	"context"
	"strings"

	gateway "github.com/nimasrn/congregation-messenger/internal/gateways"
	"github.com/nimasrn/congregation-messenger/internal/model"
)

type MemberRepository interface {
	Create(ctx context.Context, m *model.Member) (*model.Member, error)
	Get(ctx context.Context, id string) (*model.Member, error)
	Update(ctx context.Context, m *model.Member) (*model.Member, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]model.Member, error)
}

type OrganizationRepository interface {
	Create(ctx context.Context, o *model.Organization) (*model.Organization, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]model.Organization, error)
}

type TemplateRepository interface {
	Create(ctx context.Context, t *model.MessageTemplate) (*model.MessageTemplate, error)
	Get(ctx context.Context, id string) (*model.MessageTemplate, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, category model.Category) ([]model.MessageTemplate, error)
}

type HistoryRepository interface {
	List(ctx context.Context, f model.HistoryFilter) ([]*model.HistoryEntry, error)
}

type PhoneValidator interface {
	Valid(raw string) bool
}

// DirectoryService is the thin record layer over members, organizations,
// templates and the message history.
type DirectoryService struct {
	members   MemberRepository
	orgs      OrganizationRepository
	templates TemplateRepository
	history   HistoryRepository
	phones    PhoneValidator
}

func NewDirectoryService(members MemberRepository, orgs OrganizationRepository, templates TemplateRepository, history HistoryRepository, phones PhoneValidator) *DirectoryService {
	return &DirectoryService{
		members:   members,
		orgs:      orgs,
		templates: templates,
		history:   history,
		phones:    phones,
	}
}

func (s *DirectoryService) CreateMember(ctx context.Context, m *model.Member) (*model.Member, error) {
	if err := s.validateMember(m); err != nil {
		return nil, err
	}
	return s.members.Create(ctx, m)
}

func (s *DirectoryService) UpdateMember(ctx context.Context, m *model.Member) (*model.Member, error) {
	if m.ID == "" {
		return nil, gateway.NewValidationError("id", "member id is required", nil)
	}
	if err := s.validateMember(m); err != nil {
		return nil, err
	}
	return s.members.Update(ctx, m)
}

func (s *DirectoryService) GetMember(ctx context.Context, id string) (*model.Member, error) {
	return s.members.Get(ctx, id)
}

func (s *DirectoryService) DeleteMember(ctx context.Context, id string) error {
	return s.members.Delete(ctx, id)
}

func (s *DirectoryService) ListMembers(ctx context.Context) ([]model.Member, error) {
	return s.members.List(ctx)
}

func (s *DirectoryService) CreateOrganization(ctx context.Context, o *model.Organization) (*model.Organization, error) {
	o.Name = strings.TrimSpace(o.Name)
	if o.Name == "" {
		return nil, gateway.NewValidationError("name", "organization name is required", nil)
	}
	return s.orgs.Create(ctx, o)
}

func (s *DirectoryService) DeleteOrganization(ctx context.Context, id string) error {
	return s.orgs.Delete(ctx, id)
}

func (s *DirectoryService) ListOrganizations(ctx context.Context) ([]model.Organization, error) {
	return s.orgs.List(ctx)
}

func (s *DirectoryService) CreateTemplate(ctx context.Context, t *model.MessageTemplate) (*model.MessageTemplate, error) {
	if strings.TrimSpace(t.Body) == "" {
		return nil, gateway.NewValidationError("body", "template body is empty", nil)
	}
	if t.Category == "" {
		t.Category = model.CategoryGeneral
	}
	if !t.Category.Valid() {
		return nil, gateway.NewValidationError("category", "unknown category "+string(t.Category), nil)
	}
	return s.templates.Create(ctx, t)
}

func (s *DirectoryService) GetTemplate(ctx context.Context, id string) (*model.MessageTemplate, error) {
	return s.templates.Get(ctx, id)
}

func (s *DirectoryService) DeleteTemplate(ctx context.Context, id string) error {
	return s.templates.Delete(ctx, id)
}

func (s *DirectoryService) ListTemplates(ctx context.Context, category model.Category) ([]model.MessageTemplate, error) {
	if category != "" && !category.Valid() {
		return nil, gateway.NewValidationError("category", "unknown category "+string(category), nil)
	}
	return s.templates.List(ctx, category)
}

func (s *DirectoryService) History(ctx context.Context, f model.HistoryFilter) ([]*model.HistoryEntry, error) {
	if f.Category != "" && !f.Category.Valid() {
		return nil, gateway.NewValidationError("category", "unknown category "+string(f.Category), nil)
	}
	if f.Limit < 0 || f.Offset < 0 {
		return nil, gateway.NewValidationError("limit", "paging must not be negative", nil)
	}
	return s.history.List(ctx, f)
}

// validateMember keeps the raw phone as entered; it must only be normalizable.
func (s *DirectoryService) validateMember(m *model.Member) error {
	m.FullName = strings.TrimSpace(m.FullName)
	if m.FullName == "" {
		return gateway.NewValidationError("full_name", "member name is required", nil)
	}
	if s.phones != nil && !s.phones.Valid(m.Phone) {
		return gateway.NewValidationError("phone", "not a valid phone number: "+m.Phone, nil)
	}
	return nil
}
