package handlers

import (
	"context"
	"time"

	"github.com/fasthttp/router"
	"github.com/nimasrn/congregation-messenger/internal/model"
	xhttp "github.com/nimasrn/congregation-messenger/pkg/http"
)

type DirectoryService interface {
	CreateMember(ctx context.Context, m *model.Member) (*model.Member, error)
	UpdateMember(ctx context.Context, m *model.Member) (*model.Member, error)
	GetMember(ctx context.Context, id string) (*model.Member, error)
	DeleteMember(ctx context.Context, id string) error
	ListMembers(ctx context.Context) ([]model.Member, error)
	CreateOrganization(ctx context.Context, o *model.Organization) (*model.Organization, error)
	DeleteOrganization(ctx context.Context, id string) error
	ListOrganizations(ctx context.Context) ([]model.Organization, error)
	CreateTemplate(ctx context.Context, t *model.MessageTemplate) (*model.MessageTemplate, error)
	GetTemplate(ctx context.Context, id string) (*model.MessageTemplate, error)
	DeleteTemplate(ctx context.Context, id string) error
	ListTemplates(ctx context.Context, category model.Category) ([]model.MessageTemplate, error)
	History(ctx context.Context, f model.HistoryFilter) ([]*model.HistoryEntry, error)
}

type DirectoryHandler struct {
	svc DirectoryService
}

func RegisterDirectoryRoutes(e *router.Group, h *DirectoryHandler, g Guards) {
	e.GET("/members", g.read(h.ListMembers))
	e.POST("/members", g.dispatch(h.CreateMember))
	e.GET("/members/{id}", g.read(h.GetMember))
	e.PUT("/members/{id}", g.dispatch(h.UpdateMember))
	e.DELETE("/members/{id}", g.dispatch(h.DeleteMember))

	e.GET("/organizations", g.read(h.ListOrganizations))
	e.POST("/organizations", g.dispatch(h.CreateOrganization))
	e.DELETE("/organizations/{id}", g.dispatch(h.DeleteOrganization))

	e.GET("/templates", g.read(h.ListTemplates))
	e.POST("/templates", g.dispatch(h.CreateTemplate))
	e.GET("/templates/{id}", g.read(h.GetTemplate))
	e.DELETE("/templates/{id}", g.dispatch(h.DeleteTemplate))

	e.GET("/history", g.read(h.ListHistory))
}

func NewDirectoryHandler(svc DirectoryService) *DirectoryHandler {
	return &DirectoryHandler{svc: svc}
}

// memberRequest carries the date of birth as YYYY-MM-DD.
type memberRequest struct {
	FullName        string   `json:"full_name"`
	Phone           string   `json:"phone"`
	OrganizationIDs []string `json:"organization_ids"`
	DateOfBirth     string   `json:"date_of_birth"`
}

type listResponse[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
}

func newList[T any](items []T) listResponse[T] {
	if items == nil {
		items = []T{}
	}
	return listResponse[T]{Items: items, Total: len(items)}
}

func (r memberRequest) toModel() (*model.Member, error) {
	m := &model.Member{FullName: r.FullName, Phone: r.Phone, OrganizationIDs: r.OrganizationIDs}
	if r.DateOfBirth != "" {
		dob, err := time.Parse("2006-01-02", r.DateOfBirth)
		if err != nil {
			return nil, err
		}
		m.DateOfBirth = &dob
	}
	return m, nil
}

/* --------------------------------- Members ---------------------------------- */

func (h *DirectoryHandler) ListMembers(ctx *xhttp.RequestCtx) {
	items, err := h.svc.ListMembers(ctx)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	xhttp.WriteJSON(ctx, xhttp.StatusOK, newList(items))
}

func (h *DirectoryHandler) CreateMember(ctx *xhttp.RequestCtx) {
	m, ok := readMember(ctx)
	if !ok {
		return
	}
	created, err := h.svc.CreateMember(ctx, m)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	xhttp.WriteJSON(ctx, xhttp.StatusCreated, created)
}

func (h *DirectoryHandler) GetMember(ctx *xhttp.RequestCtx) {
	m, err := h.svc.GetMember(ctx, pathParam(ctx, "id"))
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	xhttp.WriteJSON(ctx, xhttp.StatusOK, m)
}

func (h *DirectoryHandler) UpdateMember(ctx *xhttp.RequestCtx) {
	m, ok := readMember(ctx)
	if !ok {
		return
	}
	m.ID = pathParam(ctx, "id")
	updated, err := h.svc.UpdateMember(ctx, m)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	xhttp.WriteJSON(ctx, xhttp.StatusOK, updated)
}

func (h *DirectoryHandler) DeleteMember(ctx *xhttp.RequestCtx) {
	if err := h.svc.DeleteMember(ctx, pathParam(ctx, "id")); err != nil {
		writeServiceError(ctx, err)
		return
	}
	ctx.SetStatusCode(xhttp.StatusNoContent)
}

func readMember(ctx *xhttp.RequestCtx) (*model.Member, bool) {
	var req memberRequest
	if err := xhttp.ReadJSON(ctx, &req); err != nil {
		xhttp.WriteError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return nil, false
	}
	m, err := req.toModel()
	if err != nil {
		xhttp.WriteError(ctx, xhttp.StatusBadRequest, "invalid date_of_birth: "+req.DateOfBirth)
		return nil, false
	}
	return m, true
}

/* ------------------------------ Organizations ------------------------------- */

func (h *DirectoryHandler) ListOrganizations(ctx *xhttp.RequestCtx) {
	items, err := h.svc.ListOrganizations(ctx)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	xhttp.WriteJSON(ctx, xhttp.StatusOK, newList(items))
}

func (h *DirectoryHandler) CreateOrganization(ctx *xhttp.RequestCtx) {
	var o model.Organization
	if err := xhttp.ReadJSON(ctx, &o); err != nil {
		xhttp.WriteError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	created, err := h.svc.CreateOrganization(ctx, &o)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	xhttp.WriteJSON(ctx, xhttp.StatusCreated, created)
}

func (h *DirectoryHandler) DeleteOrganization(ctx *xhttp.RequestCtx) {
	if err := h.svc.DeleteOrganization(ctx, pathParam(ctx, "id")); err != nil {
		writeServiceError(ctx, err)
		return
	}
	ctx.SetStatusCode(xhttp.StatusNoContent)
}

/* -------------------------------- Templates --------------------------------- */

func (h *DirectoryHandler) ListTemplates(ctx *xhttp.RequestCtx) {
	items, err := h.svc.ListTemplates(ctx, model.Category(xhttp.Query(ctx, "category")))
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	xhttp.WriteJSON(ctx, xhttp.StatusOK, newList(items))
}

func (h *DirectoryHandler) CreateTemplate(ctx *xhttp.RequestCtx) {
	var t model.MessageTemplate
	if err := xhttp.ReadJSON(ctx, &t); err != nil {
		xhttp.WriteError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	created, err := h.svc.CreateTemplate(ctx, &t)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	xhttp.WriteJSON(ctx, xhttp.StatusCreated, created)
}

func (h *DirectoryHandler) GetTemplate(ctx *xhttp.RequestCtx) {
	t, err := h.svc.GetTemplate(ctx, pathParam(ctx, "id"))
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	xhttp.WriteJSON(ctx, xhttp.StatusOK, t)
}

func (h *DirectoryHandler) DeleteTemplate(ctx *xhttp.RequestCtx) {
	if err := h.svc.DeleteTemplate(ctx, pathParam(ctx, "id")); err != nil {
		writeServiceError(ctx, err)
		return
	}
	ctx.SetStatusCode(xhttp.StatusNoContent)
}

/* --------------------------------- History ---------------------------------- */

func (h *DirectoryHandler) ListHistory(ctx *xhttp.RequestCtx) {
	f := model.HistoryFilter{
		MemberID: xhttp.Query(ctx, "member_id"),
		Category: model.Category(xhttp.Query(ctx, "category")),
		Status:   model.HistoryStatus(xhttp.Query(ctx, "status")),
		Limit:    queryInt(ctx, "limit"),
		Offset:   queryInt(ctx, "offset"),
	}
	items, err := h.svc.History(ctx, f)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	xhttp.WriteJSON(ctx, xhttp.StatusOK, newList(items))
}
