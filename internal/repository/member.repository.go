package repository

import (
	"context"
	"fmt"

	"github.com/nimasrn/congregation-messenger/internal/model"
	"github.com/nimasrn/congregation-messenger/internal/store"
)

const memberCodeCounter = "member_code"

type MemberRepository struct {
	store store.Store
}

func NewMemberRepository(s store.Store) *MemberRepository {
	return &MemberRepository{store: s}
}

// Create assigns the next member code (MBR-0001, MBR-0002, ...) when none is given.
func (r *MemberRepository) Create(ctx context.Context, m *model.Member) (*model.Member, error) {
	if m.Code == "" {
		n, err := r.store.Increment(ctx, memberCodeCounter, 1)
		if err != nil {
			return nil, err
		}
		m.Code = fmt.Sprintf("MBR-%04d", n)
	}

	fields, err := toFields(toMemberEntity(m))
	if err != nil {
		return nil, err
	}
	id, err := r.store.Create(ctx, model.Member{}.Collection(), fields)
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

func (r *MemberRepository) Get(ctx context.Context, id string) (*model.Member, error) {
	rec, err := r.store.Get(ctx, model.Member{}.Collection(), id)
	if err != nil {
		return nil, err
	}
	return toMemberModel(*rec)
}

func (r *MemberRepository) Update(ctx context.Context, m *model.Member) (*model.Member, error) {
	fields, err := toFields(toMemberEntity(m))
	if err != nil {
		return nil, err
	}
	if err := r.store.Update(ctx, model.Member{}.Collection(), m.ID, fields); err != nil {
		return nil, err
	}
	return r.Get(ctx, m.ID)
}

func (r *MemberRepository) Delete(ctx context.Context, id string) error {
	return r.store.Delete(ctx, model.Member{}.Collection(), id)
}

// List returns every member in creation order.
func (r *MemberRepository) List(ctx context.Context) ([]model.Member, error) {
	recs, err := r.store.List(ctx, model.Member{}.Collection(), store.Query{})
	if err != nil {
		return nil, err
	}
	out := make([]model.Member, 0, len(recs))
	for _, rec := range recs {
		m, err := toMemberModel(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, nil
}

// Watch calls onChange with the decoded member for every store change.
func (r *MemberRepository) Watch(ctx context.Context, onChange func(kind store.ChangeKind, m *model.Member)) (func(), error) {
	return r.store.Subscribe(ctx, model.Member{}.Collection(), func(c store.Change) {
		m, err := toMemberModel(c.Record)
		if err != nil {
			return
		}
		onChange(c.Kind, m)
	})
}
