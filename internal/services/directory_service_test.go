package services

import (
	"context"
	"testing"

	gateway "github.com/nimasrn/congregation-messenger/internal/gateways"
	"github.com/nimasrn/congregation-messenger/internal/model"
	"github.com/nimasrn/congregation-messenger/internal/phone"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockMemberRepository struct {
	mock.Mock
}

func (m *MockMemberRepository) Create(ctx context.Context, member *model.Member) (*model.Member, error) {
	args := m.Called(ctx, member)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Member), args.Error(1)
}

func (m *MockMemberRepository) Get(ctx context.Context, id string) (*model.Member, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Member), args.Error(1)
}

func (m *MockMemberRepository) Update(ctx context.Context, member *model.Member) (*model.Member, error) {
	args := m.Called(ctx, member)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Member), args.Error(1)
}

func (m *MockMemberRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockMemberRepository) List(ctx context.Context) ([]model.Member, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Member), args.Error(1)
}

type MockHistoryRepository struct {
	mock.Mock
}

func (m *MockHistoryRepository) List(ctx context.Context, f model.HistoryFilter) ([]*model.HistoryEntry, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.HistoryEntry), args.Error(1)
}

func TestDirectoryService_CreateMember(t *testing.T) {
	repo := new(MockMemberRepository)
	service := NewDirectoryService(repo, nil, nil, nil, phone.Default())
	ctx := context.Background()

	repo.On("Create", ctx, mock.MatchedBy(func(m *model.Member) bool { return m.FullName == "Kwame Mensah" })).
		Return(&model.Member{ID: "m1", Code: "MBR-0001", FullName: "Kwame Mensah", Phone: "0244222222"}, nil).Once()

	created, err := service.CreateMember(ctx, &model.Member{FullName: "  Kwame Mensah ", Phone: "0244222222"})
	require.NoError(t, err)
	assert.Equal(t, "MBR-0001", created.Code)

	repo.AssertExpectations(t)
}

func TestDirectoryService_CreateMember_Invalid(t *testing.T) {
	repo := new(MockMemberRepository)
	service := NewDirectoryService(repo, nil, nil, nil, phone.Default())
	ctx := context.Background()

	_, err := service.CreateMember(ctx, &model.Member{FullName: "", Phone: "0244222222"})
	assert.True(t, gateway.IsValidation(err))

	_, err = service.CreateMember(ctx, &model.Member{FullName: "Ama", Phone: "555"})
	assert.True(t, gateway.IsValidation(err))

	_, err = service.UpdateMember(ctx, &model.Member{FullName: "Ama", Phone: "0244333333"})
	assert.True(t, gateway.IsValidation(err))

	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestDirectoryService_History(t *testing.T) {
	repo := new(MockHistoryRepository)
	service := NewDirectoryService(nil, nil, nil, repo, nil)
	ctx := context.Background()

	filter := model.HistoryFilter{MemberID: "m1", Category: model.CategoryBirthday}
	repo.On("List", ctx, filter).Return([]*model.HistoryEntry{{ID: "h1", MemberID: "m1"}}, nil).Once()

	entries, err := service.History(ctx, filter)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	_, err = service.History(ctx, model.HistoryFilter{Category: "anniversary"})
	assert.True(t, gateway.IsValidation(err))

	repo.AssertExpectations(t)
}
