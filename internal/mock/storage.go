package mock

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/v-starostin/tacbridge/internal/model"
)

type Storage struct {
	mock.Mock
}

func (m *Storage) AddUser(ctx context.Context, u model.User, balance uint64) error {
	ret := m.Called(ctx, u, balance)
	return ret.Error(0)
}

func (m *Storage) GetUser(ctx context.Context, login string) (*model.User, error) {
	ret := m.Called(ctx, login)

	var u *model.User
	if v := ret.Get(0); v != nil {
		u = v.(*model.User)
	}
	return u, ret.Error(1)
}

func (m *Storage) Balance(ctx context.Context, account uuid.UUID) (uint64, error) {
	ret := m.Called(ctx, account)
	return ret.Get(0).(uint64), ret.Error(1)
}

func (m *Storage) Allowance(ctx context.Context, owner, spender uuid.UUID) (uint64, error) {
	ret := m.Called(ctx, owner, spender)
	return ret.Get(0).(uint64), ret.Error(1)
}

func (m *Storage) Approve(ctx context.Context, owner, spender uuid.UUID, amount uint64) error {
	ret := m.Called(ctx, owner, spender, amount)
	return ret.Error(0)
}
