package mock

import (
	"context"
	"iter"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/v-starostin/tacbridge/internal/model"
)

type Accounts struct {
	mock.Mock
}

func (m *Accounts) RegisterUser(ctx context.Context, login, password string) error {
	ret := m.Called(ctx, login, password)
	return ret.Error(0)
}

func (m *Accounts) Authenticate(ctx context.Context, login, password string) (string, error) {
	ret := m.Called(ctx, login, password)
	return ret.String(0), ret.Error(1)
}

func (m *Accounts) GetBalance(ctx context.Context, userID uuid.UUID) (model.Balance, error) {
	ret := m.Called(ctx, userID)
	return ret.Get(0).(model.Balance), ret.Error(1)
}

func (m *Accounts) Approve(ctx context.Context, userID uuid.UUID, amount uint64) error {
	ret := m.Called(ctx, userID, amount)
	return ret.Error(0)
}

type Converter struct {
	mock.Mock
}

func (m *Converter) Convert(ctx context.Context, caller uuid.UUID, amount uint64) (model.Conversion, error) {
	ret := m.Called(ctx, caller, amount)
	return ret.Get(0).(model.Conversion), ret.Error(1)
}

func (m *Converter) Conversions(ctx context.Context, filter model.ConversionFilter) iter.Seq2[model.Conversion, error] {
	ret := m.Called(ctx, filter)
	return ret.Get(0).(iter.Seq2[model.Conversion, error])
}

func (m *Converter) Rate() uint64 {
	ret := m.Called()
	return ret.Get(0).(uint64)
}

func (m *Converter) Custody() uuid.UUID {
	ret := m.Called()
	return ret.Get(0).(uuid.UUID)
}
