package mock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/v-starostin/tacbridge/internal/model"
)

type Publisher struct {
	mock.Mock
}

func (m *Publisher) Publish(ctx context.Context, event model.Event) error {
	ret := m.Called(ctx, event)
	return ret.Error(0)
}

func (m *Publisher) Close() error {
	ret := m.Called()
	return ret.Error(0)
}
