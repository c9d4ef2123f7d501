package mock

import (
	"context"
	"iter"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/v-starostin/tacbridge/internal/bridge"
	"github.com/v-starostin/tacbridge/internal/model"
)

type AtomicFunc = func(ctx context.Context, ledger bridge.Ledger, journal bridge.Journal) error

type Store struct {
	mock.Mock
}

func (m *Store) Atomic(ctx context.Context, fn AtomicFunc) error {
	ret := m.Called(ctx, fn)

	if rf, ok := ret.Get(0).(func(context.Context, AtomicFunc) error); ok {
		return rf(ctx, fn)
	}
	return ret.Error(0)
}

func (m *Store) Conversions(ctx context.Context, filter model.ConversionFilter) iter.Seq2[model.Conversion, error] {
	ret := m.Called(ctx, filter)
	return ret.Get(0).(iter.Seq2[model.Conversion, error])
}

type Ledger struct {
	mock.Mock
}

func (m *Ledger) TransferFrom(ctx context.Context, from, to uuid.UUID, amount uint64) (bool, error) {
	ret := m.Called(ctx, from, to, amount)
	return ret.Bool(0), ret.Error(1)
}

type Journal struct {
	mock.Mock
}

func (m *Journal) Append(ctx context.Context, c model.Conversion) (model.Conversion, error) {
	ret := m.Called(ctx, c)

	if rf, ok := ret.Get(0).(func(context.Context, model.Conversion) model.Conversion); ok {
		return rf(ctx, c), ret.Error(1)
	}
	return ret.Get(0).(model.Conversion), ret.Error(1)
}

// Seq turns records and a trailing error into an audit log sequence.
func Seq(records []model.Conversion, err error) iter.Seq2[model.Conversion, error] {
	return func(yield func(model.Conversion, error) bool) {
		for _, c := range records {
			if !yield(c, nil) {
				return
			}
		}
		if err != nil {
			yield(model.Conversion{}, err)
		}
	}
}
