// Package kv is the embedded ledger store. It keeps users, balances,
// allowances, the audit log and the outbox in a single Pebble database.
package kv

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"

	"github.com/v-starostin/tacbridge/internal/bridge"
	"github.com/v-starostin/tacbridge/internal/model"
	"github.com/v-starostin/tacbridge/internal/storage"
)

const (
	conversionPrefix = "conversion/"
	outboxPrefix     = "outbox/"
	seqKey           = "meta/conversion-seq"
)

var _ bridge.Store = (*Store)(nil)

type Store struct {
	l  *slog.Logger
	db *pebble.DB

	// mu serializes read-modify-write transactions.
	mu  sync.Mutex
	now func() time.Time
}

func Open(l *slog.Logger, dir string, opts *pebble.Options) (*Store, error) {
	if opts == nil {
		opts = &pebble.Options{}
	}
	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, fmt.Errorf("open pebble at %q: %w", dir, err)
	}
	l.Info("Pebble store opened", slog.String("dir", dir))
	return &Store{l: l, db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, ledger bridge.Ledger, journal bridge.Journal) error) error {
	return s.update(ctx, func(b *pebble.Batch) error {
		t := &tx{batch: b, now: s.now().UTC()}
		return fn(ctx, t, t)
	})
}

func (s *Store) AddUser(ctx context.Context, u model.User, balance uint64) error {
	return s.update(ctx, func(b *pebble.Batch) error {
		_, closer, err := b.Get(userKey(u.Login))
		if err == nil {
			closer.Close()
			return storage.ErrUserExists
		}
		if !errors.Is(err, pebble.ErrNotFound) {
			return err
		}

		v, err := json.Marshal(u)
		if err != nil {
			return err
		}
		if err := b.Set(userKey(u.Login), v, nil); err != nil {
			return err
		}
		return putUint64(b, balanceKey(u.ID), balance)
	})
}

func (s *Store) GetUser(_ context.Context, login string) (*model.User, error) {
	v, closer, err := s.db.Get(userKey(login))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	defer closer.Close()

	var u model.User
	if err := json.Unmarshal(v, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) Balance(_ context.Context, account uuid.UUID) (uint64, error) {
	return getUint64(s.db, balanceKey(account))
}

func (s *Store) Allowance(_ context.Context, owner, spender uuid.UUID) (uint64, error) {
	return getUint64(s.db, allowanceKey(owner, spender))
}

// Approve replaces the amount spender may transfer out of owner's account.
func (s *Store) Approve(ctx context.Context, owner, spender uuid.UUID, amount uint64) error {
	return s.update(ctx, func(b *pebble.Batch) error {
		return putUint64(b, allowanceKey(owner, spender), amount)
	})
}

func (s *Store) Conversions(ctx context.Context, filter model.ConversionFilter) iter.Seq2[model.Conversion, error] {
	return func(yield func(model.Conversion, error) bool) {
		it, err := s.db.NewIter(&pebble.IterOptions{
			LowerBound: []byte(conversionPrefix),
			UpperBound: []byte(conversionPrefix + "~"),
		})
		if err != nil {
			yield(model.Conversion{}, err)
			return
		}
		defer it.Close()

		n := 0
		for it.First(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				yield(model.Conversion{}, err)
				return
			}

			var c model.Conversion
			if err := json.Unmarshal(it.Value(), &c); err != nil {
				yield(model.Conversion{}, fmt.Errorf("decode %s: %w", it.Key(), err))
				return
			}
			if !filter.Match(c) {
				continue
			}
			if !yield(c, nil) {
				return
			}
			n++
			if filter.Limit > 0 && n >= filter.Limit {
				return
			}
		}
		if err := it.Error(); err != nil {
			yield(model.Conversion{}, err)
		}
	}
}

// Pending returns up to limit committed conversions that have not been
// published yet, oldest first.
func (s *Store) Pending(ctx context.Context, limit int) ([]model.Conversion, error) {
	it, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(outboxPrefix),
		UpperBound: []byte(outboxPrefix + "~"),
	})
	if err != nil {
		return nil, err
	}
	defer it.Close()

	out := make([]model.Conversion, 0)
	for it.First(); it.Valid() && (limit <= 0 || len(out) < limit); it.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var seq uint64
		if _, err := fmt.Sscanf(string(it.Key()[len(outboxPrefix):]), "%d", &seq); err != nil {
			return nil, fmt.Errorf("parse outbox key %s: %w", it.Key(), err)
		}

		v, closer, err := s.db.Get(conversionKey(seq))
		if err != nil {
			return nil, fmt.Errorf("load conversion %d: %w", seq, err)
		}
		var c model.Conversion
		err = json.Unmarshal(v, &c)
		closer.Close()
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}

	return out, it.Error()
}

func (s *Store) MarkPublished(_ context.Context, seq uint64) error {
	return s.db.Delete(outboxKey(seq), pebble.Sync)
}

func (s *Store) update(ctx context.Context, fn func(b *pebble.Batch) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.db.NewIndexedBatch()
	defer b.Close()

	if err := fn(b); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.Commit(pebble.Sync)
}

// tx is the ledger and journal view of one indexed batch. Reads see the
// batch's own writes.
type tx struct {
	batch *pebble.Batch
	now   time.Time
}

func (t *tx) TransferFrom(_ context.Context, from, to uuid.UUID, amount uint64) (bool, error) {
	if amount == 0 {
		return true, nil
	}

	allowance, err := getUint64(t.batch, allowanceKey(from, to))
	if err != nil {
		return false, err
	}
	if allowance < amount {
		return false, nil
	}

	balance, err := getUint64(t.batch, balanceKey(from))
	if err != nil {
		return false, err
	}
	if balance < amount {
		return false, nil
	}

	if err := putUint64(t.batch, allowanceKey(from, to), allowance-amount); err != nil {
		return false, err
	}
	if err := putUint64(t.batch, balanceKey(from), balance-amount); err != nil {
		return false, err
	}

	credit, err := getUint64(t.batch, balanceKey(to))
	if err != nil {
		return false, err
	}
	if credit > math.MaxUint64-amount {
		return false, storage.ErrAmountTooBig
	}

	return true, putUint64(t.batch, balanceKey(to), credit+amount)
}

func (t *tx) Append(_ context.Context, c model.Conversion) (model.Conversion, error) {
	last, err := getUint64(t.batch, []byte(seqKey))
	if err != nil {
		return model.Conversion{}, err
	}

	c.Seq = last + 1
	c.CreatedAt = t.now

	v, err := json.Marshal(c)
	if err != nil {
		return model.Conversion{}, err
	}
	if err := t.batch.Set(conversionKey(c.Seq), v, nil); err != nil {
		return model.Conversion{}, err
	}
	if err := t.batch.Set(outboxKey(c.Seq), nil, nil); err != nil {
		return model.Conversion{}, err
	}
	if err := putUint64(t.batch, []byte(seqKey), c.Seq); err != nil {
		return model.Conversion{}, err
	}

	return c, nil
}

func getUint64(r pebble.Reader, key []byte) (uint64, error) {
	v, closer, err := r.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	defer closer.Close()

	if len(v) != 8 {
		return 0, fmt.Errorf("invalid value length %d at %s", len(v), key)
	}
	return binary.BigEndian.Uint64(v), nil
}

func putUint64(w pebble.Writer, key []byte, v uint64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return w.Set(key, buf, nil)
}

func userKey(login string) []byte {
	return []byte("user/" + login)
}

func balanceKey(account uuid.UUID) []byte {
	return []byte("balance/" + account.String())
}

func allowanceKey(owner, spender uuid.UUID) []byte {
	return []byte("allowance/" + owner.String() + "/" + spender.String())
}

func conversionKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", conversionPrefix, seq))
}

func outboxKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", outboxPrefix, seq))
}
