// Package storage holds what the ledger stores have in common. The stores
// themselves live in the pg (Postgres) and kv (Pebble) subpackages.
package storage

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrUserExists   = errors.New("user already exists")
	ErrAmountTooBig = errors.New("amount exceeds ledger range")
)
