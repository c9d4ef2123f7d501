package model

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID       uuid.UUID
	Login    string
	Password string
}

// Balance is the source unit position of one account as seen by the bridge.
type Balance struct {
	Current   uint64
	Allowance uint64
}

// Conversion is one entry of the audit log. It is written once, inside the
// transaction that moved the source units, and never changed afterwards.
type Conversion struct {
	Seq          uint64    `json:"seq"`
	Caller       uuid.UUID `json:"caller"`
	SourceAmount uint64    `json:"source_amount"`
	TargetAmount uint64    `json:"target_amount"`
	Rate         uint64    `json:"rate"`
	CreatedAt    time.Time `json:"created_at"`
}

// ConversionFilter narrows a read of the audit log. Zero values mean no restriction.
type ConversionFilter struct {
	Caller uuid.UUID
	Limit  int
}

func (f ConversionFilter) Match(c Conversion) bool {
	return f.Caller == uuid.Nil || f.Caller == c.Caller
}

const EventConversion = "Conversion"

// Event is the published form of a conversion.
type Event struct {
	V            int       `json:"v"`
	Type         string    `json:"type"`
	Seq          uint64    `json:"seq"`
	Caller       uuid.UUID `json:"caller"`
	SourceAmount uint64    `json:"source_amount"`
	TargetAmount uint64    `json:"target_amount"`
	OccurredAt   time.Time `json:"occurred_at"`
}

func NewEvent(c Conversion) Event {
	return Event{
		V:            1,
		Type:         EventConversion,
		Seq:          c.Seq,
		Caller:       c.Caller,
		SourceAmount: c.SourceAmount,
		TargetAmount: c.TargetAmount,
		OccurredAt:   c.CreatedAt,
	}
}
