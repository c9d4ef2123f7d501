package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/v-starostin/tacbridge/internal/model"
)

type Credentials struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type Amount struct {
	Amount int64 `json:"amount"`
}

type Balance struct {
	Current   uint64 `json:"current"`
	Allowance uint64 `json:"allowance"`
	Display   string `json:"display"`
}

type Conversion struct {
	Seq          uint64    `json:"seq"`
	Caller       uuid.UUID `json:"caller"`
	SourceAmount uint64    `json:"source_amount"`
	TargetAmount uint64    `json:"target_amount"`
	Rate         uint64    `json:"rate"`
	CreatedAt    time.Time `json:"created_at"`
}

type Bridge struct {
	Rate    uint64    `json:"rate"`
	Custody uuid.UUID `json:"custody"`
}

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func toConversion(c model.Conversion) Conversion {
	return Conversion{
		Seq:          c.Seq,
		Caller:       c.Caller,
		SourceAmount: c.SourceAmount,
		TargetAmount: c.TargetAmount,
		Rate:         c.Rate,
		CreatedAt:    c.CreatedAt,
	}
}
