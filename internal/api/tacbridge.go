package api

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"log/slog"
	"net/http"

	"github.com/ccoveille/go-safecast"
	"github.com/google/uuid"
	"github.com/oapi-codegen/runtime"

	"github.com/v-starostin/tacbridge/internal/bridge"
	"github.com/v-starostin/tacbridge/internal/currency"
	"github.com/v-starostin/tacbridge/internal/model"
	"github.com/v-starostin/tacbridge/internal/service"
	"github.com/v-starostin/tacbridge/internal/storage"
)

type Accounts interface {
	RegisterUser(ctx context.Context, login, password string) error
	Authenticate(ctx context.Context, login, password string) (string, error)
	GetBalance(ctx context.Context, userID uuid.UUID) (model.Balance, error)
	Approve(ctx context.Context, userID uuid.UUID, amount uint64) error
}

type Converter interface {
	Convert(ctx context.Context, caller uuid.UUID, amount uint64) (model.Conversion, error)
	Conversions(ctx context.Context, filter model.ConversionFilter) iter.Seq2[model.Conversion, error]
	Rate() uint64
	Custody() uuid.UUID
}

type TACBridge struct {
	logger    *slog.Logger
	accounts  Accounts
	converter Converter
}

func NewTACBridge(logger *slog.Logger, accounts Accounts, converter Converter) *TACBridge {
	return &TACBridge{
		logger:    logger,
		accounts:  accounts,
		converter: converter,
	}
}

func (b *TACBridge) RegisterUser(w http.ResponseWriter, r *http.Request) {
	var body Credentials
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := b.accounts.RegisterUser(r.Context(), body.Login, body.Password); err != nil {
		b.logger.Info("Register user error", slog.String("error", err.Error()))
		if errors.Is(err, storage.ErrUserExists) {
			writeError(w, http.StatusConflict, "User already exists")
			return
		}
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	token, err := b.accounts.Authenticate(r.Context(), body.Login, body.Password)
	if err != nil {
		b.logger.Info("Authentication error", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	w.Header().Set("Authorization", "Bearer "+token)
	w.WriteHeader(http.StatusOK)
}

func (b *TACBridge) LoginUser(w http.ResponseWriter, r *http.Request) {
	var body Credentials
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	token, err := b.accounts.Authenticate(r.Context(), body.Login, body.Password)
	if err != nil {
		b.logger.Info("Authentication error", slog.String("error", err.Error()))
		if errors.Is(err, service.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	w.Header().Set("Authorization", "Bearer "+token)
	w.WriteHeader(http.StatusOK)
}

func (b *TACBridge) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID := FromContext(r.Context())

	balance, err := b.accounts.GetBalance(r.Context(), userID)
	if err != nil {
		b.logger.Info("Get balance error", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeResponse(w, http.StatusOK, Balance{
		Current:   balance.Current,
		Allowance: balance.Allowance,
		Display:   currency.TAC.Format(balance.Current),
	})
}

func (b *TACBridge) Approve(w http.ResponseWriter, r *http.Request) {
	userID := FromContext(r.Context())

	amount, ok := decodeAmount(w, r)
	if !ok {
		return
	}

	if err := b.accounts.Approve(r.Context(), userID, amount); err != nil {
		b.logger.Info("Approve error", slog.String("error", err.Error()))
		if errors.Is(err, storage.ErrAmountTooBig) {
			writeError(w, http.StatusBadRequest, "Amount too big")
			return
		}
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	w.WriteHeader(http.StatusOK)
}

func (b *TACBridge) Convert(w http.ResponseWriter, r *http.Request) {
	userID := FromContext(r.Context())

	amount, ok := decodeAmount(w, r)
	if !ok {
		return
	}

	c, err := b.converter.Convert(r.Context(), userID, amount)
	if err != nil {
		switch {
		case errors.Is(err, bridge.ErrTransferRejected):
			writeError(w, http.StatusPaymentRequired, bridge.ErrTransferRejected.Error())
		case errors.Is(err, bridge.ErrReentrantCall):
			writeError(w, http.StatusConflict, bridge.ErrReentrantCall.Error())
		case errors.Is(err, bridge.ErrArithmeticOverflow):
			writeError(w, http.StatusUnprocessableEntity, bridge.ErrArithmeticOverflow.Error())
		default:
			writeError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	writeResponse(w, http.StatusOK, toConversion(c))
}

func (b *TACBridge) GetUserConversions(w http.ResponseWriter, r *http.Request) {
	filter, ok := b.bindFilter(w, r)
	if !ok {
		return
	}
	filter.Caller = FromContext(r.Context())

	conversions, err := b.collect(r.Context(), filter)
	if err != nil {
		b.logger.Info("Get conversions error", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if len(conversions) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeResponse(w, http.StatusOK, conversions)
}

func (b *TACBridge) GetConversions(w http.ResponseWriter, r *http.Request) {
	filter, ok := b.bindFilter(w, r)
	if !ok {
		return
	}

	conversions, err := b.collect(r.Context(), filter)
	if err != nil {
		b.logger.Info("Get conversions error", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeResponse(w, http.StatusOK, conversions)
}

func (b *TACBridge) GetBridge(w http.ResponseWriter, _ *http.Request) {
	writeResponse(w, http.StatusOK, Bridge{
		Rate:    b.converter.Rate(),
		Custody: b.converter.Custody(),
	})
}

func (b *TACBridge) bindFilter(w http.ResponseWriter, r *http.Request) (model.ConversionFilter, bool) {
	var limit *int
	if err := runtime.BindQueryParameter("form", true, false, "limit", r.URL.Query(), &limit); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid format for parameter limit")
		return model.ConversionFilter{}, false
	}

	var filter model.ConversionFilter
	if limit != nil {
		filter.Limit = *limit
	}
	return filter, true
}

func (b *TACBridge) collect(ctx context.Context, filter model.ConversionFilter) ([]Conversion, error) {
	conversions := make([]Conversion, 0)
	for c, err := range b.converter.Conversions(ctx, filter) {
		if err != nil {
			return nil, err
		}
		conversions = append(conversions, toConversion(c))
	}
	return conversions, nil
}

func decodeAmount(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	var body Amount
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return 0, false
	}

	amount, err := safecast.ToUint64(body.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount")
		return 0, false
	}
	return amount, true
}
