package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/jwa"
	"github.com/lestrrat-go/jwx/jwt"
	"golang.org/x/crypto/bcrypt"

	"github.com/v-starostin/tacbridge/internal/model"
	"github.com/v-starostin/tacbridge/internal/storage"
)

const tokenTTL = 10 * time.Minute

var ErrInvalidCredentials = errors.New("invalid login or password")

type Storage interface {
	AddUser(ctx context.Context, u model.User, balance uint64) error
	GetUser(ctx context.Context, login string) (*model.User, error)
	Balance(ctx context.Context, account uuid.UUID) (uint64, error)
	Allowance(ctx context.Context, owner, spender uuid.UUID) (uint64, error)
	Approve(ctx context.Context, owner, spender uuid.UUID, amount uint64) error
}

// Service manages the accounts that feed the bridge: registration, login
// and the allowance an account grants to the bridge's custody account.
type Service struct {
	logger         *slog.Logger
	storage        Storage
	secret         []byte
	custody        uuid.UUID
	initialBalance uint64
}

func New(logger *slog.Logger, storage Storage, secret []byte, custody uuid.UUID, initialBalance uint64) *Service {
	return &Service{
		logger:         logger,
		storage:        storage,
		secret:         secret,
		custody:        custody,
		initialBalance: initialBalance,
	}
}

func (s *Service) RegisterUser(ctx context.Context, login, password string) error {
	userID, err := uuid.NewRandom()
	if err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	u := model.User{ID: userID, Login: login, Password: string(hash)}
	if err := s.storage.AddUser(ctx, u, s.initialBalance); err != nil {
		return err
	}

	s.logger.Info("User registered", slog.String("user_id", userID.String()))
	return nil
}

func (s *Service) Authenticate(ctx context.Context, login, password string) (string, error) {
	user, err := s.storage.GetUser(ctx, login)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	return s.generateAccessToken(user.ID)
}

func (s *Service) GetBalance(ctx context.Context, userID uuid.UUID) (model.Balance, error) {
	current, err := s.storage.Balance(ctx, userID)
	if err != nil {
		return model.Balance{}, err
	}

	allowance, err := s.storage.Allowance(ctx, userID, s.custody)
	if err != nil {
		return model.Balance{}, err
	}

	return model.Balance{Current: current, Allowance: allowance}, nil
}

// Approve lets the bridge take up to amount source units from userID.
// It replaces any earlier approval.
func (s *Service) Approve(ctx context.Context, userID uuid.UUID, amount uint64) error {
	return s.storage.Approve(ctx, userID, s.custody, amount)
}

func (s *Service) generateAccessToken(id uuid.UUID) (string, error) {
	token := jwt.New()
	now := time.Now()
	if err := token.Set(jwt.SubjectKey, id.String()); err != nil {
		return "", err
	}
	if err := token.Set(jwt.IssuedAtKey, now.Unix()); err != nil {
		return "", err
	}
	if err := token.Set(jwt.ExpirationKey, now.Add(tokenTTL)); err != nil {
		return "", err
	}

	signedToken, err := jwt.Sign(token, jwa.HS256, s.secret)
	if err != nil {
		return "", err
	}

	return string(signedToken), nil
}
