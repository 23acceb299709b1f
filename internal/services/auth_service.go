package services

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"bazaar/internal/domain"
	"bazaar/internal/repos"
)

var ErrBadCreds = errors.New("invalid email or password")

// ErrNoSession means the session is anonymous.
var ErrNoSession = errors.New("session not bound to a user")

type AuthService struct {
	tm     *repos.TxManager
	users  *repos.UserRepo
	carts  *CartService
	logger *zap.Logger
}

func NewAuthService(tm *repos.TxManager, users *repos.UserRepo, carts *CartService, logger *zap.Logger) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{tm: tm, users: users, carts: carts, logger: logger}
}

// Login binds the session to the user and folds the session cart into the user cart.
// A failed merge leaves the session cart in place and does not fail the login.
func (s *AuthService) Login(ctx context.Context, sid, email, password string) (*domain.User, error) {
	u, err := s.users.ByEmail(ctx, s.tm.DB(), email)
	if err != nil {
		return nil, ErrBadCreds
	}
	if bcrypt.CompareHashAndPassword([]byte(u.Hash), []byte(password)) != nil {
		return nil, ErrBadCreds
	}
	if err := s.tm.InTx(ctx, func(tx *sqlx.Tx) error {
		return s.users.BindSession(ctx, tx, sid, u.ID)
	}); err != nil {
		return nil, err
	}
	if _, err := s.carts.MergeSessionIntoUser(ctx, sid, u.ID); err != nil {
		s.logger.Warn("cart merge on login failed", zap.String("user", u.ID), zap.Error(err))
	}
	return u, nil
}

func (s *AuthService) Logout(ctx context.Context, sid string) error {
	return s.tm.InTx(ctx, func(tx *sqlx.Tx) error {
		return s.users.UnbindSession(ctx, tx, sid)
	})
}

// CurrentUser resolves a session id; ErrNoSession when nobody is logged in.
func (s *AuthService) CurrentUser(ctx context.Context, sid string) (*domain.User, error) {
	u, err := s.users.SessionUser(ctx, s.tm.DB(), sid)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSession
	}
	return u, err
}
