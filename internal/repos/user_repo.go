package repos

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"bazaar/internal/domain"
)

type UserRepo struct{}

func NewUserRepo() *UserRepo { return &UserRepo{} }

const userColumns = `u.id, u.email, u.name, u.password_hash, u.role`

func (r *UserRepo) ByEmail(ctx context.Context, q sqlx.QueryerContext, email string) (*domain.User, error) {
	return r.one(ctx, q, `SELECT `+userColumns+` FROM users u WHERE LOWER(u.email) = LOWER(?)`, strings.TrimSpace(email))
}

// ByID returns the user or domain.ErrUserNotFound.
func (r *UserRepo) ByID(ctx context.Context, q sqlx.QueryerContext, id string) (*domain.User, error) {
	u, err := r.one(ctx, q, `SELECT `+userColumns+` FROM users u WHERE u.id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.UserNotFound(id)
	}
	return u, err
}

func (r *UserRepo) one(ctx context.Context, q sqlx.QueryerContext, query string, arg any) (*domain.User, error) {
	var u domain.User
	if err := sqlx.GetContext(ctx, q, &u, query, arg); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepo) Create(ctx context.Context, q sqlx.ExecerContext, u domain.User) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO users(id, email, name, password_hash, role, created_at) VALUES (?, ?, ?, ?, ?, ?)
	`, u.ID, u.Email, u.Name, u.Hash, u.Role, stamp(time.Now()))
	if err != nil {
		return fmt.Errorf("create user %s: %w", u.Email, err)
	}
	return nil
}

func (r *UserRepo) BindSession(ctx context.Context, q sqlx.ExecerContext, sid, userID string) error {
	now := stamp(time.Now())
	_, err := q.ExecContext(ctx, `
		INSERT INTO sessions(id, user_id, created_at, last_seen) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET user_id = excluded.user_id, last_seen = excluded.last_seen
	`, sid, userID, now, now)
	if err != nil {
		return fmt.Errorf("bind session: %w", err)
	}
	return nil
}

// SessionUser resolves a session to its bound user, or returns sql.ErrNoRows.
func (r *UserRepo) SessionUser(ctx context.Context, q sqlx.QueryerContext, sid string) (*domain.User, error) {
	return r.one(ctx, q, `
      SELECT `+userColumns+`
      FROM sessions s JOIN users u ON u.id = s.user_id
      WHERE s.id = ?`, sid)
}

func (r *UserRepo) UnbindSession(ctx context.Context, q sqlx.ExecerContext, sid string) error {
	_, err := q.ExecContext(ctx, `UPDATE sessions SET user_id = NULL, last_seen = ? WHERE id = ?`, stamp(time.Now()), sid)
	if err != nil {
		return fmt.Errorf("unbind session: %w", err)
	}
	return nil
}
