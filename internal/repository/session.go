package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rentline/internal/logger"
	"github.com/rentline/internal/model"
)

// SessionRepository хранит выданные refresh-токены (по jti).
type SessionRepository struct {
	pool *pgxpool.Pool
}

func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

func (r *SessionRepository) Create(ctx context.Context, s *model.RefreshSession) error {
	defer logger.DeferLogDuration("session.Create", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO refresh_sessions (jti, user_id, created_at, expires_at, revoked_at)
		 VALUES ($1, $2, $3, $4, NULL)`,
		s.JTI, s.UserID, s.CreatedAt, s.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("sessionRepo.Create: %w", err)
	}
	return nil
}

// Get возвращает сессию только если она не отозвана и не истекла.
func (r *SessionRepository) Get(ctx context.Context, jti string) (*model.RefreshSession, error) {
	defer logger.DeferLogDuration("session.Get", time.Now())()
	s := &model.RefreshSession{}
	row := r.pool.QueryRow(ctx,
		`SELECT jti, user_id, created_at, expires_at, revoked_at
		 FROM refresh_sessions
		 WHERE jti = $1 AND revoked_at IS NULL AND expires_at > now()`, jti)
	if err := row.Scan(&s.JTI, &s.UserID, &s.CreatedAt, &s.ExpiresAt, &s.RevokedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("sessionRepo.Get: %w", err)
	}
	return s, nil
}

// Revoke отзывает одну сессию (logout с конкретного устройства).
func (r *SessionRepository) Revoke(ctx context.Context, jti string) error {
	defer logger.DeferLogDuration("session.Revoke", time.Now())()
	_, err := r.pool.Exec(ctx,
		`UPDATE refresh_sessions SET revoked_at = now() WHERE jti = $1 AND revoked_at IS NULL`, jti)
	if err != nil {
		return fmt.Errorf("sessionRepo.Revoke: %w", err)
	}
	return nil
}

// RevokeAllForUser отзывает все сессии пользователя (отключение аккаунта).
func (r *SessionRepository) RevokeAllForUser(ctx context.Context, userID string) error {
	defer logger.DeferLogDuration("session.RevokeAllForUser", time.Now())()
	_, err := r.pool.Exec(ctx,
		`UPDATE refresh_sessions SET revoked_at = now() WHERE user_id = $1 AND revoked_at IS NULL`, userID)
	if err != nil {
		return fmt.Errorf("sessionRepo.RevokeAllForUser: %w", err)
	}
	return nil
}

// DeleteExpired чистит давно истёкшие записи (вызывается периодически).
func (r *SessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	defer logger.DeferLogDuration("session.DeleteExpired", time.Now())()
	tag, err := r.pool.Exec(ctx, `DELETE FROM refresh_sessions WHERE expires_at < now() - interval '7 days'`)
	if err != nil {
		return 0, fmt.Errorf("sessionRepo.DeleteExpired: %w", err)
	}
	return tag.RowsAffected(), nil
}
