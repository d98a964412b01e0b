package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rentline/internal/logger"
	"github.com/rentline/internal/model"
)

// CredentialRepository хранит webauthn-учётки пользователей.
type CredentialRepository struct {
	pool *pgxpool.Pool
}

func NewCredentialRepository(pool *pgxpool.Pool) *CredentialRepository {
	return &CredentialRepository{pool: pool}
}

func (r *CredentialRepository) Create(ctx context.Context, c *model.PasskeyCredential) error {
	defer logger.DeferLogDuration("credential.Create", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO passkey_credentials (id, user_id, data, created_at) VALUES ($1, $2, $3, $4)`,
		c.ID, c.UserID, c.Data, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("credentialRepo.Create: %w", err)
	}
	return nil
}

func (r *CredentialRepository) ListByUserID(ctx context.Context, userID string) ([]model.PasskeyCredential, error) {
	defer logger.DeferLogDuration("credential.ListByUserID", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, data, created_at FROM passkey_credentials WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("credentialRepo.ListByUserID: %w", err)
	}
	defer rows.Close()
	var list []model.PasskeyCredential
	for rows.Next() {
		var c model.PasskeyCredential
		if err := rows.Scan(&c.ID, &c.UserID, &c.Data, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("credentialRepo.ListByUserID scan: %w", err)
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

// UpdateData обновляет сериализованную учётку (счётчик подписей после входа).
func (r *CredentialRepository) UpdateData(ctx context.Context, id string, data []byte) error {
	defer logger.DeferLogDuration("credential.UpdateData", time.Now())()
	_, err := r.pool.Exec(ctx, `UPDATE passkey_credentials SET data = $2 WHERE id = $1`, id, data)
	if err != nil {
		return fmt.Errorf("credentialRepo.UpdateData: %w", err)
	}
	return nil
}
