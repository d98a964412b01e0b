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

var ErrNotFound = errors.New("not found")

// userCols — список колонок для SELECT (порядок соответствует scanUser).
const userCols = `id, email, first_name, last_name, COALESCE(phone_number,''), password_hash, is_landlord, is_tenant, has_passkey, date_joined, last_login`

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// scanUser сканирует строку в model.User (порядок соответствует userCols).
func scanUser(s interface{ Scan(dest ...any) error }, u *model.User) error {
	return s.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.PhoneNumber, &u.PasswordHash, &u.IsLandlord, &u.IsTenant, &u.HasPasskey, &u.DateJoined, &u.LastLogin)
}

func (r *UserRepository) Create(ctx context.Context, u *model.User) error {
	defer logger.DeferLogDuration("user.Create", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO users (id, email, first_name, last_name, phone_number, password_hash, is_landlord, is_tenant, has_passkey, date_joined, last_login)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		u.ID, u.Email, u.FirstName, u.LastName, u.PhoneNumber, u.PasswordHash, u.IsLandlord, u.IsTenant, u.HasPasskey, u.DateJoined, u.LastLogin,
	)
	if err != nil {
		return fmt.Errorf("userRepo.Create: %w", err)
	}
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	defer logger.DeferLogDuration("user.GetByID", time.Now())()
	u := &model.User{}
	row := r.pool.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id)
	if err := scanUser(row, u); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("userRepo.GetByID: %w", err)
	}
	return u, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	defer logger.DeferLogDuration("user.GetByEmail", time.Now())()
	u := &model.User{}
	row := r.pool.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE email = $1`, email)
	if err := scanUser(row, u); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("userRepo.GetByEmail: %w", err)
	}
	return u, nil
}

// UpdateLastLogin отмечает момент успешного входа.
func (r *UserRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	defer logger.DeferLogDuration("user.UpdateLastLogin", time.Now())()
	_, err := r.pool.Exec(ctx, `UPDATE users SET last_login = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("userRepo.UpdateLastLogin: %w", err)
	}
	return nil
}

// SetHasPasskey выставляет флаг наличия passkey (флипается при привязке учётки).
func (r *UserRepository) SetHasPasskey(ctx context.Context, id string, has bool) error {
	defer logger.DeferLogDuration("user.SetHasPasskey", time.Now())()
	_, err := r.pool.Exec(ctx, `UPDATE users SET has_passkey = $2 WHERE id = $1`, id, has)
	if err != nil {
		return fmt.Errorf("userRepo.SetHasPasskey: %w", err)
	}
	return nil
}
