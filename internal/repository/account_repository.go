package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	appErrors "github.com/unclebandit/charityng-backend/internal/errors"
	"github.com/unclebandit/charityng-backend/internal/model"
)

const pqUniqueViolation = "23505"

// AccountRepository stores one lookup space in PostgreSQL. Users and staff
// have identical tables named after the space.
type AccountRepository struct {
	DB    *sqlx.DB
	Space Space
}

func NewAccountRepository(db *sqlx.DB, space Space) *AccountRepository {
	return &AccountRepository{DB: db, Space: space}
}

func (r *AccountRepository) accounts() string    { return string(r.Space) }
func (r *AccountRepository) apiKeys() string     { return string(r.Space) + "_api_keys" }
func (r *AccountRepository) resetTokens() string { return string(r.Space) + "_reset_tokens" }

const accountColumns = `id, email, first_name, last_name, password_hash, bio, profile_image_url, created_at, updated_at`

func (r *AccountRepository) Create(ctx context.Context, a *model.Account) error {
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	a.Email = strings.ToLower(a.Email)

	_, err := r.DB.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, r.accounts(), accountColumns),
		a.ID, a.Email, a.FirstName, a.LastName, a.PasswordHash, a.Bio, a.ProfileImageURL, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return appErrors.ErrEmailTaken
		}
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

func (r *AccountRepository) getOne(ctx context.Context, where string, arg interface{}) (*model.Account, error) {
	var a model.Account
	err := r.DB.GetContext(ctx, &a,
		fmt.Sprintf(`SELECT %s FROM %s WHERE %s`, accountColumns, r.accounts(), where), arg)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &a, nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (*model.Account, error) {
	return r.getOne(ctx, "id = $1", id)
}

func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*model.Account, error) {
	return r.getOne(ctx, "email = $1", strings.ToLower(email))
}

func (r *AccountRepository) FindByAPIKey(ctx context.Context, tokenHash string) (*model.Account, error) {
	a, err := r.getOne(ctx,
		fmt.Sprintf("id = (SELECT account_id FROM %s WHERE token = $1)", r.apiKeys()), tokenHash)
	if errors.Is(err, appErrors.ErrAccountNotFound) {
		return nil, nil
	}
	return a, err
}

func (r *AccountRepository) AddAPIKey(ctx context.Context, accountID string, key model.APIKey) error {
	if key.CreatedAt.IsZero() {
		key.CreatedAt = time.Now().UTC()
	}
	_, err := r.DB.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (token, account_id, device_id, created_at) VALUES ($1, $2, $3, $4)
	`, r.apiKeys()), key.Token, accountID, key.DeviceID, key.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqForeignKeyViolation {
			return appErrors.ErrAccountNotFound
		}
		return fmt.Errorf("failed to add api key: %w", err)
	}
	return nil
}

func (r *AccountRepository) RemoveAPIKey(ctx context.Context, tokenHash string) error {
	_, err := r.DB.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE token = $1`, r.apiKeys()), tokenHash)
	if err != nil {
		return fmt.Errorf("failed to remove api key: %w", err)
	}
	return nil
}

func (r *AccountRepository) UpdatePassword(ctx context.Context, accountID, passwordHash string) error {
	result, err := r.DB.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET password_hash = $1, updated_at = $2 WHERE id = $3`, r.accounts()),
		passwordHash, time.Now().UTC(), accountID)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return expectOne(result, appErrors.ErrAccountNotFound)
}

func (r *AccountRepository) UpdateProfileImage(ctx context.Context, accountID, url string) error {
	result, err := r.DB.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET profile_image_url = $1, updated_at = $2 WHERE id = $3`, r.accounts()),
		url, time.Now().UTC(), accountID)
	if err != nil {
		return fmt.Errorf("failed to update profile image: %w", err)
	}
	return expectOne(result, appErrors.ErrAccountNotFound)
}

func (r *AccountRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.DB.GetContext(ctx, &n, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, r.accounts())); err != nil {
		return 0, fmt.Errorf("failed to count accounts: %w", err)
	}
	return n, nil
}

func (r *AccountRepository) CreateResetToken(ctx context.Context, t *model.PasswordResetToken) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	_, err := r.DB.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (token, account_id, created_at) VALUES ($1, $2, $3)
	`, r.resetTokens()), t.Token, t.AccountID, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create reset token: %w", err)
	}
	return nil
}

func (r *AccountRepository) ConsumeResetToken(ctx context.Context, tokenHash string) (*model.PasswordResetToken, error) {
	var t model.PasswordResetToken
	err := r.DB.GetContext(ctx, &t, fmt.Sprintf(`
		DELETE FROM %s WHERE token = $1 RETURNING token, account_id, created_at
	`, r.resetTokens()), tokenHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrInvalidResetToken
		}
		return nil, fmt.Errorf("failed to consume reset token: %w", err)
	}
	return &t, nil
}

var _ AccountRepositoryInterface = (*AccountRepository)(nil)
