package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	appErrors "github.com/unclebandit/charityng-backend/internal/errors"
	"github.com/unclebandit/charityng-backend/internal/model"
	"github.com/unclebandit/charityng-backend/internal/repository"
)

// AccountRepository is one lookup space held in process.
type AccountRepository struct {
	mu       sync.Mutex
	accounts map[string]*model.Account
	keys     map[string]string // token hash -> account id
	resets   map[string]model.PasswordResetToken
}

func NewAccountRepository() *AccountRepository {
	return &AccountRepository{
		accounts: make(map[string]*model.Account),
		keys:     make(map[string]string),
		resets:   make(map[string]model.PasswordResetToken),
	}
}

func (r *AccountRepository) Create(ctx context.Context, a *model.Account) error {
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	a.Email = strings.ToLower(a.Email)

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.accounts {
		if existing.Email == a.Email {
			return appErrors.ErrEmailTaken
		}
	}
	r.accounts[a.ID] = cloneAccount(a)
	return nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (*model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return nil, appErrors.ErrAccountNotFound
	}
	return cloneAccount(a), nil
}

func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*model.Account, error) {
	email = strings.ToLower(email)
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if a.Email == email {
			return cloneAccount(a), nil
		}
	}
	return nil, appErrors.ErrAccountNotFound
}

func (r *AccountRepository) FindByAPIKey(ctx context.Context, tokenHash string) (*model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.keys[tokenHash]
	if !ok {
		return nil, nil
	}
	a, ok := r.accounts[id]
	if !ok {
		return nil, nil
	}
	return cloneAccount(a), nil
}

func (r *AccountRepository) AddAPIKey(ctx context.Context, accountID string, key model.APIKey) error {
	if key.CreatedAt.IsZero() {
		key.CreatedAt = time.Now().UTC()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[accountID]
	if !ok {
		return appErrors.ErrAccountNotFound
	}
	a.APIKeys = append(a.APIKeys, key)
	r.keys[key.Token] = accountID
	return nil
}

func (r *AccountRepository) RemoveAPIKey(ctx context.Context, tokenHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.keys[tokenHash]
	if !ok {
		return nil
	}
	delete(r.keys, tokenHash)
	if a, ok := r.accounts[id]; ok {
		kept := a.APIKeys[:0]
		for _, k := range a.APIKeys {
			if k.Token != tokenHash {
				kept = append(kept, k)
			}
		}
		a.APIKeys = kept
	}
	return nil
}

func (r *AccountRepository) UpdatePassword(ctx context.Context, accountID, passwordHash string) error {
	return r.mutate(accountID, func(a *model.Account) {
		a.PasswordHash = passwordHash
	})
}

func (r *AccountRepository) UpdateProfileImage(ctx context.Context, accountID, url string) error {
	return r.mutate(accountID, func(a *model.Account) {
		a.ProfileImageURL = url
	})
}

func (r *AccountRepository) Count(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.accounts), nil
}

func (r *AccountRepository) CreateResetToken(ctx context.Context, t *model.PasswordResetToken) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resets[t.Token] = *t
	return nil
}

func (r *AccountRepository) ConsumeResetToken(ctx context.Context, tokenHash string) (*model.PasswordResetToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.resets[tokenHash]
	if !ok {
		return nil, appErrors.ErrInvalidResetToken
	}
	delete(r.resets, tokenHash)
	return &t, nil
}

func (r *AccountRepository) mutate(id string, fn func(a *model.Account)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return appErrors.ErrAccountNotFound
	}
	fn(a)
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func cloneAccount(a *model.Account) *model.Account {
	out := *a
	out.APIKeys = append([]model.APIKey{}, a.APIKeys...)
	return &out
}

var _ repository.AccountRepositoryInterface = (*AccountRepository)(nil)
