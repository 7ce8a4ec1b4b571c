package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	appErrors "github.com/unclebandit/charityng-backend/internal/errors"
	"github.com/unclebandit/charityng-backend/internal/logger"
	"github.com/unclebandit/charityng-backend/internal/mail"
	"github.com/unclebandit/charityng-backend/internal/model"
	"github.com/unclebandit/charityng-backend/internal/repository"
	"github.com/unclebandit/charityng-backend/internal/storage"
)

const (
	DefaultProfileImage = "/default.png"
	SystemDeviceID      = "SYSTEM"
	tokenBytes          = 32
)

// IdentityService owns both credential lookup spaces. A token issued in one
// space never resolves in the other.
type IdentityService struct {
	Users         repository.AccountRepositoryInterface
	Staff         repository.AccountRepositoryInterface
	Storage       storage.ObjectStore
	Mailer        mail.Mailer
	ResetTokenTTL time.Duration
	// BcryptCost defaults to bcrypt.DefaultCost when zero.
	BcryptCost int
}

// Session is returned by register and login. APIKey is the raw token and is
// only ever shown here.
type Session struct {
	Account *model.Account `json:"account"`
	APIKey  string         `json:"api_key"`
}

func (s *IdentityService) space(role model.Role) repository.AccountRepositoryInterface {
	if role == model.RoleStaff {
		return s.Staff
	}
	return s.Users
}

// Resolve maps a presented token to its principal. Unknown tokens return
// nil, nil.
func (s *IdentityService) Resolve(ctx context.Context, role model.Role, token string) (*model.Principal, error) {
	if token == "" {
		return nil, nil
	}
	account, err := s.space(role).FindByAPIKey(ctx, hashToken(token))
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, nil
	}
	return account.Principal(role), nil
}

func (s *IdentityService) RegisterUser(ctx context.Context, in RegisterInput) (*Session, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	hash, err := s.hashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	account := &model.Account{
		ID:              uuid.NewString(),
		Email:           in.Email,
		FirstName:       in.FirstName,
		LastName:        in.LastName,
		PasswordHash:    hash,
		Bio:             in.Bio,
		ProfileImageURL: DefaultProfileImage,
	}
	if err := s.Users.Create(ctx, account); err != nil {
		return nil, err
	}

	logger.FromContext(ctx).WithField("user_id", account.ID).Info("user registered")
	return s.issue(ctx, s.Users, account, in.DeviceID)
}

func (s *IdentityService) LoginUser(ctx context.Context, in LoginInput) (*Session, error) {
	return s.login(ctx, s.Users, in)
}

func (s *IdentityService) LoginStaff(ctx context.Context, in LoginInput) (*Session, error) {
	return s.login(ctx, s.Staff, in)
}

// login reports an unknown email as not found and a wrong password as an
// authentication failure.
func (s *IdentityService) login(ctx context.Context, repo repository.AccountRepositoryInterface, in LoginInput) (*Session, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	account, err := repo.GetByEmail(ctx, in.Email)
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(in.Password)); err != nil {
		return nil, appErrors.ErrInvalidCredentials
	}
	return s.issue(ctx, repo, account, in.DeviceID)
}

func (s *IdentityService) issue(ctx context.Context, repo repository.AccountRepositoryInterface, account *model.Account, deviceID string) (*Session, error) {
	token, err := randomToken()
	if err != nil {
		return nil, err
	}
	key := model.APIKey{Token: hashToken(token), DeviceID: deviceID, CreatedAt: time.Now().UTC()}
	if err := repo.AddAPIKey(ctx, account.ID, key); err != nil {
		return nil, err
	}
	return &Session{Account: account, APIKey: token}, nil
}

func (s *IdentityService) CreateStaff(ctx context.Context, p *model.Principal, in StaffInput) (*model.Account, error) {
	if err := Authorize(ActionManageStaff, p, ""); err != nil {
		return nil, err
	}
	return s.createStaff(ctx, in)
}

func (s *IdentityService) createStaff(ctx context.Context, in StaffInput) (*model.Account, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	hash, err := s.hashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	account := &model.Account{
		ID:           uuid.NewString(),
		Email:        in.Email,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		PasswordHash: hash,
	}
	if err := s.Staff.Create(ctx, account); err != nil {
		return nil, err
	}
	logger.FromContext(ctx).WithField("staff_id", account.ID).Info("staff user created")
	return account, nil
}

// BootstrapStaff creates the first staff user when the staff space is
// empty. It returns false when staff already exist or no credentials are
// configured.
func (s *IdentityService) BootstrapStaff(ctx context.Context, email, password string) (bool, error) {
	if email == "" || password == "" {
		return false, nil
	}
	n, err := s.Staff.Count(ctx)
	if err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}

	account, err := s.createStaff(ctx, StaffInput{
		Email:     email,
		FirstName: "Admin",
		LastName:  "Admin",
		Password:  password,
	})
	if err != nil {
		return false, fmt.Errorf("failed to bootstrap staff user: %w", err)
	}
	if _, err := s.issue(ctx, s.Staff, account, SystemDeviceID); err != nil {
		return false, err
	}
	logger.FromContext(ctx).WithField("email", account.Email).Info("initial staff user created")
	return true, nil
}

// RevokeCredential removes the presented token from the role's space.
func (s *IdentityService) RevokeCredential(ctx context.Context, role model.Role, token string) error {
	if token == "" {
		return appErrors.NewUnauthenticated("missing api key")
	}
	return s.space(role).RemoveAPIKey(ctx, hashToken(token))
}

func (s *IdentityService) Me(ctx context.Context, p *model.Principal) (*model.Account, error) {
	if p == nil {
		return nil, appErrors.NewUnauthenticated("authentication required")
	}
	return s.space(p.Role).GetByID(ctx, p.ID)
}

// UploadProfileImage stores the image and points the user's profile at it.
// Upload failures are returned and leave the profile unchanged.
func (s *IdentityService) UploadProfileImage(ctx context.Context, p *model.Principal, filename, contentType string, body []byte) (*model.Account, error) {
	if err := Authorize(ActionManageProfile, p, ""); err != nil {
		return nil, err
	}
	if filename == "" || len(body) == 0 {
		return nil, fieldError("file", "is required")
	}

	key := path.Join("users", p.ID, "profileImages", uuid.NewString(), path.Base(filename))
	url, err := s.Storage.Put(ctx, key, contentType, body)
	if err != nil {
		return nil, fmt.Errorf("failed to upload profile image: %w", err)
	}
	if err := s.Users.UpdateProfileImage(ctx, p.ID, url); err != nil {
		return nil, err
	}
	return s.Users.GetByID(ctx, p.ID)
}

// RequestPasswordReset mails a reset token. Unknown addresses succeed
// silently and mail delivery happens in the background.
func (s *IdentityService) RequestPasswordReset(ctx context.Context, email, locale string) error {
	if email == "" {
		return fieldError("email", "is required")
	}
	account, err := s.Users.GetByEmail(ctx, email)
	if errors.Is(err, appErrors.ErrAccountNotFound) {
		logger.FromContext(ctx).Debug("password reset requested for unknown email")
		return nil
	}
	if err != nil {
		return err
	}

	token, err := randomToken()
	if err != nil {
		return err
	}
	reset := &model.PasswordResetToken{Token: hashToken(token), AccountID: account.ID, CreatedAt: time.Now().UTC()}
	if err := s.Users.CreateResetToken(ctx, reset); err != nil {
		return err
	}

	mail.SendAsync(s.Mailer, "Reset your password", []string{account.Email}, "forgotten-password", locale, map[string]any{
		"FirstName": account.FirstName,
		"Token":     token,
	})
	return nil
}

func (s *IdentityService) ResetPassword(ctx context.Context, in ResetPasswordInput) error {
	if err := validateInput(in); err != nil {
		return err
	}
	reset, err := s.Users.ConsumeResetToken(ctx, hashToken(in.Token))
	if err != nil {
		return err
	}
	if s.ResetTokenTTL > 0 && time.Since(reset.CreatedAt) > s.ResetTokenTTL {
		return appErrors.ErrInvalidResetToken
	}

	hash, err := s.hashPassword(in.Password)
	if err != nil {
		return err
	}
	if err := s.Users.UpdatePassword(ctx, reset.AccountID, hash); err != nil {
		return err
	}
	logger.FromContext(ctx).WithField("user_id", reset.AccountID).Info("password reset")
	return nil
}

func (s *IdentityService) hashPassword(password string) (string, error) {
	cost := s.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// randomToken returns 256 random bits, hex encoded.
func randomToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// hashToken is the form tokens are stored and looked up in.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
