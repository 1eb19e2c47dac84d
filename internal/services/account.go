package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bountyboard/bounty-server/internal/auth"
	"github.com/bountyboard/bounty-server/internal/models"
	"github.com/bountyboard/bounty-server/internal/repository"
)

// AccountService handles signup, login and account lookups
type AccountService struct {
	store  repository.Accounts
	issuer *auth.Issuer
	logger *zap.SugaredLogger
	now    func() time.Time
}

// NewAccountService creates a new account service
func NewAccountService(store repository.Accounts, issuer *auth.Issuer, logger *zap.SugaredLogger) *AccountService {
	return &AccountService{store: store, issuer: issuer, logger: logger, now: time.Now}
}

// Signup creates an account and returns a token for it
func (s *AccountService) Signup(ctx context.Context, req *models.SignupRequest) (*models.AuthResponse, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	displayName := req.DisplayName
	if displayName == "" {
		displayName = req.Username
	}
	account := &models.Account{
		ID:           uuid.New(),
		Username:     req.Username,
		Email:        req.Email,
		DisplayName:  displayName,
		Role:         req.Role,
		PasswordHash: hash,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.CreateAccount(ctx, account); err != nil {
		return nil, err
	}

	s.logger.Infow("Account created", "account_id", account.ID, "role", account.Role)
	return s.authResponse(account)
}

// Login verifies credentials. Unknown logins and wrong passwords are
// indistinguishable to the caller.
func (s *AccountService) Login(ctx context.Context, req *models.LoginRequest) (*models.AuthResponse, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	account, err := s.store.FindAccountByLogin(ctx, strings.TrimSpace(req.Login))
	if errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("invalid credentials: %w", models.ErrUnauthorized)
	}
	if err != nil {
		return nil, err
	}
	if !auth.CheckPassword(account.PasswordHash, req.Password) {
		return nil, fmt.Errorf("invalid credentials: %w", models.ErrUnauthorized)
	}

	return s.authResponse(account)
}

// Get returns one account
func (s *AccountService) Get(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return s.store.GetAccount(ctx, id)
}

// Delete removes the actor's own account
func (s *AccountService) Delete(ctx context.Context, actor models.Actor, id uuid.UUID) error {
	if actor.ID != id {
		return fmt.Errorf("accounts can only delete themselves: %w", models.ErrForbidden)
	}
	if err := s.store.DeleteAccount(ctx, id); err != nil {
		return err
	}
	s.logger.Infow("Account deleted", "account_id", id)
	return nil
}

func (s *AccountService) authResponse(account *models.Account) (*models.AuthResponse, error) {
	token, expires, err := s.issuer.Issue(models.Actor{ID: account.ID, Role: account.Role})
	if err != nil {
		return nil, err
	}
	return &models.AuthResponse{Token: token, ExpiresAt: expires, Account: account}, nil
}
