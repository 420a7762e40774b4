package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/aivideopro/aivideopro/internal/auth"
	"github.com/aivideopro/aivideopro/internal/model"
	"github.com/aivideopro/aivideopro/internal/repository"
)

// AccountStore persists users, their ledger and their keys.
type AccountStore interface {
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetOrCreateUser(ctx context.Context, user *model.User) (*model.User, bool, error)
	GrantCredits(ctx context.Context, userID string, amount int, reason model.CreditReason, note string) (int, error)
	ListCreditEntries(ctx context.Context, userID string, limit int) ([]*model.CreditEntry, error)
	CreateAPIKey(ctx context.Context, key *model.APIKey) error
}

// AccountService handles balances, sign-in and admin grants.
type AccountService struct {
	store         AccountStore
	logger        *slog.Logger
	signupCredits int
}

// NewAccountService creates an AccountService. New users start with
// signupCredits.
func NewAccountService(store AccountStore, logger *slog.Logger, signupCredits int) *AccountService {
	return &AccountService{
		store:         store,
		logger:        logger.With("component", "service.accounts"),
		signupCredits: signupCredits,
	}
}

// GetAccount returns the caller's balance.
func (s *AccountService) GetAccount(ctx context.Context, userID string) (*model.AccountResponse, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &model.AccountResponse{
		UserID:  user.ID,
		Email:   user.Email,
		Credits: user.Credits,
	}, nil
}

// ListLedger returns the most recent ledger entries, limit clamped to 1..100.
func (s *AccountService) ListLedger(ctx context.Context, userID string, limit int) ([]*model.CreditEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.store.ListCreditEntries(ctx, userID, limit)
}

// GrantCredits adds an admin grant and returns the new balance.
func (s *AccountService) GrantCredits(ctx context.Context, adminKeyID, userID string, req model.CreditGrantRequest) (int, error) {
	if req.Amount < 1 || req.Amount > maxGrantAmount {
		return 0, fmt.Errorf("%w: amount must be between 1 and %d", ErrInvalidGrant, maxGrantAmount)
	}

	balance, err := s.store.GrantCredits(ctx, userID, req.Amount, model.CreditReasonAdminGrant, strings.TrimSpace(req.Reason))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return 0, ErrUserNotFound
		}
		return 0, err
	}

	s.logger.Info("credits granted",
		"user_id", userID,
		"amount", req.Amount,
		"balance", balance,
		"granted_by", adminKeyID,
	)
	return balance, nil
}

// SignInResult is what a completed sign-in hands back to the caller.
type SignInResult struct {
	User      *model.User
	Created   bool
	APIKey    *model.APIKey
	Plaintext string
}

// SignIn gets or creates the user for a verified email and mints a fresh
// key with the default user scopes.
func (s *AccountService) SignIn(ctx context.Context, email string) (*SignInResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, auth.ErrEmailNotVerified
	}

	user, created, err := s.store.GetOrCreateUser(ctx, &model.User{
		ID:      ulid.Make().String(),
		Email:   email,
		Credits: s.signupCredits,
	})
	if err != nil {
		return nil, fmt.Errorf("get or create user: %w", err)
	}

	key, plaintext, err := auth.NewAPIKey(user.ID, "sign-in", model.DefaultUserScopes, model.TierFree)
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateAPIKey(ctx, key); err != nil {
		return nil, fmt.Errorf("store api key: %w", err)
	}

	if created {
		s.logger.Info("user signed up", "user_id", user.ID, "credits", user.Credits)
	}
	s.logger.Info("api key issued at sign-in", "user_id", user.ID, "key_prefix", key.KeyPrefix)

	return &SignInResult{
		User:      user,
		Created:   created,
		APIKey:    key,
		Plaintext: plaintext,
	}, nil
}
