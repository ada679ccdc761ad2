package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/arenaworks/wager-arena/models"
	"github.com/arenaworks/wager-arena/repositories"
)

type AccountService interface {
	GetProfile(ctx context.Context, id int) (*models.Account, error)
	Block(ctx context.Context, userID, blockedUserID int) error
	Unblock(ctx context.Context, userID, blockedUserID int) error
	Deactivate(ctx context.Context, id int) error
}

type accountService struct {
	accountRepo repositories.AccountRepository
}

func NewAccountService(accountRepo repositories.AccountRepository) AccountService {
	return &accountService{accountRepo: accountRepo}
}

func (s *accountService) GetProfile(ctx context.Context, id int) (*models.Account, error) {
	account, err := s.accountRepo.GetByID(ctx, nil, id)
	if err != nil {
		if errors.Is(err, repositories.ErrAccountNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to load account %d: %w", id, err)
	}
	account.PasswordHash = ""
	return account, nil
}

func (s *accountService) Block(ctx context.Context, userID, blockedUserID int) error {
	if userID == blockedUserID {
		return fmt.Errorf("%w: cannot block yourself", ErrValidationFailed)
	}
	if _, err := s.GetProfile(ctx, blockedUserID); err != nil {
		return err
	}
	err := s.accountRepo.Block(ctx, userID, blockedUserID)
	if err != nil && !errors.Is(err, repositories.ErrAlreadyBlocked) {
		return err
	}
	return nil
}

func (s *accountService) Unblock(ctx context.Context, userID, blockedUserID int) error {
	return s.accountRepo.Unblock(ctx, userID, blockedUserID)
}

// Deactivate bars an account from any future escrow. Already escrowed
// stakes still settle or refund through the normal flows.
func (s *accountService) Deactivate(ctx context.Context, id int) error {
	err := s.accountRepo.Deactivate(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrAccountNotFound) {
			return ErrAccountNotFound
		}
		return err
	}
	return nil
}
