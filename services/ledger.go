package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/arenaworks/wager-arena/repositories"
)

// Ledger owns every coin movement. All wager flows are paired
// escrow-then-payout (or escrow-then-refund) updates executed inside
// the caller's transaction, so the total coin supply is invariant
// across any sequence of challenge and tournament operations.
type Ledger struct {
	accounts repositories.AccountRepository
}

func NewLedger(accounts repositories.AccountRepository) *Ledger {
	return &Ledger{accounts: accounts}
}

// Escrow debits a stake before the outcome is known. It fails with
// ErrInsufficientFunds and performs no mutation when the balance is
// short.
func (l *Ledger) Escrow(ctx context.Context, exec repositories.SQLExecutor, accountID int, amount int64) error {
	if amount == 0 {
		return nil
	}
	err := l.accounts.Debit(ctx, exec, accountID, amount)
	if err != nil {
		if errors.Is(err, repositories.ErrInsufficientBalance) {
			return ErrInsufficientFunds
		}
		if errors.Is(err, repositories.ErrAccountNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("escrow failed for account %d: %w", accountID, err)
	}
	return nil
}

// Credit releases held coins to an account: the payout of a settlement
// or the refund of a cancellation.
func (l *Ledger) Credit(ctx context.Context, exec repositories.SQLExecutor, accountID int, amount int64) error {
	if amount == 0 {
		return nil
	}
	err := l.accounts.Credit(ctx, exec, accountID, amount)
	if err != nil {
		if errors.Is(err, repositories.ErrAccountNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("credit failed for account %d: %w", accountID, err)
	}
	return nil
}

// RecordResult updates win/loss counters alongside a settlement.
func (l *Ledger) RecordResult(ctx context.Context, exec repositories.SQLExecutor, winnerID, loserID int) error {
	if err := l.accounts.RecordResult(ctx, exec, winnerID, loserID); err != nil {
		return fmt.Errorf("failed to record result %d over %d: %w", winnerID, loserID, err)
	}
	return nil
}

// EscrowPair debits both parties of a pairing in ascending account id
// order, so two pairings racing on overlapping accounts cannot
// deadlock. On failure the returned id names the account that could
// not cover its stake.
func (l *Ledger) EscrowPair(ctx context.Context, exec repositories.SQLExecutor, accountA, accountB int, amount int64) (failedAccount int, err error) {
	first, second := accountA, accountB
	if second < first {
		first, second = second, first
	}
	if err := l.Escrow(ctx, exec, first, amount); err != nil {
		return first, err
	}
	if err := l.Escrow(ctx, exec, second, amount); err != nil {
		return second, err
	}
	return 0, nil
}
