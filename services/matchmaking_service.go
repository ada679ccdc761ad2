package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/arenaworks/wager-arena/matchmaking"
	"github.com/arenaworks/wager-arena/models"
	"github.com/arenaworks/wager-arena/repositories"
)

type JoinQueueInput struct {
	Game      string `json:"game"`
	Platform  string `json:"platform"`
	BetAmount int64  `json:"bet_amount"`
}

type MatchmakingService interface {
	Join(ctx context.Context, userID int, input JoinQueueInput) error
	Leave(ctx context.Context, userID int) bool
	Counts(ctx context.Context) map[models.QueueKey]int
}

type matchmakingService struct {
	queue         *matchmaking.Queue
	tx            repositories.TxRunner
	challengeRepo repositories.ChallengeRepository
	accountRepo   repositories.AccountRepository
	ledger        *Ledger
	notifier      Notifier
	logger        *slog.Logger
	now           func() time.Time
}

func NewMatchmakingService(
	queue *matchmaking.Queue,
	tx repositories.TxRunner,
	challengeRepo repositories.ChallengeRepository,
	accountRepo repositories.AccountRepository,
	ledger *Ledger,
	notifier Notifier,
	logger *slog.Logger,
) MatchmakingService {
	return &matchmakingService{
		queue:         queue,
		tx:            tx,
		challengeRepo: challengeRepo,
		accountRepo:   accountRepo,
		ledger:        ledger,
		notifier:      notifier,
		logger:        logger,
		now:           time.Now,
	}
}

func (s *matchmakingService) Join(ctx context.Context, userID int, input JoinQueueInput) error {
	if input.Game == "" || input.Platform == "" {
		return fmt.Errorf("%w: game and platform are required", ErrValidationFailed)
	}
	if input.BetAmount < 0 {
		return fmt.Errorf("%w: bet amount must not be negative", ErrValidationFailed)
	}

	// Advisory balance check before queueing. The authoritative check is
	// the guarded debit at pairing time.
	account, err := s.accountRepo.GetByID(ctx, nil, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrAccountNotFound) {
			return ErrAccountNotFound
		}
		return err
	}
	if !account.IsActive {
		return ErrForbidden
	}
	if account.Balance < input.BetAmount {
		return ErrInsufficientFunds
	}

	key := models.QueueKey{Game: input.Game, Platform: input.Platform, BetAmount: input.BetAmount}
	if _, err := s.queue.Enqueue(userID, key); err != nil {
		if errors.Is(err, matchmaking.ErrAlreadyQueued) {
			return ErrAlreadyQueued
		}
		return err
	}

	s.tryPair(ctx, key)
	return nil
}

// Leave removes the caller's ticket. Idempotent; also invoked by the
// websocket hub when a queued user disconnects.
func (s *matchmakingService) Leave(_ context.Context, userID int) bool {
	return s.queue.Dequeue(userID)
}

func (s *matchmakingService) Counts(_ context.Context) map[models.QueueKey]int {
	return s.queue.Counts()
}

// tryPair drains the partition two tickets at a time. When one side of
// a popped pair cannot cover the stake anymore, that side is dropped
// and the solvent side returns to the head of the queue, then pairing
// retries.
func (s *matchmakingService) tryPair(ctx context.Context, key models.QueueKey) {
	for {
		first, second, ok := s.queue.PopPair(key)
		if !ok {
			return
		}

		challenge, failedUser, err := s.createPairing(ctx, first.UserID, second.UserID, key)
		if err == nil {
			s.notifier.NotifyUser(first.UserID, EventMatchFound, challenge)
			s.notifier.NotifyUser(second.UserID, EventMatchFound, challenge)
			continue
		}

		if errors.Is(err, ErrInsufficientFunds) || errors.Is(err, ErrAccountNotFound) {
			solvent := first
			if failedUser == first.UserID {
				solvent = second
			}
			s.queue.PushFront(solvent)
			s.notifier.NotifyUser(failedUser, EventPairingAborted, map[string]string{"reason": "insufficient funds"})
			continue
		}

		// Transient failure: neither side is at fault, both keep their
		// places.
		s.logger.Error("pairing transaction failed",
			slog.Int("user_a", first.UserID), slog.Int("user_b", second.UserID), slog.Any("error", err))
		s.queue.PushFront(second)
		s.queue.PushFront(first)
		return
	}
}

// createPairing escrows both stakes and records the resulting wager as
// an already accepted challenge, all in one transaction.
func (s *matchmakingService) createPairing(ctx context.Context, userA, userB int, key models.QueueKey) (*models.Challenge, int, error) {
	now := s.now()
	opponentID := userB
	challenge := &models.Challenge{
		ID:         uuid.NewString(),
		Game:       key.Game,
		Platform:   key.Platform,
		BetAmount:  key.BetAmount,
		Status:     models.ChallengeAccepted,
		CreatorID:  userA,
		OpponentID: &opponentID,
		CreatedAt:  now,
		ExpiresAt:  now,
	}

	var failedUser int
	err := s.tx.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		failed, err := s.ledger.EscrowPair(ctx, exec, userA, userB, key.BetAmount)
		if err != nil {
			failedUser = failed
			return err
		}
		return s.challengeRepo.Create(ctx, exec, challenge)
	})
	if err != nil {
		return nil, failedUser, err
	}
	return challenge, 0, nil
}
