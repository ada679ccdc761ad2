package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/arenaworks/wager-arena/models"
	"github.com/arenaworks/wager-arena/repositories"
	"github.com/arenaworks/wager-arena/settlement"
)

type CreateChallengeInput struct {
	Game       string `json:"game"`
	Platform   string `json:"platform"`
	BetAmount  int64  `json:"bet_amount"`
	OpponentID *int   `json:"opponent_id,omitempty"`
}

type SubmitReportInput struct {
	ClaimedWinner int    `json:"claimed_winner"`
	Evidence      string `json:"evidence"`
}

type ChallengeService interface {
	Create(ctx context.Context, creatorID int, input CreateChallengeInput) (*models.Challenge, error)
	Accept(ctx context.Context, challengeID string, userID int) (*models.Challenge, error)
	Cancel(ctx context.Context, challengeID string, userID int, asAdmin bool) error
	SubmitReport(ctx context.Context, challengeID string, userID int, input SubmitReportInput) (*models.Challenge, error)
	ResolveDispute(ctx context.Context, challengeID string, winnerID int) (*models.Challenge, error)
	Archive(ctx context.Context, challengeID string, userID int) error
	Get(ctx context.Context, challengeID string) (*models.Challenge, error)
	ListOpen(ctx context.Context) ([]*models.Challenge, error)
	ListForUser(ctx context.Context, userID int) ([]*models.Challenge, error)
	ExpireOpenChallenges(ctx context.Context) (int, error)
}

type challengeService struct {
	tx            repositories.TxRunner
	challengeRepo repositories.ChallengeRepository
	accountRepo   repositories.AccountRepository
	ledger        *Ledger
	notifier      Notifier
	leaderboard   *LeaderboardService
	logger        *slog.Logger
	now           func() time.Time
}

func NewChallengeService(
	tx repositories.TxRunner,
	challengeRepo repositories.ChallengeRepository,
	accountRepo repositories.AccountRepository,
	ledger *Ledger,
	notifier Notifier,
	leaderboard *LeaderboardService,
	logger *slog.Logger,
) ChallengeService {
	return &challengeService{
		tx:            tx,
		challengeRepo: challengeRepo,
		accountRepo:   accountRepo,
		ledger:        ledger,
		notifier:      notifier,
		leaderboard:   leaderboard,
		logger:        logger,
		now:           time.Now,
	}
}

func (s *challengeService) Create(ctx context.Context, creatorID int, input CreateChallengeInput) (*models.Challenge, error) {
	if input.Game == "" || input.Platform == "" {
		return nil, fmt.Errorf("%w: game and platform are required", ErrValidationFailed)
	}
	if input.BetAmount < 0 {
		return nil, fmt.Errorf("%w: bet amount must not be negative", ErrValidationFailed)
	}
	if input.OpponentID != nil && *input.OpponentID == creatorID {
		return nil, fmt.Errorf("%w: cannot challenge yourself", ErrValidationFailed)
	}

	now := s.now()
	challenge := &models.Challenge{
		ID:        uuid.NewString(),
		Game:      input.Game,
		Platform:  input.Platform,
		BetAmount: input.BetAmount,
		Status:    models.ChallengeOpen,
		CreatorID: creatorID,
		CreatedAt: now,
		ExpiresAt: now.Add(models.OpenChallengeTTL),
	}
	if input.OpponentID != nil {
		challenge.Private = true
		challenge.OpponentID = input.OpponentID
	}

	err := s.tx.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		if input.OpponentID != nil {
			blocked, err := s.accountRepo.EitherBlocked(ctx, exec, creatorID, *input.OpponentID)
			if err != nil {
				return err
			}
			if blocked {
				return ErrForbidden
			}
		}
		// Creator's stake is escrowed up front.
		if err := s.ledger.Escrow(ctx, exec, creatorID, challenge.BetAmount); err != nil {
			return err
		}
		return s.challengeRepo.Create(ctx, exec, challenge)
	})
	if err != nil {
		return nil, err
	}

	if challenge.OpponentID != nil {
		s.notifier.NotifyUser(*challenge.OpponentID, EventChallengeReceived, challenge)
	}
	return challenge, nil
}

func (s *challengeService) Accept(ctx context.Context, challengeID string, userID int) (*models.Challenge, error) {
	var (
		accepted     *models.Challenge
		expiredStale bool
	)

	err := s.tx.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		challenge, err := s.getForUpdate(ctx, exec, challengeID)
		if err != nil {
			return err
		}
		if challenge.Expired(s.now()) {
			// Lazy expiry: refund the creator, commit that, and report
			// the challenge as gone. Returning an error here would roll
			// the refund back.
			if err := s.expireLocked(ctx, exec, challenge); err != nil {
				return err
			}
			expiredStale = true
			return nil
		}
		if challenge.Status != models.ChallengeOpen {
			return ErrInvalidTransition
		}
		if challenge.CreatorID == userID {
			return fmt.Errorf("%w: cannot accept your own challenge", ErrInvalidTransition)
		}
		if challenge.Private && (challenge.OpponentID == nil || *challenge.OpponentID != userID) {
			return ErrForbidden
		}

		blocked, err := s.accountRepo.EitherBlocked(ctx, exec, challenge.CreatorID, userID)
		if err != nil {
			return err
		}
		if blocked {
			return ErrForbidden
		}

		// Acceptor's stake is escrowed at acceptance.
		if err := s.ledger.Escrow(ctx, exec, userID, challenge.BetAmount); err != nil {
			return err
		}
		if err := s.challengeRepo.SetOpponent(ctx, exec, challengeID, userID); err != nil {
			return err
		}
		if err := s.challengeRepo.UpdateStatus(ctx, exec, challengeID, models.ChallengeOpen, models.ChallengeAccepted); err != nil {
			return err
		}

		challenge.OpponentID = &userID
		challenge.Status = models.ChallengeAccepted
		accepted = challenge
		return nil
	})
	if err != nil {
		return nil, err
	}
	if expiredStale {
		return nil, ErrChallengeNotFound
	}

	s.notifier.NotifyUser(accepted.CreatorID, EventChallengeAccepted, accepted)
	return accepted, nil
}

func (s *challengeService) Cancel(ctx context.Context, challengeID string, userID int, asAdmin bool) error {
	var parties []int

	err := s.tx.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		challenge, err := s.getForUpdate(ctx, exec, challengeID)
		if err != nil {
			return err
		}

		switch challenge.Status {
		case models.ChallengeOpen:
			if !asAdmin && challenge.CreatorID != userID {
				return ErrForbidden
			}
			// Only the creator has escrowed so far.
			if err := s.ledger.Credit(ctx, exec, challenge.CreatorID, challenge.BetAmount); err != nil {
				return err
			}
			parties = []int{challenge.CreatorID}
			return s.challengeRepo.UpdateStatus(ctx, exec, challengeID, models.ChallengeOpen, models.ChallengeCancelled)

		case models.ChallengeAccepted:
			if !asAdmin && !challenge.IsParticipant(userID) {
				return ErrForbidden
			}
			parties = []int{challenge.CreatorID, *challenge.OpponentID}
			for _, id := range orderedPair(challenge.CreatorID, *challenge.OpponentID) {
				if err := s.ledger.Credit(ctx, exec, id, challenge.BetAmount); err != nil {
					return err
				}
			}
			return s.challengeRepo.UpdateStatus(ctx, exec, challengeID, models.ChallengeAccepted, models.ChallengeCancelled)

		case models.ChallengeDisputed:
			// Voiding a disputed wager is an admin call, refunding both
			// sides instead of picking a winner.
			if !asAdmin {
				return ErrForbidden
			}
			parties = []int{challenge.CreatorID, *challenge.OpponentID}
			for _, id := range orderedPair(challenge.CreatorID, *challenge.OpponentID) {
				if err := s.ledger.Credit(ctx, exec, id, challenge.BetAmount); err != nil {
					return err
				}
			}
			return s.challengeRepo.UpdateStatus(ctx, exec, challengeID, models.ChallengeDisputed, models.ChallengeCancelled)

		default:
			return ErrInvalidTransition
		}
	})
	if err != nil {
		return err
	}

	for _, id := range parties {
		s.notifier.NotifyUser(id, EventChallengeExpired, map[string]string{"challenge_id": challengeID, "reason": "cancelled"})
	}
	return nil
}

func (s *challengeService) SubmitReport(ctx context.Context, challengeID string, userID int, input SubmitReportInput) (*models.Challenge, error) {
	var (
		updated *models.Challenge
		winner  int
		loser   int
	)

	err := s.tx.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		challenge, err := s.getForUpdate(ctx, exec, challengeID)
		if err != nil {
			return err
		}
		if challenge.Status != models.ChallengeAccepted {
			return ErrInvalidTransition
		}

		decision, err := settlement.Record(
			challenge.Results, userID, input.ClaimedWinner, input.Evidence,
			challenge.CreatorID, *challenge.OpponentID, s.now())
		if err != nil {
			return mapSettlementError(err)
		}
		if err := s.challengeRepo.AddReport(ctx, exec, challengeID, decision.Report); err != nil {
			if errors.Is(err, repositories.ErrDuplicateResultReport) {
				return ErrDuplicateReport
			}
			return err
		}
		challenge.Results = append(challenge.Results, decision.Report)

		switch decision.Outcome {
		case settlement.OutcomePending:
			// A single report never advances the state.

		case settlement.OutcomeAgreed:
			winner = decision.Winner
			loser = otherParticipant(challenge, winner)
			if err := s.settleLocked(ctx, exec, challenge, winner, loser); err != nil {
				return err
			}

		case settlement.OutcomeDisputed:
			if err := s.challengeRepo.UpdateStatus(ctx, exec, challengeID, models.ChallengeAccepted, models.ChallengeDisputed); err != nil {
				return err
			}
			challenge.Status = models.ChallengeDisputed
		}

		updated = challenge
		return nil
	})
	if err != nil {
		return nil, err
	}

	switch updated.Status {
	case models.ChallengeCompleted:
		s.afterSettlement(updated, winner, loser, EventChallengeSettled)
	case models.ChallengeDisputed:
		s.notifier.NotifyUser(updated.CreatorID, EventChallengeDisputed, updated)
		s.notifier.NotifyUser(*updated.OpponentID, EventChallengeDisputed, updated)
	}
	return updated, nil
}

// ResolveDispute is the admin override: the only path out of the
// disputed state, and it never auto-triggers.
func (s *challengeService) ResolveDispute(ctx context.Context, challengeID string, winnerID int) (*models.Challenge, error) {
	var (
		updated *models.Challenge
		loser   int
	)

	err := s.tx.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		challenge, err := s.getForUpdate(ctx, exec, challengeID)
		if err != nil {
			return err
		}
		if challenge.Status != models.ChallengeDisputed {
			return ErrInvalidTransition
		}
		if err := settlement.AdminRuling(winnerID, challenge.CreatorID, *challenge.OpponentID); err != nil {
			return mapSettlementError(err)
		}

		loser = otherParticipant(challenge, winnerID)
		if err := s.settleLocked(ctx, exec, challenge, winnerID, loser); err != nil {
			return err
		}
		updated = challenge
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterSettlement(updated, winnerID, loser, EventDisputeResolved)
	return updated, nil
}

// settleLocked applies the one and only settlement of a challenge:
// winner paid double the stake, win/loss counters updated, status
// completed. The caller holds the challenge row lock and has verified
// the current status.
func (s *challengeService) settleLocked(ctx context.Context, exec repositories.SQLExecutor, challenge *models.Challenge, winnerID, loserID int) error {
	if err := s.challengeRepo.SetWinner(ctx, exec, challenge.ID, winnerID, models.ChallengeCompleted); err != nil {
		return err
	}
	if err := s.ledger.Credit(ctx, exec, winnerID, 2*challenge.BetAmount); err != nil {
		return err
	}
	if err := s.ledger.RecordResult(ctx, exec, winnerID, loserID); err != nil {
		return err
	}
	challenge.Status = models.ChallengeCompleted
	challenge.WinnerID = &winnerID
	return nil
}

func (s *challengeService) afterSettlement(challenge *models.Challenge, winnerID, loserID int, event string) {
	s.notifier.NotifyUser(winnerID, event, challenge)
	s.notifier.NotifyUser(loserID, event, challenge)
	if s.leaderboard != nil {
		s.leaderboard.RecordWin(context.Background(), winnerID)
	}
}

func (s *challengeService) Archive(ctx context.Context, challengeID string, userID int) error {
	challenge, err := s.Get(ctx, challengeID)
	if err != nil {
		return err
	}
	if !challenge.IsParticipant(userID) {
		return ErrForbidden
	}
	if !challenge.Terminal() {
		return ErrInvalidTransition
	}
	return s.challengeRepo.Archive(ctx, challengeID, userID)
}

func (s *challengeService) Get(ctx context.Context, challengeID string) (*models.Challenge, error) {
	challenge, err := s.challengeRepo.GetByID(ctx, nil, challengeID)
	if err != nil {
		if errors.Is(err, repositories.ErrChallengeNotFound) {
			return nil, ErrChallengeNotFound
		}
		return nil, err
	}
	return challenge, nil
}

func (s *challengeService) ListOpen(ctx context.Context) ([]*models.Challenge, error) {
	return s.challengeRepo.ListOpen(ctx, s.now())
}

func (s *challengeService) ListForUser(ctx context.Context, userID int) ([]*models.Challenge, error) {
	return s.challengeRepo.ListForUser(ctx, userID)
}

// ExpireOpenChallenges sweeps open challenges past their TTL, refunding
// each creator exactly once. Each expiry is its own transaction under
// the row lock, so a racing accept either wins cleanly or sees the
// challenge gone.
func (s *challengeService) ExpireOpenChallenges(ctx context.Context) (int, error) {
	ids, err := s.challengeRepo.ListExpiredOpenIDs(ctx, s.now())
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, id := range ids {
		var creatorID int
		err := s.tx.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
			challenge, err := s.getForUpdate(ctx, exec, id)
			if err != nil {
				return err
			}
			if !challenge.Expired(s.now()) {
				// Accepted (or otherwise moved on) since the listing.
				return nil
			}
			creatorID = challenge.CreatorID
			return s.expireLocked(ctx, exec, challenge)
		})
		if err != nil {
			s.logger.Error("failed to expire challenge", slog.String("challenge_id", id), slog.Any("error", err))
			continue
		}
		if creatorID != 0 {
			expired++
			s.notifier.NotifyUser(creatorID, EventChallengeExpired, map[string]string{"challenge_id": id, "reason": "expired"})
		}
	}
	return expired, nil
}

// expireLocked cancels an expired open challenge and refunds the
// creator. The status guard on the update makes the refund apply at
// most once even if two expiry checks race.
func (s *challengeService) expireLocked(ctx context.Context, exec repositories.SQLExecutor, challenge *models.Challenge) error {
	if err := s.challengeRepo.UpdateStatus(ctx, exec, challenge.ID, models.ChallengeOpen, models.ChallengeCancelled); err != nil {
		return err
	}
	return s.ledger.Credit(ctx, exec, challenge.CreatorID, challenge.BetAmount)
}

func (s *challengeService) getForUpdate(ctx context.Context, exec repositories.SQLExecutor, challengeID string) (*models.Challenge, error) {
	challenge, err := s.challengeRepo.GetByIDForUpdate(ctx, exec, challengeID)
	if err != nil {
		if errors.Is(err, repositories.ErrChallengeNotFound) {
			return nil, ErrChallengeNotFound
		}
		return nil, err
	}
	return challenge, nil
}

func otherParticipant(challenge *models.Challenge, userID int) int {
	if challenge.CreatorID == userID {
		return *challenge.OpponentID
	}
	return challenge.CreatorID
}

func orderedPair(a, b int) [2]int {
	if a < b {
		return [2]int{a, b}
	}
	return [2]int{b, a}
}

func mapSettlementError(err error) error {
	switch {
	case errors.Is(err, settlement.ErrDuplicateReport):
		return ErrDuplicateReport
	case errors.Is(err, settlement.ErrNotParticipant):
		return ErrForbidden
	case errors.Is(err, settlement.ErrInvalidWinner):
		return fmt.Errorf("%w: claimed winner is not a participant", ErrValidationFailed)
	default:
		return err
	}
}
