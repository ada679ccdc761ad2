package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/arenaworks/wager-arena/brackets"
	"github.com/arenaworks/wager-arena/models"
	"github.com/arenaworks/wager-arena/repositories"
	"github.com/arenaworks/wager-arena/settlement"
)

type CreateTournamentInput struct {
	Name            string `json:"name"`
	Game            string `json:"game"`
	Platform        string `json:"platform"`
	BetAmount       int64  `json:"bet_amount"`
	MaxParticipants int    `json:"max_participants"`
}

type TournamentService interface {
	Create(ctx context.Context, creatorID int, input CreateTournamentInput) (*models.Tournament, error)
	Register(ctx context.Context, tournamentID, userID int) error
	Leave(ctx context.Context, tournamentID, userID int) error
	RemoveParticipant(ctx context.Context, tournamentID, userID int) error
	Start(ctx context.Context, tournamentID, requesterID int, asAdmin bool) (*models.Tournament, error)
	ReportMatchResult(ctx context.Context, tournamentID, matchID, userID int, input SubmitReportInput) (*models.Match, error)
	ResolveMatch(ctx context.Context, tournamentID, matchID, winnerID int) (*models.Match, error)
	Cancel(ctx context.Context, tournamentID int) error
	Get(ctx context.Context, tournamentID int) (*models.Tournament, error)
	List(ctx context.Context, status *models.TournamentStatus) ([]*models.Tournament, error)
}

type tournamentService struct {
	tx             repositories.TxRunner
	tournamentRepo repositories.TournamentRepository
	matchRepo      repositories.MatchRepository
	ledger         *Ledger
	generator      brackets.Generator
	notifier       Notifier
	leaderboard    *LeaderboardService
	logger         *slog.Logger
	now            func() time.Time
}

func NewTournamentService(
	tx repositories.TxRunner,
	tournamentRepo repositories.TournamentRepository,
	matchRepo repositories.MatchRepository,
	ledger *Ledger,
	generator brackets.Generator,
	notifier Notifier,
	leaderboard *LeaderboardService,
	logger *slog.Logger,
) TournamentService {
	return &tournamentService{
		tx:             tx,
		tournamentRepo: tournamentRepo,
		matchRepo:      matchRepo,
		ledger:         ledger,
		generator:      generator,
		notifier:       notifier,
		leaderboard:    leaderboard,
		logger:         logger,
		now:            time.Now,
	}
}

func (s *tournamentService) Create(ctx context.Context, creatorID int, input CreateTournamentInput) (*models.Tournament, error) {
	if input.Name == "" || input.Game == "" || input.Platform == "" {
		return nil, fmt.Errorf("%w: name, game and platform are required", ErrValidationFailed)
	}
	if input.BetAmount < 0 {
		return nil, fmt.Errorf("%w: bet amount must not be negative", ErrValidationFailed)
	}
	if input.MaxParticipants < 2 {
		return nil, fmt.Errorf("%w: tournament needs room for at least 2 participants", ErrValidationFailed)
	}

	tournament := &models.Tournament{
		Name:            input.Name,
		Game:            input.Game,
		Platform:        input.Platform,
		BetAmount:       input.BetAmount,
		MaxParticipants: input.MaxParticipants,
		Status:          models.TournamentRegistration,
		CreatorID:       creatorID,
	}
	if err := s.tournamentRepo.Create(ctx, tournament); err != nil {
		return nil, err
	}
	return tournament, nil
}

// Register escrows the entry stake and appends the user to the bracket
// seeding. Seeds are assigned under the tournament row lock, so they
// are dense and follow registration order exactly.
func (s *tournamentService) Register(ctx context.Context, tournamentID, userID int) error {
	return s.tx.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		tournament, err := s.getForUpdate(ctx, exec, tournamentID)
		if err != nil {
			return err
		}
		if tournament.Status != models.TournamentRegistration {
			return ErrInvalidTransition
		}

		participants, err := s.tournamentRepo.ListParticipants(ctx, exec, tournamentID)
		if err != nil {
			return err
		}
		if len(participants) >= tournament.MaxParticipants {
			return ErrTournamentFull
		}
		for _, p := range participants {
			if p.UserID == userID {
				return ErrAlreadyRegistered
			}
		}

		if err := s.ledger.Escrow(ctx, exec, userID, tournament.BetAmount); err != nil {
			return err
		}

		participant := &models.Participant{
			TournamentID: tournamentID,
			UserID:       userID,
			Seed:         nextSeed(participants),
		}
		if err := s.tournamentRepo.AddParticipant(ctx, exec, participant); err != nil {
			if errors.Is(err, repositories.ErrRegistrationConflict) {
				return ErrAlreadyRegistered
			}
			return err
		}
		return nil
	})
}

// Leave lets a participant withdraw before the bracket is generated.
// The stake is refunded in full.
func (s *tournamentService) Leave(ctx context.Context, tournamentID, userID int) error {
	return s.withdraw(ctx, tournamentID, userID)
}

// RemoveParticipant is the admin variant of Leave.
func (s *tournamentService) RemoveParticipant(ctx context.Context, tournamentID, userID int) error {
	return s.withdraw(ctx, tournamentID, userID)
}

func (s *tournamentService) withdraw(ctx context.Context, tournamentID, userID int) error {
	return s.tx.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		tournament, err := s.getForUpdate(ctx, exec, tournamentID)
		if err != nil {
			return err
		}
		if tournament.Status != models.TournamentRegistration {
			return ErrInvalidTransition
		}
		if err := s.tournamentRepo.RemoveParticipant(ctx, exec, tournamentID, userID); err != nil {
			if errors.Is(err, repositories.ErrParticipantNotFound) {
				return ErrForbidden
			}
			return err
		}
		return s.ledger.Credit(ctx, exec, userID, tournament.BetAmount)
	})
}

// Start freezes registration, generates the bracket from seeds in
// registration order and persists it. Bye winners advance immediately.
func (s *tournamentService) Start(ctx context.Context, tournamentID, requesterID int, asAdmin bool) (*models.Tournament, error) {
	var started *models.Tournament

	err := s.tx.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		tournament, err := s.getForUpdate(ctx, exec, tournamentID)
		if err != nil {
			return err
		}
		if tournament.Status != models.TournamentRegistration {
			return ErrInvalidTransition
		}
		if !asAdmin && tournament.CreatorID != requesterID {
			return ErrForbidden
		}

		participants, err := s.tournamentRepo.ListParticipants(ctx, exec, tournamentID)
		if err != nil {
			return err
		}
		if len(participants) < 2 {
			return ErrNotEnoughPlayers
		}

		seeds := make([]int, len(participants))
		for i, p := range participants {
			seeds[i] = p.UserID
		}
		plan, err := s.generator.Generate(seeds)
		if err != nil {
			return fmt.Errorf("bracket generation failed: %w", err)
		}

		matches, err := s.persistPlan(ctx, exec, tournamentID, plan)
		if err != nil {
			return err
		}

		if err := s.tournamentRepo.UpdateStatus(ctx, exec, tournamentID,
			models.TournamentRegistration, models.TournamentInProgress); err != nil {
			return err
		}

		tournament.Status = models.TournamentInProgress
		tournament.Participants = participants
		tournament.Bracket = matches
		started = tournament
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.NotifyTournament(tournamentID, EventTournamentStarted, started)
	return started, nil
}

// persistPlan stores the planned matches, final first, so every match
// already knows the id and slot its winner advances to.
func (s *tournamentService) persistPlan(ctx context.Context, exec repositories.SQLExecutor, tournamentID int, plan *brackets.Plan) ([]*models.Match, error) {
	type advance struct {
		nextID   int
		nextSlot int
	}
	nextByPlanIndex := make(map[int]advance)
	matches := make([]*models.Match, len(plan.Matches))

	for i := len(plan.Matches) - 1; i >= 0; i-- {
		planned := plan.Matches[i]
		match := &models.Match{
			TournamentID: tournamentID,
			Round:        planned.Round,
			OrderInRound: planned.OrderInRound,
			Player1:      planned.Player1,
			Player2:      planned.Player2,
			IsBye:        planned.IsBye,
			Status:       plannedStatus(planned),
		}
		if planned.IsBye {
			match.WinnerID = planned.Player1
		}
		if adv, ok := nextByPlanIndex[i]; ok {
			nextID, nextSlot := adv.nextID, adv.nextSlot
			match.NextMatchID = &nextID
			match.NextMatchSlot = &nextSlot
		}

		if err := s.matchRepo.Create(ctx, exec, match); err != nil {
			return nil, err
		}
		matches[i] = match

		if planned.Source1 != nil {
			nextByPlanIndex[*planned.Source1] = advance{nextID: match.ID, nextSlot: 1}
		}
		if planned.Source2 != nil {
			nextByPlanIndex[*planned.Source2] = advance{nextID: match.ID, nextSlot: 2}
		}
	}
	return matches, nil
}

func plannedStatus(planned *brackets.PlannedMatch) models.MatchStatus {
	if planned.IsBye {
		return models.MatchCompleted
	}
	if planned.Player1 != nil && planned.Player2 != nil {
		return models.MatchInProgress
	}
	return models.MatchPending
}

func (s *tournamentService) ReportMatchResult(ctx context.Context, tournamentID, matchID, userID int, input SubmitReportInput) (*models.Match, error) {
	var (
		updated *models.Match
		settled bool
		winner  int
	)

	err := s.tx.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		// Lock order is tournament row first, then the match row.
		tournament, err := s.getForUpdate(ctx, exec, tournamentID)
		if err != nil {
			return err
		}
		if tournament.Status != models.TournamentInProgress {
			return ErrInvalidTransition
		}

		match, err := s.getMatchForUpdate(ctx, exec, matchID)
		if err != nil {
			return err
		}
		if match.TournamentID != tournamentID {
			return ErrMatchNotFound
		}
		if match.Status != models.MatchInProgress {
			return ErrInvalidTransition
		}

		decision, err := settlement.Record(
			match.Results, userID, input.ClaimedWinner, input.Evidence,
			*match.Player1, *match.Player2, s.now())
		if err != nil {
			return mapSettlementError(err)
		}
		if err := s.matchRepo.AddReport(ctx, exec, matchID, decision.Report); err != nil {
			if errors.Is(err, repositories.ErrDuplicateMatchReport) {
				return ErrDuplicateReport
			}
			return err
		}
		match.Results = append(match.Results, decision.Report)

		switch decision.Outcome {
		case settlement.OutcomePending:

		case settlement.OutcomeAgreed:
			winner = decision.Winner
			if err := s.settleMatch(ctx, exec, tournament, match, winner); err != nil {
				return err
			}
			settled = true

		case settlement.OutcomeDisputed:
			if err := s.matchRepo.UpdateStatus(ctx, exec, matchID,
				models.MatchInProgress, models.MatchDisputed); err != nil {
				return err
			}
			match.Status = models.MatchDisputed
		}

		updated = match
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterMatchTransition(tournamentID, updated, settled, winner)
	return updated, nil
}

// ResolveMatch is the admin ruling on a disputed bracket match.
func (s *tournamentService) ResolveMatch(ctx context.Context, tournamentID, matchID, winnerID int) (*models.Match, error) {
	var updated *models.Match

	err := s.tx.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		tournament, err := s.getForUpdate(ctx, exec, tournamentID)
		if err != nil {
			return err
		}
		match, err := s.getMatchForUpdate(ctx, exec, matchID)
		if err != nil {
			return err
		}
		if match.TournamentID != tournamentID {
			return ErrMatchNotFound
		}
		if match.Status != models.MatchDisputed {
			return ErrInvalidTransition
		}
		if err := settlement.AdminRuling(winnerID, *match.Player1, *match.Player2); err != nil {
			return mapSettlementError(err)
		}

		if err := s.settleMatch(ctx, exec, tournament, match, winnerID); err != nil {
			return err
		}
		updated = match
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterMatchTransition(tournamentID, updated, true, winnerID)
	return updated, nil
}

// settleMatch records the winner, updates win/loss counters and moves
// the winner forward, paying out the prize pool when the final settles.
func (s *tournamentService) settleMatch(ctx context.Context, exec repositories.SQLExecutor, tournament *models.Tournament, match *models.Match, winnerID int) error {
	if err := s.matchRepo.SetWinner(ctx, exec, match.ID, winnerID, models.MatchCompleted); err != nil {
		return err
	}
	loserID := *match.Player1
	if loserID == winnerID {
		loserID = *match.Player2
	}
	if err := s.ledger.RecordResult(ctx, exec, winnerID, loserID); err != nil {
		return err
	}
	match.Status = models.MatchCompleted
	match.WinnerID = &winnerID

	participants, err := s.tournamentRepo.ListParticipants(ctx, exec, tournament.ID)
	if err != nil {
		return err
	}
	return s.advanceWinner(ctx, exec, tournament, match, winnerID, len(participants))
}

// advanceWinner seats the winner in the next round, or closes the
// tournament and pays the pooled stakes when the final is decided.
func (s *tournamentService) advanceWinner(ctx context.Context, exec repositories.SQLExecutor, tournament *models.Tournament, match *models.Match, winnerID, participantCount int) error {
	if match.Final() {
		if err := s.tournamentRepo.SetWinner(ctx, exec, tournament.ID, winnerID, models.TournamentCompleted); err != nil {
			return err
		}
		tournament.Status = models.TournamentCompleted
		tournament.WinnerID = &winnerID
		return s.ledger.Credit(ctx, exec, winnerID, tournament.PrizePool(participantCount))
	}

	next, err := s.getMatchForUpdate(ctx, exec, *match.NextMatchID)
	if err != nil {
		return err
	}
	status := models.MatchPending
	otherSlotFilled := (*match.NextMatchSlot == 1 && next.Player2 != nil) ||
		(*match.NextMatchSlot == 2 && next.Player1 != nil)
	if otherSlotFilled {
		status = models.MatchInProgress
	}
	return s.matchRepo.SetPlayer(ctx, exec, next.ID, *match.NextMatchSlot, winnerID, status)
}

func (s *tournamentService) afterMatchTransition(tournamentID int, match *models.Match, settled bool, winnerID int) {
	switch {
	case settled:
		s.notifier.NotifyTournament(tournamentID, EventMatchSettled, match)
		s.notifier.NotifyTournament(tournamentID, EventTournamentUpdated, map[string]int{"tournament_id": tournamentID})
		if s.leaderboard != nil {
			s.leaderboard.RecordWin(context.Background(), winnerID)
		}
	case match.Status == models.MatchDisputed:
		s.notifier.NotifyTournament(tournamentID, EventMatchDisputed, match)
	}
}

// Cancel aborts a tournament and refunds every registered participant.
func (s *tournamentService) Cancel(ctx context.Context, tournamentID int) error {
	var refunded []int

	err := s.tx.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		tournament, err := s.getForUpdate(ctx, exec, tournamentID)
		if err != nil {
			return err
		}
		if tournament.Status != models.TournamentRegistration && tournament.Status != models.TournamentInProgress {
			return ErrInvalidTransition
		}

		participants, err := s.tournamentRepo.ListParticipants(ctx, exec, tournamentID)
		if err != nil {
			return err
		}
		ids := make([]int, len(participants))
		for i, p := range participants {
			ids[i] = p.UserID
		}
		sort.Ints(ids)

		for _, id := range ids {
			if err := s.ledger.Credit(ctx, exec, id, tournament.BetAmount); err != nil {
				return err
			}
		}
		if err := s.tournamentRepo.UpdateStatus(ctx, exec, tournamentID,
			tournament.Status, models.TournamentCancelled); err != nil {
			return err
		}
		refunded = ids
		return nil
	})
	if err != nil {
		return err
	}

	s.notifier.NotifyTournament(tournamentID, EventTournamentUpdated, map[string]interface{}{
		"tournament_id": tournamentID,
		"status":        models.TournamentCancelled,
		"refunded":      refunded,
	})
	return nil
}

// Get assembles the tournament view, loading participants and bracket
// in parallel.
func (s *tournamentService) Get(ctx context.Context, tournamentID int) (*models.Tournament, error) {
	tournament, err := s.tournamentRepo.GetByID(ctx, nil, tournamentID)
	if err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return nil, ErrTournamentNotFound
		}
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		participants, err := s.tournamentRepo.ListParticipants(gctx, nil, tournamentID)
		if err != nil {
			return err
		}
		tournament.Participants = participants
		return nil
	})
	g.Go(func() error {
		matches, err := s.matchRepo.ListByTournament(gctx, nil, tournamentID)
		if err != nil {
			return err
		}
		tournament.Bracket = matches
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return tournament, nil
}

func (s *tournamentService) List(ctx context.Context, status *models.TournamentStatus) ([]*models.Tournament, error) {
	return s.tournamentRepo.List(ctx, status)
}

func (s *tournamentService) getForUpdate(ctx context.Context, exec repositories.SQLExecutor, tournamentID int) (*models.Tournament, error) {
	tournament, err := s.tournamentRepo.GetByIDForUpdate(ctx, exec, tournamentID)
	if err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return nil, ErrTournamentNotFound
		}
		return nil, err
	}
	return tournament, nil
}

func (s *tournamentService) getMatchForUpdate(ctx context.Context, exec repositories.SQLExecutor, matchID int) (*models.Match, error) {
	match, err := s.matchRepo.GetByIDForUpdate(ctx, exec, matchID)
	if err != nil {
		if errors.Is(err, repositories.ErrMatchNotFound) {
			return nil, ErrMatchNotFound
		}
		return nil, err
	}
	return match, nil
}

func nextSeed(participants []models.Participant) int {
	max := 0
	for _, p := range participants {
		if p.Seed > max {
			max = p.Seed
		}
	}
	return max + 1
}
