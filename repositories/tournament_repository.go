package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/arenaworks/wager-arena/models"
)

var (
	ErrTournamentNotFound       = errors.New("tournament not found")
	ErrTournamentStatusConflict = errors.New("tournament is not in the expected status")
	ErrRegistrationConflict     = errors.New("user is already registered for this tournament")
	ErrParticipantNotFound      = errors.New("participant registration not found")
)

type TournamentRepository interface {
	Create(ctx context.Context, tournament *models.Tournament) error
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Tournament, error)
	GetByIDForUpdate(ctx context.Context, exec SQLExecutor, id int) (*models.Tournament, error)
	List(ctx context.Context, status *models.TournamentStatus) ([]*models.Tournament, error)

	UpdateStatus(ctx context.Context, exec SQLExecutor, id int, from, to models.TournamentStatus) error
	SetWinner(ctx context.Context, exec SQLExecutor, id int, winnerID int, status models.TournamentStatus) error

	AddParticipant(ctx context.Context, exec SQLExecutor, participant *models.Participant) error
	RemoveParticipant(ctx context.Context, exec SQLExecutor, tournamentID, userID int) error
	ListParticipants(ctx context.Context, exec SQLExecutor, tournamentID int) ([]models.Participant, error)
}

type postgresTournamentRepository struct {
	db *sql.DB
}

func NewPostgresTournamentRepository(db *sql.DB) TournamentRepository {
	return &postgresTournamentRepository{db: db}
}

const tournamentColumns = `id, name, game, platform, bet_amount, max_participants, status, creator_id, winner_id, created_at`

func (r *postgresTournamentRepository) exec(exec SQLExecutor) SQLExecutor {
	if exec == nil {
		return r.db
	}
	return exec
}

func (r *postgresTournamentRepository) Create(ctx context.Context, tournament *models.Tournament) error {
	query := `
		INSERT INTO tournaments (name, game, platform, bet_amount, max_participants, status, creator_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query,
		tournament.Name,
		tournament.Game,
		tournament.Platform,
		tournament.BetAmount,
		tournament.MaxParticipants,
		tournament.Status,
		tournament.CreatorID,
	).Scan(&tournament.ID, &tournament.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create tournament: %w", err)
	}
	return nil
}

func (r *postgresTournamentRepository) getByID(ctx context.Context, exec SQLExecutor, id int, forUpdate bool) (*models.Tournament, error) {
	query := `SELECT ` + tournamentColumns + ` FROM tournaments WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	t := &models.Tournament{}
	err := r.exec(exec).QueryRowContext(ctx, query, id).Scan(
		&t.ID,
		&t.Name,
		&t.Game,
		&t.Platform,
		&t.BetAmount,
		&t.MaxParticipants,
		&t.Status,
		&t.CreatorID,
		&t.WinnerID,
		&t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTournamentNotFound
		}
		return nil, fmt.Errorf("failed to scan tournament %d: %w", id, err)
	}
	return t, nil
}

func (r *postgresTournamentRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Tournament, error) {
	return r.getByID(ctx, exec, id, false)
}

func (r *postgresTournamentRepository) GetByIDForUpdate(ctx context.Context, exec SQLExecutor, id int) (*models.Tournament, error) {
	return r.getByID(ctx, exec, id, true)
}

func (r *postgresTournamentRepository) List(ctx context.Context, status *models.TournamentStatus) ([]*models.Tournament, error) {
	query := `SELECT ` + tournamentColumns + ` FROM tournaments`
	args := []interface{}{}
	if status != nil {
		query += ` WHERE status = $1`
		args = append(args, *status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tournaments: %w", err)
	}
	defer rows.Close()

	tournaments := make([]*models.Tournament, 0)
	for rows.Next() {
		t := &models.Tournament{}
		if scanErr := rows.Scan(
			&t.ID,
			&t.Name,
			&t.Game,
			&t.Platform,
			&t.BetAmount,
			&t.MaxParticipants,
			&t.Status,
			&t.CreatorID,
			&t.WinnerID,
			&t.CreatedAt,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan tournament row: %w", scanErr)
		}
		tournaments = append(tournaments, t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during tournament rows iteration: %w", err)
	}
	return tournaments, nil
}

func (r *postgresTournamentRepository) UpdateStatus(ctx context.Context, exec SQLExecutor, id int, from, to models.TournamentStatus) error {
	query := `UPDATE tournaments SET status = $1 WHERE id = $2 AND status = $3`
	result, err := r.exec(exec).ExecContext(ctx, query, to, id, from)
	if err != nil {
		return fmt.Errorf("failed to update tournament %d status: %w", id, err)
	}
	return checkAffectedRows(result, ErrTournamentStatusConflict)
}

func (r *postgresTournamentRepository) SetWinner(ctx context.Context, exec SQLExecutor, id int, winnerID int, status models.TournamentStatus) error {
	query := `UPDATE tournaments SET winner_id = $1, status = $2 WHERE id = $3`
	result, err := r.exec(exec).ExecContext(ctx, query, winnerID, status, id)
	if err != nil {
		return fmt.Errorf("failed to set winner on tournament %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) AddParticipant(ctx context.Context, exec SQLExecutor, participant *models.Participant) error {
	query := `
		INSERT INTO tournament_participants (tournament_id, user_id, seed)
		VALUES ($1, $2, $3)
		RETURNING id, registered_at`

	err := r.exec(exec).QueryRowContext(ctx, query,
		participant.TournamentID,
		participant.UserID,
		participant.Seed,
	).Scan(&participant.ID, &participant.RegisteredAt)
	if err != nil {
		if isUniqueViolation(err, "") {
			return ErrRegistrationConflict
		}
		return fmt.Errorf("failed to add participant to tournament %d: %w", participant.TournamentID, err)
	}
	return nil
}

func (r *postgresTournamentRepository) RemoveParticipant(ctx context.Context, exec SQLExecutor, tournamentID, userID int) error {
	query := `DELETE FROM tournament_participants WHERE tournament_id = $1 AND user_id = $2`
	result, err := r.exec(exec).ExecContext(ctx, query, tournamentID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove participant %d from tournament %d: %w", userID, tournamentID, err)
	}
	return checkAffectedRows(result, ErrParticipantNotFound)
}

func (r *postgresTournamentRepository) ListParticipants(ctx context.Context, exec SQLExecutor, tournamentID int) ([]models.Participant, error) {
	query := `
		SELECT id, tournament_id, user_id, seed, registered_at
		FROM tournament_participants
		WHERE tournament_id = $1
		ORDER BY seed ASC`

	rows, err := r.exec(exec).QueryContext(ctx, query, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query participants for tournament %d: %w", tournamentID, err)
	}
	defer rows.Close()

	participants := make([]models.Participant, 0)
	for rows.Next() {
		var p models.Participant
		if scanErr := rows.Scan(&p.ID, &p.TournamentID, &p.UserID, &p.Seed, &p.RegisteredAt); scanErr != nil {
			return nil, fmt.Errorf("failed to scan participant row: %w", scanErr)
		}
		participants = append(participants, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during participant rows iteration: %w", err)
	}
	return participants, nil
}
