package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/arenaworks/wager-arena/models"
)

var (
	ErrChallengeNotFound = errors.New("challenge not found")
	// ErrChallengeStatusConflict means a status-guarded update matched
	// no row: the challenge moved to another state first.
	ErrChallengeStatusConflict = errors.New("challenge is not in the expected status")
	ErrDuplicateResultReport   = errors.New("participant already submitted a report")
)

type ChallengeRepository interface {
	Create(ctx context.Context, exec SQLExecutor, challenge *models.Challenge) error
	GetByID(ctx context.Context, exec SQLExecutor, id string) (*models.Challenge, error)
	// GetByIDForUpdate locks the challenge row for the lifetime of the
	// surrounding transaction. All state transitions go through it.
	GetByIDForUpdate(ctx context.Context, exec SQLExecutor, id string) (*models.Challenge, error)

	// UpdateStatus only succeeds when the current status equals from,
	// returning ErrChallengeStatusConflict otherwise.
	UpdateStatus(ctx context.Context, exec SQLExecutor, id string, from, to models.ChallengeStatus) error
	SetOpponent(ctx context.Context, exec SQLExecutor, id string, opponentID int) error
	SetWinner(ctx context.Context, exec SQLExecutor, id string, winnerID int, status models.ChallengeStatus) error
	AddReport(ctx context.Context, exec SQLExecutor, id string, report models.ResultReport) error

	Archive(ctx context.Context, id string, userID int) error
	ListOpen(ctx context.Context, now time.Time) ([]*models.Challenge, error)
	ListForUser(ctx context.Context, userID int) ([]*models.Challenge, error)
	ListExpiredOpenIDs(ctx context.Context, now time.Time) ([]string, error)
}

type postgresChallengeRepository struct {
	db *sql.DB
}

func NewPostgresChallengeRepository(db *sql.DB) ChallengeRepository {
	return &postgresChallengeRepository{db: db}
}

const challengeColumns = `id, game, platform, bet_amount, status, creator_id, opponent_id, private, winner_id, created_at, expires_at`

func (r *postgresChallengeRepository) exec(exec SQLExecutor) SQLExecutor {
	if exec == nil {
		return r.db
	}
	return exec
}

func (r *postgresChallengeRepository) Create(ctx context.Context, exec SQLExecutor, challenge *models.Challenge) error {
	query := `
		INSERT INTO challenges
			(id, game, platform, bet_amount, status, creator_id, opponent_id, private, winner_id, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.exec(exec).ExecContext(ctx, query,
		challenge.ID,
		challenge.Game,
		challenge.Platform,
		challenge.BetAmount,
		challenge.Status,
		challenge.CreatorID,
		challenge.OpponentID,
		challenge.Private,
		challenge.WinnerID,
		challenge.CreatedAt,
		challenge.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create challenge %s: %w", challenge.ID, err)
	}
	return nil
}

func (r *postgresChallengeRepository) getByID(ctx context.Context, exec SQLExecutor, id string, forUpdate bool) (*models.Challenge, error) {
	query := `SELECT ` + challengeColumns + ` FROM challenges WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	c := &models.Challenge{}
	err := r.exec(exec).QueryRowContext(ctx, query, id).Scan(
		&c.ID,
		&c.Game,
		&c.Platform,
		&c.BetAmount,
		&c.Status,
		&c.CreatorID,
		&c.OpponentID,
		&c.Private,
		&c.WinnerID,
		&c.CreatedAt,
		&c.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrChallengeNotFound
		}
		return nil, fmt.Errorf("failed to scan challenge %s: %w", id, err)
	}

	reports, err := r.listReports(ctx, exec, id)
	if err != nil {
		return nil, err
	}
	c.Results = reports
	return c, nil
}

func (r *postgresChallengeRepository) GetByID(ctx context.Context, exec SQLExecutor, id string) (*models.Challenge, error) {
	return r.getByID(ctx, exec, id, false)
}

func (r *postgresChallengeRepository) GetByIDForUpdate(ctx context.Context, exec SQLExecutor, id string) (*models.Challenge, error) {
	return r.getByID(ctx, exec, id, true)
}

func (r *postgresChallengeRepository) listReports(ctx context.Context, exec SQLExecutor, id string) ([]models.ResultReport, error) {
	query := `
		SELECT reported_by, claimed_winner, evidence, reported_at
		FROM challenge_reports
		WHERE challenge_id = $1
		ORDER BY reported_at ASC`

	rows, err := r.exec(exec).QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports for challenge %s: %w", id, err)
	}
	defer rows.Close()

	reports := make([]models.ResultReport, 0, 2)
	for rows.Next() {
		var rep models.ResultReport
		if scanErr := rows.Scan(&rep.ReportedBy, &rep.ClaimedWinner, &rep.Evidence, &rep.ReportedAt); scanErr != nil {
			return nil, fmt.Errorf("failed to scan challenge report row: %w", scanErr)
		}
		reports = append(reports, rep)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during challenge report rows iteration: %w", err)
	}
	return reports, nil
}

func (r *postgresChallengeRepository) UpdateStatus(ctx context.Context, exec SQLExecutor, id string, from, to models.ChallengeStatus) error {
	query := `UPDATE challenges SET status = $1 WHERE id = $2 AND status = $3`
	result, err := r.exec(exec).ExecContext(ctx, query, to, id, from)
	if err != nil {
		return fmt.Errorf("failed to update challenge %s status: %w", id, err)
	}
	return checkAffectedRows(result, ErrChallengeStatusConflict)
}

func (r *postgresChallengeRepository) SetOpponent(ctx context.Context, exec SQLExecutor, id string, opponentID int) error {
	query := `UPDATE challenges SET opponent_id = $1 WHERE id = $2`
	result, err := r.exec(exec).ExecContext(ctx, query, opponentID, id)
	if err != nil {
		return fmt.Errorf("failed to set opponent on challenge %s: %w", id, err)
	}
	return checkAffectedRows(result, ErrChallengeNotFound)
}

func (r *postgresChallengeRepository) SetWinner(ctx context.Context, exec SQLExecutor, id string, winnerID int, status models.ChallengeStatus) error {
	query := `UPDATE challenges SET winner_id = $1, status = $2 WHERE id = $3`
	result, err := r.exec(exec).ExecContext(ctx, query, winnerID, status, id)
	if err != nil {
		return fmt.Errorf("failed to set winner on challenge %s: %w", id, err)
	}
	return checkAffectedRows(result, ErrChallengeNotFound)
}

func (r *postgresChallengeRepository) AddReport(ctx context.Context, exec SQLExecutor, id string, report models.ResultReport) error {
	query := `
		INSERT INTO challenge_reports (challenge_id, reported_by, claimed_winner, evidence, reported_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := r.exec(exec).ExecContext(ctx, query,
		id, report.ReportedBy, report.ClaimedWinner, report.Evidence, report.ReportedAt)
	if err != nil {
		if isUniqueViolation(err, "") {
			return ErrDuplicateResultReport
		}
		return fmt.Errorf("failed to add report to challenge %s: %w", id, err)
	}
	return nil
}

func (r *postgresChallengeRepository) Archive(ctx context.Context, id string, userID int) error {
	query := `
		INSERT INTO challenge_archives (challenge_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`

	_, err := r.db.ExecContext(ctx, query, id, userID)
	if err != nil {
		return fmt.Errorf("failed to archive challenge %s for user %d: %w", id, userID, err)
	}
	return nil
}

func (r *postgresChallengeRepository) list(ctx context.Context, query string, args ...interface{}) ([]*models.Challenge, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query challenges: %w", err)
	}
	defer rows.Close()

	challenges := make([]*models.Challenge, 0)
	for rows.Next() {
		c := &models.Challenge{}
		if scanErr := rows.Scan(
			&c.ID,
			&c.Game,
			&c.Platform,
			&c.BetAmount,
			&c.Status,
			&c.CreatorID,
			&c.OpponentID,
			&c.Private,
			&c.WinnerID,
			&c.CreatedAt,
			&c.ExpiresAt,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan challenge row: %w", scanErr)
		}
		challenges = append(challenges, c)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during challenge rows iteration: %w", err)
	}
	return challenges, nil
}

func (r *postgresChallengeRepository) ListOpen(ctx context.Context, now time.Time) ([]*models.Challenge, error) {
	query := `
		SELECT ` + challengeColumns + ` FROM challenges
		WHERE status = 'open' AND NOT private AND expires_at > $1
		ORDER BY created_at DESC`
	return r.list(ctx, query, now)
}

func (r *postgresChallengeRepository) ListForUser(ctx context.Context, userID int) ([]*models.Challenge, error) {
	query := `
		SELECT ` + challengeColumns + ` FROM challenges c
		WHERE (c.creator_id = $1 OR c.opponent_id = $1)
		  AND NOT EXISTS (
			SELECT 1 FROM challenge_archives a
			WHERE a.challenge_id = c.id AND a.user_id = $1
		  )
		ORDER BY c.created_at DESC`
	return r.list(ctx, query, userID)
}

func (r *postgresChallengeRepository) ListExpiredOpenIDs(ctx context.Context, now time.Time) ([]string, error) {
	query := `SELECT id FROM challenges WHERE status = 'open' AND expires_at <= $1`
	rows, err := r.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query expired challenges: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if scanErr := rows.Scan(&id); scanErr != nil {
			return nil, fmt.Errorf("failed to scan expired challenge id: %w", scanErr)
		}
		ids = append(ids, id)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during expired challenge rows iteration: %w", err)
	}
	return ids, nil
}
