package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/arenaworks/wager-arena/models"
)

var (
	ErrMatchNotFound          = errors.New("match not found")
	ErrMatchStatusConflict    = errors.New("match is not in the expected status")
	ErrDuplicateMatchReport   = errors.New("participant already submitted a match report")
	ErrMatchSlotAlreadyFilled = errors.New("match player slot already filled")
)

type MatchRepository interface {
	Create(ctx context.Context, exec SQLExecutor, match *models.Match) error
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Match, error)
	GetByIDForUpdate(ctx context.Context, exec SQLExecutor, id int) (*models.Match, error)
	ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) ([]*models.Match, error)

	UpdateNextMatchInfo(ctx context.Context, exec SQLExecutor, id int, nextMatchID, nextMatchSlot *int) error
	// SetPlayer fills one player slot and moves the match to the given
	// status. It refuses to overwrite an occupied slot.
	SetPlayer(ctx context.Context, exec SQLExecutor, id, slot, userID int, status models.MatchStatus) error
	UpdateStatus(ctx context.Context, exec SQLExecutor, id int, from, to models.MatchStatus) error
	SetWinner(ctx context.Context, exec SQLExecutor, id int, winnerID int, status models.MatchStatus) error
	AddReport(ctx context.Context, exec SQLExecutor, id int, report models.ResultReport) error
}

type postgresMatchRepository struct {
	db *sql.DB
}

func NewPostgresMatchRepository(db *sql.DB) MatchRepository {
	return &postgresMatchRepository{db: db}
}

const matchColumns = `id, tournament_id, round, order_in_round, player1, player2, winner_id, status, is_bye, next_match_id, next_match_slot, created_at`

func (r *postgresMatchRepository) exec(exec SQLExecutor) SQLExecutor {
	if exec == nil {
		return r.db
	}
	return exec
}

func (r *postgresMatchRepository) Create(ctx context.Context, exec SQLExecutor, match *models.Match) error {
	query := `
		INSERT INTO matches
			(tournament_id, round, order_in_round, player1, player2, winner_id, status, is_bye, next_match_id, next_match_slot)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at`

	err := r.exec(exec).QueryRowContext(ctx, query,
		match.TournamentID,
		match.Round,
		match.OrderInRound,
		match.Player1,
		match.Player2,
		match.WinnerID,
		match.Status,
		match.IsBye,
		match.NextMatchID,
		match.NextMatchSlot,
	).Scan(&match.ID, &match.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create match for tournament %d: %w", match.TournamentID, err)
	}
	return nil
}

func scanMatch(scan func(dest ...interface{}) error) (*models.Match, error) {
	m := &models.Match{}
	err := scan(
		&m.ID,
		&m.TournamentID,
		&m.Round,
		&m.OrderInRound,
		&m.Player1,
		&m.Player2,
		&m.WinnerID,
		&m.Status,
		&m.IsBye,
		&m.NextMatchID,
		&m.NextMatchSlot,
		&m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (r *postgresMatchRepository) getByID(ctx context.Context, exec SQLExecutor, id int, forUpdate bool) (*models.Match, error) {
	query := `SELECT ` + matchColumns + ` FROM matches WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	m, err := scanMatch(r.exec(exec).QueryRowContext(ctx, query, id).Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMatchNotFound
		}
		return nil, fmt.Errorf("failed to scan match %d: %w", id, err)
	}

	reports, err := r.listReports(ctx, exec, id)
	if err != nil {
		return nil, err
	}
	m.Results = reports
	return m, nil
}

func (r *postgresMatchRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Match, error) {
	return r.getByID(ctx, exec, id, false)
}

func (r *postgresMatchRepository) GetByIDForUpdate(ctx context.Context, exec SQLExecutor, id int) (*models.Match, error) {
	return r.getByID(ctx, exec, id, true)
}

func (r *postgresMatchRepository) listReports(ctx context.Context, exec SQLExecutor, id int) ([]models.ResultReport, error) {
	query := `
		SELECT reported_by, claimed_winner, evidence, reported_at
		FROM match_reports
		WHERE match_id = $1
		ORDER BY reported_at ASC`

	rows, err := r.exec(exec).QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports for match %d: %w", id, err)
	}
	defer rows.Close()

	reports := make([]models.ResultReport, 0, 2)
	for rows.Next() {
		var rep models.ResultReport
		if scanErr := rows.Scan(&rep.ReportedBy, &rep.ClaimedWinner, &rep.Evidence, &rep.ReportedAt); scanErr != nil {
			return nil, fmt.Errorf("failed to scan match report row: %w", scanErr)
		}
		reports = append(reports, rep)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during match report rows iteration: %w", err)
	}
	return reports, nil
}

func (r *postgresMatchRepository) ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) ([]*models.Match, error) {
	query := `
		SELECT ` + matchColumns + ` FROM matches
		WHERE tournament_id = $1
		ORDER BY round ASC, order_in_round ASC`

	rows, err := r.exec(exec).QueryContext(ctx, query, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query matches for tournament %d: %w", tournamentID, err)
	}
	defer rows.Close()

	matches := make([]*models.Match, 0)
	for rows.Next() {
		m, scanErr := scanMatch(rows.Scan)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan match row: %w", scanErr)
		}
		matches = append(matches, m)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during match rows iteration: %w", err)
	}
	return matches, nil
}

func (r *postgresMatchRepository) UpdateNextMatchInfo(ctx context.Context, exec SQLExecutor, id int, nextMatchID, nextMatchSlot *int) error {
	query := `UPDATE matches SET next_match_id = $1, next_match_slot = $2 WHERE id = $3`
	result, err := r.exec(exec).ExecContext(ctx, query, nextMatchID, nextMatchSlot, id)
	if err != nil {
		return fmt.Errorf("failed to update next match info for match %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

func (r *postgresMatchRepository) SetPlayer(ctx context.Context, exec SQLExecutor, id, slot, userID int, status models.MatchStatus) error {
	var query string
	switch slot {
	case 1:
		query = `UPDATE matches SET player1 = $1, status = $2 WHERE id = $3 AND player1 IS NULL`
	case 2:
		query = `UPDATE matches SET player2 = $1, status = $2 WHERE id = $3 AND player2 IS NULL`
	default:
		return fmt.Errorf("invalid match player slot %d", slot)
	}

	result, err := r.exec(exec).ExecContext(ctx, query, userID, status, id)
	if err != nil {
		return fmt.Errorf("failed to set player on match %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrMatchSlotAlreadyFilled)
}

func (r *postgresMatchRepository) UpdateStatus(ctx context.Context, exec SQLExecutor, id int, from, to models.MatchStatus) error {
	query := `UPDATE matches SET status = $1 WHERE id = $2 AND status = $3`
	result, err := r.exec(exec).ExecContext(ctx, query, to, id, from)
	if err != nil {
		return fmt.Errorf("failed to update match %d status: %w", id, err)
	}
	return checkAffectedRows(result, ErrMatchStatusConflict)
}

func (r *postgresMatchRepository) SetWinner(ctx context.Context, exec SQLExecutor, id int, winnerID int, status models.MatchStatus) error {
	query := `UPDATE matches SET winner_id = $1, status = $2 WHERE id = $3`
	result, err := r.exec(exec).ExecContext(ctx, query, winnerID, status, id)
	if err != nil {
		return fmt.Errorf("failed to set winner on match %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

func (r *postgresMatchRepository) AddReport(ctx context.Context, exec SQLExecutor, id int, report models.ResultReport) error {
	query := `
		INSERT INTO match_reports (match_id, reported_by, claimed_winner, evidence, reported_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := r.exec(exec).ExecContext(ctx, query,
		id, report.ReportedBy, report.ClaimedWinner, report.Evidence, report.ReportedAt)
	if err != nil {
		if isUniqueViolation(err, "") {
			return ErrDuplicateMatchReport
		}
		return fmt.Errorf("failed to add report to match %d: %w", id, err)
	}
	return nil
}
