package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/arenaworks/wager-arena/models"
)

var (
	ErrAccountNotFound      = errors.New("account not found")
	ErrAccountEmailConflict = errors.New("account email already in use")
	ErrInsufficientBalance  = errors.New("insufficient balance")
	ErrAlreadyBlocked       = errors.New("user already blocked")
)

type AccountRepository interface {
	Create(ctx context.Context, account *models.Account) error
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)

	// Credit and Debit are the only balance mutations. Debit is a
	// guarded single statement: it fails with ErrInsufficientBalance
	// and changes nothing when the balance cannot cover the amount.
	Credit(ctx context.Context, exec SQLExecutor, id int, amount int64) error
	Debit(ctx context.Context, exec SQLExecutor, id int, amount int64) error

	RecordResult(ctx context.Context, exec SQLExecutor, winnerID, loserID int) error
	Deactivate(ctx context.Context, id int) error

	Block(ctx context.Context, userID, blockedUserID int) error
	Unblock(ctx context.Context, userID, blockedUserID int) error
	EitherBlocked(ctx context.Context, exec SQLExecutor, userA, userB int) (bool, error)
}

type postgresAccountRepository struct {
	db *sql.DB
}

func NewPostgresAccountRepository(db *sql.DB) AccountRepository {
	return &postgresAccountRepository{db: db}
}

const accountColumns = `id, nickname, email, password_hash, role, balance, win_count, loss_count, is_active, created_at`

func scanAccount(row *sql.Row) (*models.Account, error) {
	a := &models.Account{}
	err := row.Scan(
		&a.ID,
		&a.Nickname,
		&a.Email,
		&a.PasswordHash,
		&a.Role,
		&a.Balance,
		&a.WinCount,
		&a.LossCount,
		&a.IsActive,
		&a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}
	return a, nil
}

func (r *postgresAccountRepository) Create(ctx context.Context, account *models.Account) error {
	query := `
		INSERT INTO accounts (nickname, email, password_hash, role, balance, is_active)
		VALUES ($1, $2, $3, $4, $5, TRUE)
		RETURNING id, win_count, loss_count, is_active, created_at`

	err := r.db.QueryRowContext(ctx, query,
		account.Nickname,
		account.Email,
		account.PasswordHash,
		account.Role,
		account.Balance,
	).Scan(&account.ID, &account.WinCount, &account.LossCount, &account.IsActive, &account.CreatedAt)

	if err != nil {
		if isUniqueViolation(err, "") {
			return ErrAccountEmailConflict
		}
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

func (r *postgresAccountRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Account, error) {
	if exec == nil {
		exec = r.db
	}
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccount(exec.QueryRowContext(ctx, query, id))
}

func (r *postgresAccountRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1`
	return scanAccount(r.db.QueryRowContext(ctx, query, email))
}

func (r *postgresAccountRepository) Credit(ctx context.Context, exec SQLExecutor, id int, amount int64) error {
	query := `UPDATE accounts SET balance = balance + $1 WHERE id = $2`
	result, err := exec.ExecContext(ctx, query, amount, id)
	if err != nil {
		return fmt.Errorf("failed to credit account %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrAccountNotFound)
}

func (r *postgresAccountRepository) Debit(ctx context.Context, exec SQLExecutor, id int, amount int64) error {
	query := `
		UPDATE accounts SET balance = balance - $1
		WHERE id = $2 AND is_active AND balance >= $1`

	result, err := exec.ExecContext(ctx, query, amount, id)
	if err != nil {
		return fmt.Errorf("failed to debit account %d: %w", id, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if rows == 0 {
		// Distinguish a missing account from a short balance.
		if _, getErr := r.GetByID(ctx, exec, id); getErr != nil {
			return getErr
		}
		return ErrInsufficientBalance
	}
	return nil
}

func (r *postgresAccountRepository) RecordResult(ctx context.Context, exec SQLExecutor, winnerID, loserID int) error {
	result, err := exec.ExecContext(ctx,
		`UPDATE accounts SET win_count = win_count + 1 WHERE id = $1`, winnerID)
	if err != nil {
		return fmt.Errorf("failed to record win for account %d: %w", winnerID, err)
	}
	if err := checkAffectedRows(result, ErrAccountNotFound); err != nil {
		return err
	}

	result, err = exec.ExecContext(ctx,
		`UPDATE accounts SET loss_count = loss_count + 1 WHERE id = $1`, loserID)
	if err != nil {
		return fmt.Errorf("failed to record loss for account %d: %w", loserID, err)
	}
	return checkAffectedRows(result, ErrAccountNotFound)
}

func (r *postgresAccountRepository) Deactivate(ctx context.Context, id int) error {
	result, err := r.db.ExecContext(ctx, `UPDATE accounts SET is_active = FALSE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate account %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrAccountNotFound)
}

func (r *postgresAccountRepository) Block(ctx context.Context, userID, blockedUserID int) error {
	query := `INSERT INTO account_blocks (user_id, blocked_user_id) VALUES ($1, $2)`
	_, err := r.db.ExecContext(ctx, query, userID, blockedUserID)
	if err != nil {
		if isUniqueViolation(err, "") {
			return ErrAlreadyBlocked
		}
		return fmt.Errorf("failed to block user %d: %w", blockedUserID, err)
	}
	return nil
}

func (r *postgresAccountRepository) Unblock(ctx context.Context, userID, blockedUserID int) error {
	query := `DELETE FROM account_blocks WHERE user_id = $1 AND blocked_user_id = $2`
	_, err := r.db.ExecContext(ctx, query, userID, blockedUserID)
	if err != nil {
		return fmt.Errorf("failed to unblock user %d: %w", blockedUserID, err)
	}
	return nil
}

func (r *postgresAccountRepository) EitherBlocked(ctx context.Context, exec SQLExecutor, userA, userB int) (bool, error) {
	if exec == nil {
		exec = r.db
	}
	query := `
		SELECT EXISTS (
			SELECT 1 FROM account_blocks
			WHERE (user_id = $1 AND blocked_user_id = $2)
			   OR (user_id = $2 AND blocked_user_id = $1)
		)`

	var blocked bool
	if err := exec.QueryRowContext(ctx, query, userA, userB).Scan(&blocked); err != nil {
		return false, fmt.Errorf("failed to check block list for %d/%d: %w", userA, userB, err)
	}
	return blocked, nil
}
