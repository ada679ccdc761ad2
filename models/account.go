package models

import "time"

type UserRole string

const (
	RolePlayer UserRole = "player"
	RoleAdmin  UserRole = "admin"
)

// Account is the wallet-bearing identity. Accounts are never deleted,
// only deactivated; the balance is mutated exclusively through the
// ledger operations.
type Account struct {
	ID           int       `json:"id"`
	Nickname     string    `json:"nickname"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         UserRole  `json:"role"`
	Balance      int64     `json:"balance"`
	WinCount     int       `json:"win_count"`
	LossCount    int       `json:"loss_count"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
