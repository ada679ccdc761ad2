package services

import "errors"

// Shared error taxonomy. Every value is terminal for the triggering
// request: financial operations are never retried automatically, and a
// rejected action moves no coins and changes no state.
var (
	ErrAccountNotFound    = errors.New("account not found")
	ErrChallengeNotFound  = errors.New("challenge not found")
	ErrTournamentNotFound = errors.New("tournament not found")
	ErrMatchNotFound      = errors.New("match not found")

	// ErrInvalidTransition covers every operation attempted outside its
	// legal state: reporting on an open challenge, accepting an already
	// accepted one, resolving a dispute that does not exist.
	ErrInvalidTransition = errors.New("operation not allowed in the current state")

	// ErrForbidden means the actor lacks permission or is blocked by
	// the counterpart.
	ErrForbidden = errors.New("operation not allowed for the current user")

	ErrDuplicateReport   = errors.New("participant already submitted a report")
	ErrAlreadyQueued     = errors.New("user is already in the matchmaking queue")
	ErrInsufficientFunds = errors.New("insufficient funds")

	ErrValidationFailed = errors.New("validation failed")

	ErrAuthInvalidCredentials = errors.New("invalid email or password")
	ErrAuthEmailTaken         = errors.New("email is already taken")

	ErrTournamentFull    = errors.New("tournament registration is full")
	ErrAlreadyRegistered = errors.New("user is already registered for this tournament")
	ErrNotEnoughPlayers  = errors.New("not enough participants to start the tournament")
)
