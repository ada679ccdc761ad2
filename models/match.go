package models

import "time"

type MatchStatus string

const (
	// MatchPending means at least one player slot still waits on an
	// earlier match.
	MatchPending    MatchStatus = "pending"
	MatchInProgress MatchStatus = "in_progress"
	MatchCompleted  MatchStatus = "completed"
	// MatchDisputed marks disagreeing reports awaiting an admin ruling.
	MatchDisputed MatchStatus = "disputed"
)

// Match is a bracket node. Player slots are user ids and stay nil until
// the feeding match settles; a bye match has Player2 nil permanently.
type Match struct {
	ID           int         `json:"id"`
	TournamentID int         `json:"tournament_id"`
	Round        int         `json:"round"`
	OrderInRound int         `json:"order_in_round"`
	Player1      *int        `json:"player1,omitempty"`
	Player2      *int        `json:"player2,omitempty"`
	WinnerID     *int        `json:"winner_id,omitempty"`
	Status       MatchStatus `json:"status"`
	IsBye        bool        `json:"is_bye"`
	// NextMatchID and NextMatchSlot say where the winner advances to.
	// Both are nil for the final.
	NextMatchID   *int           `json:"next_match_id,omitempty"`
	NextMatchSlot *int           `json:"next_match_slot,omitempty"`
	Results       []ResultReport `json:"results,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

func (m *Match) IsParticipant(userID int) bool {
	if m.Player1 != nil && *m.Player1 == userID {
		return true
	}
	return m.Player2 != nil && *m.Player2 == userID
}

// Final reports whether this match decides the tournament.
func (m *Match) Final() bool {
	return m.NextMatchID == nil
}
