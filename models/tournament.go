package models

import "time"

type TournamentStatus string

const (
	TournamentRegistration TournamentStatus = "registration"
	TournamentInProgress   TournamentStatus = "in_progress"
	TournamentCompleted    TournamentStatus = "completed"
	TournamentCancelled    TournamentStatus = "cancelled"
)

// Tournament is a single-elimination bracket over escrowed stakes.
// Participant order is registration order and doubles as the seeding.
type Tournament struct {
	ID              int              `json:"id"`
	Name            string           `json:"name"`
	Game            string           `json:"game"`
	Platform        string           `json:"platform"`
	BetAmount       int64            `json:"bet_amount"`
	MaxParticipants int              `json:"max_participants"`
	Status          TournamentStatus `json:"status"`
	CreatorID       int              `json:"creator_id"`
	WinnerID        *int             `json:"winner_id,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`

	Participants []Participant `json:"participants,omitempty"`
	Bracket      []*Match      `json:"bracket,omitempty"`
}

// PrizePool is the pooled stake paid to the winner of the final.
func (t *Tournament) PrizePool(participantCount int) int64 {
	return t.BetAmount * int64(participantCount)
}

type Participant struct {
	ID           int       `json:"id"`
	TournamentID int       `json:"tournament_id"`
	UserID       int       `json:"user_id"`
	// Seed is the registration order, starting at 1.
	Seed         int       `json:"seed"`
	RegisteredAt time.Time `json:"registered_at"`
}
