package models

import "time"

type ChallengeStatus string

const (
	ChallengeOpen      ChallengeStatus = "open"
	ChallengeAccepted  ChallengeStatus = "accepted"
	ChallengeCompleted ChallengeStatus = "completed"
	ChallengeDisputed  ChallengeStatus = "disputed"
	ChallengeCancelled ChallengeStatus = "cancelled"
)

// OpenChallengeTTL is how long an open challenge waits for an opponent
// before it expires and the creator's stake is refunded.
const OpenChallengeTTL = 10 * time.Minute

// Challenge is a single 1v1 wager. The creator's stake is escrowed at
// creation, the opponent's at acceptance (or both at matchmaking
// pairing). Results hold at most one report per participant.
type Challenge struct {
	ID        string          `json:"id"`
	Game      string          `json:"game"`
	Platform  string          `json:"platform"`
	BetAmount int64           `json:"bet_amount"`
	Status    ChallengeStatus `json:"status"`
	CreatorID int             `json:"creator_id"`
	// OpponentID is set at acceptance, or up front for a private
	// challenge sent to a specific opponent.
	OpponentID *int           `json:"opponent_id,omitempty"`
	Private    bool           `json:"private"`
	WinnerID   *int           `json:"winner_id,omitempty"`
	Results    []ResultReport `json:"results,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	ExpiresAt  time.Time      `json:"expires_at"`
}

func (c *Challenge) Terminal() bool {
	return c.Status == ChallengeCompleted || c.Status == ChallengeCancelled
}

// Participants returns the two sides of the wager. The second value is
// nil while the challenge is still open and untargeted.
func (c *Challenge) Participants() (int, *int) {
	return c.CreatorID, c.OpponentID
}

func (c *Challenge) IsParticipant(userID int) bool {
	if userID == c.CreatorID {
		return true
	}
	return c.OpponentID != nil && *c.OpponentID == userID
}

func (c *Challenge) Expired(now time.Time) bool {
	return c.Status == ChallengeOpen && now.After(c.ExpiresAt)
}
