package models

import (
	"fmt"
	"time"
)

// QueueKey partitions the matchmaking queue. Only tickets with an
// identical key are ever paired.
type QueueKey struct {
	Game      string `json:"game"`
	Platform  string `json:"platform"`
	BetAmount int64  `json:"bet_amount"`
}

func (k QueueKey) String() string {
	return fmt.Sprintf("%s|%s|%d", k.Game, k.Platform, k.BetAmount)
}

// MatchmakingTicket is one waiting user. Tickets live only in the
// in-memory queue and disappear on pairing, leave, or disconnect.
type MatchmakingTicket struct {
	UserID     int       `json:"user_id"`
	Key        QueueKey  `json:"key"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}
