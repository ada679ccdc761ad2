package services

// Event names published on the broadcast channel.
const (
	EventChallengeReceived = "CHALLENGE_RECEIVED"
	EventChallengeAccepted = "CHALLENGE_ACCEPTED"
	EventChallengeSettled  = "CHALLENGE_SETTLED"
	EventChallengeDisputed = "CHALLENGE_DISPUTED"
	EventChallengeExpired  = "CHALLENGE_EXPIRED"
	EventDisputeResolved   = "DISPUTE_RESOLVED"
	EventMatchFound        = "MATCH_FOUND"
	EventPairingAborted    = "PAIRING_ABORTED"
	EventTournamentStarted = "TOURNAMENT_STARTED"
	EventTournamentUpdated = "TOURNAMENT_UPDATED"
	EventMatchSettled      = "MATCH_SETTLED"
	EventMatchDisputed     = "MATCH_DISPUTED"
)

// Notifier is the fire-and-forget broadcast channel. Implementations
// must never block settlement: events are emitted after the state
// transition commits, and delivery failures are swallowed.
type Notifier interface {
	NotifyUser(userID int, event string, payload interface{})
	NotifyTournament(tournamentID int, event string, payload interface{})
}

// NopNotifier discards all events. Used in tests and as a default.
type NopNotifier struct{}

func (NopNotifier) NotifyUser(int, string, interface{})       {}
func (NopNotifier) NotifyTournament(int, string, interface{}) {}
