// Package settlement implements the two-sided report protocol shared by
// challenges and tournament matches: an entity settles automatically
// only when both participants independently name the same winner, and
// otherwise escalates to an admin ruling.
package settlement

import (
	"time"

	"github.com/arenaworks/wager-arena/models"
)

type Outcome int

const (
	// OutcomePending means only one report exists; state must not advance.
	OutcomePending Outcome = iota
	// OutcomeAgreed means both reports name the same winner.
	OutcomeAgreed
	// OutcomeDisputed means the reports disagree.
	OutcomeDisputed
)

type serr string

func (e serr) Error() string { return string(e) }

var (
	ErrNotParticipant  = serr("reporter is not a participant")
	ErrDuplicateReport = serr("participant already submitted a report")
	ErrInvalidWinner   = serr("claimed winner is not a participant")
)

// Decision is the result of recording one report.
type Decision struct {
	Outcome Outcome
	// Winner is set only when Outcome is OutcomeAgreed.
	Winner int
	Report models.ResultReport
}

// Record validates an incoming claim against the reports already filed
// for a two-player entity and decides what happens next. It never
// mutates its inputs; callers persist the returned report and apply the
// outcome atomically.
func Record(existing []models.ResultReport, reportedBy, claimedWinner int, evidence string, player1, player2 int, now time.Time) (Decision, error) {
	if reportedBy != player1 && reportedBy != player2 {
		return Decision{}, ErrNotParticipant
	}
	if claimedWinner != player1 && claimedWinner != player2 {
		return Decision{}, ErrInvalidWinner
	}
	for _, rep := range existing {
		if rep.ReportedBy == reportedBy {
			return Decision{}, ErrDuplicateReport
		}
	}

	report := models.ResultReport{
		ReportedBy:    reportedBy,
		ClaimedWinner: claimedWinner,
		Evidence:      evidence,
		ReportedAt:    now,
	}
	decision := Decision{Report: report}

	if len(existing) == 0 {
		decision.Outcome = OutcomePending
		return decision, nil
	}

	// Cardinality is capped at one report per participant, so with a
	// valid incoming report there is exactly one prior report here and
	// it belongs to the other side.
	if existing[0].ClaimedWinner == claimedWinner {
		decision.Outcome = OutcomeAgreed
		decision.Winner = claimedWinner
	} else {
		decision.Outcome = OutcomeDisputed
	}
	return decision, nil
}

// AdminRuling validates an operator-chosen winner for an entity stuck
// in disagreement. The ruling is independent of the filed reports.
func AdminRuling(winnerID, player1, player2 int) error {
	if winnerID != player1 && winnerID != player2 {
		return ErrInvalidWinner
	}
	return nil
}
