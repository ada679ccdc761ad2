package brackets

// PlannedMatch is one bracket node before persistence. Player slots
// hold user ids; Source1/Source2 index the plan's match list and say
// which earlier match feeds each empty slot.
type PlannedMatch struct {
	Round        int
	OrderInRound int

	Player1 *int
	Player2 *int

	Source1 *int
	Source2 *int

	// IsBye marks a round-1 match with no opponent: it is completed at
	// generation time with Player1 as the winner.
	IsBye bool
}

// Plan is a full bracket, matches ordered by round then order-in-round.
type Plan struct {
	Matches []*PlannedMatch
	Rounds  int
	// AutoAdvanced are the seeds that skipped round 1 entirely.
	AutoAdvanced []int
}

// Generator produces a bracket plan from seeds listed in registration
// order.
type Generator interface {
	Generate(seeds []int) (*Plan, error)
	Name() string
}
