package brackets

import (
	"errors"
	"fmt"
)

var ErrNotEnoughSeeds = errors.New("single elimination requires at least 2 participants")

// SingleEliminationGenerator builds a deterministic bracket from
// registration order: the minimal number of earliest-registered seeds
// auto-advance as byes so that round 2 is a full power of two, the
// remaining seeds pair consecutively into round-1 matches, and an odd
// leftover becomes a bye match. Rounds after the first seat the
// auto-advanced seeds first, then round-1 winners in match order.
type SingleEliminationGenerator struct{}

func NewSingleEliminationGenerator() Generator {
	return &SingleEliminationGenerator{}
}

func (g *SingleEliminationGenerator) Name() string {
	return "single_elimination"
}

// entrant is either a known user or a reference to a feeding match.
type entrant struct {
	userID      *int
	sourceMatch *int
}

func (g *SingleEliminationGenerator) Generate(seeds []int) (*Plan, error) {
	n := len(seeds)
	if n < 2 {
		return nil, ErrNotEnoughSeeds
	}

	bracketSize := 1
	for bracketSize < n {
		bracketSize *= 2
	}

	plan := &Plan{}

	if n == bracketSize {
		// Full bracket: everyone plays round 1.
		return g.buildRounds(plan, seedEntrants(seeds), 1)
	}

	// roundTwoSlots is how many entrants round 2 must receive. The
	// smallest auto-advance count that fills it exactly is preferred, so
	// as few early seeds as possible sit out round 1. An odd remainder
	// still plays a recorded bye match.
	roundTwoSlots := bracketSize / 2
	autoAdvance := 2*roundTwoSlots - n - 1
	if autoAdvance < 0 || (n-autoAdvance)%2 == 0 {
		autoAdvance = 2*roundTwoSlots - n
	}

	plan.AutoAdvanced = append([]int(nil), seeds[:autoAdvance]...)
	playing := seeds[autoAdvance:]

	var roundTwo []entrant
	for _, s := range plan.AutoAdvanced {
		uid := s
		roundTwo = append(roundTwo, entrant{userID: &uid})
	}

	order := 0
	for i := 0; i < len(playing); i += 2 {
		order++
		p1 := playing[i]
		m := &PlannedMatch{Round: 1, OrderInRound: order, Player1: &p1}
		idx := len(plan.Matches)

		if i+1 < len(playing) {
			p2 := playing[i+1]
			m.Player2 = &p2
			roundTwo = append(roundTwo, entrant{sourceMatch: &idx})
		} else {
			// Odd leftover: a bye match, settled at generation time.
			m.IsBye = true
			uid := p1
			roundTwo = append(roundTwo, entrant{userID: &uid})
		}
		plan.Matches = append(plan.Matches, m)
	}

	if len(roundTwo) != roundTwoSlots {
		return nil, fmt.Errorf("internal bracket error: round 2 has %d entrants, want %d", len(roundTwo), roundTwoSlots)
	}
	return g.buildRounds(plan, roundTwo, 2)
}

func seedEntrants(seeds []int) []entrant {
	entrants := make([]entrant, 0, len(seeds))
	for _, s := range seeds {
		uid := s
		entrants = append(entrants, entrant{userID: &uid})
	}
	return entrants
}

// buildRounds pairs entrants consecutively, halving each round until a
// single final remains. Entrant counts here are always powers of two.
func (g *SingleEliminationGenerator) buildRounds(plan *Plan, entrants []entrant, round int) (*Plan, error) {
	for len(entrants) > 1 {
		next := make([]entrant, 0, len(entrants)/2)
		for i := 0; i < len(entrants); i += 2 {
			m := &PlannedMatch{Round: round, OrderInRound: i/2 + 1}
			m.Player1, m.Source1 = entrants[i].userID, entrants[i].sourceMatch
			m.Player2, m.Source2 = entrants[i+1].userID, entrants[i+1].sourceMatch

			idx := len(plan.Matches)
			plan.Matches = append(plan.Matches, m)
			next = append(next, entrant{sourceMatch: &idx})
		}
		entrants = next
		plan.Rounds = round
		round++
	}
	return plan, nil
}
