package models

import "time"

// ResultReport is one participant's claim about the outcome of a
// challenge or a tournament match. A participant may file at most one
// report per entity; the pair of reports drives settlement.
type ResultReport struct {
	ReportedBy    int       `json:"reported_by"`
	ClaimedWinner int       `json:"claimed_winner"`
	Evidence      string    `json:"evidence,omitempty"`
	ReportedAt    time.Time `json:"reported_at"`
}
