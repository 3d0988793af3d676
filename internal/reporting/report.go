// Package reporting renders a sale snapshot and its journal for operators.
package reporting

import (
	"time"

	"escrow-sale/internal/domain"
	"escrow-sale/internal/verification"
)

// Report represents one sale at a point in time.
type Report struct {
	// Metadata
	GeneratedAt   time.Time
	SaleID        string
	Escrow        domain.Identity
	TokenDecimals int32

	State          domain.SaleState
	EscrowCurrency uint64
	EscrowTokens   uint64

	// Journal, oldest first
	Events []*domain.SaleEvent

	// Audit is nil when the journal was not verified.
	Audit *verification.VerificationReport
}

// ContributorRow is one contributor's totals derived from the journal.
type ContributorRow struct {
	Contributor domain.Identity
	Pledged     uint64
	Tokens      uint64
	Settled     bool
}

// Contributors aggregates contribution and settlement events per contributor,
// ordered by first contribution.
func (r *Report) Contributors() []ContributorRow {
	index := make(map[domain.Identity]int)
	var rows []ContributorRow

	for _, e := range r.Events {
		switch e.Kind {
		case domain.EventContributed:
			i, ok := index[e.Actor]
			if !ok {
				i = len(rows)
				index[e.Actor] = i
				rows = append(rows, ContributorRow{Contributor: e.Actor})
			}
			rows[i].Pledged += e.Amount
			rows[i].Tokens += e.Tokens
		case domain.EventClaimed, domain.EventRefunded:
			if i, ok := index[e.Actor]; ok {
				rows[i].Settled = true
			}
		}
	}
	return rows
}
