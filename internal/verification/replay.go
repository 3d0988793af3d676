package verification

import (
	"errors"
	"fmt"

	"escrow-sale/internal/domain"
)

var (
	// ErrEmptyJournal is returned when a sale has no journaled events.
	ErrEmptyJournal = errors.New("journal is empty")

	// ErrJournalOrder is returned when events cannot have been produced by a sale,
	// e.g. a contribution before creation or a second creation.
	ErrJournalOrder = errors.New("journal out of order")
)

// Replay is the sale rebuilt from its journal alone.
type Replay struct {
	State   domain.SaleState
	Records map[domain.Identity]domain.ContributorRecord
	Events  int
}

// ReplayJournal folds events, oldest first, into the state they imply.
// Sums saturate rather than wrap; a journal that overflows u64 diverges anyway.
func ReplayJournal(events []*domain.SaleEvent) (*Replay, error) {
	if len(events) == 0 {
		return nil, ErrEmptyJournal
	}

	r := &Replay{Records: make(map[domain.Identity]domain.ContributorRecord)}
	created := false

	for i, e := range events {
		if e.Kind == domain.EventCreated {
			if created {
				return nil, fmt.Errorf("%w: second %s at %d", ErrJournalOrder, e.Kind, i)
			}
			created = true
			r.State = domain.SaleState{
				Creator:  e.Actor,
				Rate:     e.Rate,
				Goal:     e.Amount,
				StartTS:  uint64(e.OccurredAt),
				Deadline: uint64(e.OccurredAt) + domain.SaleDurationSeconds,
				Status:   domain.SaleStatusOpen,
			}
			r.Events++
			continue
		}
		if !created {
			return nil, fmt.Errorf("%w: %s before %s", ErrJournalOrder, e.Kind, domain.EventCreated)
		}

		switch e.Kind {
		case domain.EventOptedIn, domain.EventWithdrawn, domain.EventReclaimed:
			// no effect on sale accounting

		case domain.EventRateChanged:
			r.State.Rate = e.Rate

		case domain.EventContributed:
			rec := r.Records[e.Actor]
			rec.Pledged = saturatingAdd(rec.Pledged, e.Amount)
			rec.Owed = saturatingAdd(rec.Owed, e.Tokens)
			r.Records[e.Actor] = rec
			r.State.Total = saturatingAdd(r.State.Total, e.Amount)
			r.State.Outstanding = saturatingAdd(r.State.Outstanding, e.Tokens)

		case domain.EventFinalized:
			r.State.Status = e.Status

		case domain.EventClaimed:
			if e.Amount > r.State.Outstanding {
				r.State.Outstanding = 0
			} else {
				r.State.Outstanding -= e.Amount
			}
			r.Records[e.Actor] = domain.ContributorRecord{}

		case domain.EventRefunded:
			r.Records[e.Actor] = domain.ContributorRecord{}

		default:
			return nil, fmt.Errorf("%w: unknown kind %q at %d", ErrJournalOrder, e.Kind, i)
		}
		r.Events++
	}

	return r, nil
}

func saturatingAdd(a, b uint64) uint64 {
	if s := a + b; s >= a {
		return s
	}
	return ^uint64(0)
}
