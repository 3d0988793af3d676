// Package verification audits a sale by replaying its event journal and
// comparing the result with the state held by the ledger.
package verification

import (
	"context"
	"sort"

	"escrow-sale/internal/domain"
	"escrow-sale/internal/storage"
)

// FieldDivergence represents a mismatch between ledger and replayed values.
type FieldDivergence struct {
	Field    string `json:"field"`
	Expected any    `json:"expected"` // ledger value
	Actual   any    `json:"actual"`   // replayed value
}

// VerificationResult is the outcome for one contributor record.
type VerificationResult struct {
	Contributor domain.Identity   `json:"contributor"`
	Match       bool              `json:"match"`
	Divergences []FieldDivergence `json:"divergences,omitempty"`
}

// VerificationReport is the outcome of auditing one sale.
type VerificationReport struct {
	SaleID                string               `json:"sale_id"`
	Events                int                  `json:"events"`
	Match                 bool                 `json:"match"`
	StateDivergences      []FieldDivergence    `json:"state_divergences,omitempty"`
	Contributors          int                  `json:"contributors"`
	DivergentContributors int                  `json:"divergent_contributors"`
	Results               []VerificationResult `json:"results"`
}

// Ledger is the live view of the sale being audited.
type Ledger interface {
	SaleID() string
	State(ctx context.Context) (domain.SaleState, error)
	Record(ctx context.Context, id domain.Identity) (domain.ContributorRecord, bool, error)
}

// Verifier audits a sale against its journal.
type Verifier struct {
	sale   Ledger
	events storage.EventStore
}

// NewVerifier creates a new Verifier.
func NewVerifier(sale Ledger, events storage.EventStore) *Verifier {
	return &Verifier{sale: sale, events: events}
}

// Verify replays the whole journal and compares it with the ledger.
func (v *Verifier) Verify(ctx context.Context) (*VerificationReport, error) {
	events, err := v.events.GetBySale(ctx, v.sale.SaleID(), 0)
	if err != nil {
		return nil, err
	}
	replay, err := ReplayJournal(events)
	if err != nil {
		return nil, err
	}
	state, err := v.sale.State(ctx)
	if err != nil {
		return nil, err
	}

	report := &VerificationReport{
		SaleID:           v.sale.SaleID(),
		Events:           replay.Events,
		StateDivergences: CompareStates(state, replay.State),
		Contributors:     len(replay.Records),
		Results:          make([]VerificationResult, 0, len(replay.Records)),
	}

	ids := make([]domain.Identity, 0, len(replay.Records))
	for id := range replay.Records {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	for _, id := range ids {
		stored, found, err := v.sale.Record(ctx, id)
		if err != nil {
			return nil, err
		}

		var divergences []FieldDivergence
		if !found {
			divergences = append(divergences, FieldDivergence{Field: "Present", Expected: false, Actual: true})
		} else {
			divergences = CompareRecords(stored, replay.Records[id])
		}

		result := VerificationResult{
			Contributor: id,
			Match:       len(divergences) == 0,
			Divergences: divergences,
		}
		report.Results = append(report.Results, result)
		if !result.Match {
			report.DivergentContributors++
		}
	}

	report.Match = len(report.StateDivergences) == 0 && report.DivergentContributors == 0
	return report, nil
}

// CompareStates compares the ledger state with the replayed one.
// AssetID is not journaled and is not compared.
func CompareStates(stored, replayed domain.SaleState) []FieldDivergence {
	var divergences []FieldDivergence
	add := func(field string, expected, actual any) {
		divergences = append(divergences, FieldDivergence{Field: field, Expected: expected, Actual: actual})
	}

	if stored.Creator != replayed.Creator {
		add("Creator", stored.Creator, replayed.Creator)
	}
	if stored.Rate != replayed.Rate {
		add("Rate", stored.Rate, replayed.Rate)
	}
	if stored.Goal != replayed.Goal {
		add("Goal", stored.Goal, replayed.Goal)
	}
	if stored.Total != replayed.Total {
		add("Total", stored.Total, replayed.Total)
	}
	if stored.StartTS != replayed.StartTS {
		add("StartTS", stored.StartTS, replayed.StartTS)
	}
	if stored.Deadline != replayed.Deadline {
		add("Deadline", stored.Deadline, replayed.Deadline)
	}
	if stored.Status != replayed.Status {
		add("Status", stored.Status.String(), replayed.Status.String())
	}
	if stored.Outstanding != replayed.Outstanding {
		add("Outstanding", stored.Outstanding, replayed.Outstanding)
	}
	return divergences
}

// CompareRecords compares a ledger contributor record with the replayed one.
func CompareRecords(stored, replayed domain.ContributorRecord) []FieldDivergence {
	var divergences []FieldDivergence
	if stored.Pledged != replayed.Pledged {
		divergences = append(divergences, FieldDivergence{Field: "Pledged", Expected: stored.Pledged, Actual: replayed.Pledged})
	}
	if stored.Owed != replayed.Owed {
		divergences = append(divergences, FieldDivergence{Field: "Owed", Expected: stored.Owed, Actual: replayed.Owed})
	}
	return divergences
}
