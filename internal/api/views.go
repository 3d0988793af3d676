package api

import (
	"escrow-sale/internal/domain"
	"escrow-sale/internal/sale"
)

type createRequest struct {
	AssetID uint64 `json:"asset_id"`
	Rate    uint64 `json:"rate"`
	Goal    uint64 `json:"goal"`
}

type rateRequest struct {
	Rate uint64 `json:"rate"`
}

type amountRequest struct {
	Amount uint64 `json:"amount"`
}

type reclaimRequest struct {
	Amount uint64 `json:"amount"`
	To     string `json:"to" binding:"required"`
}

// SaleView is the JSON form of the sale record.
type SaleView struct {
	Creator      domain.Identity `json:"creator"`
	Escrow       domain.Identity `json:"escrow"`
	AssetID      uint64          `json:"asset_id"`
	Rate         uint64          `json:"rate"`
	Goal         uint64          `json:"goal"`
	GoalDisplay  string          `json:"goal_display"`
	Total        uint64          `json:"total"`
	TotalDisplay string          `json:"total_display"`
	StartTS      uint64          `json:"start_ts"`
	Deadline     uint64          `json:"deadline"`
	Status       string          `json:"status"`
	Outstanding  uint64          `json:"outstanding_tokens"`

	// Set on reads only.
	EscrowCurrency uint64 `json:"escrow_currency,omitempty"`
	EscrowTokens   uint64 `json:"escrow_tokens,omitempty"`
}

// RecordView is the JSON form of a contributor record.
type RecordView struct {
	Contributor    domain.Identity `json:"contributor"`
	Pledged        uint64          `json:"pledged"`
	PledgedDisplay string          `json:"pledged_display"`
	Owed           uint64          `json:"owed"`
	OwedDisplay    string          `json:"owed_display"`
	Settled        bool            `json:"settled"`
}

// ContributionView is the response of an accepted contribution.
type ContributionView struct {
	Tokens uint64     `json:"tokens"`
	Total  uint64     `json:"total"`
	Record RecordView `json:"record"`
}

// PayoutView is the response of claim and refund.
type PayoutView struct {
	Amount  uint64 `json:"amount"`
	Display string `json:"display"`
}

type errorView struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (h *Handler) saleView(s domain.SaleState) SaleView {
	return SaleView{
		Creator:      s.Creator,
		Escrow:       h.sale.Escrow(),
		AssetID:      s.AssetID,
		Rate:         s.Rate,
		Goal:         s.Goal,
		GoalDisplay:  displayAmount(s.Goal, domain.CurrencyDecimals),
		Total:        s.Total,
		TotalDisplay: displayAmount(s.Total, domain.CurrencyDecimals),
		StartTS:      s.StartTS,
		Deadline:     s.Deadline,
		Status:       s.Status.String(),
		Outstanding:  s.Outstanding,
	}
}

func (h *Handler) recordView(id domain.Identity, r domain.ContributorRecord) RecordView {
	return RecordView{
		Contributor:    id,
		Pledged:        r.Pledged,
		PledgedDisplay: displayAmount(r.Pledged, domain.CurrencyDecimals),
		Owed:           r.Owed,
		OwedDisplay:    displayAmount(r.Owed, h.tokenDecimals),
		Settled:        r.IsSettled(),
	}
}

func (h *Handler) contributionView(id domain.Identity, c sale.Contribution) ContributionView {
	return ContributionView{
		Tokens: c.Tokens,
		Total:  c.Total,
		Record: h.recordView(id, c.Record),
	}
}
