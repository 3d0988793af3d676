package domain

import "time"

// RateScale is the fixed-point denominator of the sale rate: a rate of R pays
// R token base units per RateScale units of settlement currency.
const RateScale uint64 = 1_000_000

// SaleDuration is the fixed window between sale creation and its deadline.
const SaleDuration = 60 * 24 * time.Hour

// SaleDurationSeconds is SaleDuration in whole seconds.
const SaleDurationSeconds = uint64(SaleDuration / time.Second)

// CurrencyDecimals is the number of decimals of the settlement currency base unit.
const CurrencyDecimals = 6

// SaleStatus is the phase of the sale. Values match the persisted byte.
type SaleStatus uint8

const (
	SaleStatusOpen    SaleStatus = 0
	SaleStatusSuccess SaleStatus = 1
	SaleStatusExpired SaleStatus = 2
)

// String returns the string representation of SaleStatus.
func (s SaleStatus) String() string {
	switch s {
	case SaleStatusOpen:
		return "OPEN"
	case SaleStatusSuccess:
		return "SUCCESS"
	case SaleStatusExpired:
		return "EXPIRED"
	default:
		return "UNKNOWN"
	}
}

// IsValid checks if the status is a known value.
func (s SaleStatus) IsValid() bool {
	return s == SaleStatusOpen || s == SaleStatusSuccess || s == SaleStatusExpired
}

// IsTerminal reports whether no further transition is possible.
func (s SaleStatus) IsTerminal() bool {
	return s == SaleStatusSuccess || s == SaleStatusExpired
}

// SaleState is the singleton sale record: configuration plus the aggregate total.
// Timestamps are Unix seconds.
type SaleState struct {
	Creator  Identity   // sale creator, the only admin
	AssetID  uint64     // token asset sold
	Rate     uint64     // token base units per RateScale currency units
	Goal     uint64     // currency target
	Total    uint64     // currency pledged so far
	StartTS  uint64     // creation time
	Deadline uint64     // StartTS + SaleDurationSeconds, fixed at creation
	Status   SaleStatus // OPEN | SUCCESS | EXPIRED

	// Outstanding is the sum of owed tokens not yet claimed.
	Outstanding uint64
}

// GoalReached reports whether pledges cover the goal.
func (s SaleState) GoalReached() bool {
	return s.Total >= s.Goal
}
