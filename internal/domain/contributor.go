package domain

// ContributorRecord is the per-identity pledge and entitlement.
// A record that was settled is kept with both fields zeroed.
type ContributorRecord struct {
	Pledged uint64 // settlement currency pledged
	Owed    uint64 // token base units owed on success
}

// IsSettled reports whether the record has been zeroed by claim or refund.
func (r ContributorRecord) IsSettled() bool {
	return r.Pledged == 0 && r.Owed == 0
}
