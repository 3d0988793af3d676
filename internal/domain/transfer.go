package domain

import "fmt"

// AssetKind distinguishes the settlement currency from the sale token.
type AssetKind string

const (
	AssetKindCurrency AssetKind = "CURRENCY"
	AssetKindToken    AssetKind = "TOKEN"
)

// Asset identifies what a transfer moves. ID is zero for the currency.
type Asset struct {
	Kind AssetKind
	ID   uint64
}

// Currency returns the settlement currency asset.
func Currency() Asset {
	return Asset{Kind: AssetKindCurrency}
}

// Token returns the token asset with the given id.
func Token(id uint64) Asset {
	return Asset{Kind: AssetKindToken, ID: id}
}

// IsToken reports whether the asset is a token asset.
func (a Asset) IsToken() bool {
	return a.Kind == AssetKindToken
}

// String returns "CURRENCY" or "TOKEN:<id>". Used as storage key.
func (a Asset) String() string {
	if a.Kind == AssetKindToken {
		return fmt.Sprintf("%s:%d", a.Kind, a.ID)
	}
	return string(a.Kind)
}

// Transfer is a single value movement between two accounts.
type Transfer struct {
	From   Identity
	To     Identity
	Amount uint64
	Asset  Asset
}
