package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIdentity_RoundTrip(t *testing.T) {
	var id Identity
	for i := range id {
		id[i] = byte(255 - i)
	}

	parsed, err := ParseIdentity(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
}

func TestParseIdentity_Invalid(t *testing.T) {
	_, err := ParseIdentity("0OIl")
	assert.ErrorIs(t, err, ErrInvalidIdentity)

	_, err = ParseIdentity("3yZe7d")
	assert.ErrorIs(t, err, ErrInvalidIdentity)
}

func TestIdentity_JSON(t *testing.T) {
	id, err := DeriveEscrowIdentity("json")
	require.NoError(t, err)

	raw, err := json.Marshal(struct {
		ID Identity `json:"id"`
	}{id})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"`+id.String()+`"}`, string(raw))

	var out struct {
		ID Identity `json:"id"`
	}
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, id, out.ID)
}

func TestDeriveEscrowIdentity(t *testing.T) {
	a, err := DeriveEscrowIdentity("sale-1")
	require.NoError(t, err)
	b, err := DeriveEscrowIdentity("sale-1")
	require.NoError(t, err)
	c, err := DeriveEscrowIdentity("sale-2")
	require.NoError(t, err)

	assert.Equal(t, a, b, "derivation must be deterministic")
	assert.NotEqual(t, a, c)
	assert.False(t, a.IsOnCurve(), "escrow identity must be off curve")
	assert.False(t, a.IsZero())
}

func TestSaleStatus(t *testing.T) {
	assert.Equal(t, "OPEN", SaleStatusOpen.String())
	assert.Equal(t, "SUCCESS", SaleStatusSuccess.String())
	assert.Equal(t, "EXPIRED", SaleStatusExpired.String())
	assert.Equal(t, "UNKNOWN", SaleStatus(7).String())

	assert.False(t, SaleStatusOpen.IsTerminal())
	assert.True(t, SaleStatusSuccess.IsTerminal())
	assert.True(t, SaleStatusExpired.IsTerminal())
	assert.False(t, SaleStatus(3).IsValid())
}

func TestSaleDurationSeconds(t *testing.T) {
	assert.Equal(t, uint64(5_184_000), SaleDurationSeconds)
}
