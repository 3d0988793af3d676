package domain

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// IdentitySize is the byte length of an account identity.
const IdentitySize = 32

// escrowMarker is appended to the derivation preimage of escrow identities.
const escrowMarker = "EscrowSaleAccount"

var (
	// ErrInvalidIdentity is returned when a string does not decode to a 32-byte identity.
	ErrInvalidIdentity = errors.New("invalid identity")

	// ErrNoEscrowBump is returned when no bump seed yields an off-curve escrow identity.
	ErrNoEscrowBump = errors.New("no off-curve escrow identity for seeds")
)

// Identity is the raw 32-byte account identifier used as contributor key,
// creator and escrow address. Its text form is base58.
type Identity [IdentitySize]byte

// ParseIdentity decodes a base58 identity.
func ParseIdentity(s string) (Identity, error) {
	var id Identity
	raw, err := base58.Decode(s)
	if err != nil {
		return id, fmt.Errorf("%w: %v", ErrInvalidIdentity, err)
	}
	return identityFromBytes(raw)
}

func identityFromBytes(b []byte) (Identity, error) {
	var id Identity
	if len(b) != IdentitySize {
		return id, fmt.Errorf("%w: got %d bytes", ErrInvalidIdentity, len(b))
	}
	copy(id[:], b)
	return id, nil
}

// String returns the base58 form.
func (id Identity) String() string {
	return base58.Encode(id[:])
}

// IsZero reports whether the identity is all zeroes.
func (id Identity) IsZero() bool {
	return id == Identity{}
}

// IsOnCurve reports whether the identity is a valid ed25519 public key,
// i.e. an account some private key can sign for.
func (id Identity) IsOnCurve() bool {
	_, err := new(edwards25519.Point).SetBytes(id[:])
	return err == nil
}

// MarshalText implements encoding.TextMarshaler.
func (id Identity) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *Identity) UnmarshalText(text []byte) error {
	parsed, err := ParseIdentity(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// DeriveEscrowIdentity derives the escrow account of a sale.
//
// The result is a SHA-256 digest that is not a valid ed25519 point, so no
// private key exists for it and funds can only leave through the engine.
// Derivation walks bump seeds from 255 down and returns the first off-curve digest.
func DeriveEscrowIdentity(saleID string) (Identity, error) {
	seeds := [][]byte{[]byte("escrow"), []byte(saleID)}

	for bump := byte(255); bump > 0; bump-- {
		data := make([]byte, 0, 64)
		for _, seed := range seeds {
			data = append(data, seed...)
		}
		data = append(data, bump)
		data = append(data, []byte(escrowMarker)...)

		id := Identity(sha256.Sum256(data))
		if !id.IsOnCurve() {
			return id, nil
		}
	}

	return Identity{}, ErrNoEscrowBump
}
