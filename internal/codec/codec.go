// Package codec holds the fixed-width binary layouts of persisted sale records
// and the keys they are stored under.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"

	"escrow-sale/internal/domain"
)

const (
	// RecordSize is the encoded length of a ContributorRecord.
	RecordSize = 16

	// StateSize is the encoded length of a SaleState:
	// creator, seven u64 fields, one status byte.
	StateSize = domain.IdentitySize + 7*8 + 1

	recordPrefix = "u:"
	stateKey     = "sale"
)

var (
	// ErrInvalidLength is returned when a blob does not match its fixed layout size.
	ErrInvalidLength = errors.New("invalid encoded length")

	// ErrInvalidStatus is returned when the status byte is not a known SaleStatus.
	ErrInvalidStatus = errors.New("invalid sale status")
)

// StateKey returns the key of the global sale record.
func StateKey() []byte {
	return []byte(stateKey)
}

// RecordKey returns the key of a contributor record: prefix followed by raw identity bytes.
func RecordKey(id domain.Identity) []byte {
	key := make([]byte, 0, len(recordPrefix)+domain.IdentitySize)
	key = append(key, recordPrefix...)
	return append(key, id[:]...)
}

// EncodeRecord packs pledged then owed, each 8 bytes big-endian.
func EncodeRecord(r domain.ContributorRecord) []byte {
	buf := make([]byte, RecordSize)
	binary.BigEndian.PutUint64(buf[0:8], r.Pledged)
	binary.BigEndian.PutUint64(buf[8:16], r.Owed)
	return buf
}

// DecodeRecord is the inverse of EncodeRecord.
func DecodeRecord(b []byte) (domain.ContributorRecord, error) {
	if len(b) != RecordSize {
		return domain.ContributorRecord{}, fmt.Errorf("%w: record has %d bytes, want %d", ErrInvalidLength, len(b), RecordSize)
	}
	return domain.ContributorRecord{
		Pledged: binary.BigEndian.Uint64(b[0:8]),
		Owed:    binary.BigEndian.Uint64(b[8:16]),
	}, nil
}

// EncodeState packs the global sale record.
// Layout: creator(32) asset rate goal total start deadline outstanding (u64 BE each) status(1).
func EncodeState(s domain.SaleState) []byte {
	buf := make([]byte, StateSize)
	copy(buf[0:domain.IdentitySize], s.Creator[:])

	off := domain.IdentitySize
	for _, v := range []uint64{s.AssetID, s.Rate, s.Goal, s.Total, s.StartTS, s.Deadline, s.Outstanding} {
		binary.BigEndian.PutUint64(buf[off:off+8], v)
		off += 8
	}
	buf[off] = byte(s.Status)
	return buf
}

// DecodeState is the inverse of EncodeState.
func DecodeState(b []byte) (domain.SaleState, error) {
	var s domain.SaleState
	if len(b) != StateSize {
		return s, fmt.Errorf("%w: state has %d bytes, want %d", ErrInvalidLength, len(b), StateSize)
	}

	copy(s.Creator[:], b[0:domain.IdentitySize])

	off := domain.IdentitySize
	for _, dst := range []*uint64{&s.AssetID, &s.Rate, &s.Goal, &s.Total, &s.StartTS, &s.Deadline, &s.Outstanding} {
		*dst = binary.BigEndian.Uint64(b[off : off+8])
		off += 8
	}

	s.Status = domain.SaleStatus(b[off])
	if !s.Status.IsValid() {
		return s, fmt.Errorf("%w: %d", ErrInvalidStatus, b[off])
	}
	return s, nil
}
