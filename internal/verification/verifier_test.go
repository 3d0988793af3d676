package verification

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"escrow-sale/internal/domain"
	"escrow-sale/internal/sale"
	"escrow-sale/internal/storage"
	"escrow-sale/internal/storage/memory"
)

const assetID = uint64(42)

func ident(b byte) domain.Identity {
	var id domain.Identity
	id[0] = b
	id[31] = b
	return id
}

var (
	creator = ident(0xC0)
	alice   = ident(0xA1)
	bob     = ident(0xB0)
)

type fixture struct {
	ctx    context.Context
	ledger *memory.Ledger
	events *memory.EventStore
	engine *sale.Engine
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		ctx:    context.Background(),
		ledger: memory.NewLedger(),
		events: memory.NewEventStore(),
		now:    time.Unix(1_700_000_000, 0),
	}
	engine, err := sale.NewEngine("audit", f.ledger, zaptest.NewLogger(t).Sugar(),
		sale.WithClock(sale.ClockFunc(func() time.Time { return f.now })),
		sale.WithSink(storage.NewJournal(f.events)),
	)
	require.NoError(t, err)
	f.engine = engine
	return f
}

// runSale drives a sale to SUCCESS with alice claimed and bob unclaimed.
func (f *fixture) runSale(t *testing.T) {
	t.Helper()
	ctx := f.ctx
	_, err := f.engine.Create(ctx, creator, assetID, domain.RateScale, 300)
	require.NoError(t, err)
	require.NoError(t, f.engine.OptInAsset(ctx, creator))
	require.NoError(t, f.ledger.Deposit(ctx, f.engine.Escrow(), domain.Token(assetID), 1_000))

	for _, id := range []domain.Identity{alice, bob} {
		require.NoError(t, f.ledger.Deposit(ctx, id, domain.Currency(), 1_000))
		require.NoError(t, f.ledger.OptIn(ctx, id, assetID))
	}

	f.now = f.now.Add(time.Minute)
	_, err = f.engine.Contribute(ctx, alice, 100)
	require.NoError(t, err)
	require.NoError(t, f.engine.SetRate(ctx, creator, 2*domain.RateScale))
	_, err = f.engine.Contribute(ctx, bob, 200)
	require.NoError(t, err)

	status, err := f.engine.Finalize(ctx, alice)
	require.NoError(t, err)
	require.Equal(t, domain.SaleStatusSuccess, status)

	_, err = f.engine.Claim(ctx, alice)
	require.NoError(t, err)
	require.NoError(t, f.engine.Withdraw(ctx, creator, 300))
}

func TestVerify_Match(t *testing.T) {
	f := newFixture(t)
	f.runSale(t)

	report, err := NewVerifier(f.engine, f.events).Verify(f.ctx)
	require.NoError(t, err)

	assert.True(t, report.Match, "divergences: %+v %+v", report.StateDivergences, report.Results)
	assert.Equal(t, "audit", report.SaleID)
	assert.Equal(t, 8, report.Events)
	assert.Equal(t, 2, report.Contributors)
	assert.Zero(t, report.DivergentContributors)
}

func TestVerify_MissingJournalEntry(t *testing.T) {
	f := newFixture(t)
	f.runSale(t)

	// a contribution the ledger never saw
	forged := &domain.SaleEvent{
		ID:         "forged",
		SaleID:     "audit",
		Kind:       domain.EventContributed,
		Actor:      alice,
		Amount:     50,
		Tokens:     50,
		OccurredAt: f.now.Unix(),
	}
	require.NoError(t, f.events.Insert(f.ctx, forged))

	report, err := NewVerifier(f.engine, f.events).Verify(f.ctx)
	require.NoError(t, err)

	assert.False(t, report.Match)
	fields := make([]string, 0, len(report.StateDivergences))
	for _, d := range report.StateDivergences {
		fields = append(fields, d.Field)
	}
	assert.Equal(t, []string{"Total", "Outstanding"}, fields)
	assert.Equal(t, 1, report.DivergentContributors)
}

func TestVerify_EmptyJournal(t *testing.T) {
	f := newFixture(t)
	_, err := NewVerifier(f.engine, f.events).Verify(f.ctx)
	assert.ErrorIs(t, err, ErrEmptyJournal)
}

func TestReplayJournal_Order(t *testing.T) {
	tests := []struct {
		name   string
		events []*domain.SaleEvent
	}{
		{
			name:   "contribution before creation",
			events: []*domain.SaleEvent{{Kind: domain.EventContributed, Amount: 1}},
		},
		{
			name: "second creation",
			events: []*domain.SaleEvent{
				{Kind: domain.EventCreated},
				{Kind: domain.EventCreated},
			},
		},
		{
			name: "unknown kind",
			events: []*domain.SaleEvent{
				{Kind: domain.EventCreated},
				{Kind: "MINTED"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReplayJournal(tt.events)
			if !errors.Is(err, ErrJournalOrder) {
				t.Errorf("expected ErrJournalOrder, got %v", err)
			}
		})
	}
}

func TestReplayJournal_Refunds(t *testing.T) {
	events := []*domain.SaleEvent{
		{Kind: domain.EventCreated, Actor: creator, Rate: 5, Amount: 1_000, OccurredAt: 10},
		{Kind: domain.EventContributed, Actor: alice, Amount: 40, Tokens: 0},
		{Kind: domain.EventContributed, Actor: alice, Amount: 60, Tokens: 0},
		{Kind: domain.EventFinalized, Status: domain.SaleStatusExpired},
		{Kind: domain.EventRefunded, Actor: alice, Amount: 100},
	}

	r, err := ReplayJournal(events)
	require.NoError(t, err)

	assert.Equal(t, uint64(100), r.State.Total)
	assert.Equal(t, uint64(1_000), r.State.Goal)
	assert.Equal(t, uint64(10)+domain.SaleDurationSeconds, r.State.Deadline)
	assert.Equal(t, domain.SaleStatusExpired, r.State.Status)
	assert.True(t, r.Records[alice].IsSettled())
	assert.Equal(t, 5, r.Events)
}

func TestCompareRecords(t *testing.T) {
	assert.Empty(t, CompareRecords(domain.ContributorRecord{Pledged: 1, Owed: 2}, domain.ContributorRecord{Pledged: 1, Owed: 2}))

	d := CompareRecords(domain.ContributorRecord{Pledged: 1, Owed: 2}, domain.ContributorRecord{Pledged: 3, Owed: 2})
	require.Len(t, d, 1)
	assert.Equal(t, FieldDivergence{Field: "Pledged", Expected: uint64(1), Actual: uint64(3)}, d[0])
}
