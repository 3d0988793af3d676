package sale

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"escrow-sale/internal/domain"
	"escrow-sale/internal/storage"
	"escrow-sale/internal/storage/memory"
)

const (
	testAssetID = uint64(1001)
	testSaleID  = "sale-test"
)

var (
	creator = testIdentity(0xC0)
	alice   = testIdentity(0xA1)
	bob     = testIdentity(0xB0)
	carol   = testIdentity(0xCA)
)

func testIdentity(b byte) domain.Identity {
	var id domain.Identity
	for i := range id {
		id[i] = b
	}
	return id
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// tickingClock moves one second forward on every read.
type tickingClock struct {
	mu   sync.Mutex
	next int64
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Unix(c.next, 0)
	c.next++
	return now
}

// gatedLedger parks its first Atomic call until release is closed.
type gatedLedger struct {
	storage.Ledger
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGatedLedger(l storage.Ledger) *gatedLedger {
	return &gatedLedger{Ledger: l, entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedLedger) Atomic(ctx context.Context, fn func(tx storage.Tx) error) error {
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.entered)
		<-g.release
	}
	return g.Ledger.Atomic(ctx, fn)
}

type recordingSink struct {
	mu     sync.Mutex
	events []domain.SaleEvent
	err    error
}

func (s *recordingSink) Publish(_ context.Context, e domain.SaleEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return s.err
}

func (s *recordingSink) kinds() []domain.EventKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.EventKind, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Kind)
	}
	return out
}

type recordingObserver struct {
	mu    sync.Mutex
	codes map[string][]string
}

func (o *recordingObserver) ObserveOperation(op, code string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.codes == nil {
		o.codes = make(map[string][]string)
	}
	o.codes[op] = append(o.codes[op], code)
}

type fixture struct {
	ctx    context.Context
	engine *Engine
	ledger *memory.Ledger
	clock  *fakeClock
	sink   *recordingSink
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	f := &fixture{
		ctx:    context.Background(),
		ledger: memory.NewLedger(),
		clock:  newFakeClock(),
		sink:   &recordingSink{},
	}
	opts = append([]Option{WithClock(f.clock), WithSink(f.sink)}, opts...)

	engine, err := NewEngine(testSaleID, f.ledger, zaptest.NewLogger(t).Sugar(), opts...)
	require.NoError(t, err)
	f.engine = engine
	return f
}

// created returns a fixture with an OPEN sale of rate 100 and the given goal.
func created(t *testing.T, goal uint64, opts ...Option) *fixture {
	t.Helper()
	f := newFixture(t, opts...)
	_, err := f.engine.Create(f.ctx, creator, testAssetID, 100, goal)
	require.NoError(t, err)
	return f
}

func (f *fixture) fund(t *testing.T, id domain.Identity, amount uint64) {
	t.Helper()
	require.NoError(t, f.ledger.Deposit(f.ctx, id, domain.Currency(), amount))
}

// stockTokens opts the escrow in and deposits amount of the sale token into it.
func (f *fixture) stockTokens(t *testing.T, amount uint64) {
	t.Helper()
	require.NoError(t, f.engine.OptInAsset(f.ctx, creator))
	require.NoError(t, f.ledger.Deposit(f.ctx, f.engine.Escrow(), domain.Token(testAssetID), amount))
}

func (f *fixture) contribute(t *testing.T, id domain.Identity, amount uint64) Contribution {
	t.Helper()
	f.fund(t, id, amount)
	c, err := f.engine.Contribute(f.ctx, id, amount)
	require.NoError(t, err)
	return c
}

func (f *fixture) balance(t *testing.T, id domain.Identity, asset domain.Asset) uint64 {
	t.Helper()
	bal, err := f.ledger.Balance(f.ctx, id, asset)
	require.NoError(t, err)
	return bal
}

func (f *fixture) state(t *testing.T) domain.SaleState {
	t.Helper()
	s, err := f.engine.State(f.ctx)
	require.NoError(t, err)
	return s
}
