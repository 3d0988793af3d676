// Package sale implements the escrow sale: contributor accounting, the
// OPEN -> SUCCESS | EXPIRED state machine and settlement, on top of a
// storage.Ledger host that makes every operation atomic.
package sale

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"escrow-sale/internal/domain"
	"escrow-sale/internal/storage"
)

// Clock supplies the operation timestamp. Read once per operation, inside
// its atomic unit.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// SystemClock is the wall clock.
var SystemClock Clock = ClockFunc(time.Now)

// EventSink receives events of committed operations.
// A sink error is logged and never undoes the operation.
// Within one Engine, sinks see events in commit order. Engines sharing a
// ledger from different processes give no such ordering.
type EventSink interface {
	Publish(ctx context.Context, e domain.SaleEvent) error
}

// Observer is notified of every operation outcome, committed or not.
type Observer interface {
	ObserveOperation(op, code string, elapsed time.Duration)
}

// Option configures Engine.
type Option func(*Engine)

// WithClock sets the clock. Defaults to SystemClock.
func WithClock(c Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithSink registers an event sink. Sinks run in registration order.
func WithSink(s EventSink) Option {
	return func(e *Engine) {
		e.sinks = append(e.sinks, s)
	}
}

// WithObserver sets the operation observer.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		e.observer = o
	}
}

// WithStrictReclaim makes ReclaimAsset in SUCCESS refuse amounts that
// would leave less than the outstanding owed tokens in escrow.
func WithStrictReclaim(strict bool) Option {
	return func(e *Engine) {
		e.strictReclaim = strict
	}
}

// Contribution is the outcome of an accepted contribution.
type Contribution struct {
	Tokens uint64                   // tokens credited by this contribution
	Record domain.ContributorRecord // record after accumulation
	Total  uint64                   // aggregate total after accumulation
}

// Engine runs the operations of one sale against its ledger.
type Engine struct {
	saleID        string
	escrow        domain.Identity
	ledger        storage.Ledger
	clock         Clock
	log           *zap.SugaredLogger
	sinks         []EventSink
	observer      Observer
	strictReclaim bool

	// commitMu orders commit and publish of one operation against the next.
	commitMu sync.Mutex
}

// NewEngine creates the engine of saleID. The escrow account is derived from saleID.
func NewEngine(saleID string, ledger storage.Ledger, log *zap.SugaredLogger, opts ...Option) (*Engine, error) {
	if saleID == "" {
		return nil, fmt.Errorf("sale id is required")
	}
	escrow, err := domain.DeriveEscrowIdentity(saleID)
	if err != nil {
		return nil, fmt.Errorf("derive escrow: %w", err)
	}

	e := &Engine{
		saleID: saleID,
		escrow: escrow,
		ledger: ledger,
		clock:  SystemClock,
		log:    log,
	}
	if e.log == nil {
		e.log = zap.NewNop().Sugar()
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// SaleID returns the sale namespace.
func (e *Engine) SaleID() string { return e.saleID }

// Escrow returns the escrow account holding pledged currency and sale tokens.
func (e *Engine) Escrow() domain.Identity { return e.escrow }

// opFunc is the body of one operation. It returns the event to publish on commit.
type opFunc func(ctx context.Context, tx storage.Tx, reg *Registry, now uint64) (domain.SaleEvent, error)

// run executes fn as one atomic unit and publishes its event after commit.
func (e *Engine) run(ctx context.Context, op string, sender domain.Identity, fn opFunc) (domain.SaleEvent, error) {
	start := time.Now()

	e.commitMu.Lock()
	defer e.commitMu.Unlock()

	var (
		ev  domain.SaleEvent
		now uint64
	)
	err := e.ledger.Atomic(ctx, func(tx storage.Tx) error {
		now = uint64(e.clock.Now().Unix())
		var err error
		ev, err = fn(ctx, tx, NewRegistry(tx), now)
		return err
	})

	code := ErrorCode(err)
	if e.observer != nil {
		e.observer.ObserveOperation(op, code, time.Since(start))
	}
	if err != nil {
		e.log.Debugw("operation rejected", "op", op, "sender", sender.String(), "code", code, "error", err)
		return domain.SaleEvent{}, err
	}

	ev.ID = uuid.NewString()
	ev.SaleID = e.saleID
	ev.Actor = sender
	ev.OccurredAt = int64(now)

	e.log.Infow("operation committed", "op", op, "sender", sender.String(), "amount", ev.Amount, "status", ev.Status.String())
	e.publish(ctx, ev)
	return ev, nil
}

func (e *Engine) publish(ctx context.Context, ev domain.SaleEvent) {
	for _, s := range e.sinks {
		if err := s.Publish(ctx, ev); err != nil {
			e.log.Warnw("event sink failed", "event", ev.ID, "kind", ev.Kind, "error", err)
		}
	}
}

func (e *Engine) transfer(ctx context.Context, tx storage.Tx, t domain.Transfer) error {
	if err := tx.Transfer(ctx, t); err != nil {
		return fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}
	return nil
}

func stateEvent(kind domain.EventKind, s domain.SaleState) domain.SaleEvent {
	return domain.SaleEvent{Kind: kind, Rate: s.Rate, Total: s.Total, Status: s.Status}
}

// Create initializes the sale exactly once with sender as creator.
// The deadline is fixed at now + SaleDuration.
func (e *Engine) Create(ctx context.Context, sender domain.Identity, assetID, rate, goal uint64) (domain.SaleState, error) {
	var state domain.SaleState
	_, err := e.run(ctx, "create", sender, func(ctx context.Context, _ storage.Tx, reg *Registry, now uint64) (domain.SaleEvent, error) {
		_, err := reg.LoadState(ctx)
		if err == nil {
			return domain.SaleEvent{}, ErrAlreadyInitialized
		}
		if !errors.Is(err, ErrNotInitialized) {
			return domain.SaleEvent{}, err
		}

		deadline, err := addU64(now, domain.SaleDurationSeconds)
		if err != nil {
			return domain.SaleEvent{}, err
		}

		state = domain.SaleState{
			Creator:  sender,
			AssetID:  assetID,
			Rate:     rate,
			Goal:     goal,
			StartTS:  now,
			Deadline: deadline,
			Status:   domain.SaleStatusOpen,
		}
		if err := reg.StoreState(ctx, state); err != nil {
			return domain.SaleEvent{}, err
		}

		ev := stateEvent(domain.EventCreated, state)
		ev.Amount = goal
		return ev, nil
	})
	if err != nil {
		return domain.SaleState{}, err
	}
	return state, nil
}

// Contribute records a pledge of amount from sender.
// The currency transfer sender -> escrow runs in the same atomic unit
// before any accounting, so a rejected transfer leaves nothing recorded.
func (e *Engine) Contribute(ctx context.Context, sender domain.Identity, amount uint64) (Contribution, error) {
	var out Contribution
	_, err := e.run(ctx, "contribute", sender, func(ctx context.Context, tx storage.Tx, reg *Registry, now uint64) (domain.SaleEvent, error) {
		state, err := reg.LoadState(ctx)
		if err != nil {
			return domain.SaleEvent{}, err
		}
		if state.Status != domain.SaleStatusOpen {
			return domain.SaleEvent{}, ErrInvalidState
		}
		if now >= state.Deadline {
			return domain.SaleEvent{}, ErrDeadlinePassed
		}
		if amount == 0 {
			return domain.SaleEvent{}, ErrInvalidAmount
		}

		payment := domain.Transfer{From: sender, To: e.escrow, Amount: amount, Asset: domain.Currency()}
		if err := e.transfer(ctx, tx, payment); err != nil {
			return domain.SaleEvent{}, err
		}

		tokens, err := TokensFor(amount, state.Rate)
		if err != nil {
			return domain.SaleEvent{}, err
		}
		if tokens == 0 {
			return domain.SaleEvent{}, ErrDustRejected
		}

		total, err := addU64(state.Total, amount)
		if err != nil {
			return domain.SaleEvent{}, err
		}
		outstanding, err := addU64(state.Outstanding, tokens)
		if err != nil {
			return domain.SaleEvent{}, err
		}

		rec, err := reg.Accumulate(ctx, sender, amount, tokens)
		if err != nil {
			return domain.SaleEvent{}, err
		}

		state.Total = total
		state.Outstanding = outstanding
		if err := reg.StoreState(ctx, state); err != nil {
			return domain.SaleEvent{}, err
		}

		out = Contribution{Tokens: tokens, Record: rec, Total: total}
		ev := stateEvent(domain.EventContributed, state)
		ev.Amount = amount
		ev.Tokens = tokens
		return ev, nil
	})
	if err != nil {
		return Contribution{}, err
	}
	return out, nil
}

// Finalize moves an OPEN sale to SUCCESS when the goal is reached,
// or to EXPIRED once the deadline has passed. Terminal statuses never change.
func (e *Engine) Finalize(ctx context.Context, sender domain.Identity) (domain.SaleStatus, error) {
	ev, err := e.run(ctx, "finalize", sender, func(ctx context.Context, _ storage.Tx, reg *Registry, now uint64) (domain.SaleEvent, error) {
		state, err := reg.LoadState(ctx)
		if err != nil {
			return domain.SaleEvent{}, err
		}
		if state.Status != domain.SaleStatusOpen {
			return domain.SaleEvent{}, ErrInvalidState
		}

		switch {
		case state.GoalReached():
			state.Status = domain.SaleStatusSuccess
		case now >= state.Deadline:
			state.Status = domain.SaleStatusExpired
		default:
			return domain.SaleEvent{}, ErrDeadlineNotReached
		}

		if err := reg.StoreState(ctx, state); err != nil {
			return domain.SaleEvent{}, err
		}
		return stateEvent(domain.EventFinalized, state), nil
	})
	if err != nil {
		return domain.SaleStatusOpen, err
	}
	return ev.Status, nil
}

// Claim pays sender its owed tokens after SUCCESS and zeroes its record.
// Returns the amount sent.
func (e *Engine) Claim(ctx context.Context, sender domain.Identity) (uint64, error) {
	ev, err := e.run(ctx, "claim", sender, func(ctx context.Context, tx storage.Tx, reg *Registry, _ uint64) (domain.SaleEvent, error) {
		state, err := reg.LoadState(ctx)
		if err != nil {
			return domain.SaleEvent{}, err
		}
		if state.Status != domain.SaleStatusSuccess {
			return domain.SaleEvent{}, ErrInvalidState
		}

		rec, found, err := reg.Load(ctx, sender)
		if err != nil {
			return domain.SaleEvent{}, err
		}
		if !found {
			return domain.SaleEvent{}, ErrRecordNotFound
		}
		if rec.Owed == 0 {
			return domain.SaleEvent{}, ErrAlreadySettled
		}

		payout := domain.Transfer{From: e.escrow, To: sender, Amount: rec.Owed, Asset: domain.Token(state.AssetID)}
		if err := e.transfer(ctx, tx, payout); err != nil {
			return domain.SaleEvent{}, err
		}
		if err := reg.Settle(ctx, sender); err != nil {
			return domain.SaleEvent{}, err
		}

		state.Outstanding = subFloor(state.Outstanding, rec.Owed)
		if err := reg.StoreState(ctx, state); err != nil {
			return domain.SaleEvent{}, err
		}

		ev := stateEvent(domain.EventClaimed, state)
		ev.Amount = rec.Owed
		return ev, nil
	})
	if err != nil {
		return 0, err
	}
	return ev.Amount, nil
}

// Refund returns sender's pledged currency after EXPIRED and zeroes its record.
// Returns the amount refunded.
func (e *Engine) Refund(ctx context.Context, sender domain.Identity) (uint64, error) {
	ev, err := e.run(ctx, "refund", sender, func(ctx context.Context, tx storage.Tx, reg *Registry, _ uint64) (domain.SaleEvent, error) {
		state, err := reg.LoadState(ctx)
		if err != nil {
			return domain.SaleEvent{}, err
		}
		if state.Status != domain.SaleStatusExpired {
			return domain.SaleEvent{}, ErrInvalidState
		}

		rec, found, err := reg.Load(ctx, sender)
		if err != nil {
			return domain.SaleEvent{}, err
		}
		if !found {
			return domain.SaleEvent{}, ErrRecordNotFound
		}
		if rec.Pledged == 0 {
			return domain.SaleEvent{}, ErrAlreadySettled
		}

		payback := domain.Transfer{From: e.escrow, To: sender, Amount: rec.Pledged, Asset: domain.Currency()}
		if err := e.transfer(ctx, tx, payback); err != nil {
			return domain.SaleEvent{}, err
		}
		if err := reg.Settle(ctx, sender); err != nil {
			return domain.SaleEvent{}, err
		}

		ev := stateEvent(domain.EventRefunded, state)
		ev.Amount = rec.Pledged
		return ev, nil
	})
	if err != nil {
		return 0, err
	}
	return ev.Amount, nil
}

// State returns the global sale record.
func (e *Engine) State(ctx context.Context) (domain.SaleState, error) {
	var state domain.SaleState
	err := e.ledger.Atomic(ctx, func(tx storage.Tx) error {
		var err error
		state, err = NewRegistry(tx).LoadState(ctx)
		return err
	})
	return state, err
}

// Record returns the record of id and whether it exists.
func (e *Engine) Record(ctx context.Context, id domain.Identity) (domain.ContributorRecord, bool, error) {
	var (
		rec   domain.ContributorRecord
		found bool
	)
	err := e.ledger.Atomic(ctx, func(tx storage.Tx) error {
		var err error
		rec, found, err = NewRegistry(tx).Load(ctx, id)
		return err
	})
	return rec, found, err
}

// EscrowBalance returns the escrow holdings of asset.
func (e *Engine) EscrowBalance(ctx context.Context, asset domain.Asset) (uint64, error) {
	var bal uint64
	err := e.ledger.Atomic(ctx, func(tx storage.Tx) error {
		var err error
		bal, err = tx.Balance(ctx, e.escrow, asset)
		return err
	})
	return bal, err
}
