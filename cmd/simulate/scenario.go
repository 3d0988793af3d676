package main

import (
	"context"
	"fmt"
	"math/bits"
	"sync"
	"time"

	"go.uber.org/zap"

	"escrow-sale/internal/domain"
	"escrow-sale/internal/sale"
	"escrow-sale/internal/storage"
	"escrow-sale/internal/storage/memory"
	"escrow-sale/internal/verification"
)

const (
	scenarioSuccess = "success"
	scenarioExpired = "expired"
)

// params describe one simulated sale.
type params struct {
	Scenario string
	AssetID  uint64
	Rate     uint64
	Goal     uint64
	Pledges  []uint64 // one contributor per pledge
}

// manualClock is advanced explicitly by the walkthrough.
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// report is what a run leaves behind.
type report struct {
	SaleID         string
	Escrow         domain.Identity
	State          domain.SaleState
	EscrowCurrency uint64
	EscrowTokens   uint64
	Events         []*domain.SaleEvent
	Audit          *verification.VerificationReport
}

func contributor(i int) domain.Identity {
	var id domain.Identity
	id[0] = 0xA0
	id[31] = byte(i + 1)
	return id
}

// simulate runs a sale end to end on the in-memory ledger.
func simulate(ctx context.Context, p params, log *zap.SugaredLogger) (*report, error) {
	var creator domain.Identity
	creator[0] = 0xC0

	ledger := memory.NewLedger()
	events := memory.NewEventStore()
	clock := &manualClock{now: time.Unix(1_700_000_000, 0)}

	engine, err := sale.NewEngine("simulated-"+p.Scenario, ledger, log,
		sale.WithClock(clock),
		sale.WithSink(storage.NewJournal(events)),
	)
	if err != nil {
		return nil, err
	}

	step := func(name string, err error) error {
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		log.Infow("step", "name", name)
		return nil
	}

	_, err = engine.Create(ctx, creator, p.AssetID, p.Rate, p.Goal)
	if err := step("create", err); err != nil {
		return nil, err
	}
	if err := step("opt_in_asset", engine.OptInAsset(ctx, creator)); err != nil {
		return nil, err
	}

	var owed uint64
	for _, amount := range p.Pledges {
		t, err := sale.TokensFor(amount, p.Rate)
		if err != nil {
			return nil, step("tokens_for", err)
		}
		sum, carry := bits.Add64(owed, t, 0)
		if carry != 0 {
			return nil, step("stock_escrow", fmt.Errorf("owed tokens: %w", sale.ErrOverflow))
		}
		owed = sum
	}
	if err := step("stock_escrow", ledger.Deposit(ctx, engine.Escrow(), domain.Token(p.AssetID), owed)); err != nil {
		return nil, err
	}

	for i, amount := range p.Pledges {
		id := contributor(i)
		if err := ledger.Deposit(ctx, id, domain.Currency(), amount); err != nil {
			return nil, step("fund", err)
		}
		if err := ledger.OptIn(ctx, id, p.AssetID); err != nil {
			return nil, step("contributor_opt_in", err)
		}
		c, err := engine.Contribute(ctx, id, amount)
		if err != nil {
			return nil, step("contribute", err)
		}
		log.Infow("contributed", "contributor", id.String(), "amount", amount, "tokens", c.Tokens, "total", c.Total)
	}

	if p.Scenario == scenarioExpired {
		clock.advance(domain.SaleDuration)
	}
	status, err := engine.Finalize(ctx, creator)
	if err := step("finalize", err); err != nil {
		return nil, err
	}
	log.Infow("finalized", "status", status.String())

	for i := range p.Pledges {
		id := contributor(i)
		switch status {
		case domain.SaleStatusSuccess:
			n, err := engine.Claim(ctx, id)
			if err != nil {
				return nil, step("claim", err)
			}
			log.Infow("claimed", "contributor", id.String(), "tokens", n)
		case domain.SaleStatusExpired:
			n, err := engine.Refund(ctx, id)
			if err != nil {
				return nil, step("refund", err)
			}
			log.Infow("refunded", "contributor", id.String(), "amount", n)
		}
	}

	if status == domain.SaleStatusSuccess {
		raised, err := engine.EscrowBalance(ctx, domain.Currency())
		if err != nil {
			return nil, err
		}
		if err := step("withdraw", engine.Withdraw(ctx, creator, raised)); err != nil {
			return nil, err
		}
	}

	r := &report{SaleID: engine.SaleID(), Escrow: engine.Escrow()}
	if r.State, err = engine.State(ctx); err != nil {
		return nil, err
	}
	if r.EscrowCurrency, err = engine.EscrowBalance(ctx, domain.Currency()); err != nil {
		return nil, err
	}
	if r.EscrowTokens, err = engine.EscrowBalance(ctx, domain.Token(p.AssetID)); err != nil {
		return nil, err
	}
	if r.Events, err = events.GetBySale(ctx, engine.SaleID(), 0); err != nil {
		return nil, err
	}
	if r.Audit, err = verification.NewVerifier(engine, events).Verify(ctx); err != nil {
		return nil, err
	}
	return r, nil
}
