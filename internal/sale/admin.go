package sale

import (
	"context"

	"escrow-sale/internal/domain"
	"escrow-sale/internal/storage"
)

// loadAsCreator loads the sale state and checks that sender created it.
func loadAsCreator(ctx context.Context, reg *Registry, sender domain.Identity) (domain.SaleState, error) {
	state, err := reg.LoadState(ctx)
	if err != nil {
		return state, err
	}
	if sender != state.Creator {
		return state, ErrPermissionDenied
	}
	return state, nil
}

// OptInAsset registers the escrow account as holder of the sale token.
func (e *Engine) OptInAsset(ctx context.Context, sender domain.Identity) error {
	_, err := e.run(ctx, "opt_in_asset", sender, func(ctx context.Context, tx storage.Tx, reg *Registry, _ uint64) (domain.SaleEvent, error) {
		state, err := loadAsCreator(ctx, reg, sender)
		if err != nil {
			return domain.SaleEvent{}, err
		}
		if err := tx.OptIn(ctx, e.escrow, state.AssetID); err != nil {
			return domain.SaleEvent{}, err
		}
		return stateEvent(domain.EventOptedIn, state), nil
	})
	return err
}

// SetRate changes the rate applied to future contributions.
// Entitlements already recorded keep the rate they were computed at.
func (e *Engine) SetRate(ctx context.Context, sender domain.Identity, rate uint64) error {
	_, err := e.run(ctx, "set_rate", sender, func(ctx context.Context, _ storage.Tx, reg *Registry, _ uint64) (domain.SaleEvent, error) {
		state, err := loadAsCreator(ctx, reg, sender)
		if err != nil {
			return domain.SaleEvent{}, err
		}
		if state.Status != domain.SaleStatusOpen {
			return domain.SaleEvent{}, ErrInvalidState
		}

		state.Rate = rate
		if err := reg.StoreState(ctx, state); err != nil {
			return domain.SaleEvent{}, err
		}
		return stateEvent(domain.EventRateChanged, state), nil
	})
	return err
}

// Withdraw pays amount of escrowed currency to the creator after SUCCESS.
func (e *Engine) Withdraw(ctx context.Context, sender domain.Identity, amount uint64) error {
	_, err := e.run(ctx, "withdraw", sender, func(ctx context.Context, tx storage.Tx, reg *Registry, _ uint64) (domain.SaleEvent, error) {
		state, err := loadAsCreator(ctx, reg, sender)
		if err != nil {
			return domain.SaleEvent{}, err
		}
		if state.Status != domain.SaleStatusSuccess {
			return domain.SaleEvent{}, ErrInvalidState
		}
		if amount == 0 {
			return domain.SaleEvent{}, ErrInvalidAmount
		}

		t := domain.Transfer{From: e.escrow, To: state.Creator, Amount: amount, Asset: domain.Currency()}
		if err := e.transfer(ctx, tx, t); err != nil {
			return domain.SaleEvent{}, err
		}

		ev := stateEvent(domain.EventWithdrawn, state)
		ev.Amount = amount
		return ev, nil
	})
	return err
}

// ReclaimAsset pays amount of the sale token from escrow to `to` once the sale is terminal.
// Under strict reclaim a SUCCESS sale keeps the outstanding owed tokens in escrow.
func (e *Engine) ReclaimAsset(ctx context.Context, sender domain.Identity, amount uint64, to domain.Identity) error {
	_, err := e.run(ctx, "reclaim_asset", sender, func(ctx context.Context, tx storage.Tx, reg *Registry, _ uint64) (domain.SaleEvent, error) {
		state, err := loadAsCreator(ctx, reg, sender)
		if err != nil {
			return domain.SaleEvent{}, err
		}
		if !state.Status.IsTerminal() {
			return domain.SaleEvent{}, ErrInvalidState
		}
		if amount == 0 {
			return domain.SaleEvent{}, ErrInvalidAmount
		}

		token := domain.Token(state.AssetID)
		if e.strictReclaim && state.Status == domain.SaleStatusSuccess {
			bal, err := tx.Balance(ctx, e.escrow, token)
			if err != nil {
				return domain.SaleEvent{}, err
			}
			if amount > subFloor(bal, state.Outstanding) {
				return domain.SaleEvent{}, ErrInsolventReclaim
			}
		}

		t := domain.Transfer{From: e.escrow, To: to, Amount: amount, Asset: token}
		if err := e.transfer(ctx, tx, t); err != nil {
			return domain.SaleEvent{}, err
		}

		ev := stateEvent(domain.EventReclaimed, state)
		ev.Amount = amount
		ev.Counterparty = to
		return ev, nil
	})
	return err
}
