package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
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

const testAssetID = uint64(7)

var (
	creator = identity(0xC0)
	alice   = identity(0xA1)
)

func identity(b byte) domain.Identity {
	var id domain.Identity
	for i := range id {
		id[i] = b
	}
	return id
}

type harness struct {
	t      *testing.T
	ctx    context.Context
	ledger *memory.Ledger
	engine *sale.Engine
	now    time.Time
	router http.Handler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		t:      t,
		ctx:    context.Background(),
		ledger: memory.NewLedger(),
		now:    time.Unix(1_700_000_000, 0),
	}
	events := memory.NewEventStore()
	log := zaptest.NewLogger(t).Sugar()

	engine, err := sale.NewEngine("api-test", h.ledger, log,
		sale.WithClock(sale.ClockFunc(func() time.Time { return h.now })),
		sale.WithSink(storage.NewJournal(events)),
	)
	require.NoError(t, err)
	h.engine = engine
	h.router = NewHTTPHandler(Deps{
		Sale:          engine,
		Events:        events,
		TokenDecimals: 6,
		Log:           log,
	})
	return h
}

func (h *harness) do(method, path string, sender *domain.Identity, body any) *httptest.ResponseRecorder {
	h.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(h.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if sender != nil {
		req.Header.Set(SenderHeader, sender.String())
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

// openSale creates a sale with rate 2 tokens per currency unit and a goal of 5.
func (h *harness) openSale() {
	h.t.Helper()
	w := h.do(http.MethodPost, "/sale", &creator, createRequest{AssetID: testAssetID, Rate: 2 * domain.RateScale, Goal: 5_000_000})
	require.Equal(h.t, http.StatusCreated, w.Code, w.Body.String())
}

func TestHealthCheck(t *testing.T) {
	h := newHarness(t)
	w := h.do(http.MethodGet, "/healthcheck", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]string](t, w)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "api-test", body["sale"])
}

func TestSenderRequired(t *testing.T) {
	h := newHarness(t)

	w := h.do(http.MethodPost, "/sale/finalize", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/sale/finalize", nil)
	req.Header.Set(SenderHeader, "not-base58-0OIl")
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetSale_NotInitialized(t *testing.T) {
	h := newHarness(t)
	w := h.do(http.MethodGet, "/sale", nil, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, sale.CodeNotInitialized, decode[errorView](t, w).Code)
}

func TestCreate_Twice(t *testing.T) {
	h := newHarness(t)
	h.openSale()

	w := h.do(http.MethodPost, "/sale", &alice, createRequest{AssetID: 1, Rate: 1, Goal: 1})
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, sale.CodeAlreadyInitialized, decode[errorView](t, w).Code)
}

func TestSuccessfulSaleFlow(t *testing.T) {
	h := newHarness(t)
	h.openSale()

	w := h.do(http.MethodPost, "/sale/opt-in", &creator, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, h.ledger.Deposit(h.ctx, h.engine.Escrow(), domain.Token(testAssetID), 20_000_000))
	require.NoError(t, h.ledger.Deposit(h.ctx, alice, domain.Currency(), 5_000_000))
	require.NoError(t, h.ledger.OptIn(h.ctx, alice, testAssetID))

	w = h.do(http.MethodPost, "/sale/contribute", &alice, amountRequest{Amount: 5_000_000})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	c := decode[ContributionView](t, w)
	assert.Equal(t, uint64(10_000_000), c.Tokens)
	assert.Equal(t, uint64(5_000_000), c.Total)
	assert.Equal(t, "5", c.Record.PledgedDisplay)
	assert.Equal(t, "10", c.Record.OwedDisplay)

	w = h.do(http.MethodGet, "/sale", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	view := decode[SaleView](t, w)
	assert.Equal(t, "OPEN", view.Status)
	assert.Equal(t, "5", view.TotalDisplay)
	assert.Equal(t, uint64(5_000_000), view.EscrowCurrency)
	assert.Equal(t, uint64(20_000_000), view.EscrowTokens)
	assert.Equal(t, uint64(10_000_000), view.Outstanding)
	assert.Equal(t, h.engine.Escrow(), view.Escrow)

	w = h.do(http.MethodPost, "/sale/finalize", &alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "SUCCESS", decode[map[string]string](t, w)["status"])

	w = h.do(http.MethodPost, "/sale/claim", &alice, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	payout := decode[PayoutView](t, w)
	assert.Equal(t, uint64(10_000_000), payout.Amount)
	assert.Equal(t, "10", payout.Display)

	w = h.do(http.MethodPost, "/sale/claim", &alice, nil)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, sale.CodeAlreadySettled, decode[errorView](t, w).Code)

	w = h.do(http.MethodGet, "/sale/contributors/"+alice.String(), nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[RecordView](t, w).Settled)

	w = h.do(http.MethodPost, "/sale/withdraw", &creator, amountRequest{Amount: 5_000_000})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	bal, err := h.ledger.Balance(h.ctx, creator, domain.Currency())
	require.NoError(t, err)
	assert.Equal(t, uint64(5_000_000), bal)

	w = h.do(http.MethodPost, "/sale/reclaim", &creator, map[string]any{"amount": 10_000_000, "to": creator.String()})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code, "creator is not opted in")
	assert.Equal(t, sale.CodeTransferFailed, decode[errorView](t, w).Code)

	w = h.do(http.MethodGet, "/sale/events", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	events := decode[[]domain.SaleEvent](t, w)
	kinds := make([]domain.EventKind, 0, len(events))
	for _, e := range events {
		kinds = append(kinds, e.Kind)
	}
	assert.Equal(t, []domain.EventKind{
		domain.EventCreated,
		domain.EventOptedIn,
		domain.EventContributed,
		domain.EventFinalized,
		domain.EventClaimed,
		domain.EventWithdrawn,
	}, kinds)

	w = h.do(http.MethodGet, "/sale/events?limit=2", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]domain.SaleEvent](t, w), 2)

	w = h.do(http.MethodGet, "/sale/verify", nil, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	report := decode[map[string]any](t, w)
	assert.Equal(t, true, report["match"])
	assert.Equal(t, float64(6), report["events"])
}

func TestVerify_BeforeCreate(t *testing.T) {
	h := newHarness(t)
	w := h.do(http.MethodGet, "/sale/verify", nil, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, sale.CodeNotInitialized, decode[errorView](t, w).Code)
}

func TestAdmin_PermissionDenied(t *testing.T) {
	h := newHarness(t)
	h.openSale()

	w := h.do(http.MethodPost, "/sale/rate", &alice, rateRequest{Rate: 1})
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, sale.CodePermissionDenied, decode[errorView](t, w).Code)

	w = h.do(http.MethodPost, "/sale/rate", &creator, rateRequest{Rate: 3 * domain.RateScale})
	require.Equal(t, http.StatusOK, w.Code)
}

func TestContribute_Rejections(t *testing.T) {
	h := newHarness(t)
	h.openSale()

	w := h.do(http.MethodPost, "/sale/contribute", &alice, amountRequest{Amount: 0})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, sale.CodeInvalidAmount, decode[errorView](t, w).Code)

	w = h.do(http.MethodPost, "/sale/contribute", &alice, amountRequest{Amount: 1_000})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code, "alice has no currency")
	assert.Equal(t, sale.CodeTransferFailed, decode[errorView](t, w).Code)

	w = h.do(http.MethodPost, "/sale/contribute", &alice, "not an object")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	h.now = h.now.Add(domain.SaleDuration)
	w = h.do(http.MethodPost, "/sale/contribute", &alice, amountRequest{Amount: 1_000})
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, sale.CodeDeadlinePassed, decode[errorView](t, w).Code)
}

func TestExpiredSaleRefund(t *testing.T) {
	h := newHarness(t)
	h.openSale()
	require.NoError(t, h.ledger.Deposit(h.ctx, alice, domain.Currency(), 1_000_000))

	w := h.do(http.MethodPost, "/sale/contribute", &alice, amountRequest{Amount: 1_000_000})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = h.do(http.MethodPost, "/sale/finalize", &alice, nil)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, sale.CodeDeadlineNotReached, decode[errorView](t, w).Code)

	h.now = h.now.Add(domain.SaleDuration)
	w = h.do(http.MethodPost, "/sale/finalize", &alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "EXPIRED", decode[map[string]string](t, w)["status"])

	w = h.do(http.MethodPost, "/sale/refund", &alice, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "1", decode[PayoutView](t, w).Display)

	bal, err := h.ledger.Balance(h.ctx, alice, domain.Currency())
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000), bal)
}

func TestGetContributor(t *testing.T) {
	h := newHarness(t)
	h.openSale()

	w := h.do(http.MethodGet, "/sale/contributors/"+alice.String(), nil, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, sale.CodeRecordNotFound, decode[errorView](t, w).Code)

	w = h.do(http.MethodGet, "/sale/contributors/xyz0", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReclaim_RequiresDestination(t *testing.T) {
	h := newHarness(t)
	h.openSale()

	w := h.do(http.MethodPost, "/sale/reclaim", &creator, map[string]any{"amount": 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDisplayAmount(t *testing.T) {
	tests := []struct {
		units    uint64
		decimals int32
		want     string
	}{
		{0, 6, "0"},
		{1, 6, "0.000001"},
		{1_500_000, 6, "1.5"},
		{42, 0, "42"},
		{18446744073709551615, 6, "18446744073709.551615"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, displayAmount(tt.units, tt.decimals))
	}
}
