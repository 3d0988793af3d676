// Package api exposes a sale over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"escrow-sale/internal/domain"
	"escrow-sale/internal/sale"
	"escrow-sale/internal/storage"
	"escrow-sale/internal/verification"
)

// SenderHeader carries the caller identity, set by an authenticating gateway.
const SenderHeader = "X-Sender"

const senderKey = "sender"

// Sale is the engine surface served over HTTP.
type Sale interface {
	Escrow() domain.Identity
	SaleID() string
	Create(ctx context.Context, sender domain.Identity, assetID, rate, goal uint64) (domain.SaleState, error)
	Contribute(ctx context.Context, sender domain.Identity, amount uint64) (sale.Contribution, error)
	Finalize(ctx context.Context, sender domain.Identity) (domain.SaleStatus, error)
	Claim(ctx context.Context, sender domain.Identity) (uint64, error)
	Refund(ctx context.Context, sender domain.Identity) (uint64, error)
	OptInAsset(ctx context.Context, sender domain.Identity) error
	SetRate(ctx context.Context, sender domain.Identity, rate uint64) error
	Withdraw(ctx context.Context, sender domain.Identity, amount uint64) error
	ReclaimAsset(ctx context.Context, sender domain.Identity, amount uint64, to domain.Identity) error
	State(ctx context.Context) (domain.SaleState, error)
	Record(ctx context.Context, id domain.Identity) (domain.ContributorRecord, bool, error)
	EscrowBalance(ctx context.Context, asset domain.Asset) (uint64, error)
}

// Deps are the collaborators of the HTTP handler. Events, Feed and Metrics are optional.
type Deps struct {
	Sale          Sale
	Events        storage.EventStore
	Feed          http.Handler
	Metrics       http.Handler
	TokenDecimals int32
	Log           *zap.SugaredLogger
}

// Handler serves the sale API.
type Handler struct {
	sale          Sale
	events        storage.EventStore
	verifier      *verification.Verifier
	tokenDecimals int32
	log           *zap.SugaredLogger
}

// NewHTTPHandler builds the gin engine with every route registered.
func NewHTTPHandler(d Deps) *gin.Engine {
	h := &Handler{
		sale:          d.Sale,
		events:        d.Events,
		tokenDecimals: d.TokenDecimals,
		log:           d.Log,
	}
	if d.Events != nil {
		h.verifier = verification.NewVerifier(d.Sale, d.Events)
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthcheck", h.HealthCheck)
	r.GET("/sale", h.GetSale)
	r.GET("/sale/contributors/:id", h.GetContributor)
	r.GET("/sale/events", h.GetEvents)
	r.GET("/sale/verify", h.Verify)
	if d.Feed != nil {
		r.GET("/feed", gin.WrapH(d.Feed))
	}
	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics))
	}

	ops := r.Group("/sale", requireSender)
	ops.POST("", h.Create)
	ops.POST("/opt-in", h.OptIn)
	ops.POST("/rate", h.SetRate)
	ops.POST("/contribute", h.Contribute)
	ops.POST("/finalize", h.Finalize)
	ops.POST("/claim", h.Claim)
	ops.POST("/refund", h.Refund)
	ops.POST("/withdraw", h.Withdraw)
	ops.POST("/reclaim", h.Reclaim)

	if err := r.SetTrustedProxies(nil); err != nil {
		panic(err)
	}
	return r
}

// requireSender parses the caller identity or rejects the request.
func requireSender(ctx *gin.Context) {
	raw := ctx.GetHeader(SenderHeader)
	if raw == "" {
		ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorView{Error: "missing " + SenderHeader + " header", Code: "UNAUTHENTICATED"})
		return
	}
	id, err := domain.ParseIdentity(raw)
	if err != nil {
		ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorView{Error: err.Error(), Code: "UNAUTHENTICATED"})
		return
	}
	ctx.Set(senderKey, id)
	ctx.Next()
}

func sender(ctx *gin.Context) domain.Identity {
	return ctx.MustGet(senderKey).(domain.Identity)
}

// statusFor maps an operation error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, sale.ErrNotInitialized), errors.Is(err, sale.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, sale.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, sale.ErrAlreadyInitialized),
		errors.Is(err, sale.ErrInvalidState),
		errors.Is(err, sale.ErrDeadlineNotReached),
		errors.Is(err, sale.ErrDeadlinePassed),
		errors.Is(err, sale.ErrAlreadySettled),
		errors.Is(err, sale.ErrInsolventReclaim):
		return http.StatusConflict
	case errors.Is(err, sale.ErrDustRejected),
		errors.Is(err, sale.ErrInvalidAmount),
		errors.Is(err, sale.ErrOverflow),
		errors.Is(err, sale.ErrTransferFailed):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(ctx *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.Errorw("request failed", "path", ctx.FullPath(), "error", err)
	}
	ctx.JSON(status, errorView{Error: err.Error(), Code: sale.ErrorCode(err)})
}

func badRequest(ctx *gin.Context, err error) {
	ctx.JSON(http.StatusBadRequest, errorView{Error: err.Error(), Code: "BAD_REQUEST"})
}

func (h *Handler) HealthCheck(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"sale":   h.sale.SaleID(),
	})
}

func (h *Handler) GetSale(ctx *gin.Context) {
	state, err := h.sale.State(ctx)
	if err != nil {
		h.fail(ctx, err)
		return
	}
	view := h.saleView(state)
	if view.EscrowCurrency, err = h.sale.EscrowBalance(ctx, domain.Currency()); err != nil {
		h.fail(ctx, err)
		return
	}
	if view.EscrowTokens, err = h.sale.EscrowBalance(ctx, domain.Token(state.AssetID)); err != nil {
		h.fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, view)
}

func (h *Handler) GetContributor(ctx *gin.Context) {
	id, err := domain.ParseIdentity(ctx.Param("id"))
	if err != nil {
		badRequest(ctx, err)
		return
	}
	rec, found, err := h.sale.Record(ctx, id)
	if err != nil {
		h.fail(ctx, err)
		return
	}
	if !found {
		h.fail(ctx, sale.ErrRecordNotFound)
		return
	}
	ctx.JSON(http.StatusOK, h.recordView(id, rec))
}

func (h *Handler) GetEvents(ctx *gin.Context) {
	if h.events == nil {
		ctx.JSON(http.StatusNotFound, errorView{Error: "event journal disabled", Code: "NOT_FOUND"})
		return
	}

	limit := 0
	if raw := ctx.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			badRequest(ctx, errors.New("limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	events, err := h.events.GetBySale(ctx, h.sale.SaleID(), limit)
	if err != nil {
		h.fail(ctx, err)
		return
	}
	if events == nil {
		events = []*domain.SaleEvent{}
	}
	ctx.JSON(http.StatusOK, events)
}

// Verify audits the ledger against the event journal.
func (h *Handler) Verify(ctx *gin.Context) {
	if h.verifier == nil {
		ctx.JSON(http.StatusNotFound, errorView{Error: "event journal disabled", Code: "NOT_FOUND"})
		return
	}
	report, err := h.verifier.Verify(ctx)
	if err != nil {
		if errors.Is(err, verification.ErrEmptyJournal) {
			h.fail(ctx, sale.ErrNotInitialized)
			return
		}
		h.fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, report)
}

func (h *Handler) Create(ctx *gin.Context) {
	var req createRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, err)
		return
	}
	state, err := h.sale.Create(ctx, sender(ctx), req.AssetID, req.Rate, req.Goal)
	if err != nil {
		h.fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, h.saleView(state))
}

func (h *Handler) OptIn(ctx *gin.Context) {
	if err := h.sale.OptInAsset(ctx, sender(ctx)); err != nil {
		h.fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) SetRate(ctx *gin.Context) {
	var req rateRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, err)
		return
	}
	if err := h.sale.SetRate(ctx, sender(ctx), req.Rate); err != nil {
		h.fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "ok", "rate": req.Rate})
}

func (h *Handler) Contribute(ctx *gin.Context) {
	var req amountRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, err)
		return
	}
	from := sender(ctx)
	c, err := h.sale.Contribute(ctx, from, req.Amount)
	if err != nil {
		h.fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, h.contributionView(from, c))
}

func (h *Handler) Finalize(ctx *gin.Context) {
	status, err := h.sale.Finalize(ctx, sender(ctx))
	if err != nil {
		h.fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": status.String()})
}

func (h *Handler) Claim(ctx *gin.Context) {
	amount, err := h.sale.Claim(ctx, sender(ctx))
	if err != nil {
		h.fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, PayoutView{Amount: amount, Display: displayAmount(amount, h.tokenDecimals)})
}

func (h *Handler) Refund(ctx *gin.Context) {
	amount, err := h.sale.Refund(ctx, sender(ctx))
	if err != nil {
		h.fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, PayoutView{Amount: amount, Display: displayAmount(amount, domain.CurrencyDecimals)})
}

func (h *Handler) Withdraw(ctx *gin.Context) {
	var req amountRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, err)
		return
	}
	if err := h.sale.Withdraw(ctx, sender(ctx), req.Amount); err != nil {
		h.fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, PayoutView{Amount: req.Amount, Display: displayAmount(req.Amount, domain.CurrencyDecimals)})
}

func (h *Handler) Reclaim(ctx *gin.Context) {
	var req reclaimRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, err)
		return
	}
	to, err := domain.ParseIdentity(req.To)
	if err != nil {
		badRequest(ctx, err)
		return
	}
	if err := h.sale.ReclaimAsset(ctx, sender(ctx), req.Amount, to); err != nil {
		h.fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, PayoutView{Amount: req.Amount, Display: displayAmount(req.Amount, h.tokenDecimals)})
}
