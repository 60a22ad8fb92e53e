package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ChipaDevTeam/ChipaX/internal/api/dto"
	"github.com/ChipaDevTeam/ChipaX/internal/core"
	"github.com/ChipaDevTeam/ChipaX/internal/domain"
	"github.com/ChipaDevTeam/ChipaX/internal/middleware"
	"github.com/ChipaDevTeam/ChipaX/internal/money"
)

// Exchange is what the HTTP layer needs from the core.
type Exchange interface {
	PlaceOrder(ctx context.Context, o domain.Order) (core.TradeResult, error)
	CancelOrder(ctx context.Context, symbol domain.TradingPair, id domain.OrderID) (domain.Order, error)
	Order(ctx context.Context, symbol domain.TradingPair, id domain.OrderID) (domain.Order, error)
	TradesForOrder(ctx context.Context, id domain.OrderID) ([]domain.Trade, error)
	Snapshot(ctx context.Context, symbol domain.TradingPair, depth int) (domain.OrderbookSnapshot, error)
	BestPrices(symbol domain.TradingPair) (core.BestPrices, error)
	Deposit(user domain.UserID, currency domain.Currency, amount decimal.Decimal) (domain.Balance, error)
	Balances(user domain.UserID) ([]domain.Balance, error)
}

var _ Exchange = (*core.Exchange)(nil)

type HTTPServer struct {
	ex    Exchange
	log   *zap.Logger
	ws    gin.HandlerFunc
	clock func() time.Time
}

type Option func(*HTTPServer)

// WithWebsocket mounts h at GET /ws.
func WithWebsocket(h gin.HandlerFunc) Option { return func(s *HTTPServer) { s.ws = h } }

func WithClock(clock func() time.Time) Option { return func(s *HTTPServer) { s.clock = clock } }

func NewHTTPServer(ex Exchange, logger *zap.Logger, opts ...Option) *HTTPServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &HTTPServer{
		ex:    ex,
		log:   logger,
		clock: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *HTTPServer) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestID(), middleware.Logger(s.log))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.POST("/orders", s.submitOrder)
	r.GET("/orders/:base/:quote/:id", s.getOrder)
	r.DELETE("/orders/:base/:quote/:id", s.cancelOrder)
	r.GET("/orders/:base/:quote/:id/trades", s.getTrades)
	r.GET("/orderbook", s.getOrderbook)
	r.GET("/prices", s.getPrices)
	r.GET("/balances/:user", s.getBalances)
	r.POST("/balances/deposit", s.deposit)
	if s.ws != nil {
		r.GET("/ws", s.ws)
	}
	return r
}

func (s *HTTPServer) submitOrder(c *gin.Context) {
	var req dto.SubmitOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error(), Kind: string(domain.KindValidation)})
		return
	}
	o, err := req.ToOrder(s.clock())
	if err != nil {
		s.fail(c, err)
		return
	}
	res, err := s.ex.PlaceOrder(c.Request.Context(), o)
	if err != nil {
		s.fail(c, err)
		return
	}
	status := http.StatusOK
	if res.Rested() {
		status = http.StatusCreated
	}
	c.JSON(status, dto.FromResult(res))
}

func (s *HTTPServer) getOrder(c *gin.Context) {
	symbol, id, ok := s.orderRef(c)
	if !ok {
		return
	}
	o, err := s.ex.Order(c.Request.Context(), symbol, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.FromOrder(o))
}

func (s *HTTPServer) cancelOrder(c *gin.Context) {
	symbol, id, ok := s.orderRef(c)
	if !ok {
		return
	}
	o, err := s.ex.CancelOrder(c.Request.Context(), symbol, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.CancelOrderResponse{Order: dto.FromOrder(o)})
}

func (s *HTTPServer) getTrades(c *gin.Context) {
	_, id, ok := s.orderRef(c)
	if !ok {
		return
	}
	trades, err := s.ex.TradesForOrder(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.GetTradesResponse{Trades: dto.FromTrades(trades)})
}

func (s *HTTPServer) getOrderbook(c *gin.Context) {
	symbol, ok := s.symbolQuery(c)
	if !ok {
		return
	}
	depth := 0
	if raw := c.Query("depth"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.fail(c, &domain.ValidationError{Field: "depth", Reason: "must be a non-negative integer"})
			return
		}
		depth = n
	}
	snap, err := s.ex.Snapshot(c.Request.Context(), symbol, depth)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.FromSnapshot(snap))
}

func (s *HTTPServer) getPrices(c *gin.Context) {
	symbol, ok := s.symbolQuery(c)
	if !ok {
		return
	}
	bp, err := s.ex.BestPrices(symbol)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.FromBestPrices(symbol, bp))
}

func (s *HTTPServer) getBalances(c *gin.Context) {
	user, err := domain.ParseUserID(c.Param("user"))
	if err != nil {
		s.fail(c, err)
		return
	}
	bs, err := s.ex.Balances(user)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.FromBalances(user, bs))
}

func (s *HTTPServer) deposit(c *gin.Context) {
	var req dto.DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error(), Kind: string(domain.KindValidation)})
		return
	}
	user, err := domain.ParseUserID(req.UserID)
	if err != nil {
		s.fail(c, err)
		return
	}
	currency, err := domain.ParseCurrency(req.Currency)
	if err != nil {
		s.fail(c, err)
		return
	}
	amount, err := money.ParsePositive("amount", req.Amount)
	if err != nil {
		s.fail(c, err)
		return
	}
	b, err := s.ex.Deposit(user, currency, amount)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.FromBalances(user, []domain.Balance{b}))
}

func (s *HTTPServer) orderRef(c *gin.Context) (domain.TradingPair, domain.OrderID, bool) {
	symbol, err := domain.ParseTradingPair(c.Param("base") + "/" + c.Param("quote"))
	if err != nil {
		s.fail(c, err)
		return "", "", false
	}
	id, err := domain.ParseOrderID(c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return "", "", false
	}
	return symbol, id, true
}

func (s *HTTPServer) symbolQuery(c *gin.Context) (domain.TradingPair, bool) {
	symbol, err := domain.ParseTradingPair(c.Query("symbol"))
	if err != nil {
		s.fail(c, err)
		return "", false
	}
	return symbol, true
}

func (s *HTTPServer) fail(c *gin.Context, err error) {
	kind := domain.KindOf(err)
	status := StatusFor(kind)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", zap.String("path", c.FullPath()), zap.String("kind", string(kind)), zap.Error(err))
	}
	_ = c.Error(err)
	c.JSON(status, dto.ErrorResponse{Error: err.Error(), Kind: string(kind)})
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindInvalidOrder, domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindSelfTrade, domain.KindBalanceLock:
		return http.StatusConflict
	case domain.KindInsufficientFunds, domain.KindNegativeBalance, domain.KindMatching:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
