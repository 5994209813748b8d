// Package handler exposes the trading service over http
package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/chucky-1/virtual-trader/internal/catalog"
	"github.com/chucky-1/virtual-trader/internal/model"
	"github.com/chucky-1/virtual-trader/internal/request"
	"github.com/chucky-1/virtual-trader/internal/service"
	"github.com/chucky-1/virtual-trader/internal/ws"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// Clock tells how often and when prices change next
type Clock interface {
	Interval() time.Duration
	NextRefreshIn() time.Duration
}

// Handler serves the http api
type Handler struct {
	service *service.Service
	catalog *catalog.Catalog
	clock   Clock
	hub     *ws.Hub
}

// NewHandler is constructor. hub may be nil, then /ws answers 503
func NewHandler(srv *service.Service, c *catalog.Catalog, clock Clock, hub *ws.Hub) *Handler {
	return &Handler{service: srv, catalog: c, clock: clock, hub: hub}
}

// Router registers every route on a new gin engine
func (h *Handler) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), logger())

	router.GET("/health", h.Health)
	router.GET("/ws", h.WebSocket)

	api := router.Group("/api")
	api.GET("/instruments", h.Instruments)
	api.GET("/prices/:ticker", h.Price)
	api.GET("/prices/:ticker/candles", h.Candles)
	api.GET("/ranking", h.Ranking)

	accounts := api.Group("/accounts/:id")
	accounts.POST("", h.Register)
	accounts.POST("/buy", h.Buy)
	accounts.POST("/sell", h.Sell)
	accounts.GET("/portfolio", h.Portfolio)
	accounts.GET("/trades", h.Trades)
	accounts.GET("/dividends", h.Dividends)
	accounts.POST("/alerts", h.SetAlert)
	return router
}

func logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(log.Fields{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  c.Writer.Status(),
			"latency": time.Since(start),
		}).Debug("request")
	}
}

// Health answers ok while the process is alive
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type instrumentView struct {
	model.Instrument
	Price float64 `json:"price"`
}

// Instruments lists the catalog with current prices
func (h *Handler) Instruments(c *gin.Context) {
	instruments := h.catalog.All()
	views := make([]instrumentView, 0, len(instruments))
	for _, in := range instruments {
		price, _ := h.service.Price(in.Ticker)
		views = append(views, instrumentView{Instrument: in, Price: price})
	}
	c.JSON(http.StatusOK, gin.H{
		"instruments":        views,
		"refreshSeconds":     int64(h.clock.Interval().Seconds()),
		"nextRefreshSeconds": int64(h.clock.NextRefreshIn().Seconds()),
	})
}

// Price returns the current price of a ticker
func (h *Handler) Price(c *gin.Context) {
	ticker := strings.ToUpper(c.Param("ticker"))
	in, ok := h.service.Instrument(ticker)
	price, priced := h.service.Price(ticker)
	if !ok || !priced {
		fail(c, &service.NotFoundError{Ticker: ticker})
		return
	}
	c.JSON(http.StatusOK, instrumentView{Instrument: in, Price: price})
}

// Candles returns the price history of a ticker
func (h *Handler) Candles(c *gin.Context) {
	var query request.Days
	if !bindQuery(c, &query) {
		return
	}
	candles, err := h.service.Candles(c.Request.Context(), c.Param("ticker"), query.Days)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"candles": candles})
}

// Ranking returns the best and the worst accounts by unrealized profit
func (h *Handler) Ranking(c *gin.Context) {
	var query request.Limit
	if !bindQuery(c, &query) {
		return
	}
	ranking, err := h.service.Ranking(c.Request.Context(), query.Limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ranking)
}

// Register creates the account with a display name
func (h *Handler) Register(c *gin.Context) {
	id, ok := accountID(c)
	if !ok {
		return
	}
	var req request.Register
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}
	created, err := h.service.Register(c.Request.Context(), id, req.Name)
	if err != nil {
		fail(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"id": id, "created": created})
}

// Buy buys shares at the current price
func (h *Handler) Buy(c *gin.Context) {
	h.trade(c, h.service.Buy)
}

// Sell sells shares at the current price
func (h *Handler) Sell(c *gin.Context) {
	h.trade(c, h.service.Sell)
}

type tradeFunc func(ctx context.Context, accountID int64, ticker string, quantity int64) (*model.Trade, error)

func (h *Handler) trade(c *gin.Context, do tradeFunc) {
	id, ok := accountID(c)
	if !ok {
		return
	}
	var req request.Trade
	if !bindJSON(c, &req) {
		return
	}
	trade, err := do(c.Request.Context(), id, req.Ticker, req.Quantity)
	if err != nil {
		fail(c, err)
		return
	}
	balance, err := h.service.Balance(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trade": trade, "balance": balance})
}

// Portfolio returns positions, cash, value and unrealized profit
func (h *Handler) Portfolio(c *gin.Context) {
	id, ok := accountID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	items, err := h.service.Portfolio(ctx, id)
	if err != nil {
		fail(c, err)
		return
	}
	balance, err := h.service.Balance(ctx, id)
	if err != nil {
		fail(c, err)
		return
	}
	value, err := h.service.PortfolioValue(ctx, id)
	if err != nil {
		fail(c, err)
		return
	}
	dividends, err := h.service.TotalDividends(ctx, id)
	if err != nil {
		fail(c, err)
		return
	}
	profit, percent := h.service.UnrealizedProfit(items)
	c.JSON(http.StatusOK, gin.H{
		"items":          items,
		"balance":        balance,
		"value":          value,
		"profit":         profit,
		"percent":        percent,
		"totalDividends": dividends,
	})
}

// Trades returns the last trades, newest first
func (h *Handler) Trades(c *gin.Context) {
	id, ok := accountID(c)
	if !ok {
		return
	}
	var query request.Limit
	if !bindQuery(c, &query) {
		return
	}
	trades, err := h.service.TradeHistory(c.Request.Context(), id, query.Limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades})
}

// Dividends returns the last dividend payments and their total
func (h *Handler) Dividends(c *gin.Context) {
	id, ok := accountID(c)
	if !ok {
		return
	}
	var query request.Limit
	if !bindQuery(c, &query) {
		return
	}
	ctx := c.Request.Context()
	payments, err := h.service.DividendHistory(ctx, id, query.Limit)
	if err != nil {
		fail(c, err)
		return
	}
	total, err := h.service.TotalDividends(ctx, id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dividends": payments, "total": total})
}

// SetAlert registers a one-shot price alert
func (h *Handler) SetAlert(c *gin.Context) {
	id, ok := accountID(c)
	if !ok {
		return
	}
	var req request.Alert
	if !bindJSON(c, &req) {
		return
	}
	alert, err := h.service.SetAlert(c.Request.Context(), id, req.Ticker, req.Condition, req.Target)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, alert)
}

// WebSocket streams quotes and notifications of ?account= to the browser
func (h *Handler) WebSocket(c *gin.Context) {
	if h.hub == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "websocket is disabled"})
		return
	}
	id, err := strconv.ParseInt(c.Query("account"), 10, 64)
	if err != nil {
		fail(c, &service.ValidationError{Field: "account", Reason: "must be an integer"})
		return
	}
	if err = h.hub.Serve(c.Writer, c.Request, id); err != nil {
		log.WithField("account", id).Error(err)
	}
}

func accountID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		fail(c, &service.ValidationError{Field: "id", Reason: "must be an integer"})
		return 0, false
	}
	return id, true
}

func bindJSON(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		fail(c, &service.ValidationError{Field: "body", Reason: err.Error()})
		return false
	}
	return validate(c, obj)
}

func bindQuery(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindQuery(obj); err != nil {
		fail(c, &service.ValidationError{Field: "query", Reason: err.Error()})
		return false
	}
	return validate(c, obj)
}

func validate(c *gin.Context, obj interface{}) bool {
	err := request.Validate(obj)
	if err == nil {
		return true
	}
	if field, rule, ok := request.FieldError(err); ok {
		fail(c, &service.ValidationError{Field: strings.ToLower(field), Reason: "failed " + rule})
		return false
	}
	fail(c, &service.ValidationError{Field: "request", Reason: err.Error()})
	return false
}

// fail maps errors of the service to status codes
func fail(c *gin.Context, err error) {
	var (
		validation *service.ValidationError
		notFound   *service.NotFoundError
		funds      *service.InsufficientFundsError
		holdings   *service.InsufficientHoldingsError
	)
	switch {
	case errors.As(err, &validation):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error(), "field": validation.Field})
	case errors.As(err, &notFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error(), "ticker": notFound.Ticker})
	case errors.As(err, &funds):
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{
			"error":     err.Error(),
			"cost":      funds.Cost,
			"balance":   funds.Balance,
			"shortfall": funds.Shortfall,
		})
	case errors.As(err, &holdings):
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{
			"error":     err.Error(),
			"requested": holdings.Requested,
			"held":      holdings.Held,
		})
	default:
		log.WithField("path", c.FullPath()).Error(err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
