package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/shopspring/decimal"
)

// Health checks backend liveness.
func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	var out HealthStatus
	err := c.do(ctx, requestSpec{Method: http.MethodGet, Path: "/health"}, &out)
	if err != nil {
		return nil, err
	}
	if out.Status == "" {
		return nil, &ValidationError{Field: "status", Reason: "missing in response"}
	}
	return &out, nil
}

// TradingStatus returns the backend's current trading state.
func (c *Client) TradingStatus(ctx context.Context) (*TradingStatus, error) {
	var out TradingStatus
	if err := c.do(ctx, requestSpec{Method: http.MethodGet, Path: "/trading/status"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TradingPerformance returns aggregate trading results.
func (c *Client) TradingPerformance(ctx context.Context) (*PerformanceReport, error) {
	var out PerformanceReport
	if err := c.do(ctx, requestSpec{Method: http.MethodGet, Path: "/trading/performance"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Trades returns recent trades, newest first, filtered by q.
func (c *Client) Trades(ctx context.Context, q TradeQuery) ([]Trade, error) {
	query := map[string]string{}
	if q.Limit > 0 {
		query["limit"] = strconv.Itoa(q.Limit)
	}
	if q.Symbol != "" {
		query["symbol"] = q.Symbol
	}
	if q.Strategy != "" {
		query["strategy"] = q.Strategy
	}

	var out []Trade
	if err := c.do(ctx, requestSpec{Method: http.MethodGet, Path: "/trading/trades", Query: query}, &out); err != nil {
		return nil, err
	}
	for _, t := range out {
		if t.ID == "" {
			return nil, &ValidationError{Field: "id", Reason: "missing in trade response"}
		}
	}
	return out, nil
}

// Positions returns all open positions.
func (c *Client) Positions(ctx context.Context) ([]Position, error) {
	var out []Position
	if err := c.do(ctx, requestSpec{Method: http.MethodGet, Path: "/trading/positions"}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// PlaceOrder submits an order. The request is validated locally first; a
// validation failure costs no network call.
func (c *Client) PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	if err := validateOrder(req); err != nil {
		return nil, err
	}

	var out OrderResult
	if err := c.do(ctx, requestSpec{Method: http.MethodPost, Path: "/trading/order", Body: req}, &out); err != nil {
		return nil, err
	}
	if out.OrderID == "" {
		return nil, &ValidationError{Field: "order_id", Reason: "missing in response"}
	}
	return &out, nil
}

// PlaceMarketOrder is a convenience wrapper for a MARKET order.
func (c *Client) PlaceMarketOrder(ctx context.Context, symbol, side string, quantity decimal.Decimal) (*OrderResult, error) {
	return c.PlaceOrder(ctx, OrderRequest{
		Symbol:   symbol,
		Side:     side,
		Type:     OrderTypeMarket,
		Quantity: quantity,
	})
}

// PlaceLimitOrder is a convenience wrapper for a LIMIT order at price.
func (c *Client) PlaceLimitOrder(ctx context.Context, symbol, side string, quantity, price decimal.Decimal) (*OrderResult, error) {
	return c.PlaceOrder(ctx, OrderRequest{
		Symbol:   symbol,
		Side:     side,
		Type:     OrderTypeLimit,
		Quantity: quantity,
		Price:    &price,
	})
}

// Signals returns the current AI signals. Responses are memoized for
// Config.CacheTTL when set.
func (c *Client) Signals(ctx context.Context) ([]AISignal, error) {
	if c.memo != nil {
		if v, ok := c.memo.Get("signals"); ok {
			return v.([]AISignal), nil
		}
	}

	var out []AISignal
	if err := c.do(ctx, requestSpec{Method: http.MethodGet, Path: "/ai/signals"}, &out); err != nil {
		return nil, err
	}
	if c.memo != nil {
		c.memo.Set("signals", out)
	}
	return out, nil
}

// Analysis returns the AI analysis for one symbol. Responses are
// memoized for Config.CacheTTL when set.
func (c *Client) Analysis(ctx context.Context, symbol string) (*Analysis, error) {
	if symbol == "" {
		return nil, &ValidationError{Field: "symbol", Reason: "must not be empty"}
	}
	key := "analysis:" + symbol
	if c.memo != nil {
		if v, ok := c.memo.Get(key); ok {
			return v.(*Analysis), nil
		}
	}

	var out Analysis
	if err := c.do(ctx, requestSpec{Method: http.MethodGet, Path: "/ai/analysis/" + url.PathEscape(symbol)}, &out); err != nil {
		return nil, err
	}
	if out.Symbol == "" {
		return nil, &ValidationError{Field: "symbol", Reason: "missing in response"}
	}
	if c.memo != nil {
		c.memo.Set(key, &out)
	}
	return &out, nil
}

// PerformanceSummary returns backend runtime metrics.
func (c *Client) PerformanceSummary(ctx context.Context) (*PerformanceSummary, error) {
	var out PerformanceSummary
	if err := c.do(ctx, requestSpec{Method: http.MethodGet, Path: "/performance/summary"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CacheStats returns the backend's cache counters.
func (c *Client) CacheStats(ctx context.Context) (*CacheStats, error) {
	var out CacheStats
	if err := c.do(ctx, requestSpec{Method: http.MethodGet, Path: "/performance/cache/stats"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// InvalidateCache drops backend cache entries matching pattern. The
// client's own memoized reads are dropped as well so the next read is
// served fresh.
func (c *Client) InvalidateCache(ctx context.Context, pattern string) (*InvalidateResult, error) {
	if pattern == "" {
		return nil, &ValidationError{Field: "pattern", Reason: "must not be empty"}
	}

	body := map[string]string{"pattern": pattern}
	var out InvalidateResult
	if err := c.do(ctx, requestSpec{Method: http.MethodPost, Path: "/performance/cache/invalidate", Body: body}, &out); err != nil {
		return nil, err
	}
	if c.memo != nil {
		c.memo.Clear()
	}
	return &out, nil
}

// validateOrder enforces the local order constraints before any network
// traffic happens.
func validateOrder(req OrderRequest) error {
	if req.Symbol == "" {
		return &ValidationError{Field: "symbol", Reason: "must not be empty"}
	}
	if req.Side != SideBuy && req.Side != SideSell {
		return &ValidationError{Field: "side", Reason: "must be BUY or SELL"}
	}
	if req.Type != OrderTypeMarket && req.Type != OrderTypeLimit {
		return &ValidationError{Field: "type", Reason: "must be MARKET or LIMIT"}
	}
	if !req.Quantity.IsPositive() {
		return &ValidationError{Field: "quantity", Reason: "must be greater than zero"}
	}
	if req.Type == OrderTypeLimit {
		if req.Price == nil || !req.Price.IsPositive() {
			return &ValidationError{Field: "price", Reason: "limit orders require a positive price"}
		}
	}
	if req.StopLoss != nil && !req.StopLoss.IsPositive() {
		return &ValidationError{Field: "stop_loss", Reason: "must be greater than zero when set"}
	}
	if req.TakeProfit != nil && !req.TakeProfit.IsPositive() {
		return &ValidationError{Field: "take_profit", Reason: "must be greater than zero when set"}
	}
	return nil
}
