package client

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order sides and types accepted by the backend.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"

	OrderTypeMarket = "MARKET"
	OrderTypeLimit  = "LIMIT"
)

// The value objects below mirror the backend's documented fields. They
// are built only by deserializing responses and are never mutated after
// construction. Unknown backend fields are dropped by encoding/json.

// HealthStatus is the GET /health payload.
type HealthStatus struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// OK reports whether the backend considers itself healthy.
func (h HealthStatus) OK() bool { return h.Status == "ok" }

// TradingStatus is the GET /trading/status payload.
type TradingStatus struct {
	Active           bool      `json:"active"`
	Mode             string    `json:"mode"`
	ActiveStrategies []string  `json:"active_strategies"`
	OpenPositions    int       `json:"open_positions"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// PerformanceReport is the GET /trading/performance payload.
type PerformanceReport struct {
	TotalTrades int             `json:"total_trades"`
	WinRate     float64         `json:"win_rate"`
	TotalPnL    decimal.Decimal `json:"total_pnl"`
	MaxDrawdown decimal.Decimal `json:"max_drawdown"`
	SharpeRatio float64         `json:"sharpe_ratio"`
}

// Trade is one executed trade from GET /trading/trades.
type Trade struct {
	ID        string          `json:"id"`
	OrderID   string          `json:"order_id"`
	Symbol    string          `json:"symbol"`
	Side      string          `json:"side"`
	Quantity  decimal.Decimal `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Strategy  string          `json:"strategy,omitempty"`
	PnL       decimal.Decimal `json:"pnl"`
	Timestamp time.Time       `json:"timestamp"`
}

// TradeQuery filters GET /trading/trades.
type TradeQuery struct {
	Limit    int
	Symbol   string
	Strategy string
}

// Position is one open position from GET /trading/positions.
type Position struct {
	Symbol        string          `json:"symbol"`
	Side          string          `json:"side"`
	Quantity      decimal.Decimal `json:"quantity"`
	EntryPrice    decimal.Decimal `json:"entry_price"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	Strategy      string          `json:"strategy,omitempty"`
}

// AISignal is one entry from GET /ai/signals.
type AISignal struct {
	Symbol     string    `json:"symbol"`
	Action     string    `json:"action"`
	Confidence float64   `json:"confidence"`
	Reason     string    `json:"reason,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Analysis is the GET /ai/analysis/{symbol} payload.
type Analysis struct {
	Symbol         string    `json:"symbol"`
	Recommendation string    `json:"recommendation"`
	Confidence     float64   `json:"confidence"`
	Reasoning      string    `json:"reasoning,omitempty"`
	GeneratedAt    time.Time `json:"generated_at"`
}

// OrderRequest is the POST /trading/order body. Price is required for
// LIMIT orders; StopLoss and TakeProfit are optional protective levels.
type OrderRequest struct {
	Symbol     string           `json:"symbol"`
	Side       string           `json:"side"`
	Type       string           `json:"type"`
	Quantity   decimal.Decimal  `json:"quantity"`
	Price      *decimal.Decimal `json:"price,omitempty"`
	StopLoss   *decimal.Decimal `json:"stop_loss,omitempty"`
	TakeProfit *decimal.Decimal `json:"take_profit,omitempty"`
}

// OrderResult is the POST /trading/order response payload.
type OrderResult struct {
	OrderID   string          `json:"order_id"`
	Status    string          `json:"status"`
	Symbol    string          `json:"symbol"`
	Side      string          `json:"side"`
	Type      string          `json:"type"`
	Quantity  decimal.Decimal `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	CreatedAt time.Time       `json:"created_at"`
}

// PerformanceSummary is the GET /performance/summary payload.
type PerformanceSummary struct {
	UptimeSeconds float64 `json:"uptime_seconds"`
	RequestCount  int64   `json:"request_count"`
	ErrorRate     float64 `json:"error_rate"`
	AvgLatencyMs  float64 `json:"avg_latency_ms"`
}

// CacheStats is the GET /performance/cache/stats payload.
type CacheStats struct {
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	HitRate   float64 `json:"hit_rate"`
	Entries   int     `json:"entries"`
	SizeBytes int64   `json:"size_bytes"`
}

// InvalidateResult is the POST /performance/cache/invalidate payload.
type InvalidateResult struct {
	Pattern     string `json:"pattern"`
	Invalidated int    `json:"invalidated"`
}
