package stream

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Topics carried by the stream. Subscribing to AllTopics delivers every
// inbound event regardless of type.
const (
	TopicTradeUpdate = "trade_update"
	TopicPriceUpdate = "price_update"
	TopicAISignal    = "ai_signal"

	// Synthetic topics emitted by the connection manager itself.
	TopicConnected = "connected"
	TopicError     = "error"

	AllTopics = "*"
)

// Event is one inbound stream frame: a type (the topic) and its payload.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Handler receives events for a subscribed topic. Handlers run on the
// manager's dispatch goroutine in wire order; a slow handler delays the
// handlers behind it, so hand off to a channel for heavy work.
type Handler func(Event)

// Token identifies a subscription for removal. Opaque.
type Token string

// authFrame is the first outbound message after the socket opens when a
// credential is configured.
type authFrame struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

// ErrorInfo is the payload of synthetic TopicError events.
type ErrorInfo struct {
	Message string `json:"message"`
	Raw     string `json:"raw,omitempty"`
}

// TradeUpdate is the payload of trade_update events.
type TradeUpdate struct {
	ID        string          `json:"id"`
	OrderID   string          `json:"order_id"`
	Symbol    string          `json:"symbol"`
	Side      string          `json:"side"`
	Quantity  decimal.Decimal `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Status    string          `json:"status,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// PriceUpdate is the payload of price_update events.
type PriceUpdate struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
}

// SignalUpdate is the payload of ai_signal events.
type SignalUpdate struct {
	Symbol     string    `json:"symbol"`
	Action     string    `json:"action"`
	Confidence float64   `json:"confidence"`
	Reason     string    `json:"reason,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// ParseTradeUpdate decodes a trade_update event payload.
func ParseTradeUpdate(ev Event) (*TradeUpdate, error) {
	var t TradeUpdate
	if err := json.Unmarshal(ev.Data, &t); err != nil {
		return nil, errors.Wrap(err, "parse trade update")
	}
	return &t, nil
}

// ParsePriceUpdate decodes a price_update event payload.
func ParsePriceUpdate(ev Event) (*PriceUpdate, error) {
	var p PriceUpdate
	if err := json.Unmarshal(ev.Data, &p); err != nil {
		return nil, errors.Wrap(err, "parse price update")
	}
	return &p, nil
}

// ParseSignalUpdate decodes an ai_signal event payload.
func ParseSignalUpdate(ev Event) (*SignalUpdate, error) {
	var s SignalUpdate
	if err := json.Unmarshal(ev.Data, &s); err != nil {
		return nil, errors.Wrap(err, "parse signal update")
	}
	return &s, nil
}

// ParseErrorInfo decodes a synthetic error event payload.
func ParseErrorInfo(ev Event) (*ErrorInfo, error) {
	var e ErrorInfo
	if err := json.Unmarshal(ev.Data, &e); err != nil {
		return nil, errors.Wrap(err, "parse error info")
	}
	return &e, nil
}
