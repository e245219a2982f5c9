package client

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// waitTradeLimit bounds how many recent trades each poll fetches.
const waitTradeLimit = 50

// WaitForOrder polls recent trades until one matches orderID or timeout
// elapses. A timeout is an expected outcome and returns (nil, nil), not
// an error. Transient polling failures are logged and retried on the
// next tick. Only ctx cancellation produces an error.
func (c *Client) WaitForOrder(ctx context.Context, orderID string, timeout time.Duration) (*Trade, error) {
	if orderID == "" {
		return nil, &ValidationError{Field: "order_id", Reason: "must not be empty"}
	}

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(c.cfg.OrderPollInterval)
	defer ticker.Stop()

	for {
		trades, err := c.Trades(ctx, TradeQuery{Limit: waitTradeLimit})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.log.WithFields(logrus.Fields{"order_id": orderID}).
				WithError(err).Debug("poll failed, retrying on next tick")
		}
		for i := range trades {
			if trades[i].OrderID == orderID || trades[i].ID == orderID {
				return &trades[i], nil
			}
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		case <-time.After(remaining):
			return nil, nil
		}
	}
}
