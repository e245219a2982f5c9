// trade-cli prints a one-shot snapshot of the trading backend and can
// optionally place a market order and wait for its fill.
//
// Usage:
//
//	GOTRADE_API_URL=http://localhost:8000 trade-cli
//	trade-cli -config config.yaml -order BTCUSDT:BUY:0.5 -wait 30s
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradebot/gotrade/client"
	"github.com/tradebot/gotrade/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (defaults to GOTRADE_* env vars)")
	orderSpec := flag.String("order", "", "place a market order, format SYMBOL:SIDE:QTY")
	waitFor := flag.Duration("wait", 30*time.Second, "how long to wait for an order fill")
	logLevel := flag.String("log-level", "info", "debug, info, warn or error")
	flag.Parse()

	log := logger.New(logger.Config{Level: *logLevel})

	var (
		cfg client.Config
		err error
	)
	if *configPath != "" {
		cfg, err = client.LoadConfig(*configPath)
	} else {
		cfg, err = client.ConfigFromEnv()
	}
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	c := client.NewWithLogger(cfg, log)
	ctx := context.Background()

	health, err := c.Health(ctx)
	if err != nil {
		log.Fatalf("backend unreachable: %v", err)
	}
	fmt.Printf("health:   %s\n", health.Status)

	status, err := c.TradingStatus(ctx)
	if err != nil {
		log.Fatalf("trading status: %v", err)
	}
	fmt.Printf("trading:  active=%v mode=%s strategies=%v\n",
		status.Active, status.Mode, status.ActiveStrategies)

	positions, err := c.Positions(ctx)
	if err != nil {
		log.Fatalf("positions: %v", err)
	}
	fmt.Printf("positions (%d):\n", len(positions))
	for _, p := range positions {
		fmt.Printf("  %-10s %-4s qty=%s entry=%s pnl=%s\n",
			p.Symbol, p.Side, p.Quantity, p.EntryPrice, p.UnrealizedPnL)
	}

	signals, err := c.Signals(ctx)
	if err != nil {
		log.Fatalf("signals: %v", err)
	}
	fmt.Printf("signals (%d):\n", len(signals))
	for _, s := range signals {
		fmt.Printf("  %-10s %-4s confidence=%.2f %s\n",
			s.Symbol, s.Action, s.Confidence, s.Reason)
	}

	if *orderSpec != "" {
		placeAndWait(ctx, c, *orderSpec, *waitFor, log)
	}
}

func placeAndWait(ctx context.Context, c *client.Client, spec string, timeout time.Duration, log interface{ Fatalf(string, ...interface{}) }) {
	parts := strings.Split(spec, ":")
	if len(parts) != 3 {
		log.Fatalf("bad -order value %q, want SYMBOL:SIDE:QTY", spec)
	}
	qty, err := decimal.NewFromString(parts[2])
	if err != nil {
		log.Fatalf("bad quantity %q: %v", parts[2], err)
	}

	result, err := c.PlaceMarketOrder(ctx, parts[0], strings.ToUpper(parts[1]), qty)
	if err != nil {
		log.Fatalf("place order: %v", err)
	}
	fmt.Printf("order placed: id=%s status=%s\n", result.OrderID, result.Status)

	trade, err := c.WaitForOrder(ctx, result.OrderID, timeout)
	if err != nil {
		log.Fatalf("wait for order: %v", err)
	}
	if trade == nil {
		fmt.Printf("order %s not filled within %s\n", result.OrderID, timeout)
		os.Exit(1)
	}
	fmt.Printf("filled: %s %s %s @ %s\n", trade.Side, trade.Quantity, trade.Symbol, trade.Price)
}
