// trade-watch tails the backend's event stream and prints every trade,
// price and AI signal until interrupted.
//
// Usage:
//
//	GOTRADE_WS_URL=ws://localhost:8000/ws trade-watch
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/tradebot/gotrade/pkg/logger"
	"github.com/tradebot/gotrade/stream"
)

func main() {
	wsURL := flag.String("url", "", "websocket endpoint (defaults to GOTRADE_WS_URL)")
	logLevel := flag.String("log-level", "info", "debug, info, warn or error")
	raw := flag.Bool("raw", false, "print every frame instead of decoded events")
	flag.Parse()

	log := logger.New(logger.Config{Level: *logLevel})

	_ = godotenv.Load()
	url := *wsURL
	if url == "" {
		url = os.Getenv("GOTRADE_WS_URL")
	}
	if url == "" {
		log.Fatal("no websocket URL: pass -url or set GOTRADE_WS_URL")
	}

	cfg := stream.DefaultConfig(url)
	cfg.Token = os.Getenv("GOTRADE_API_KEY")
	cfg.Logger = log

	c := stream.NewClient(cfg)

	if *raw {
		c.Subscribe(stream.AllTopics, func(ev stream.Event) {
			fmt.Printf("[%s] %s\n", ev.Type, ev.Data)
		})
	} else {
		c.Subscribe(stream.TopicTradeUpdate, func(ev stream.Event) {
			t, err := stream.ParseTradeUpdate(ev)
			if err != nil {
				log.WithError(err).Warn("bad trade update")
				return
			}
			fmt.Printf("trade  %-10s %-4s qty=%s @ %s\n", t.Symbol, t.Side, t.Quantity, t.Price)
		})
		c.Subscribe(stream.TopicPriceUpdate, func(ev stream.Event) {
			p, err := stream.ParsePriceUpdate(ev)
			if err != nil {
				log.WithError(err).Warn("bad price update")
				return
			}
			fmt.Printf("price  %-10s %s\n", p.Symbol, p.Price)
		})
		c.Subscribe(stream.TopicAISignal, func(ev stream.Event) {
			s, err := stream.ParseSignalUpdate(ev)
			if err != nil {
				log.WithError(err).Warn("bad signal update")
				return
			}
			fmt.Printf("signal %-10s %-4s confidence=%.2f %s\n", s.Symbol, s.Action, s.Confidence, s.Reason)
		})
	}
	c.Subscribe(stream.TopicConnected, func(stream.Event) {
		log.Info("stream connected")
	})
	c.Subscribe(stream.TopicError, func(ev stream.Event) {
		if info, err := stream.ParseErrorInfo(ev); err == nil {
			log.Warnf("stream error: %s", info.Message)
		}
	})

	if err := c.Connect(context.Background()); err != nil {
		// Reconnection continues in the background; just report it.
		log.WithError(err).Warn("initial connect failed")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")
	_ = c.Disconnect()
}
