package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ward-wallet/ward-wallet/internal/bus"
	"github.com/ward-wallet/ward-wallet/internal/logger"
	"github.com/ward-wallet/ward-wallet/pkg/types"
)

// logHandler prints the activity stream to the structured log. It is the
// reference consumer for dashboards watching a ward's wallet.
type logHandler struct{}

func (logHandler) Initial(activities []*types.ActivityRecord) error {
	slog.Info("received activity snapshot", "count", len(activities))
	for _, rec := range activities {
		logRecord("snapshot", rec)
	}
	return nil
}

func (logHandler) Update(msgType string, rec *types.ActivityRecord) error {
	logRecord(msgType, rec)
	return nil
}

func logRecord(kind string, rec *types.ActivityRecord) {
	value := ""
	if rec.Value != nil {
		value = rec.Value.Text('f', -1)
	}
	slog.Info("activity",
		"kind", kind,
		"hash", rec.Hash,
		"type", rec.Type,
		"status", rec.Status,
		"chain", rec.Chain,
		"address", rec.Address,
		"value", value,
	)
}

func main() {
	var (
		url  = flag.String("url", "ws://localhost:8080/v1/ws", "Activity hub WebSocket endpoint")
		role = flag.String("role", "observer", "Role announced in the handshake")
	)
	flag.Parse()

	if err := logger.Init(); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	observer, err := bus.NewObserver(bus.ObserverConfig{
		URL:  *url,
		Role: *role,
	}, logHandler{}, slog.Default())
	if err != nil {
		slog.Error("invalid observer configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-shutdown
		slog.Info("received shutdown signal", "signal", sig.String())
		cancel()
	}()

	if err := observer.Run(ctx); err != nil && ctx.Err() == nil {
		slog.Error("observer stopped", "error", err)
		os.Exit(1)
	}

	slog.Info("observer stopped")
}
