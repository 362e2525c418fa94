// Command fleetwatch connects to the realtime gateway and prints every event
// it receives, one per line.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"fleetdispatch/pkg/envelope"
	"fleetdispatch/pkg/hub"
	"fleetdispatch/pkg/logging"
)

func main() {
	var (
		gatewayURL = pflag.String("url", "ws://localhost:8082/ws", "gateway websocket URL")
		token      = pflag.String("token", os.Getenv("FLEETWATCH_TOKEN"), "bearer token (default $FLEETWATCH_TOKEN)")
		buses      = pflag.StringSlice("bus", nil, "vehicle ids to follow, repeatable")
		raw        = pflag.Bool("json", false, "print raw envelopes")
		logLevel   = pflag.String("log-level", "warn", "log level")
	)
	pflag.Parse()

	logging.Init(*logLevel, "text")

	if *token == "" {
		fmt.Fprintln(os.Stderr, "fleetwatch: --token or FLEETWATCH_TOKEN is required")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	obs := hub.NewObserver(*gatewayURL, *token)
	obs.OnEvent(func(env envelope.Envelope) {
		if *raw {
			line, _ := json.Marshal(env)
			fmt.Println(string(line))
			return
		}
		fmt.Println(format(env))
	})
	for _, bus := range *buses {
		obs.JoinBus(bus)
	}

	if err := obs.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("fleetwatch stopped", "error", err)
		os.Exit(1)
	}
}

func format(env envelope.Envelope) string {
	ts := time.UnixMilli(env.Timestamp).Format("15:04:05")
	if env.Error != nil {
		return fmt.Sprintf("%s %-22s %d %s", ts, env.Event, env.Error.Code, env.Error.Message)
	}
	return fmt.Sprintf("%s %-22s %s", ts, env.Event, env.Data)
}
