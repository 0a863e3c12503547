// Command eventtail follows the recognition event stream and prints each
// event, one JSON line per event. Handy for debugging a running engine.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/faceid/internal/observability"
	"github.com/your-org/faceid/internal/queue"
)

func main() {
	natsURL := flag.String("nats", "nats://localhost:4222", "NATS server URL")
	name := flag.String("consumer", "eventtail", "durable consumer name")
	flag.Parse()

	observability.SetupLogger("warn", "text")

	consumer, err := queue.NewConsumer(*natsURL)
	if err != nil {
		slog.Error("connect to nats", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = consumer.ConsumeRecognitions(ctx, *name, func(ctx context.Context, msg jetstream.Msg) error {
		fmt.Printf("%s %s\n", msg.Subject(), msg.Data())
		return nil
	})
	if err != nil {
		slog.Error("start consumer", "error", err)
		os.Exit(1)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
}
