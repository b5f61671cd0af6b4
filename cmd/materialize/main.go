// Command materialize posts the active recurrences for one month, either
// directly against the store or by asking the worker over AMQP.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"ledger/internal/cli"
	"ledger/internal/core"
	"ledger/internal/services"
)

func main() {
	monthFlag := flag.String("month", "", "month to materialize as YYYY-MM (default: current month)")
	publish := flag.Bool("publish", false, "publish a materialize request for the worker instead of writing locally")
	flag.Parse()

	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger)

	month := core.DateOf(time.Now()).YearMonth()
	if *monthFlag != "" {
		m, err := core.ParseYearMonth(*monthFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid -month %q: %v\n", *monthFlag, err)
			os.Exit(2)
		}
		month = m
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if *publish {
		client := cli.InitAMQP(logger, cfg, true)
		defer client.Close()
		req, err := client.PublishMaterializeRequest(ctx, month)
		if err != nil {
			logger.Error("Failed to publish materialize request", "error", err, "month", month.String())
			os.Exit(1)
		}
		logger.Info("Materialize request published", "message_id", req.ID.String(), "month", month.String())
		return
	}

	store := cli.InitStore(ctx, logger, cfg)
	defer store.Close()

	var publisher services.EventPublisher
	if client := cli.InitAMQP(logger, cfg, false); client != nil {
		defer client.Close()
		publisher = client
	}

	created, err := services.NewMaterializer(store, publisher).Materialize(ctx, month)
	if err != nil {
		logger.Error("Materialization failed", "error", err, "month", month.String(), "created", created)
		os.Exit(1)
	}
	fmt.Printf("%s: %d transactions created\n", month, created)
}
