package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mikey/subtrack/internal/core"
	"github.com/mikey/subtrack/internal/di"
	"github.com/mikey/subtrack/internal/ports"
)

const usage = `Usage: subtrack [-config file] <command> [flags]

Commands:
  scan     ingest every message under source.path
  report   print the subscription report as JSON
  add      record a subscription charge by hand
  serve    run the SMTP drop box until interrupted
`

func main() {
	configFile := flag.String("config", "", "Path to config file")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	// Build the dependency injection container
	container, err := di.BuildContainer(*configFile)
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	command, args := flag.Arg(0), flag.Args()[1:]
	switch command {
	case "scan":
		err = container.Invoke(func(logger *zap.Logger, engine *core.Engine, source ports.EmailSource, store core.EventStore) error {
			return runScan(logger, engine, source, store)
		})
	case "report":
		err = container.Invoke(func(logger *zap.Logger, engine *core.Engine, store core.EventStore) error {
			return runReport(logger, engine, store, args)
		})
	case "add":
		err = container.Invoke(func(logger *zap.Logger, engine *core.Engine, store core.EventStore) error {
			return runAdd(logger, engine, store, args)
		})
	case "serve":
		err = container.Invoke(runServe)
	default:
		flag.Usage()
		os.Exit(2)
	}

	// Run the application
	if err != nil {
		fmt.Printf("Application error: %v\n", err)
		os.Exit(1)
	}
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func closeStore(logger *zap.Logger, store core.EventStore) {
	if err := store.Close(); err != nil {
		logger.Error("Failed to close event store", zap.Error(err))
	}
}

func runScan(logger *zap.Logger, engine *core.Engine, source ports.EmailSource, store core.EventStore) error {
	defer logger.Sync()
	defer closeStore(logger, store)

	ctx, cancel := signalContext()
	defer cancel()

	emails, err := source.Emails(ctx)
	if err != nil {
		return fmt.Errorf("failed to read emails: %w", err)
	}

	stats, err := engine.Ingest(ctx, emails)
	if printErr := printJSON(stats); printErr != nil {
		return printErr
	}
	if errors.Is(err, context.Canceled) {
		logger.Info("Scan interrupted; rerun to resume")
		return nil
	}
	return err
}

func runReport(logger *zap.Logger, engine *core.Engine, store core.EventStore, args []string) error {
	defer logger.Sync()
	defer closeStore(logger, store)

	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	asOf := fs.String("as-of", "", "Report date YYYY-MM-DD (today if not specified)")
	outFile := fs.String("out", "", "Write the report to a file instead of stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	today := time.Now()
	if *asOf != "" {
		d, err := core.ParseDate(*asOf)
		if err != nil {
			return err
		}
		today = d.Time()
	}

	ctx, cancel := signalContext()
	defer cancel()

	report, err := engine.Analyze(ctx, today)
	if err != nil {
		return err
	}

	if *outFile == "" {
		return printJSON(report)
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	if err := os.WriteFile(*outFile, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	logger.Info("Report written", zap.String("file", *outFile))
	return nil
}

func runAdd(logger *zap.Logger, engine *core.Engine, store core.EventStore, args []string) error {
	defer logger.Sync()
	defer closeStore(logger, store)

	fs := flag.NewFlagSet("add", flag.ContinueOnError)
	merchant := fs.String("merchant", "", "Merchant name")
	amount := fs.String("amount", "", "Charged amount, e.g. 15.49")
	currency := fs.String("currency", "USD", "ISO 4217 currency code")
	date := fs.String("date", "", "Charge date YYYY-MM-DD (today if not specified)")
	frequency := fs.String("frequency", "", "Pin the billing cadence: monthly, quarterly, yearly or irregular")
	if err := fs.Parse(args); err != nil {
		return err
	}

	value, err := decimal.NewFromString(*amount)
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", *amount, err)
	}

	now := time.Now()
	charged := core.DateOf(now)
	if *date != "" {
		if charged, err = core.ParseDate(*date); err != nil {
			return err
		}
	}

	ev := core.NewManualEvent(*merchant, value, *currency, charged, now)
	if *frequency != "" {
		if ev.FrequencyOverride, err = core.ParseCadence(*frequency); err != nil {
			return err
		}
	}
	if err := engine.AddManual(context.Background(), ev); err != nil {
		return err
	}
	return printJSON(ev)
}

// runServe is the long-running mode: it keeps the SMTP drop box open until a
// shutdown signal arrives
func runServe(logger *zap.Logger, listener ports.Listener, store core.EventStore) error {
	defer logger.Sync()
	defer closeStore(logger, store)

	if listener == nil {
		return errors.New("nothing to serve: source.smtp.enabled is false")
	}

	// Start the drop box
	if err := listener.Start(); err != nil {
		logger.Error("Failed to start SMTP drop box", zap.Error(err))
		return err
	}

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	logger.Info("Shutting down...")

	if err := listener.Stop(); err != nil {
		logger.Error("Failed to stop SMTP drop box", zap.Error(err))
	}

	logger.Info("Shutdown complete")
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}
