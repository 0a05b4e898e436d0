// Command settler runs option expiration settlement against the paper
// account: one-shot by default, or on a cron schedule in daemon mode.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/schrute_bucks/internal/asset"
	"github.com/eddiefleurent/schrute_bucks/internal/broker"
	"github.com/eddiefleurent/schrute_bucks/internal/config"
	"github.com/eddiefleurent/schrute_bucks/internal/expiration"
	"github.com/eddiefleurent/schrute_bucks/internal/mock"
	"github.com/eddiefleurent/schrute_bucks/internal/models"
	"github.com/eddiefleurent/schrute_bucks/internal/storage"
	"github.com/eddiefleurent/schrute_bucks/internal/strategy"
)

func main() {
	var (
		configPath string
		dateStr    string
		dryRun     bool
		classify   bool
		daemon     bool
	)
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.StringVar(&dateStr, "date", "", "Processing date (YYYY-MM-DD, default today)")
	flag.BoolVar(&dryRun, "dry-run", false, "Settle without persisting the result")
	flag.BoolVar(&classify, "classify", false, "Print strategy classification after settlement")
	flag.BoolVar(&daemon, "daemon", false, "Run on the configured cron schedule")
	flag.Parse()

	// .env is optional; real env vars win either way.
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	logger := logrus.New()
	if level, err := logrus.ParseLevel(cfg.Environment.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	logger.WithFields(logrus.Fields{
		"mode":    cfg.Environment.Mode,
		"storage": cfg.Storage.Path,
	}).Info("starting settler")

	store, err := storage.NewStorage(cfg.Storage.Path)
	if err != nil {
		logger.Fatalf("Failed to open storage: %v", err)
	}

	quotes := buildQuoteSource(cfg)

	processingDate, err := parseDate(dateStr)
	if err != nil {
		logger.Fatalf("Invalid -date: %v", err)
	}

	if !daemon {
		if err := runSettlement(logger, cfg, store, quotes, processingDate, dryRun, classify); err != nil {
			logger.Fatalf("Settlement failed: %v", err)
		}
		return
	}

	if cfg.Settlement.Schedule == "" {
		logger.Fatal("daemon mode requires settlement.schedule in config")
	}

	c := cron.New(cron.WithLocation(cfg.Location()))
	_, err = c.AddFunc(cfg.Settlement.Schedule, func() {
		if err := runSettlement(logger, cfg, store, quotes, time.Time{}, dryRun, classify); err != nil {
			logger.WithError(err).Error("scheduled settlement failed")
		}
	})
	if err != nil {
		logger.Fatalf("Invalid settlement.schedule: %v", err)
	}
	c.Start()
	logger.WithField("schedule", cfg.Settlement.Schedule).Info("daemon running")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down")
	<-c.Stop().Done()
}

// buildQuoteSource wires the quote stack: mock data in paper mode, the
// Tradier client behind a circuit breaker otherwise.
func buildQuoteSource(cfg *config.Config) broker.QuoteSource {
	if cfg.IsPaperTrading() {
		return mock.NewProvider()
	}
	client := broker.NewTradierClientWithBaseURL(cfg.Broker.APIKey, cfg.Broker.Sandbox, cfg.Broker.APIEndpoint).
		WithTimeout(cfg.QuoteTimeoutDuration())
	return broker.NewCircuitBreakerSource(client)
}

// parseDate parses a YYYY-MM-DD flag; empty means the zero time, which the
// engine treats as today.
func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", s)
}

// runSettlement executes one settlement pass: prefetch quotes, settle, and
// commit unless dry-running.
func runSettlement(logger *logrus.Logger, cfg *config.Config, store storage.Interface,
	quotes broker.QuoteSource, processingDate time.Time, dryRun, classify bool) error {
	account := store.GetAccount()
	if account == nil {
		return fmt.Errorf("storage holds no account; seed %s first", cfg.Storage.Path)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.QuoteTimeoutDuration()*4)
	defer cancel()

	underlyings := collectUnderlyings(account.Positions)
	snapshot := broker.PrefetchQuotes(ctx, quotes, underlyings, cfg.Settlement.MaxConcurrentQuotes)

	engine := expiration.NewEngine(snapshot, log.New(logger.Writer(), "", 0))
	settled, result := engine.ProcessAccount(ctx, account, processingDate)

	logger.WithFields(logrus.Fields{
		"expired":     len(result.ExpiredPositions),
		"exercises":   len(result.Exercises),
		"assignments": len(result.Assignments),
		"worthless":   len(result.Worthless),
		"cash_impact": result.CashImpact.StringFixed(2),
	}).Info("settlement complete")
	for _, w := range result.Warnings {
		logger.Warn(w)
	}
	for _, e := range result.Errors {
		logger.Error(e)
	}

	if classify && settled != nil {
		printClassification(logger, settled.Positions)
	}

	if dryRun || settled == nil {
		logger.Info("dry run, result not persisted")
		return nil
	}
	return store.ApplySettlement(settled, result)
}

// collectUnderlyings returns the distinct underlying symbols of all open
// option positions, in first-seen order.
func collectUnderlyings(positions []models.Position) []string {
	seen := make(map[string]bool)
	var out []string
	for i := range positions {
		p := &positions[i]
		if p.Quantity == 0 {
			continue
		}
		opt, ok := asset.ParseOption(p.Symbol)
		if !ok {
			continue
		}
		u := opt.UnderlyingSymbol()
		if !seen[u] {
			seen[u] = true
			out = append(out, u)
		}
	}
	return out
}

// printClassification logs the basic and complex strategy breakdown of the
// settled position set.
func printClassification(logger *logrus.Logger, positions []models.Position) {
	basics := strategy.NormalizeQuantities(strategy.GroupBasic(positions))
	for _, b := range basics {
		logger.WithFields(logrus.Fields{
			"underlying": b.UnderlyingSymbol(),
			"quantity":   b.Quantity(),
		}).Infof("strategy %s", b.Key())
	}

	complexes := strategy.IdentifyComplex(basics)
	for _, ic := range complexes.IronCondors {
		logger.Infof("iron condor on %s exp %s x%d",
			ic.Underlying, ic.Expiration.Format("2006-01-02"), ic.Qty)
	}
	for _, st := range complexes.Straddles {
		logger.Infof("straddle on %s exp %s x%d",
			st.Underlying, st.Expiration.Format("2006-01-02"), st.Qty)
	}
	for _, st := range complexes.Strangles {
		logger.Infof("strangle on %s exp %s x%d",
			st.Underlying, st.Expiration.Format("2006-01-02"), st.Qty)
	}
}
