// Package main is sagectl, a command-line client that runs the trend
// prediction and portfolio optimization pipelines against live
// CryptoCompare data and prints the results as JSON.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cryptosage/backend/internal/clients/cryptocompare"
	"github.com/cryptosage/backend/internal/config"
	"github.com/cryptosage/backend/internal/di"
	"github.com/cryptosage/backend/internal/domain"
	"github.com/cryptosage/backend/internal/modules/advisor"
	advisorhandlers "github.com/cryptosage/backend/internal/modules/advisor/handlers"
	"github.com/cryptosage/backend/internal/modules/optimization"
	"github.com/cryptosage/backend/internal/modules/series"
	"github.com/cryptosage/backend/internal/modules/trend"
	"github.com/cryptosage/backend/pkg/logger"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "sagectl",
		Usage: "crypto trend prediction and portfolio optimization",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "log-level", Value: "warn", Usage: "debug, info, warn or error"},
		},
		Commands: []*cli.Command{
			{
				Name:  "predict",
				Usage: "forecast next-day returns and name the best asset",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "symbols", Usage: "comma-separated symbols, e.g. BTC,ETH (defaults to DEFAULT_PORTFOLIO)"},
					&cli.IntFlag{Name: "days", Usage: "days of history to train on (defaults to TREND_LOOKBACK_DAYS)"},
					&cli.IntFlag{Name: "epochs", Usage: "training epochs (defaults to TRAIN_EPOCHS)"},
					&cli.Int64Flag{Name: "seed", Usage: "training seed for reproducible runs"},
				},
				Action: runPredict,
			},
			{
				Name:  "optimize",
				Usage: "compute max-Sharpe and min-volatility weights",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "symbols", Required: true, Usage: "holdings as SYMBOL:QTY pairs, e.g. BTC:1.5,ETH:10"},
					&cli.IntFlag{Name: "days", Usage: "days of closes to use (defaults to PRICE_LOOKBACK_DAYS)"},
				},
				Action: runOptimize,
			},
			{
				Name:  "top",
				Usage: "list the top coins by market cap with their recent change",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Usage: "number of coins (defaults to TOP_MOVERS_LIMIT)"},
				},
				Action: runTop,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "sagectl:", err)
		os.Exit(1)
	}
}

func runPredict(c *cli.Context) error {
	cfg, log, err := setup(c)
	if err != nil {
		return err
	}
	if c.IsSet("days") {
		cfg.Advisor.TrendLookbackDays = c.Int("days")
	}
	if c.IsSet("epochs") {
		cfg.Trend.Epochs = c.Int("epochs")
	}
	if c.IsSet("seed") {
		cfg.Trend.Seed = c.Int64("seed")
	}

	svc := newAdvisor(cfg, log)

	message := "Prediction for requested symbols"
	holdings := svc.DefaultHoldings()
	if s := c.String("symbols"); s != "" {
		parsed, err := domain.ParseHoldings(s)
		if err != nil {
			return err
		}
		holdings = domain.UniformHoldings(parsed.Symbols(), 1)
	} else {
		message = "Prediction for default portfolio"
	}
	holdings = holdings.Normalize(cfg.Advisor.AssetAliases)
	if err := holdings.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rec, err := svc.Recommend(ctx, holdings)
	if err != nil {
		return err
	}
	return printJSON(advisorhandlers.NewPredictResponse(message, holdings, rec))
}

func runOptimize(c *cli.Context) error {
	cfg, log, err := setup(c)
	if err != nil {
		return err
	}
	if c.IsSet("days") {
		cfg.Advisor.PriceLookbackDays = c.Int("days")
	}

	holdings, err := domain.ParseHoldings(c.String("symbols"))
	if err != nil {
		return err
	}
	holdings = holdings.Normalize(cfg.Advisor.AssetAliases)
	if err := holdings.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := newAdvisor(cfg, log).Optimize(ctx, holdings)
	if err != nil {
		return err
	}
	return printJSON(advisorhandlers.NewOptimizeResponse(holdings, report))
}

func runTop(c *cli.Context) error {
	cfg, log, err := setup(c)
	if err != nil {
		return err
	}
	if c.IsSet("limit") {
		cfg.Advisor.TopMoversLimit = c.Int("limit")
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return printJSON(newAdvisor(cfg, log).TopMovers(ctx))
}

func setup(c *cli.Context) (*config.Config, zerolog.Logger, error) {
	log := logger.New(logger.Config{Level: c.String("log-level"), Pretty: true, Output: os.Stderr})
	cfg, err := config.Load()
	if err != nil {
		return nil, log, err
	}
	return cfg, log, nil
}

// newAdvisor builds the advisor pipeline without the portfolio store,
// which the CLI does not need.
func newAdvisor(cfg *config.Config, log zerolog.Logger) *advisor.Service {
	client := cryptocompare.NewClient(cryptocompare.Config{
		BaseURL: cfg.MarketData.BaseURL,
		APIKey:  cfg.MarketData.APIKey,
		Quote:   cfg.MarketData.Quote,
		Timeout: cfg.MarketData.Timeout,
	}, log)

	return advisor.NewService(
		client,
		client,
		series.NewBuilder(log),
		trend.NewTrainer(di.TrainerConfig(cfg), log),
		optimization.NewMVOptimizer(log),
		di.AdvisorConfig(cfg),
		log,
	)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
