// Package di provides dependency injection for services.
package di

import (
	"fmt"

	"github.com/cryptosage/backend/internal/clients/cryptocompare"
	"github.com/cryptosage/backend/internal/config"
	"github.com/cryptosage/backend/internal/modules/advisor"
	advisorhandlers "github.com/cryptosage/backend/internal/modules/advisor/handlers"
	"github.com/cryptosage/backend/internal/modules/optimization"
	"github.com/cryptosage/backend/internal/modules/portfolio"
	portfoliohandlers "github.com/cryptosage/backend/internal/modules/portfolio/handlers"
	"github.com/cryptosage/backend/internal/modules/series"
	"github.com/cryptosage/backend/internal/modules/trend"
	"github.com/rs/zerolog"
)

// InitializeServices creates clients, repositories, services and
// handlers. Databases must already be initialized.
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil || container.PortfolioDB == nil {
		return fmt.Errorf("container databases not initialized")
	}

	container.MarketClient = cryptocompare.NewClient(cryptocompare.Config{
		BaseURL: cfg.MarketData.BaseURL,
		APIKey:  cfg.MarketData.APIKey,
		Quote:   cfg.MarketData.Quote,
		Timeout: cfg.MarketData.Timeout,
	}, log)

	container.PortfolioRepo = portfolio.NewRepository(container.PortfolioDB.Conn(), log)

	container.SeriesBuilder = series.NewBuilder(log)
	container.TrendTrainer = trend.NewTrainer(TrainerConfig(cfg), log)
	container.Optimizer = optimization.NewMVOptimizer(log)

	container.AdvisorService = advisor.NewService(
		container.MarketClient,
		container.MarketClient,
		container.SeriesBuilder,
		container.TrendTrainer,
		container.Optimizer,
		AdvisorConfig(cfg),
		log,
	)

	aliases := cfg.Advisor.AssetAliases
	container.AdvisorHandler = advisorhandlers.NewHandler(container.AdvisorService, container.PortfolioRepo, aliases, log)
	container.PortfolioHandler = portfoliohandlers.NewHandler(container.PortfolioRepo, aliases, log)

	return nil
}

// TrainerConfig maps configuration onto the trend trainer settings
func TrainerConfig(cfg *config.Config) trend.TrainerConfig {
	return trend.TrainerConfig{
		SequenceLength: cfg.Trend.SequenceLength,
		Epochs:         cfg.Trend.Epochs,
		BatchSize:      cfg.Trend.BatchSize,
		HiddenUnits:    cfg.Trend.HiddenUnits,
		Dropout:        cfg.Trend.Dropout,
		LearningRate:   cfg.Trend.LearningRate,
		Seed:           cfg.Trend.Seed,
	}
}

// AdvisorConfig maps configuration onto the advisor settings
func AdvisorConfig(cfg *config.Config) advisor.Config {
	return advisor.Config{
		TrendLookbackDays: cfg.Advisor.TrendLookbackDays,
		PriceLookbackDays: cfg.Advisor.PriceLookbackDays,
		TopMoversLimit:    cfg.Advisor.TopMoversLimit,
		DefaultPortfolio:  cfg.Advisor.DefaultPortfolio,
	}
}
