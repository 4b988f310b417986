// Package di provides dependency injection for database connections.
package di

import (
	"fmt"

	"github.com/cryptosage/backend/internal/config"
	"github.com/cryptosage/backend/internal/database"
	"github.com/rs/zerolog"
)

// InitializeDatabases opens the portfolio store and applies its schema
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	portfolioDB, err := database.New(database.Config{
		Path:    cfg.DatabasePath(),
		Profile: database.ProfileStandard,
		Name:    "portfolio",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize portfolio database: %w", err)
	}

	if err := portfolioDB.Migrate(); err != nil {
		portfolioDB.Close()
		return nil, fmt.Errorf("failed to migrate portfolio database: %w", err)
	}
	container.PortfolioDB = portfolioDB

	log.Info().Str("path", portfolioDB.Path()).Msg("Portfolio database ready")

	return container, nil
}
