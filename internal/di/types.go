/**
 * Package di provides dependency injection type definitions.
 *
 * Container holds every long-lived instance the service needs. It is
 * created by Wire() and handed to cmd/server, which mounts the handlers
 * and starts the scheduler.
 */
package di

import (
	"github.com/cryptosage/backend/internal/clients/cryptocompare"
	"github.com/cryptosage/backend/internal/database"
	"github.com/cryptosage/backend/internal/modules/advisor"
	advisorhandlers "github.com/cryptosage/backend/internal/modules/advisor/handlers"
	"github.com/cryptosage/backend/internal/modules/optimization"
	"github.com/cryptosage/backend/internal/modules/portfolio"
	portfoliohandlers "github.com/cryptosage/backend/internal/modules/portfolio/handlers"
	"github.com/cryptosage/backend/internal/modules/series"
	"github.com/cryptosage/backend/internal/modules/trend"
	"github.com/cryptosage/backend/internal/reliability"
	"github.com/cryptosage/backend/internal/scheduler"
	"github.com/cryptosage/backend/internal/server"
)

// Container holds all dependencies for the application.
type Container struct {
	// Databases
	PortfolioDB *database.DB // Users and their holdings snapshots

	// Clients
	MarketClient *cryptocompare.Client // Daily bars and top coins (market data source and coin ranker)

	// Repositories
	PortfolioRepo *portfolio.Repository

	// Services
	SeriesBuilder  *series.Builder
	TrendTrainer   *trend.Trainer
	Optimizer      *optimization.MVOptimizer
	AdvisorService *advisor.Service

	// Handlers
	AdvisorHandler   *advisorhandlers.Handler
	PortfolioHandler *portfoliohandlers.Handler
	SystemHandlers   *server.SystemHandlers

	Scheduler *scheduler.Scheduler
}

// JobInstances holds the scheduled jobs. Backup is nil when no bucket
// is configured.
type JobInstances struct {
	Maintenance *reliability.MaintenanceJob
	Backup      *reliability.BackupJob
}

// Modules returns the route registrars mounted under /api
func (c *Container) Modules() []server.RouteRegistrar {
	return []server.RouteRegistrar{c.AdvisorHandler, c.PortfolioHandler}
}

// Close releases the container's resources
func (c *Container) Close() error {
	if c.PortfolioDB != nil {
		return c.PortfolioDB.Close()
	}
	return nil
}
