package domain

import "errors"

var (
	// ErrNoMarketData is returned when no asset produced a usable series.
	ErrNoMarketData = errors.New("no market data retrieved")

	// ErrNoData is returned by a market data source when a single asset
	// has no bars. It is not fatal on its own.
	ErrNoData = errors.New("no data returned for asset")

	// ErrInsufficientHistory marks a table too short to form a training
	// window. Trainers degrade to a placeholder model instead of failing.
	ErrInsufficientHistory = errors.New("insufficient history for sequence length")

	// ErrOptimizationNonConvergence is returned when the constrained
	// search fails to converge.
	ErrOptimizationNonConvergence = errors.New("optimization did not converge")

	// ErrDegenerateVolatility marks a zero-variance weight combination.
	ErrDegenerateVolatility = errors.New("degenerate portfolio volatility")

	// ErrInvalidHoldings is returned when a portfolio payload fails validation.
	ErrInvalidHoldings = errors.New("invalid holdings")

	// ErrInvalidEmail is returned when a user identity is not an email address.
	ErrInvalidEmail = errors.New("invalid email")

	// ErrUserNotFound is returned by the portfolio store for unknown users.
	ErrUserNotFound = errors.New("user not found")
)
