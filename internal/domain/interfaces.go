package domain

import "context"

// MarketDataSource supplies daily bars for an asset, ordered by time
// ascending. Implementations return ErrNoData (possibly wrapped) or a
// placeholder series when nothing usable is available.
type MarketDataSource interface {
	GetDailyBars(ctx context.Context, symbol Symbol, days int) ([]Bar, error)
}

// CoinRanker lists the top coins by market capitalisation.
type CoinRanker interface {
	GetTopCoins(ctx context.Context, limit int) ([]Coin, error)
}

// PortfolioStore reads a user's holdings snapshot.
type PortfolioStore interface {
	GetHoldings(ctx context.Context, email string) (Holdings, error)
}
