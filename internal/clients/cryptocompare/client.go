// Package cryptocompare fetches daily bars and market-cap rankings from
// the CryptoCompare min-api.
package cryptocompare

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/cryptosage/backend/internal/domain"
	"github.com/rs/zerolog"
)

// DefaultBaseURL is the public min-api endpoint.
const DefaultBaseURL = "https://min-api.cryptocompare.com"

// Config configures the client. APIKey may be empty for the keyless tier.
type Config struct {
	BaseURL string
	APIKey  string
	Quote   string
	Timeout time.Duration
}

// Client for min-api.cryptocompare.com
type Client struct {
	baseURL string
	apiKey  string
	quote   string
	client  *http.Client
	log     zerolog.Logger
}

// NewClient creates a new CryptoCompare client.
func NewClient(cfg Config, log zerolog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Quote == "" {
		cfg.Quote = "USD"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		quote:   cfg.Quote,
		client:  &http.Client{Timeout: cfg.Timeout},
		log:     log.With().Str("client", "cryptocompare").Logger(),
	}
}

type histoDayResponse struct {
	Response string `json:"Response"`
	Message  string `json:"Message"`
	Data     struct {
		Data []struct {
			Time  int64   `json:"time"`
			Open  float64 `json:"open"`
			Close float64 `json:"close"`
		} `json:"Data"`
	} `json:"Data"`
}

// GetDailyBars returns up to days daily bars for symbol quoted in the
// configured currency, oldest first. An API-level error or an empty
// series is reported as domain.ErrNoData.
func (c *Client) GetDailyBars(ctx context.Context, symbol domain.Symbol, days int) ([]domain.Bar, error) {
	if days < 1 {
		return nil, fmt.Errorf("days must be positive, got %d", days)
	}

	params := url.Values{}
	params.Set("fsym", symbol)
	params.Set("tsym", c.quote)
	params.Set("limit", strconv.Itoa(days-1))

	var result histoDayResponse
	if err := c.get(ctx, "/data/v2/histoday", params, &result); err != nil {
		return nil, fmt.Errorf("histoday %s: %w", symbol, err)
	}

	if result.Response == "Error" {
		c.log.Warn().Str("symbol", symbol).Str("message", result.Message).Msg("API returned an error")
		return nil, fmt.Errorf("histoday %s: %s: %w", symbol, result.Message, domain.ErrNoData)
	}

	bars := make([]domain.Bar, 0, len(result.Data.Data))
	for _, d := range result.Data.Data {
		bars = append(bars, domain.Bar{
			Time:  time.Unix(d.Time, 0).UTC(),
			Open:  d.Open,
			Close: d.Close,
		})
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("histoday %s: %w", symbol, domain.ErrNoData)
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })

	c.log.Debug().Str("symbol", symbol).Int("bars", len(bars)).Msg("Fetched daily bars")
	return bars, nil
}

type topCoinsResponse struct {
	Message string `json:"Message"`
	Data    []struct {
		CoinInfo struct {
			Name     string `json:"Name"`
			FullName string `json:"FullName"`
		} `json:"CoinInfo"`
		Raw map[string]struct {
			MarketCap float64 `json:"MKTCAP"`
		} `json:"RAW"`
	} `json:"Data"`
}

// GetTopCoins returns the top coins by full market capitalisation.
func (c *Client) GetTopCoins(ctx context.Context, limit int) ([]domain.Coin, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("tsym", c.quote)

	var result topCoinsResponse
	if err := c.get(ctx, "/data/top/mktcapfull", params, &result); err != nil {
		return nil, fmt.Errorf("top coins: %w", err)
	}

	coins := make([]domain.Coin, 0, len(result.Data))
	for _, d := range result.Data {
		if d.CoinInfo.Name == "" {
			continue
		}
		coins = append(coins, domain.Coin{
			Symbol:    d.CoinInfo.Name,
			FullName:  d.CoinInfo.FullName,
			MarketCap: d.Raw[c.quote].MarketCap,
		})
		if limit > 0 && len(coins) == limit {
			break
		}
	}
	if len(coins) == 0 {
		return nil, fmt.Errorf("top coins: %s: %w", result.Message, domain.ErrNoData)
	}
	return coins, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	if c.apiKey != "" {
		params.Set("api_key", c.apiKey)
	}
	endpoint := c.baseURL + path + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	c.log.Debug().Str("path", path).Str("fsym", params.Get("fsym")).Msg("Requesting")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API returned status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
