// Package market reads token prices and candles from a Birdeye-compatible
// market data API.
package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pysugar/agent-nexus/internal/upstream"
)

const (
	providerName   = "market"
	DefaultBaseURL = "https://public-api.birdeye.so"
)

var intervalDurations = map[string]time.Duration{
	"15m": 15 * time.Minute,
	"1H":  time.Hour,
	"4H":  4 * time.Hour,
	"1D":  24 * time.Hour,
}

type Client struct {
	apiKey     string
	chain      string
	baseURL    string
	httpClient *http.Client
	now        func() time.Time
}

type Price struct {
	Address        string  `json:"address"`
	Value          float64 `json:"value"`
	PriceChange24h float64 `json:"price_change_24h"`
	UpdatedAt      int64   `json:"updated_at"`
}

type Candle struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

func NewClient(apiKey, chain, baseURL string, httpClient *http.Client) *Client {
	if baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/"); baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if chain == "" {
		chain = "solana"
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	return &Client{
		apiKey:     strings.TrimSpace(apiKey),
		chain:      chain,
		baseURL:    baseURL,
		httpClient: httpClient,
		now:        time.Now,
	}
}

// Price returns the current USD price of a token.
func (c *Client) Price(ctx context.Context, address string) (*Price, error) {
	var data struct {
		Value           float64 `json:"value"`
		UpdateUnixTime  int64   `json:"updateUnixTime"`
		PriceChange24h  float64 `json:"priceChange24h"`
		PriceChange24hC float64 `json:"priceChange24H"`
	}
	q := url.Values{"address": []string{address}}
	if err := c.get(ctx, "/defi/price", q, &data); err != nil {
		return nil, err
	}
	change := data.PriceChange24h
	if change == 0 {
		change = data.PriceChange24hC
	}
	return &Price{Address: address, Value: data.Value, PriceChange24h: change, UpdatedAt: data.UpdateUnixTime}, nil
}

// Chart returns the last points candles of the given interval (15m, 1H, 4H, 1D).
func (c *Client) Chart(ctx context.Context, address, interval string, points int) ([]Candle, error) {
	if interval == "" {
		interval = "1H"
	}
	step, ok := intervalDurations[interval]
	if !ok {
		return nil, fmt.Errorf("unsupported chart interval %q", interval)
	}
	if points <= 0 {
		points = 24
	}
	if points > 500 {
		points = 500
	}

	to := c.now().Unix()
	from := to - int64(points)*int64(step/time.Second)
	q := url.Values{
		"address":   []string{address},
		"type":      []string{interval},
		"time_from": []string{strconv.FormatInt(from, 10)},
		"time_to":   []string{strconv.FormatInt(to, 10)},
	}

	var data struct {
		Items []struct {
			UnixTime int64   `json:"unixTime"`
			O        float64 `json:"o"`
			H        float64 `json:"h"`
			L        float64 `json:"l"`
			C        float64 `json:"c"`
			V        float64 `json:"v"`
		} `json:"items"`
	}
	if err := c.get(ctx, "/defi/ohlcv", q, &data); err != nil {
		return nil, err
	}

	candles := make([]Candle, 0, len(data.Items))
	for _, it := range data.Items {
		candles = append(candles, Candle{Time: it.UnixTime, Open: it.O, High: it.H, Low: it.L, Close: it.C, Volume: it.V})
	}
	return candles, nil
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-API-KEY", c.apiKey)
	req.Header.Set("x-chain", c.chain)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("market %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return upstream.NewAPIError(providerName, resp)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode market response: %w", err)
	}
	if !env.Success {
		return &upstream.APIError{Provider: providerName, StatusCode: resp.StatusCode, Detail: env.Message, Body: string(env.Data)}
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode market data: %w", err)
	}
	return nil
}
