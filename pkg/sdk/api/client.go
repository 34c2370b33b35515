package api

import (
	"context"
	"fmt"
	"os"
	"strings"

	sdkhttp "github.com/betbot/copybot/pkg/sdk/http"
)

// Client handles Polymarket data API interactions.
type Client struct {
	dataClient  *sdkhttp.Client
	gammaClient *sdkhttp.Client
}

// TradeQuery controls /activity and /trades requests.
type TradeQuery struct {
	User   string
	Side   string
	Limit  int
	Offset int
	After  int64    // Unix timestamp - only return trades after this time
	Types  []string // Activity types: TRADE, REDEEM, SPLIT, MERGE, REWARD, CONVERSION
}

// MarketQueryParams controls gamma /markets requests.
type MarketQueryParams struct {
	Limit  int
	Offset int
	Slug   string
	Closed *bool
}

// NewClient creates a new Polymarket data API client.
func NewClient() *Client {
	dataURL := os.Getenv("POLYMARKET_DATA_API_URL")
	if dataURL == "" {
		dataURL = "https://data-api.polymarket.com"
	}

	gammaURL := os.Getenv("POLYMARKET_GAMMA_API_URL")
	if gammaURL == "" {
		gammaURL = "https://gamma-api.polymarket.com"
	}

	return &Client{
		dataClient:  sdkhttp.NewClient(dataURL),
		gammaClient: sdkhttp.NewClient(gammaURL),
	}
}

// GetActivity fetches user activity using the /activity endpoint.
// Defaults to TRADE entries only; other activity types (REDEEM, SPLIT,
// MERGE) can be requested explicitly via Types.
func (c *Client) GetActivity(ctx context.Context, params TradeQuery) ([]DataTrade, error) {
	query := map[string]any{}
	limit := params.Limit
	if limit <= 0 {
		limit = 100
	}
	query["limit"] = limit
	if params.Offset > 0 {
		query["offset"] = params.Offset
	}
	if params.User != "" {
		query["user"] = params.User
	}
	if params.Side != "" {
		query["side"] = strings.ToUpper(params.Side)
	}
	if params.After > 0 {
		query["start"] = params.After
	}
	if len(params.Types) > 0 {
		query["type"] = strings.Join(params.Types, ",")
	} else {
		query["type"] = "TRADE"
	}

	var activity []DataTrade
	resp, err := c.dataClient.DoRequest(ctx, "GET", "/activity", &sdkhttp.RequestOptions{Params: query}, &activity)
	if err != nil {
		return nil, fmt.Errorf("fetch activity: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, &APIError{StatusCode: resp.StatusCode(), Body: strings.TrimSpace(string(resp.Body())), Endpoint: "GET /activity"}
	}
	return activity, nil
}

// GetTrades fetches trades for a user via the /trades endpoint.
func (c *Client) GetTrades(ctx context.Context, params TradeQuery) ([]DataTrade, error) {
	query := map[string]any{}
	limit := params.Limit
	if limit <= 0 {
		limit = 100
	}
	query["limit"] = limit
	if params.Offset > 0 {
		query["offset"] = params.Offset
	}
	if params.User != "" {
		query["user"] = params.User
	}
	if params.Side != "" {
		query["side"] = strings.ToUpper(params.Side)
	}

	var trades []DataTrade
	resp, err := c.dataClient.DoRequest(ctx, "GET", "/trades", &sdkhttp.RequestOptions{Params: query}, &trades)
	if err != nil {
		return nil, fmt.Errorf("fetch trades: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, &APIError{StatusCode: resp.StatusCode(), Body: strings.TrimSpace(string(resp.Body())), Endpoint: "GET /trades"}
	}
	return trades, nil
}

// ListMarkets fetches markets from the gamma API.
func (c *Client) ListMarkets(ctx context.Context, params MarketQueryParams) ([]GammaMarket, error) {
	query := map[string]any{}
	limit := params.Limit
	if limit <= 0 {
		limit = 100
	}
	query["limit"] = limit
	if params.Offset > 0 {
		query["offset"] = params.Offset
	}
	if params.Slug != "" {
		query["slug"] = params.Slug
	}
	if params.Closed != nil {
		query["closed"] = *params.Closed
	}

	var markets []GammaMarket
	resp, err := c.gammaClient.DoRequest(ctx, "GET", "/markets", &sdkhttp.RequestOptions{Params: query}, &markets)
	if err != nil {
		return nil, fmt.Errorf("fetch markets: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, &APIError{StatusCode: resp.StatusCode(), Body: strings.TrimSpace(string(resp.Body())), Endpoint: "GET /markets"}
	}
	return markets, nil
}
