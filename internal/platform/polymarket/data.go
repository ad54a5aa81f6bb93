package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"

	"github.com/alanyoungcy/polysignal/internal/domain"
)

// DefaultDataHost is the public Data API root.
const DefaultDataHost = "https://data-api.polymarket.com"

// Upstream caps.
const (
	MaxHoldersLimit    = 20
	MaxPositionsLimit  = 500
	MaxClosedPageLimit = 50
)

// DataClient is the REST client for the Polymarket Data API: holders,
// positions, closed positions and the leaderboard.
type DataClient struct {
	baseURL string
	gw      *Gateway
}

// NewDataClient creates a new Data API client.
func NewDataClient(baseURL string, gw *Gateway) *DataClient {
	if baseURL == "" {
		baseURL = DefaultDataHost
	}
	return &DataClient{baseURL: baseURL, gw: gw}
}

// Holders returns the deduplicated top holder wallets of a market, largest
// first as the API orders them.
func (d *DataClient) Holders(ctx context.Context, conditionID string, limit int, minBalance float64) ([]string, error) {
	if limit <= 0 || limit > MaxHoldersLimit {
		limit = MaxHoldersLimit
	}
	params := url.Values{}
	params.Set("market", conditionID)
	params.Set("limit", strconv.Itoa(limit))
	params.Set("minBalance", strconv.FormatFloat(minBalance, 'f', -1, 64))

	body, err := d.gw.Fetch(ctx, APIData, d.baseURL, "/holders", params)
	if err != nil {
		return nil, fmt.Errorf("polymarket/data: get holders %s: %w", conditionID, err)
	}
	wallets, err := ExtractHolders(body)
	if err != nil {
		return nil, fmt.Errorf("polymarket/data: decode holders %s: %w", conditionID, err)
	}
	return wallets, nil
}

// Positions returns a wallet's open position rows in one market.
func (d *DataClient) Positions(ctx context.Context, wallet, conditionID string, sizeThreshold float64) ([]APIPosition, error) {
	params := url.Values{}
	params.Set("user", wallet)
	params.Set("market", conditionID)
	params.Set("limit", strconv.Itoa(MaxPositionsLimit))
	if sizeThreshold > 0 {
		params.Set("sizeThreshold", strconv.FormatFloat(sizeThreshold, 'f', -1, 64))
	}

	body, err := d.gw.Fetch(ctx, APIData, d.baseURL, "/positions", params)
	if err != nil {
		return nil, fmt.Errorf("polymarket/data: get positions %s: %w", wallet, err)
	}
	var rows []APIPosition
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("polymarket/data: decode positions %s: %w", wallet, err)
	}
	return rows, nil
}

// ClosedPositions pages through a wallet's closed positions, newest first,
// until max rows are collected or a short page is returned. On error the rows
// read so far are returned together with the error.
func (d *DataClient) ClosedPositions(ctx context.Context, wallet string, max, pageSize int) ([]domain.ClosedPosition, error) {
	if pageSize <= 0 || pageSize > MaxClosedPageLimit {
		pageSize = MaxClosedPageLimit
	}
	var out []domain.ClosedPosition
	for offset := 0; offset < max; offset += pageSize {
		limit := pageSize
		if rem := max - offset; rem < limit {
			limit = rem
		}
		params := url.Values{}
		params.Set("user", wallet)
		params.Set("limit", strconv.Itoa(limit))
		params.Set("offset", strconv.Itoa(offset))
		params.Set("sortBy", "timestamp")
		params.Set("sortDirection", "desc")

		body, err := d.gw.Fetch(ctx, APIData, d.baseURL, "/closed-positions", params)
		if err != nil {
			return out, fmt.Errorf("polymarket/data: get closed positions %s: %w", wallet, err)
		}
		var page []APIClosedPosition
		if err := json.Unmarshal(body, &page); err != nil {
			return out, fmt.Errorf("polymarket/data: decode closed positions %s: %w", wallet, err)
		}
		for _, row := range page {
			out = append(out, domain.ClosedPosition{
				Outcome:     row.Outcome,
				RealizedPnL: float64(row.RealizedPnL),
				TotalBought: float64(row.TotalBought),
				ClosedAt:    row.Timestamp.Time(),
			})
		}
		if len(page) < limit {
			break
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ClosedAt.After(out[j].ClosedAt) })
	return out, nil
}

// Leaderboard returns the wallet's all-time leaderboard row, or nil when the
// wallet is not ranked. The v1 endpoint is tried first, then the legacy one.
func (d *DataClient) Leaderboard(ctx context.Context, wallet string) (*domain.LeaderboardRow, error) {
	params := url.Values{}
	params.Set("user", wallet)
	params.Set("timePeriod", "ALL")
	params.Set("category", "OVERALL")
	params.Set("limit", "1")

	body, v1Err := d.gw.FetchOptional(ctx, APIData, d.baseURL, "/v1/leaderboard", params)
	if v1Err == nil {
		if row := ParseLeaderboardRow(body); row != nil {
			return row, nil
		}
	}

	legacy := url.Values{}
	legacy.Set("user", wallet)
	legacy.Set("limit", "1")
	body, err := d.gw.FetchOptional(ctx, APIData, d.baseURL, "/leaderboard", legacy)
	if err != nil {
		if v1Err != nil {
			return nil, fmt.Errorf("polymarket/data: get leaderboard %s: %w", wallet, v1Err)
		}
		return nil, fmt.Errorf("polymarket/data: get legacy leaderboard %s: %w", wallet, err)
	}
	return ParseLeaderboardRow(body), nil
}
