package market

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// PolymarketAPIURL is the Gamma API base used for market details.
const PolymarketAPIURL = "https://gamma-api.polymarket.com"

// PolymarketMarket is the subset of a Gamma market-detail response needed to
// decide settlement.
type PolymarketMarket struct {
	ID               string        `json:"id"`
	Question         string        `json:"question"`
	Closed           bool          `json:"closed"`
	ClosedTime       string        `json:"closedTime"`
	ResolutionSource flexibleValue `json:"resolutionSource"`
	AcceptingOrders  bool          `json:"acceptingOrders"`
}

// flexibleValue accepts a JSON string, number or null and keeps its text form.
type flexibleValue string

func (v *flexibleValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*v = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = flexibleValue(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("resolution source: %w", err)
	}
	*v = flexibleValue(n.String())
	return nil
}

// PolymarketProvider reads resolutions from the Polymarket Gamma API.
type PolymarketProvider struct {
	client  *http.Client
	baseURL string
}

func NewPolymarketProvider(client *http.Client, baseURL string) *PolymarketProvider {
	if baseURL == "" {
		baseURL = PolymarketAPIURL
	}
	return &PolymarketProvider{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

func (p *PolymarketProvider) Platform() Platform { return Polymarket }

func (p *PolymarketProvider) FetchResolution(ctx context.Context, marketID string) (*Resolution, error) {
	var m PolymarketMarket
	endpoint := p.baseURL + "/markets/" + url.PathEscape(marketID)
	if err := getJSON(ctx, p.client, Polymarket, endpoint, &m); err != nil {
		return nil, err
	}
	return mapPolymarket(marketID, m), nil
}

// mapPolymarket treats a market as resolved once it is closed and names a
// resolution source. Source "1" means YES, "0" means NO; anything else is
// passed through untouched.
func mapPolymarket(marketID string, m PolymarketMarket) *Resolution {
	source := strings.TrimSpace(string(m.ResolutionSource))
	r := &Resolution{
		MarketID: marketID,
		Platform: Polymarket,
		Resolved: m.Closed && source != "",
	}
	if source != "" {
		switch source {
		case "1":
			r.Outcome = stringPtr("YES")
		case "0":
			r.Outcome = stringPtr("NO")
		default:
			r.Outcome = stringPtr(source)
		}
	}
	if r.Resolved {
		if ts, ok := parseTimestamp(m.ClosedTime); ok {
			r.ResolvedAt = int64Ptr(ts)
		}
	}
	return r
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05-07",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// parseTimestamp accepts epoch seconds, epoch milliseconds, or one of the
// date layouts providers are known to emit, and returns epoch seconds.
func parseTimestamp(v string) (int64, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return normalizeEpoch(n), true
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return normalizeEpoch(int64(f)), true
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.Unix(), true
		}
	}
	return 0, false
}

// Values past ~2286 in seconds are taken to be milliseconds.
func normalizeEpoch(n int64) int64 {
	if n > 9_999_999_999 {
		return n / 1000
	}
	return n
}

func getJSON(ctx context.Context, client *http.Client, platform Platform, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("building %s request: %w", platform, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUpstream, platform, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &statusError{platform: platform, status: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s market: %w", platform, err)
	}
	return nil
}
