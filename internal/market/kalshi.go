package market

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

// KalshiAPIURL is the public trade API base used for market details.
const KalshiAPIURL = "https://api.elections.kalshi.com/trade-api/v2"

// KalshiMarket is the subset of a Kalshi market-detail response needed to
// decide settlement. Result is already YES/NO when settled.
type KalshiMarket struct {
	Ticker       string        `json:"ticker"`
	Status       string        `json:"status"`
	Result       *string       `json:"result"`
	ResolvedTime flexibleValue `json:"resolvedTime"`
}

// kalshiEnvelope accepts both a bare market object and the {"market": {...}}
// wrapper the v2 API returns.
type kalshiEnvelope struct {
	KalshiMarket
	Market *KalshiMarket `json:"market"`
}

// KalshiProvider reads resolutions from the Kalshi trade API.
type KalshiProvider struct {
	client  *http.Client
	baseURL string
}

func NewKalshiProvider(client *http.Client, baseURL string) *KalshiProvider {
	if baseURL == "" {
		baseURL = KalshiAPIURL
	}
	return &KalshiProvider{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

func (p *KalshiProvider) Platform() Platform { return Kalshi }

func (p *KalshiProvider) FetchResolution(ctx context.Context, marketID string) (*Resolution, error) {
	var env kalshiEnvelope
	endpoint := p.baseURL + "/markets/" + url.PathEscape(marketID)
	if err := getJSON(ctx, p.client, Kalshi, endpoint, &env); err != nil {
		return nil, err
	}
	m := env.KalshiMarket
	if env.Market != nil {
		m = *env.Market
	}
	return mapKalshi(marketID, m), nil
}

// mapKalshi considers the market resolved exactly when result is non-null.
// An empty string is how the API reports "not settled yet".
func mapKalshi(marketID string, m KalshiMarket) *Resolution {
	r := &Resolution{MarketID: marketID, Platform: Kalshi}
	if m.Result != nil {
		if v := strings.ToUpper(strings.TrimSpace(*m.Result)); v != "" {
			r.Resolved = true
			r.Outcome = stringPtr(v)
		}
	}
	if r.Resolved {
		if ts, ok := parseTimestamp(string(m.ResolvedTime)); ok {
			r.ResolvedAt = int64Ptr(ts)
		}
	}
	return r
}
