package market

import (
	"context"
	"fmt"
	"strings"

	"github.com/jonnyspicer/mango"
)

// manifoldClient is the slice of the mango client the provider needs.
type manifoldClient interface {
	GetMarketByID(id string) (*mango.FullMarket, error)
}

// ManifoldProvider reads resolutions through the mango Manifold client.
type ManifoldProvider struct {
	client manifoldClient
}

func NewManifoldProvider(client manifoldClient) *ManifoldProvider {
	return &ManifoldProvider{client: client}
}

func (p *ManifoldProvider) Platform() Platform { return Manifold }

// FetchResolution runs the blocking mango call in a goroutine so the fetch
// timeout still applies.
func (p *ManifoldProvider) FetchResolution(ctx context.Context, marketID string) (*Resolution, error) {
	type result struct {
		market *mango.FullMarket
		err    error
	}
	done := make(chan result, 1)
	go func() {
		m, err := p.client.GetMarketByID(marketID)
		done <- result{market: m, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: manifold: %v", ErrUpstream, ctx.Err())
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("%w: manifold: getting market %s: %v", ErrUpstream, marketID, r.err)
		}
		if r.market == nil {
			return nil, fmt.Errorf("%w: manifold: market %s not returned", ErrUpstream, marketID)
		}
		return mapManifold(marketID, *r.market), nil
	}
}

// mapManifold passes the market's resolution through; CANCEL and MKT stay
// raw and are later treated as ambiguous.
func mapManifold(marketID string, m mango.FullMarket) *Resolution {
	r := &Resolution{
		MarketID: marketID,
		Platform: Manifold,
		Resolved: m.IsResolved,
	}
	if v := strings.ToUpper(strings.TrimSpace(m.Resolution)); v != "" {
		r.Outcome = stringPtr(v)
	}
	if r.Resolved && m.CloseTime > 0 {
		r.ResolvedAt = int64Ptr(normalizeEpoch(m.CloseTime))
	}
	return r
}
