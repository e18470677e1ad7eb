package market

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Platform identifies an upstream prediction-market provider.
type Platform string

const (
	Polymarket Platform = "polymarket"
	Kalshi     Platform = "kalshi"
	Manifold   Platform = "manifold"
)

// DefaultPlatform is queried when a signal carries no platform marker.
const DefaultPlatform = Polymarket

var (
	ErrUnknownPlatform  = errors.New("unknown platform")
	ErrUpstream         = errors.New("upstream request failed")
	ErrAmbiguousOutcome = errors.New("ambiguous market outcome")
)

// Platforms lists every supported provider.
func Platforms() []Platform {
	return []Platform{Polymarket, Kalshi, Manifold}
}

// ParsePlatform matches a platform name case-insensitively.
func ParsePlatform(s string) (Platform, error) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Platforms() {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPlatform, s)
}

// Resolution is the normalised settlement state of one upstream market.
type Resolution struct {
	MarketID   string   `json:"market_id"`
	Platform   Platform `json:"platform"`
	Resolved   bool     `json:"resolved"`
	Outcome    *string  `json:"outcome,omitempty"`     // "YES", "NO" or a raw provider value
	ResolvedAt *int64   `json:"resolved_at,omitempty"` // epoch seconds
}

// BinaryOutcome returns the outcome when it is exactly YES or NO.
func (r *Resolution) BinaryOutcome() (string, error) {
	if r == nil || r.Outcome == nil {
		return "", ErrAmbiguousOutcome
	}
	switch *r.Outcome {
	case "YES", "NO":
		return *r.Outcome, nil
	}
	return "", fmt.Errorf("%w: %q", ErrAmbiguousOutcome, *r.Outcome)
}

// clone returns a copy that shares no pointers with r.
func (r *Resolution) clone() *Resolution {
	c := *r
	if r.Outcome != nil {
		c.Outcome = stringPtr(*r.Outcome)
	}
	if r.ResolvedAt != nil {
		c.ResolvedAt = int64Ptr(*r.ResolvedAt)
	}
	return &c
}

// Provider fetches and maps a market's resolution from one platform.
type Provider interface {
	Platform() Platform
	FetchResolution(ctx context.Context, marketID string) (*Resolution, error)
}

// statusError carries a non-2xx upstream status so the retry policy can tell
// transient from permanent failures.
type statusError struct {
	platform Platform
	status   int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%s: unexpected status code: %d", e.platform, e.status)
}

func (e *statusError) Unwrap() error { return ErrUpstream }

func stringPtr(s string) *string { return &s }

func int64Ptr(v int64) *int64 { return &v }
