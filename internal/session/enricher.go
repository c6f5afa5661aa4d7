package session

import (
	"context"
	"strings"
)

// Enricher decorates a freshly created session before it is saved.
// Enrichment is best-effort: the manager drops any error and keeps the
// session it already has.
type Enricher interface {
	Enrich(ctx context.Context, s *Session) (*Session, error)
}

// Geolocator resolves an IP address to a human-readable location.
type Geolocator interface {
	Locate(ctx context.Context, ip string) (string, error)
}

// StubGeolocator is the default collaborator: it resolves nothing. A real
// provider is injected per deployment.
type StubGeolocator struct{}

func (StubGeolocator) Locate(context.Context, string) (string, error) {
	return "", nil
}

// GeoEnricher fills Location from the session's IP address.
type GeoEnricher struct {
	geo Geolocator
}

func NewGeoEnricher(geo Geolocator) *GeoEnricher {
	return &GeoEnricher{geo: geo}
}

func (e *GeoEnricher) Enrich(ctx context.Context, s *Session) (*Session, error) {
	if s.Location != "" || s.IPAddress == "" {
		return s, nil
	}
	loc, err := e.geo.Locate(ctx, s.IPAddress)
	if err != nil {
		return s, err
	}
	if loc != "" {
		s.Location = loc
	}
	return s, nil
}

// UserAgentEnricher derives a coarse device description from the raw
// User-Agent header when the caller supplied none.
type UserAgentEnricher struct{}

func (UserAgentEnricher) Enrich(_ context.Context, s *Session) (*Session, error) {
	if s.DeviceInfo != "" || s.UserAgent == "" {
		return s, nil
	}
	s.DeviceInfo = describeUserAgent(s.UserAgent)
	return s, nil
}

func describeUserAgent(ua string) string {
	lower := strings.ToLower(ua)

	var device string
	switch {
	case strings.Contains(lower, "ipad") || strings.Contains(lower, "tablet"):
		device = "Tablet"
	case strings.Contains(lower, "mobile") || strings.Contains(lower, "iphone") || strings.Contains(lower, "android"):
		device = "Mobile"
	default:
		device = "Desktop"
	}

	var browser string
	switch {
	case strings.Contains(lower, "edg/"):
		browser = "Edge"
	case strings.Contains(lower, "firefox"):
		browser = "Firefox"
	case strings.Contains(lower, "chrome"):
		browser = "Chrome"
	case strings.Contains(lower, "safari"):
		browser = "Safari"
	default:
		browser = "Unknown browser"
	}

	return device + " / " + browser
}
