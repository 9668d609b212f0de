// Package geocode resolves city names to coordinates.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/oggyb/matchmaker/internal/config"
	"github.com/oggyb/matchmaker/internal/geo"
)

// ErrNotFound is returned when the provider knows no place by that name.
var ErrNotFound = errors.New("location not found")

// Location is a resolved place.
type Location struct {
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	DisplayName string  `json:"display_name"`
}

func (l Location) Point() geo.Point {
	return geo.Point{Lat: l.Lat, Lon: l.Lon}
}

// Geocoder turns a free-form city name into a Location.
type Geocoder interface {
	Resolve(ctx context.Context, city string) (Location, error)
}

// Cache is the subset of the Redis cache the client needs.
type Cache interface {
	GetJSON(ctx context.Context, key string, dst any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
}

// Nominatim talks to an OpenStreetMap Nominatim search endpoint.
type Nominatim struct {
	baseURL   string
	userAgent string
	client    *http.Client
	cache     Cache
	cacheTTL  time.Duration
	log       *slog.Logger
}

type Option func(*Nominatim)

// WithCache stores successful lookups for ttl.
func WithCache(c Cache, ttl time.Duration) Option {
	return func(n *Nominatim) {
		n.cache = c
		n.cacheTTL = ttl
	}
}

func WithHTTPClient(c *http.Client) Option {
	return func(n *Nominatim) { n.client = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(n *Nominatim) { n.log = l }
}

func NewNominatim(baseURL, userAgent string, timeout time.Duration, opts ...Option) *Nominatim {
	n := &Nominatim{
		baseURL:   baseURL,
		userAgent: userAgent,
		client:    &http.Client{Timeout: timeout},
		log:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// FromConfig returns nil when geocoding is disabled.
func FromConfig(cfg *config.Config, opts ...Option) Geocoder {
	if cfg.Geocoder.Disabled {
		return nil
	}
	return NewNominatim(cfg.Geocoder.BaseURL, cfg.Geocoder.UserAgent, cfg.Geocoder.Timeout, opts...)
}

type nominatimPlace struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

func (n *Nominatim) Resolve(ctx context.Context, city string) (Location, error) {
	city = strings.TrimSpace(city)
	if city == "" {
		return Location{}, ErrNotFound
	}

	key := "geocode:" + strings.ToLower(city)
	if n.cache != nil {
		var loc Location
		found, err := n.cache.GetJSON(ctx, key, &loc)
		if err != nil {
			n.log.Warn("geocode cache read failed", "city", city, "error", err)
		} else if found {
			return loc, nil
		}
	}

	loc, err := n.lookup(ctx, city)
	if err != nil {
		return Location{}, err
	}

	if n.cache != nil {
		if err := n.cache.SetJSON(ctx, key, loc, n.cacheTTL); err != nil {
			n.log.Warn("geocode cache write failed", "city", city, "error", err)
		}
	}
	return loc, nil
}

func (n *Nominatim) lookup(ctx context.Context, city string) (Location, error) {
	q := url.Values{}
	q.Set("q", city)
	q.Set("format", "json")
	q.Set("limit", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return Location{}, fmt.Errorf("build geocode request: %w", err)
	}
	req.Header.Set("User-Agent", n.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return Location{}, fmt.Errorf("geocode %q: %w", city, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Location{}, fmt.Errorf("geocode %q: unexpected status %d", city, resp.StatusCode)
	}

	var places []nominatimPlace
	if err := json.NewDecoder(resp.Body).Decode(&places); err != nil {
		return Location{}, fmt.Errorf("decode geocode response: %w", err)
	}
	if len(places) == 0 {
		return Location{}, ErrNotFound
	}

	lat, err := strconv.ParseFloat(places[0].Lat, 64)
	if err != nil {
		return Location{}, fmt.Errorf("bad latitude %q: %w", places[0].Lat, err)
	}
	lon, err := strconv.ParseFloat(places[0].Lon, 64)
	if err != nil {
		return Location{}, fmt.Errorf("bad longitude %q: %w", places[0].Lon, err)
	}

	n.log.Debug("geocoded city", "city", city, "lat", lat, "lon", lon)
	return Location{Lat: lat, Lon: lon, DisplayName: places[0].DisplayName}, nil
}
