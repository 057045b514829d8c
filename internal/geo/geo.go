// Package geo resolves postcodes to coordinates and computes straight-line
// distances between properties.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64 `json:"latitude"`
	Lng float64 `json:"longitude"`
}

const earthRadiusMiles = 3958.8

// DistanceMiles is the haversine great-circle distance between two points.
func DistanceMiles(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMiles * math.Asin(math.Sqrt(h))
}

// Geocoder looks up postcode coordinates against a postcodes.io-style API,
// caching responses and rate limiting outbound requests.
type Geocoder struct {
	baseURL string
	client  *http.Client
	cache   *gocache.Cache
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewGeocoder creates a Geocoder. requestsPerSecond <= 0 disables limiting.
func NewGeocoder(baseURL string, timeout time.Duration, requestsPerSecond float64, cacheTTL time.Duration, logger *zap.Logger) *Geocoder {
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}
	if cacheTTL <= 0 {
		cacheTTL = 24 * time.Hour
	}
	return &Geocoder{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		cache:   gocache.New(cacheTTL, 2*cacheTTL),
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}
}

type lookupResponse struct {
	Status int    `json:"status"`
	Error  string `json:"error"`
	Result *Point `json:"result"`
}

// Lookup resolves a postcode to coordinates. Results, including the
// canonical no-such-postcode failure, are cached for the configured TTL.
func (g *Geocoder) Lookup(ctx context.Context, postcode string) (Point, error) {
	key := strings.ToUpper(strings.ReplaceAll(postcode, " ", ""))
	if key == "" {
		return Point{}, fmt.Errorf("empty postcode")
	}
	if cached, ok := g.cache.Get(key); ok {
		if p, isPoint := cached.(Point); isPoint {
			return p, nil
		}
		return Point{}, fmt.Errorf("postcode %s not found", postcode)
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return Point{}, err
	}

	endpoint := g.baseURL + "/postcodes/" + url.PathEscape(key)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Point{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return Point{}, fmt.Errorf("geocode %s: %w", postcode, err)
	}
	defer resp.Body.Close()

	var body lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Point{}, fmt.Errorf("decode geocode response: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound || body.Result == nil {
		g.cache.Set(key, "not_found", gocache.DefaultExpiration)
		return Point{}, fmt.Errorf("postcode %s not found", postcode)
	}
	if resp.StatusCode != http.StatusOK {
		return Point{}, fmt.Errorf("geocode %s: status %d", postcode, resp.StatusCode)
	}

	g.logger.Debug("geocoded postcode", zap.String("postcode", key),
		zap.Float64("lat", body.Result.Lat), zap.Float64("lng", body.Result.Lng))
	g.cache.Set(key, *body.Result, gocache.DefaultExpiration)
	return *body.Result, nil
}
