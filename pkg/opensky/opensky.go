// Package opensky provides a client for the OpenSky Network REST API,
// the free coarse data source for nearby aircraft state vectors.
//
// API Documentation: https://openskynetwork.github.io/opensky-api/rest.html
// Rate Limits: anonymous clients get 10s resolution and aggressive 429s;
// OAuth2 client-credentials get 5s resolution.
package opensky

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the OpenSky REST API root
	DefaultBaseURL = "https://opensky-network.org/api"

	// DefaultTokenURL is the OpenSky OAuth2 token endpoint
	DefaultTokenURL = "https://auth.opensky-network.org/auth/realms/opensky-network/protocol/openid-connect/token"

	// DefaultTimeout for API requests
	DefaultTimeout = 15 * time.Second

	// tokenRefreshBuffer refreshes the token before its actual expiry
	tokenRefreshBuffer = 2 * time.Minute
)

// StateVector is one aircraft state from /states/all. All fields except
// ICAO24 and LastContact are nullable in the upstream data.
type StateVector struct {
	// ICAO24 is the unique 24-bit transponder address, lowercase hex
	ICAO24 string

	// Callsign is the flight identifier, right-padded upstream (trimmed here)
	Callsign string

	// OriginCountry is the country of registration
	OriginCountry string

	// TimePosition is the Unix time of the last position report
	TimePosition *int64

	// LastContact is the Unix time of the last received message
	LastContact int64

	// Longitude in decimal degrees
	Longitude *float64

	// Latitude in decimal degrees
	Latitude *float64

	// BaroAltitude is barometric altitude in meters
	BaroAltitude *float64

	// GeoAltitude is geometric (GPS) altitude in meters
	GeoAltitude *float64

	// OnGround reports surface positions
	OnGround bool

	// Velocity is ground speed in m/s
	Velocity *float64

	// TrueTrack is ground track in degrees (0-360, north = 0)
	TrueTrack *float64

	// VerticalRate in m/s (positive = climbing)
	VerticalRate *float64
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithBaseURL overrides the API endpoint (useful for testing).
func WithBaseURL(u string) ClientOption {
	return func(c *Client) { c.baseURL = u }
}

// WithTokenURL overrides the OAuth2 token endpoint (useful for testing).
func WithTokenURL(u string) ClientOption {
	return func(c *Client) {
		if c.tokens != nil {
			c.tokens.tokenURL = u
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithClientCredentials enables the OAuth2 client-credentials flow.
// Apply before WithTokenURL.
func WithClientCredentials(clientID, clientSecret string) ClientOption {
	return func(c *Client) {
		c.tokens = newTokenManager(clientID, clientSecret)
	}
}

// Client fetches live state vectors from the OpenSky Network.
// A nil token manager means anonymous access.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     *tokenManager
}

// NewClient creates an OpenSky API client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BoundingBox converts a center point and radius into the lat/lon box the
// /states/all endpoint expects. The longitude delta widens with latitude;
// near the poles the box degenerates and the full longitude range is used.
func BoundingBox(lat, lon, radiusKm float64) (minLat, maxLat, minLon, maxLon float64) {
	const earthRadiusKm = 6371.0

	latDelta := radiusKm / earthRadiusKm * (180.0 / math.Pi)

	cosLat := math.Cos(lat * math.Pi / 180.0)
	var lonDelta float64
	if cosLat > 1e-6 {
		lonDelta = radiusKm / (earthRadiusKm * cosLat) * (180.0 / math.Pi)
	} else {
		lonDelta = 180.0
	}

	return lat - latDelta, lat + latDelta, lon - lonDelta, lon + lonDelta
}

// openSkyResponse mirrors the JSON shape returned by /states/all.
// States are positional arrays, not objects.
type openSkyResponse struct {
	Time   int64           `json:"time"`
	States [][]interface{} `json:"states"`
}

// StatesInRadius retrieves all current state vectors inside a bounding box
// derived from the given center and radius. States without a position are
// dropped. Returns *RateLimitError on HTTP 429 and *AuthError on 401/403.
func (c *Client) StatesInRadius(ctx context.Context, lat, lon, radiusKm float64) ([]StateVector, error) {
	minLat, maxLat, minLon, maxLon := BoundingBox(lat, lon, radiusKm)

	q := url.Values{}
	q.Set("lamin", fmt.Sprintf("%.4f", minLat))
	q.Set("lamax", fmt.Sprintf("%.4f", maxLat))
	q.Set("lomin", fmt.Sprintf("%.4f", minLon))
	q.Set("lomax", fmt.Sprintf("%.4f", maxLon))

	reqURL := fmt.Sprintf("%s/states/all?%s", c.baseURL, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	if c.tokens != nil {
		token, err := c.tokens.token(ctx)
		if err != nil {
			return nil, fmt.Errorf("obtaining access token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch states: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &RateLimitError{
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header),
		}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &AuthError{StatusCode: resp.StatusCode}
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
	}

	var raw openSkyResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	return parseStates(raw), nil
}

// parseStates converts the positional arrays into StateVectors.
// Field positions per the OpenSky REST documentation.
func parseStates(raw openSkyResponse) []StateVector {
	states := make([]StateVector, 0, len(raw.States))
	for _, s := range raw.States {
		if len(s) < 12 {
			continue
		}

		sv := StateVector{
			ICAO24:        stringVal(s[0]),
			Callsign:      strings.TrimSpace(stringVal(s[1])),
			OriginCountry: stringVal(s[2]),
			TimePosition:  int64Val(s[3]),
			Longitude:     floatVal(s[5]),
			Latitude:      floatVal(s[6]),
			BaroAltitude:  floatVal(s[7]),
			OnGround:      boolVal(s[8]),
			Velocity:      floatVal(s[9]),
			TrueTrack:     floatVal(s[10]),
			VerticalRate:  floatVal(s[11]),
		}
		if lc := int64Val(s[4]); lc != nil {
			sv.LastContact = *lc
		}
		if len(s) > 13 {
			sv.GeoAltitude = floatVal(s[13])
		}

		// A state without a position is useless to the tracker.
		if sv.Latitude == nil || sv.Longitude == nil {
			continue
		}

		states = append(states, sv)
	}
	return states
}

func stringVal(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func floatVal(v interface{}) *float64 {
	if f, ok := v.(float64); ok {
		return &f
	}
	return nil
}

func int64Val(v interface{}) *int64 {
	if f, ok := v.(float64); ok {
		i := int64(f)
		return &i
	}
	return nil
}

func boolVal(v interface{}) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	return false
}
