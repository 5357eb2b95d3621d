// Package aeroapi provides a client for the FlightAware AeroAPI v4, the
// paid supplemental data source. Each call costs real quota, so the client
// rate-limits itself and surfaces quota exhaustion as a typed error the
// caller can back off on.
//
// API Documentation: https://www.flightaware.com/aeroapi/portal/documentation
// Rate Limits: Free tier allows 500 requests/month, paid tiers offer higher limits.
package aeroapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

const (
	// BaseURL is the FlightAware AeroAPI v4 base URL
	BaseURL = "https://aeroapi.flightaware.com/aeroapi"

	// DefaultTimeout for API requests
	DefaultTimeout = 10 * time.Second
)

// ErrNotFound is returned when the API knows nothing about a callsign.
// Not-found is a stable outcome, not a transient failure.
var ErrNotFound = errors.New("aeroapi: no flight found for ident")

// Client represents a FlightAware AeroAPI client.
type Client struct {
	apiKey      string
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	baseURL     string
}

// Config contains configuration for the AeroAPI client.
type Config struct {
	APIKey          string
	RequestsPerHour int
	Timeout         time.Duration

	// BaseURL overrides the API endpoint, mainly for testing
	BaseURL string
}

// NewClient creates a new AeroAPI client.
//
// The client includes:
// - Rate limiting to prevent exceeding API quotas
// - Configurable timeout for requests
func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	if cfg.RequestsPerHour == 0 {
		// Default: 500 requests/month ≈ 0.7 requests/hour, use 1 req/hour as safe default
		cfg.RequestsPerHour = 1
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = BaseURL
	}

	// Convert requests per hour to rate limiter (allows burst of 1)
	requestsPerSecond := float64(cfg.RequestsPerHour) / 3600.0
	limiter := rate.NewLimiter(rate.Limit(requestsPerSecond), 1)

	return &Client{
		apiKey: cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		rateLimiter: limiter,
		baseURL:     cfg.BaseURL,
	}
}

// FlightDetail is the supplemental record for one flight. Everything in it
// comes from this API and never from the coarse source.
type FlightDetail struct {
	// Airline is the operating carrier's ICAO code (e.g., "AAL")
	Airline string

	// FlightNumber is the carrier's flight number (e.g., "123")
	FlightNumber string

	// AircraftType is the ICAO type designator (e.g., "B738")
	AircraftType string

	// OriginAirport is the departure airport's ICAO code (e.g., "KJFK")
	OriginAirport string

	// DestinationAirport is the arrival airport's ICAO code
	DestinationAirport string

	// ActualDeparture is the takeoff time, nil if not yet departed
	ActualDeparture *time.Time

	// EstimatedArrival is the projected gate arrival, nil when unknown
	EstimatedArrival *time.Time
}

// apiFlight mirrors one entry of the /flights/{ident} response.
type apiFlight struct {
	Ident        string `json:"ident"`
	Operator     string `json:"operator"`
	FlightNumber string `json:"flight_number"`
	AircraftType string `json:"aircraft_type"`
	Status       string `json:"status"`

	Origin struct {
		Code string `json:"code_icao"`
	} `json:"origin"`

	Destination struct {
		Code string `json:"code_icao"`
	} `json:"destination"`

	ActualOff   *time.Time `json:"actual_off"`
	EstimatedIn *time.Time `json:"estimated_in"`
}

// FlightByCallsign retrieves supplemental details for a callsign.
//
// The API returns several flights per ident (past, active, scheduled);
// an airborne tracker wants the active leg, so a flight with status
// "En Route" is preferred and the first entry is the fallback.
//
// Returns ErrNotFound when the ident is unknown, *QuotaError when the
// account's quota is exhausted, *RateLimitError on HTTP 429, and
// *AuthError on 401/403.
func (c *Client) FlightByCallsign(ctx context.Context, callsign string) (*FlightDetail, error) {
	if callsign == "" {
		return nil, fmt.Errorf("aeroapi: empty callsign")
	}

	// Wait for rate limiter
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	reqURL := fmt.Sprintf("%s/flights/%s", c.baseURL, url.PathEscape(callsign))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("x-apikey", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		// fall through to parsing
	case http.StatusNotFound:
		return nil, ErrNotFound
	case http.StatusPaymentRequired:
		return nil, &QuotaError{Message: string(body)}
	case http.StatusTooManyRequests:
		return nil, &RateLimitError{
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header),
		}
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, &AuthError{StatusCode: resp.StatusCode}
	default:
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
	}

	var response struct {
		Flights []apiFlight `json:"flights"`
	}

	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	if len(response.Flights) == 0 {
		return nil, ErrNotFound
	}

	flight := response.Flights[0]
	for _, f := range response.Flights {
		if f.Status == "En Route" {
			flight = f
			break
		}
	}

	return &FlightDetail{
		Airline:            flight.Operator,
		FlightNumber:       flight.FlightNumber,
		AircraftType:       flight.AircraftType,
		OriginAirport:      flight.Origin.Code,
		DestinationAirport: flight.Destination.Code,
		ActualDeparture:    flight.ActualOff,
		EstimatedArrival:   flight.EstimatedIn,
	}, nil
}
