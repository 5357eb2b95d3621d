// Package fusion holds the tracker's core state: the store that merges
// coarse poll cycles with supplemental details, the poller that feeds it,
// and the fetcher that enriches it.
//
// Identity is the ICAO 24-bit transponder address throughout. Callsigns
// route supplemental lookups but never key the store.
package fusion

import (
	"time"

	"github.com/skyfuse/skyfuse/pkg/geo"
)

// FetchState tracks the supplemental enrichment lifecycle of one aircraft.
type FetchState int

const (
	// FetchNotRequested means no supplemental fetch has been attempted
	FetchNotRequested FetchState = iota

	// FetchPending means a fetch is in flight
	FetchPending

	// FetchFulfilled means supplemental details are attached
	FetchFulfilled

	// FetchFailed means the last fetch failed; retry after a cooldown
	FetchFailed
)

func (s FetchState) String() string {
	switch s {
	case FetchPending:
		return "pending"
	case FetchFulfilled:
		return "fulfilled"
	case FetchFailed:
		return "failed"
	default:
		return "not_requested"
	}
}

// Supplemental is the enrichment record attached to an aircraft. Every
// field originates from the paid source; none of it is ever synthesized
// from coarse data.
type Supplemental struct {
	Airline            string
	FlightNumber       string
	AircraftType       string
	OriginAirport      string
	DestinationAirport string
	ActualDeparture    *time.Time
	EstimatedArrival   *time.Time
}

// Aircraft is one tracked aircraft: the latest coarse state plus whatever
// supplemental details have been fetched for it.
type Aircraft struct {
	// ICAO24 is the transponder address, the store key
	ICAO24 string

	// Callsign may be empty; without it no supplemental fetch is possible
	Callsign string

	// Position is the latest coarse kinematic sample
	Position geo.Position

	// VerticalRate in m/s, nil when unknown
	VerticalRate *float64

	// OnGround reports a surface position
	OnGround bool

	// Supplemental is nil until a fetch fulfills
	Supplemental *Supplemental

	// LastCoarseUpdate is when the coarse source last reported this aircraft
	LastCoarseUpdate time.Time

	// LastSupplementalUpdate is when enrichment last succeeded, nil if never
	LastSupplementalUpdate *time.Time

	// FetchState is the enrichment lifecycle state
	FetchState FetchState

	// FetchFailedAt anchors the retry cooldown; zero unless FetchFailed
	FetchFailedAt time.Time
}

// DisplayName prefers the airline flight identity, falls back to the raw
// callsign, then the transponder address.
func (a *Aircraft) DisplayName() string {
	if a.Supplemental != nil && a.Supplemental.Airline != "" && a.Supplemental.FlightNumber != "" {
		return a.Supplemental.Airline + a.Supplemental.FlightNumber
	}
	if a.Callsign != "" {
		return a.Callsign
	}
	return a.ICAO24
}

// clone returns a deep copy safe to hand outside the store's lock.
func (a *Aircraft) clone() *Aircraft {
	out := *a
	if a.VerticalRate != nil {
		v := *a.VerticalRate
		out.VerticalRate = &v
	}
	if a.Supplemental != nil {
		s := *a.Supplemental
		out.Supplemental = &s
	}
	if a.LastSupplementalUpdate != nil {
		t := *a.LastSupplementalUpdate
		out.LastSupplementalUpdate = &t
	}
	return &out
}
