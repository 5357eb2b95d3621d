package fusion

import (
	"sort"
	"sync"
	"time"

	"github.com/skyfuse/skyfuse/pkg/geo"
)

// CoarseObservation is one aircraft's state from a single poll cycle,
// already converted from the wire format.
type CoarseObservation struct {
	ICAO24       string
	Callsign     string
	Position     geo.Position
	VerticalRate *float64
	OnGround     bool
}

// SnapshotEntry is one aircraft in a render-ready snapshot. The embedded
// aircraft's position is extrapolated to the snapshot time.
type SnapshotEntry struct {
	*Aircraft

	// RangeMeters is the extrapolated great-circle distance from home
	RangeMeters float64

	// BearingFromHome in degrees, nil if the aircraft sits exactly on home
	BearingFromHome *float64

	// Motion is the approach/departure classification
	Motion geo.Motion
}

// Store is the fusion state: the authoritative set of tracked aircraft.
// One coarse poll cycle replaces the tracked set wholesale; supplemental
// details survive across cycles and are only dropped with their aircraft.
//
// All methods are safe for concurrent use.
type Store struct {
	mu                sync.RWMutex
	home              geo.Position
	approachTolerance float64
	byKey             map[string]*Aircraft
}

// NewStore creates an empty store centered on home.
func NewStore(home geo.Position, approachToleranceDeg float64) *Store {
	return &Store{
		home:              home,
		approachTolerance: approachToleranceDeg,
		byKey:             make(map[string]*Aircraft),
	}
}

// Home returns the observation point.
func (s *Store) Home() geo.Position {
	return s.home
}

// Len returns the number of tracked aircraft.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byKey)
}

// Get returns a copy of one aircraft.
func (s *Store) Get(icao24 string) (*Aircraft, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.byKey[icao24]
	if !ok {
		return nil, false
	}
	return a.clone(), true
}

// MergeCoarse applies one successful poll cycle atomically. Aircraft in
// the cycle are inserted or updated; aircraft absent from it are evicted.
// Updates replace only coarse fields, so supplemental details and fetch
// state carry across cycles. Observations with a duplicate key keep the
// first occurrence.
//
// Callers must not invoke this for failed cycles; a failed poll leaves
// the store untouched.
func (s *Store) MergeCoarse(observed []CoarseObservation, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool, len(observed))

	for _, obs := range observed {
		if obs.ICAO24 == "" || seen[obs.ICAO24] {
			continue
		}
		seen[obs.ICAO24] = true

		a, ok := s.byKey[obs.ICAO24]
		if !ok {
			a = &Aircraft{ICAO24: obs.ICAO24}
			s.byKey[obs.ICAO24] = a
		}

		a.Position = obs.Position
		a.VerticalRate = obs.VerticalRate
		a.OnGround = obs.OnGround
		a.LastCoarseUpdate = now
		if obs.Callsign != "" {
			a.Callsign = obs.Callsign
		}
	}

	for key := range s.byKey {
		if !seen[key] {
			delete(s.byKey, key)
		}
	}
}

// MergeSupplemental attaches fetched details to an aircraft and marks it
// fulfilled. Returns false without side effects when the aircraft has
// been evicted; a late result for a departed aircraft is simply dropped.
func (s *Store) MergeSupplemental(icao24 string, sup Supplemental, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byKey[icao24]
	if !ok {
		return false
	}

	supCopy := sup
	a.Supplemental = &supCopy
	a.FetchState = FetchFulfilled
	a.FetchFailedAt = time.Time{}
	ts := now
	a.LastSupplementalUpdate = &ts

	return true
}

// MarkFetchPending transitions an aircraft into the pending state.
// Returns false when the aircraft is gone or already pending, which is
// how concurrent fetchers deduplicate work.
func (s *Store) MarkFetchPending(icao24 string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byKey[icao24]
	if !ok || a.FetchState == FetchPending {
		return false
	}
	a.FetchState = FetchPending
	return true
}

// MarkFetchFailed records a failed fetch, starting the retry cooldown.
// A no-op for evicted aircraft.
func (s *Store) MarkFetchFailed(icao24 string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byKey[icao24]
	if !ok {
		return
	}
	a.FetchState = FetchFailed
	a.FetchFailedAt = now
}

// ClearFetchPending returns an aircraft to its pre-fetch state without
// recording a failure. Used when a fetch is abandoned rather than failed,
// such as during shutdown.
func (s *Store) ClearFetchPending(icao24 string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byKey[icao24]
	if !ok || a.FetchState != FetchPending {
		return
	}
	if a.Supplemental != nil {
		a.FetchState = FetchFulfilled
	} else {
		a.FetchState = FetchNotRequested
	}
}

// Candidates returns the aircraft eligible for a supplemental fetch,
// closest to home first. Eligible means: has a callsign, never fetched,
// or failed longer than cooldown ago. Pending and fulfilled aircraft are
// excluded.
func (s *Store) Candidates(now time.Time, cooldown time.Duration) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type candidate struct {
		icao24 string
		dist   float64
	}

	var out []candidate
	for _, a := range s.byKey {
		if a.Callsign == "" {
			continue
		}
		switch a.FetchState {
		case FetchNotRequested:
			// eligible
		case FetchFailed:
			if now.Sub(a.FetchFailedAt) < cooldown {
				continue
			}
		default:
			continue
		}
		out = append(out, candidate{a.ICAO24, a.Position.DistanceTo(s.home)})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].dist != out[j].dist {
			return out[i].dist < out[j].dist
		}
		return out[i].icao24 < out[j].icao24
	})

	keys := make([]string, len(out))
	for i, c := range out {
		keys[i] = c.icao24
	}
	return keys
}

// Snapshot returns every tracked aircraft with its position extrapolated
// to now, sorted by distance from home, nearest first. Aircraft whose
// sample is somehow newer than now keep their measured position.
func (s *Store) Snapshot(now time.Time) []SnapshotEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]SnapshotEntry, 0, len(s.byKey))
	for _, a := range s.byKey {
		c := a.clone()

		if elapsed := now.Sub(c.Position.Timestamp); elapsed > 0 {
			if extrapolated, err := c.Position.Extrapolate(elapsed); err == nil {
				c.Position = extrapolated
			}
		}

		entry := SnapshotEntry{
			Aircraft:    c,
			RangeMeters: c.Position.DistanceTo(s.home),
			Motion:      c.Position.ClassifyMotion(s.home, s.approachTolerance),
		}
		if bearing, err := s.home.BearingTo(c.Position); err == nil {
			entry.BearingFromHome = &bearing
		}

		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].RangeMeters != entries[j].RangeMeters {
			return entries[i].RangeMeters < entries[j].RangeMeters
		}
		return entries[i].ICAO24 < entries[j].ICAO24
	})

	return entries
}
