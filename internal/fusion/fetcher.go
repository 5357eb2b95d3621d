package fusion

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/skyfuse/skyfuse/pkg/aeroapi"
)

// DetailSource provides on-demand supplemental details by callsign.
type DetailSource interface {
	FlightByCallsign(ctx context.Context, callsign string) (*aeroapi.FlightDetail, error)
}

// DetailCache is an optional read-through cache in front of the paid
// source. A nil cache disables caching.
type DetailCache interface {
	// Get returns a cached detail, or found=false on miss or expiry.
	Get(ctx context.Context, callsign string) (detail *aeroapi.FlightDetail, found bool, err error)

	// Put stores a freshly fetched detail.
	Put(ctx context.Context, callsign string, detail *aeroapi.FlightDetail) error
}

// FetcherConfig tunes the supplemental fetch loop.
type FetcherConfig struct {
	// Concurrency caps in-flight fetches
	Concurrency int

	// ScanInterval is how often the candidate list is re-examined
	ScanInterval time.Duration

	// FetchTimeout bounds one fetch
	FetchTimeout time.Duration

	// FailureCooldown is how long a failed aircraft is left alone
	FailureCooldown time.Duration

	// QuotaBackoff suspends all fetching after quota exhaustion
	QuotaBackoff time.Duration
}

// Fetcher enriches tracked aircraft with supplemental details. It scans
// the store for candidates on an interval, nearest first, and accepts
// priority requests from display surfaces. Fetches are deduplicated
// through the store's pending state, so an aircraft is never fetched
// twice concurrently.
//
// Quota exhaustion and rate limiting suspend the whole fetcher for a
// backoff period; per-aircraft failures only cool down that aircraft.
type Fetcher struct {
	source DetailSource
	cache  DetailCache
	store  *Store
	cfg    FetcherConfig
	logger *log.Logger

	requests chan string

	mu             sync.Mutex
	suspendedUntil time.Time
}

// NewFetcher creates a fetcher feeding store from source. cache may be
// nil.
func NewFetcher(source DetailSource, cache DetailCache, store *Store, cfg FetcherConfig, logger *log.Logger) *Fetcher {
	if logger == nil {
		logger = log.Default()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = 30 * time.Second
	}
	return &Fetcher{
		source:   source,
		cache:    cache,
		store:    store,
		cfg:      cfg,
		logger:   logger,
		requests: make(chan string, 64),
	}
}

// Request asks for priority enrichment of one aircraft, typically because
// a display surface is showing it. Non-blocking; drops the hint when the
// queue is full, since the periodic scan will pick the aircraft up anyway.
func (f *Fetcher) Request(icao24 string) {
	select {
	case f.requests <- icao24:
	default:
	}
}

// Suspended reports whether fetching is currently suspended and until when.
func (f *Fetcher) Suspended() (bool, time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	return now.Before(f.suspendedUntil), f.suspendedUntil
}

func (f *Fetcher) suspend(d time.Duration, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	until := time.Now().Add(d)
	if until.After(f.suspendedUntil) {
		f.suspendedUntil = until
		f.logger.Printf("Supplemental fetching suspended until %s: %s",
			until.Format(time.RFC3339), reason)
	}
}

// Run dispatches fetches until the context is cancelled. Authentication
// failures are fatal and returned; everything else is absorbed into
// per-aircraft or fetcher-wide backoff.
func (f *Fetcher) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.cfg.Concurrency)

	ticker := time.NewTicker(f.cfg.ScanInterval)
	defer ticker.Stop()

	// First scan fires immediately so a fresh store doesn't wait a full
	// interval for enrichment.
	f.dispatchCandidates(gctx, g)

loop:
	for {
		select {
		case <-gctx.Done():
			break loop
		case icao24 := <-f.requests:
			f.dispatchOne(gctx, g, icao24)
		case <-ticker.C:
			f.dispatchCandidates(gctx, g)
		}
	}

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return ctx.Err()
}

// dispatchCandidates schedules fetches for all eligible aircraft, nearest
// first, up to the worker limit.
func (f *Fetcher) dispatchCandidates(ctx context.Context, g *errgroup.Group) {
	if suspended, _ := f.Suspended(); suspended {
		return
	}
	for _, icao24 := range f.store.Candidates(time.Now().UTC(), f.cfg.FailureCooldown) {
		if !f.dispatchOne(ctx, g, icao24) {
			// Workers are saturated; the rest wait for the next scan.
			return
		}
	}
}

// dispatchOne schedules a single fetch if the aircraft is eligible and a
// worker slot is free. Returns false only when the pool is saturated.
func (f *Fetcher) dispatchOne(ctx context.Context, g *errgroup.Group, icao24 string) bool {
	if suspended, _ := f.Suspended(); suspended {
		return true
	}

	a, ok := f.store.Get(icao24)
	if !ok || a.Callsign == "" || a.FetchState == FetchFulfilled {
		return true
	}
	if a.FetchState == FetchFailed && time.Since(a.FetchFailedAt) < f.cfg.FailureCooldown {
		return true
	}

	if !f.store.MarkFetchPending(icao24) {
		// Already pending elsewhere.
		return true
	}

	callsign := a.Callsign
	scheduled := g.TryGo(func() error {
		return f.fetch(ctx, icao24, callsign)
	})
	if !scheduled {
		f.store.ClearFetchPending(icao24)
	}
	return scheduled
}

// fetch resolves one aircraft's supplemental details and merges the
// outcome. Only authentication failures propagate as errors.
func (f *Fetcher) fetch(ctx context.Context, icao24, callsign string) error {
	fetchCtx := ctx
	if f.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, f.cfg.FetchTimeout)
		defer cancel()
	}

	now := time.Now().UTC()

	if f.cache != nil {
		if detail, found, err := f.cache.Get(fetchCtx, callsign); err != nil {
			f.logger.Printf("Detail cache lookup for %s failed: %v", callsign, err)
		} else if found {
			if !f.store.MergeSupplemental(icao24, detailToSupplemental(detail), now) {
				f.logger.Printf("Dropping cached details for evicted aircraft %s", icao24)
			}
			return nil
		}
	}

	detail, err := f.source.FlightByCallsign(fetchCtx, callsign)
	if err != nil {
		return f.handleFetchError(icao24, callsign, err)
	}

	if f.cache != nil {
		if err := f.cache.Put(ctx, callsign, detail); err != nil {
			f.logger.Printf("Detail cache store for %s failed: %v", callsign, err)
		}
	}

	if !f.store.MergeSupplemental(icao24, detailToSupplemental(detail), time.Now().UTC()) {
		// Evicted while the fetch was in flight; the result is discarded.
		f.logger.Printf("Dropping fetched details for evicted aircraft %s", icao24)
	}

	return nil
}

func (f *Fetcher) handleFetchError(icao24, callsign string, err error) error {
	now := time.Now().UTC()

	var authErr *aeroapi.AuthError
	if errors.As(err, &authErr) {
		f.store.ClearFetchPending(icao24)
		return err
	}

	var quotaErr *aeroapi.QuotaError
	if errors.As(err, &quotaErr) {
		f.suspend(f.cfg.QuotaBackoff, quotaErr.Error())
		f.store.ClearFetchPending(icao24)
		return nil
	}

	var rateErr *aeroapi.RateLimitError
	if errors.As(err, &rateErr) {
		backoff := rateErr.RetryAfter
		if backoff <= 0 {
			backoff = f.cfg.QuotaBackoff
		}
		f.suspend(backoff, rateErr.Error())
		f.store.ClearFetchPending(icao24)
		return nil
	}

	if errors.Is(err, aeroapi.ErrNotFound) {
		f.logger.Printf("No supplemental details for %s (%s)", callsign, icao24)
	} else {
		f.logger.Printf("Supplemental fetch for %s (%s) failed: %v", callsign, icao24, err)
	}
	f.store.MarkFetchFailed(icao24, now)

	return nil
}

// detailToSupplemental converts the API record into the store's form.
func detailToSupplemental(d *aeroapi.FlightDetail) Supplemental {
	return Supplemental{
		Airline:            d.Airline,
		FlightNumber:       d.FlightNumber,
		AircraftType:       d.AircraftType,
		OriginAirport:      d.OriginAirport,
		DestinationAirport: d.DestinationAirport,
		ActualDeparture:    d.ActualDeparture,
		EstimatedArrival:   d.EstimatedArrival,
	}
}
