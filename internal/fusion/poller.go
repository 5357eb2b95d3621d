package fusion

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/skyfuse/skyfuse/pkg/geo"
	"github.com/skyfuse/skyfuse/pkg/opensky"
)

// CoarseSource provides the polled coarse picture of nearby traffic.
type CoarseSource interface {
	StatesInRadius(ctx context.Context, lat, lon, radiusKm float64) ([]opensky.StateVector, error)
}

// PollerConfig tunes the coarse polling loop.
type PollerConfig struct {
	// RadiusKm is the tracking radius around the store's home
	RadiusKm float64

	// Interval between poll cycles
	Interval time.Duration

	// Timeout bounds a single cycle's request
	Timeout time.Duration
}

// Poller drives the store from the coarse source at a fixed interval.
// Failed cycles are logged and skipped; the store keeps its last good
// picture until the next successful cycle.
type Poller struct {
	source CoarseSource
	store  *Store
	cfg    PollerConfig
	logger *log.Logger
}

// NewPoller creates a poller feeding store from source.
func NewPoller(source CoarseSource, store *Store, cfg PollerConfig, logger *log.Logger) *Poller {
	if logger == nil {
		logger = log.Default()
	}
	return &Poller{
		source: source,
		store:  store,
		cfg:    cfg,
		logger: logger,
	}
}

// Run polls until the context is cancelled. The first cycle fires
// immediately. Authentication failures are fatal and returned; anything
// else is logged and the loop continues.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		if err := p.PollOnce(ctx); err != nil {
			var authErr *opensky.AuthError
			if errors.As(err, &authErr) {
				return fmt.Errorf("coarse source rejected credentials: %w", err)
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.logger.Printf("Coarse poll failed, keeping previous picture: %v", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// PollOnce runs a single poll cycle: fetch, convert, merge.
func (p *Poller) PollOnce(ctx context.Context) error {
	cycleCtx := ctx
	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		cycleCtx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	home := p.store.Home()
	states, err := p.source.StatesInRadius(cycleCtx, home.Latitude, home.Longitude, p.cfg.RadiusKm)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	observed := make([]CoarseObservation, 0, len(states))
	for _, sv := range states {
		if obs, ok := convertState(sv, now); ok {
			observed = append(observed, obs)
		}
	}

	p.store.MergeCoarse(observed, now)
	p.logger.Printf("Coarse cycle merged %d aircraft (%d raw states)", len(observed), len(states))

	return nil
}

// convertState turns a wire state vector into a store observation.
// States without a position are unusable and rejected.
func convertState(sv opensky.StateVector, now time.Time) (CoarseObservation, bool) {
	if sv.ICAO24 == "" || sv.Latitude == nil || sv.Longitude == nil {
		return CoarseObservation{}, false
	}

	pos := geo.Position{
		Latitude:    *sv.Latitude,
		Longitude:   *sv.Longitude,
		GroundSpeed: sv.Velocity,
		Heading:     sv.TrueTrack,
		Timestamp:   stateTimestamp(sv, now),
	}

	// Geometric altitude is preferred; barometric is the fallback.
	switch {
	case sv.GeoAltitude != nil:
		pos.Altitude = sv.GeoAltitude
	case sv.BaroAltitude != nil:
		pos.Altitude = sv.BaroAltitude
	}

	return CoarseObservation{
		ICAO24:       sv.ICAO24,
		Callsign:     sv.Callsign,
		Position:     pos,
		VerticalRate: sv.VerticalRate,
		OnGround:     sv.OnGround,
	}, true
}

// stateTimestamp picks the best available sample time: the position time,
// then last contact, then the cycle time.
func stateTimestamp(sv opensky.StateVector, now time.Time) time.Time {
	if sv.TimePosition != nil && *sv.TimePosition > 0 {
		return time.Unix(*sv.TimePosition, 0).UTC()
	}
	if sv.LastContact > 0 {
		return time.Unix(sv.LastContact, 0).UTC()
	}
	return now
}
