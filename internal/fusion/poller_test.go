package fusion

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/skyfuse/skyfuse/pkg/opensky"
)

type fakeCoarseSource struct {
	mu     sync.Mutex
	calls  int
	states []opensky.StateVector
	err    error
}

func (f *fakeCoarseSource) StatesInRadius(ctx context.Context, lat, lon, radiusKm float64) ([]opensky.StateVector, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.states, nil
}

func (f *fakeCoarseSource) set(states []opensky.StateVector, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = states
	f.err = err
}

func (f *fakeCoarseSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func testPollerConfig() PollerConfig {
	return PollerConfig{
		RadiusKm: 25.0,
		Interval: 10 * time.Millisecond,
		Timeout:  time.Second,
	}
}

func airborneState(icao24, callsign string, lat, lon float64) opensky.StateVector {
	now := time.Now().UTC().Unix()
	return opensky.StateVector{
		ICAO24:       icao24,
		Callsign:     callsign,
		TimePosition: &now,
		LastContact:  now,
		Latitude:     floatPtr(lat),
		Longitude:    floatPtr(lon),
		Velocity:     floatPtr(210.0),
		TrueTrack:    floatPtr(270.0),
		GeoAltitude:  floatPtr(10500.0),
		BaroAltitude: floatPtr(10300.0),
	}
}

// TestPollOnce verifies a cycle fetches, converts, and merges.
func TestPollOnce(t *testing.T) {
	source := &fakeCoarseSource{}
	source.set([]opensky.StateVector{
		airborneState("abc123", "AAL123", 40.5, -74.0),
		airborneState("def456", "", 40.2, -73.8),
	}, nil)

	store := NewStore(testHome(), 30)
	poller := NewPoller(source, store, testPollerConfig(), quietLogger())

	if err := poller.PollOnce(context.Background()); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if store.Len() != 2 {
		t.Fatalf("Expected 2 tracked aircraft, got %d", store.Len())
	}

	a, _ := store.Get("abc123")
	if a.Position.Altitude == nil || *a.Position.Altitude != 10500.0 {
		t.Errorf("Expected geometric altitude 10500, got %v", a.Position.Altitude)
	}
	if a.Position.GroundSpeed == nil || *a.Position.GroundSpeed != 210.0 {
		t.Errorf("Expected ground speed 210, got %v", a.Position.GroundSpeed)
	}
}

// TestPollOnceFailureLeavesStore verifies a failed cycle keeps the
// previous picture intact.
func TestPollOnceFailureLeavesStore(t *testing.T) {
	source := &fakeCoarseSource{}
	source.set([]opensky.StateVector{airborneState("abc123", "AAL123", 40.5, -74.0)}, nil)

	store := NewStore(testHome(), 30)
	poller := NewPoller(source, store, testPollerConfig(), quietLogger())

	if err := poller.PollOnce(context.Background()); err != nil {
		t.Fatalf("Seed cycle failed: %v", err)
	}

	source.set(nil, errors.New("upstream flaked"))
	if err := poller.PollOnce(context.Background()); err == nil {
		t.Fatal("Expected an error from the failed cycle")
	}

	if store.Len() != 1 {
		t.Errorf("Failed cycle altered the store: %d aircraft", store.Len())
	}
	if _, ok := store.Get("abc123"); !ok {
		t.Error("Failed cycle evicted a tracked aircraft")
	}
}

// TestRunPollsOnInterval verifies the loop fires immediately and then on
// the ticker, and stops on cancellation.
func TestRunPollsOnInterval(t *testing.T) {
	source := &fakeCoarseSource{}
	store := NewStore(testHome(), 30)
	poller := NewPoller(source, store, testPollerConfig(), quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- poller.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for source.callCount() < 3 {
		select {
		case <-deadline:
			t.Fatalf("Expected at least 3 cycles, got %d", source.callCount())
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}

// TestRunAuthErrorFatal verifies rejected credentials stop the loop.
func TestRunAuthErrorFatal(t *testing.T) {
	source := &fakeCoarseSource{}
	source.set(nil, &opensky.AuthError{StatusCode: 401})

	poller := NewPoller(source, NewStore(testHome(), 30), testPollerConfig(), quietLogger())

	done := make(chan error, 1)
	go func() { done <- poller.Run(context.Background()) }()

	select {
	case err := <-done:
		var authErr *opensky.AuthError
		if !errors.As(err, &authErr) {
			t.Errorf("Expected an AuthError, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on an authentication failure")
	}
}

// TestConvertState covers the conversion edge cases.
func TestConvertState(t *testing.T) {
	now := time.Now().UTC()

	t.Run("No position rejected", func(t *testing.T) {
		sv := airborneState("abc123", "AAL123", 40.5, -74.0)
		sv.Latitude = nil
		if _, ok := convertState(sv, now); ok {
			t.Error("State without a position should be rejected")
		}
	})

	t.Run("Barometric altitude fallback", func(t *testing.T) {
		sv := airborneState("abc123", "AAL123", 40.5, -74.0)
		sv.GeoAltitude = nil
		obs, ok := convertState(sv, now)
		if !ok {
			t.Fatal("Expected conversion to succeed")
		}
		if obs.Position.Altitude == nil || *obs.Position.Altitude != 10300.0 {
			t.Errorf("Expected barometric fallback 10300, got %v", obs.Position.Altitude)
		}
	})

	t.Run("Timestamp preference", func(t *testing.T) {
		posTime := now.Add(-20 * time.Second).Unix()
		contactTime := now.Add(-5 * time.Second).Unix()

		sv := airborneState("abc123", "AAL123", 40.5, -74.0)
		sv.TimePosition = &posTime
		sv.LastContact = contactTime

		obs, _ := convertState(sv, now)
		if obs.Position.Timestamp.Unix() != posTime {
			t.Errorf("Expected position time %d, got %d", posTime, obs.Position.Timestamp.Unix())
		}

		sv.TimePosition = nil
		obs, _ = convertState(sv, now)
		if obs.Position.Timestamp.Unix() != contactTime {
			t.Errorf("Expected last contact %d, got %d", contactTime, obs.Position.Timestamp.Unix())
		}

		sv.LastContact = 0
		obs, _ = convertState(sv, now)
		if !obs.Position.Timestamp.Equal(now) {
			t.Errorf("Expected cycle time fallback, got %v", obs.Position.Timestamp)
		}
	})
}
