package geo

import (
	"errors"
	"math"
	"testing"
	"time"
)

func pos(lat, lon float64) Position {
	return Position{Latitude: lat, Longitude: lon}
}

func movingPos(lat, lon, speedMS, headingDeg float64, ts time.Time) Position {
	return Position{
		Latitude:    lat,
		Longitude:   lon,
		GroundSpeed: floatPtr(speedMS),
		Heading:     floatPtr(headingDeg),
		Timestamp:   ts,
	}
}

func floatPtr(f float64) *float64 {
	return &f
}

// TestDistanceTo tests great-circle distance calculation.
func TestDistanceTo(t *testing.T) {
	tests := []struct {
		name      string
		a, b      Position
		wantM     float64
		tolerance float64
	}{
		{
			name:      "Identical points",
			a:         pos(40.0, -74.0),
			b:         pos(40.0, -74.0),
			wantM:     0,
			tolerance: 0.001,
		},
		{
			name: "One degree of latitude",
			a:    pos(40.0, -74.0),
			b:    pos(41.0, -74.0),
			// 1 degree of arc on a 6371 km sphere
			wantM:     111195,
			tolerance: 100,
		},
		{
			name:      "Short east-west hop near 40N",
			a:         pos(40.0, -74.0),
			b:         pos(40.0, -73.99),
			wantM:     851.5,
			tolerance: 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.a.DistanceTo(tt.b)
			if math.Abs(got-tt.wantM) > tt.tolerance {
				t.Errorf("DistanceTo = %.1fm, want %.1fm ±%.1f", got, tt.wantM, tt.tolerance)
			}
		})
	}
}

// TestDistanceSymmetry verifies A.DistanceTo(B) == B.DistanceTo(A).
func TestDistanceSymmetry(t *testing.T) {
	pairs := [][2]Position{
		{pos(40.0, -74.0), pos(40.5, -73.5)},
		{pos(-33.9, 151.2), pos(51.5, -0.1)},
		{pos(0.0, 0.0), pos(0.0, 179.9)},
	}

	for _, pair := range pairs {
		ab := pair[0].DistanceTo(pair[1])
		ba := pair[1].DistanceTo(pair[0])
		if math.Abs(ab-ba) > 1e-6 {
			t.Errorf("Distance not symmetric: %.9f vs %.9f", ab, ba)
		}
	}
}

// TestBearingTo tests initial bearing calculation.
func TestBearingTo(t *testing.T) {
	tests := []struct {
		name      string
		from, to  Position
		want      float64
		tolerance float64
	}{
		{"Due north", pos(40.0, -74.0), pos(41.0, -74.0), 0.0, 0.01},
		{"Due south", pos(41.0, -74.0), pos(40.0, -74.0), 180.0, 0.01},
		{"Due east near equator", pos(0.0, 0.0), pos(0.0, 1.0), 90.0, 0.01},
		{"Due west near equator", pos(0.0, 1.0), pos(0.0, 0.0), 270.0, 0.01},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.from.BearingTo(tt.to)
			if err != nil {
				t.Fatalf("Expected no error, got: %v", err)
			}
			if math.Abs(got-tt.want) > tt.tolerance {
				t.Errorf("BearingTo = %.3f°, want %.3f°", got, tt.want)
			}
		})
	}

	t.Run("Coincident points", func(t *testing.T) {
		_, err := pos(40.0, -74.0).BearingTo(pos(40.0, -74.0))
		if !errors.Is(err, ErrCoincidentPoints) {
			t.Errorf("Expected ErrCoincidentPoints, got %v", err)
		}
	})
}

// TestClassifyMotion tests approach/departure classification with the
// tangential tolerance band.
func TestClassifyMotion(t *testing.T) {
	home := pos(40.0, -74.0)
	now := time.Now().UTC()

	tests := []struct {
		name     string
		p        Position
		tol      float64
		want     Motion
	}{
		{
			// Aircraft north of home, flying south: straight at home.
			name: "Head-on approach",
			p:    movingPos(40.5, -74.0, 200, 180, now),
			tol:  15,
			want: MotionApproaching,
		},
		{
			// Aircraft north of home, flying north: straight away.
			name: "Direct departure",
			p:    movingPos(40.5, -74.0, 200, 0, now),
			tol:  15,
			want: MotionDeparting,
		},
		{
			// Aircraft north of home, flying east: tangential track.
			name: "Tangential inside band",
			p:    movingPos(40.5, -74.0, 200, 90, now),
			tol:  15,
			want: MotionStationary,
		},
		{
			// Same tangential track with a zero-width band classifies as
			// one side or the other, never sticks at the boundary.
			name: "Slightly inbound outside band",
			p:    movingPos(40.5, -74.0, 200, 160, now),
			tol:  15,
			want: MotionApproaching,
		},
		{
			name: "No heading",
			p: Position{
				Latitude: 40.5, Longitude: -74.0,
				GroundSpeed: floatPtr(200), Timestamp: now,
			},
			tol:  15,
			want: MotionStationary,
		},
		{
			name: "Near-zero speed",
			p:    movingPos(40.5, -74.0, 0.2, 180, now),
			tol:  15,
			want: MotionStationary,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.p.ClassifyMotion(home, tt.tol)
			if got != tt.want {
				t.Errorf("ClassifyMotion = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestExtrapolateIdentity verifies extrapolate(0) returns the original
// position.
func TestExtrapolateIdentity(t *testing.T) {
	now := time.Now().UTC()
	p := movingPos(40.0, -74.0, 250, 45, now)

	got, err := p.Extrapolate(0)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if got.Latitude != p.Latitude || got.Longitude != p.Longitude {
		t.Errorf("Extrapolate(0) moved the position: (%.8f, %.8f) -> (%.8f, %.8f)",
			p.Latitude, p.Longitude, got.Latitude, got.Longitude)
	}
	if !got.Timestamp.Equal(now) {
		t.Errorf("Extrapolate(0) changed timestamp to %v", got.Timestamp)
	}
}

// TestExtrapolateEastward verifies the dead-reckoning scenario:
// 200 m/s heading 090 for 10s covers ~2000m due east.
func TestExtrapolateEastward(t *testing.T) {
	now := time.Now().UTC()
	p := movingPos(40.01, -74.0, 200, 90, now)

	got, err := p.Extrapolate(10 * time.Second)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if got.Longitude <= -74.0 {
		t.Fatalf("Expected eastward motion, longitude went to %.6f", got.Longitude)
	}
	if math.Abs(got.Latitude-40.01) > 0.0001 {
		t.Errorf("Latitude should be nearly unchanged, got %.6f", got.Latitude)
	}

	traveled := p.DistanceTo(got)
	if math.Abs(traveled-2000) > 10 {
		t.Errorf("Expected ~2000m of travel, got %.1fm", traveled)
	}
	if !got.Timestamp.Equal(now.Add(10 * time.Second)) {
		t.Errorf("Timestamp not advanced: %v", got.Timestamp)
	}
}

// TestExtrapolateComposability verifies extrapolate(t1+t2) is close to
// extrapolate(t1) then extrapolate(t2) for short intervals.
func TestExtrapolateComposability(t *testing.T) {
	now := time.Now().UTC()
	p := movingPos(40.0, -74.0, 220, 135, now)

	oneShot, err := p.Extrapolate(30 * time.Second)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	mid, err := p.Extrapolate(12 * time.Second)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	twoShot, err := mid.Extrapolate(18 * time.Second)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	// The heading is held constant at each step, so the two paths differ
	// only by great-circle curvature over ~6.6km: centimetres.
	if sep := oneShot.DistanceTo(twoShot); sep > 1.0 {
		t.Errorf("Composed extrapolation diverged by %.3fm", sep)
	}
}

// TestExtrapolateNegative verifies backwards extrapolation is rejected.
func TestExtrapolateNegative(t *testing.T) {
	p := movingPos(40.0, -74.0, 200, 90, time.Now().UTC())

	_, err := p.Extrapolate(-1 * time.Second)
	if !errors.Is(err, ErrNegativeElapsed) {
		t.Errorf("Expected ErrNegativeElapsed, got %v", err)
	}
}

// TestExtrapolateInert verifies positions without a velocity vector are
// returned unchanged.
func TestExtrapolateInert(t *testing.T) {
	now := time.Now().UTC()

	tests := []struct {
		name string
		p    Position
	}{
		{"No speed", Position{Latitude: 40, Longitude: -74, Heading: floatPtr(90), Timestamp: now}},
		{"No heading", Position{Latitude: 40, Longitude: -74, GroundSpeed: floatPtr(200), Timestamp: now}},
		{"Neither", Position{Latitude: 40, Longitude: -74, Timestamp: now}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.p.Extrapolate(30 * time.Second)
			if err != nil {
				t.Fatalf("Expected no error, got: %v", err)
			}
			if got.Latitude != tt.p.Latitude || got.Longitude != tt.p.Longitude {
				t.Errorf("Inert position moved to (%.6f, %.6f)", got.Latitude, got.Longitude)
			}
		})
	}
}

// TestNormalizeBearing tests bearing wrap-around.
func TestNormalizeBearing(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0, 0},
		{360, 0},
		{-90, 270},
		{450, 90},
		{359.5, 359.5},
	}

	for _, tt := range tests {
		if got := NormalizeBearing(tt.in); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("NormalizeBearing(%.1f) = %.1f, want %.1f", tt.in, got, tt.want)
		}
	}
}
