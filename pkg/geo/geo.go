// Package geo provides the kinematic position model for tracked aircraft.
// All positions are WGS84 geographic coordinates; distance and bearing math
// treats the Earth as a sphere, which is accurate to well under 0.5% over
// the ranges this system cares about (tens of kilometres).
package geo

import (
	"errors"
	"math"
	"time"
)

const (
	// DegreesToRadians converts degrees to radians
	DegreesToRadians = math.Pi / 180.0

	// RadiansToDegrees converts radians to degrees
	RadiansToDegrees = 180.0 / math.Pi

	// EarthRadiusM is the Earth's mean radius in meters (WGS84 mean radius)
	EarthRadiusM = 6371000.0

	// MetersPerSecondToKnots converts m/s to knots
	MetersPerSecondToKnots = 1.94384
)

var (
	// ErrCoincidentPoints is returned when a bearing is requested between
	// two identical points, where the bearing is undefined.
	ErrCoincidentPoints = errors.New("geo: bearing undefined between coincident points")

	// ErrNegativeElapsed is returned when extrapolation is requested
	// backwards in time. Positions are only valid forward of their sample
	// timestamp.
	ErrNegativeElapsed = errors.New("geo: cannot extrapolate a negative interval")
)

// Motion classifies an aircraft's track relative to a fixed point.
type Motion int

const (
	// MotionStationary covers near-tangential tracks and aircraft with no
	// usable velocity vector.
	MotionStationary Motion = iota

	// MotionApproaching means the track points toward the reference point.
	MotionApproaching

	// MotionDeparting means the track points away from the reference point.
	MotionDeparting
)

func (m Motion) String() string {
	switch m {
	case MotionApproaching:
		return "approaching"
	case MotionDeparting:
		return "departing"
	default:
		return "stationary"
	}
}

// Position is a geographic sample with an optional velocity vector.
// GroundSpeed, Heading, and Altitude are pointers because the coarse data
// source reports them as nullable; a Position without speed or heading is
// extrapolation-inert.
type Position struct {
	// Latitude in decimal degrees (-90 to +90)
	Latitude float64

	// Longitude in decimal degrees (-180 to +180)
	Longitude float64

	// Altitude in meters above mean sea level, nil when unknown
	Altitude *float64

	// GroundSpeed in meters per second, nil when unknown
	GroundSpeed *float64

	// Heading is the true track in degrees (0-360), nil when unknown
	Heading *float64

	// Timestamp is when this sample was measured (UTC)
	Timestamp time.Time
}

// DistanceTo returns the great-circle distance to other in meters,
// computed with the Haversine formula. Symmetric, and zero for
// identical coordinates.
func (p Position) DistanceTo(other Position) float64 {
	lat1 := p.Latitude * DegreesToRadians
	lat2 := other.Latitude * DegreesToRadians
	dLat := (other.Latitude - p.Latitude) * DegreesToRadians
	dLon := (other.Longitude - p.Longitude) * DegreesToRadians

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusM * c
}

// BearingTo returns the initial great-circle bearing from p to other in
// degrees [0, 360). Returns ErrCoincidentPoints when both points share the
// same coordinates.
func (p Position) BearingTo(other Position) (float64, error) {
	if p.Latitude == other.Latitude && p.Longitude == other.Longitude {
		return 0, ErrCoincidentPoints
	}

	lat1 := p.Latitude * DegreesToRadians
	lat2 := other.Latitude * DegreesToRadians
	dLon := (other.Longitude - p.Longitude) * DegreesToRadians

	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) -
		math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)

	bearing := math.Atan2(y, x) * RadiansToDegrees
	return NormalizeBearing(bearing), nil
}

// ClassifyMotion compares the bearing from p to home against p's heading
// and reports whether the aircraft is approaching or departing home.
// toleranceDeg widens the band around 90° of bearing/heading divergence
// inside which the track is considered tangential (MotionStationary), so
// near-perpendicular tracks don't flap between classifications.
//
// An aircraft with no heading, no speed, or near-zero speed is always
// MotionStationary.
func (p Position) ClassifyMotion(home Position, toleranceDeg float64) Motion {
	const minSpeed = 1.0 // m/s; below this the heading is noise

	if p.Heading == nil || p.GroundSpeed == nil || *p.GroundSpeed < minSpeed {
		return MotionStationary
	}

	bearingToHome, err := p.BearingTo(home)
	if err != nil {
		// Sitting exactly on home; no meaningful approach direction.
		return MotionStationary
	}

	// Angular difference between heading and the direction of home,
	// folded into [0, 180].
	diff := math.Abs(math.Mod(bearingToHome-*p.Heading+540, 360) - 180)

	switch {
	case diff < 90-toleranceDeg:
		return MotionApproaching
	case diff > 90+toleranceDeg:
		return MotionDeparting
	default:
		return MotionStationary
	}
}

// Extrapolate projects the position elapsed seconds forward along its
// current track, assuming constant ground speed and heading. Altitude is
// held constant. The projection follows the great circle from the sample
// point, which for the short intervals between poll and render (seconds to
// low tens of seconds) is indistinguishable from straight-line motion.
//
// A Position with unknown speed or heading is returned unchanged except
// for its timestamp. A negative elapsed returns ErrNegativeElapsed.
func (p Position) Extrapolate(elapsed time.Duration) (Position, error) {
	if elapsed < 0 {
		return Position{}, ErrNegativeElapsed
	}

	out := p
	out.Timestamp = p.Timestamp.Add(elapsed)

	if p.GroundSpeed == nil || p.Heading == nil {
		return out, nil
	}

	distanceM := *p.GroundSpeed * elapsed.Seconds()
	if distanceM == 0 {
		return out, nil
	}
	angular := distanceM / EarthRadiusM

	lat1 := p.Latitude * DegreesToRadians
	lon1 := p.Longitude * DegreesToRadians
	heading := *p.Heading * DegreesToRadians

	lat2 := math.Asin(
		math.Sin(lat1)*math.Cos(angular) +
			math.Cos(lat1)*math.Sin(angular)*math.Cos(heading),
	)
	lon2 := lon1 + math.Atan2(
		math.Sin(heading)*math.Sin(angular)*math.Cos(lat1),
		math.Cos(angular)-math.Sin(lat1)*math.Sin(lat2),
	)

	out.Latitude = lat2 * RadiansToDegrees
	out.Longitude = NormalizeLongitude(lon2 * RadiansToDegrees)

	return out, nil
}

// NormalizeBearing wraps a bearing into [0, 360).
func NormalizeBearing(deg float64) float64 {
	b := math.Mod(deg, 360.0)
	if b < 0 {
		b += 360.0
	}
	return b
}

// NormalizeLongitude wraps a longitude into [-180, 180].
func NormalizeLongitude(deg float64) float64 {
	if deg > 180.0 {
		return deg - 360.0
	}
	if deg < -180.0 {
		return deg + 360.0
	}
	return deg
}
