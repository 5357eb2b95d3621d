package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/skyfuse/skyfuse/pkg/aeroapi"
)

// DetailRepository caches supplemental flight details by callsign. It
// satisfies the fetcher's cache interface: entries older than ttl read
// as misses.
type DetailRepository struct {
	db  *DB
	ttl time.Duration
}

// NewDetailRepository creates a repository with the given entry lifetime.
func NewDetailRepository(db *DB, ttl time.Duration) *DetailRepository {
	return &DetailRepository{db: db, ttl: ttl}
}

// Get returns the cached detail for a callsign, or found=false when the
// callsign is unknown or its entry has aged past the TTL.
func (r *DetailRepository) Get(ctx context.Context, callsign string) (*aeroapi.FlightDetail, bool, error) {
	var (
		detail    aeroapi.FlightDetail
		departure sql.NullTime
		arrival   sql.NullTime
		fetchedAt time.Time
	)

	err := r.db.QueryRowContext(ctx,
		`SELECT airline, flight_number, aircraft_type,
		        origin_airport, destination_airport,
		        actual_departure, estimated_arrival, fetched_at
		 FROM flight_details
		 WHERE callsign = $1`,
		callsign,
	).Scan(
		&detail.Airline, &detail.FlightNumber, &detail.AircraftType,
		&detail.OriginAirport, &detail.DestinationAirport,
		&departure, &arrival, &fetchedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to query flight detail: %w", err)
	}

	if time.Since(fetchedAt) > r.ttl {
		return nil, false, nil
	}

	if departure.Valid {
		t := departure.Time
		detail.ActualDeparture = &t
	}
	if arrival.Valid {
		t := arrival.Time
		detail.EstimatedArrival = &t
	}

	return &detail, true, nil
}

// Put inserts or refreshes the cached detail for a callsign.
func (r *DetailRepository) Put(ctx context.Context, callsign string, detail *aeroapi.FlightDetail) error {
	var departure, arrival sql.NullTime
	if detail.ActualDeparture != nil {
		departure = sql.NullTime{Time: *detail.ActualDeparture, Valid: true}
	}
	if detail.EstimatedArrival != nil {
		arrival = sql.NullTime{Time: *detail.EstimatedArrival, Valid: true}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO flight_details (
			callsign, airline, flight_number, aircraft_type,
			origin_airport, destination_airport,
			actual_departure, estimated_arrival, fetched_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		ON CONFLICT (callsign) DO UPDATE SET
			airline = EXCLUDED.airline,
			flight_number = EXCLUDED.flight_number,
			aircraft_type = EXCLUDED.aircraft_type,
			origin_airport = EXCLUDED.origin_airport,
			destination_airport = EXCLUDED.destination_airport,
			actual_departure = EXCLUDED.actual_departure,
			estimated_arrival = EXCLUDED.estimated_arrival,
			fetched_at = now()`,
		callsign, detail.Airline, detail.FlightNumber, detail.AircraftType,
		detail.OriginAirport, detail.DestinationAirport,
		departure, arrival,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert flight detail: %w", err)
	}

	return nil
}

// Prune deletes entries older than the TTL. Returns the number of rows
// removed.
func (r *DetailRepository) Prune(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM flight_details WHERE fetched_at < $1`,
		time.Now().Add(-r.ttl),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prune flight details: %w", err)
	}
	return res.RowsAffected()
}
