// Package api exposes the fusion store over HTTP: a small JSON API for
// snapshot queries plus a WebSocket stream for live displays.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/skyfuse/skyfuse/internal/fusion"
)

// DetailRequester nudges supplemental enrichment for an aircraft a
// client is looking at. A nil requester disables the nudge.
type DetailRequester interface {
	Request(icao24 string)
}

// ServerConfig tunes the HTTP surface.
type ServerConfig struct {
	Host string
	Port int

	// PushInterval is the WebSocket snapshot cadence
	PushInterval time.Duration
}

// Server serves snapshots of the fusion store.
type Server struct {
	store     *fusion.Store
	requester DetailRequester
	router    *chi.Mux
	cfg       ServerConfig
	logger    *log.Logger
}

// NewServer creates the HTTP surface over store. requester may be nil.
func NewServer(store *fusion.Store, requester DetailRequester, cfg ServerConfig, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	if cfg.PushInterval <= 0 {
		cfg.PushInterval = time.Second
	}

	s := &Server{
		store:     store,
		requester: requester,
		router:    chi.NewRouter(),
		cfg:       cfg,
		logger:    logger,
	}
	s.setupRoutes()
	return s
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	r := s.router

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS for browser-based displays
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/aircraft", s.handleGetAircraft)
		r.Get("/aircraft/{icao}", s.handleGetAircraftByICAO)
	})

	r.Get("/ws", s.handleWebSocket)
}

// Run serves until the context is cancelled, then drains connections.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Printf("HTTP server listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return ctx.Err()
}

// aircraftView is the JSON shape of one snapshot entry.
type aircraftView struct {
	ICAO24       string   `json:"icao24"`
	Callsign     string   `json:"callsign,omitempty"`
	DisplayName  string   `json:"display_name"`
	Latitude     float64  `json:"latitude"`
	Longitude    float64  `json:"longitude"`
	AltitudeM    *float64 `json:"altitude_m,omitempty"`
	SpeedMS      *float64 `json:"ground_speed_ms,omitempty"`
	HeadingDeg   *float64 `json:"heading_deg,omitempty"`
	VerticalRate *float64 `json:"vertical_rate_ms,omitempty"`
	OnGround     bool     `json:"on_ground"`

	RangeM     float64  `json:"range_m"`
	BearingDeg *float64 `json:"bearing_deg,omitempty"`
	Motion     string   `json:"motion"`

	FetchState   string            `json:"fetch_state"`
	Supplemental *supplementalView `json:"supplemental,omitempty"`

	PositionTime time.Time `json:"position_time"`
	LastCoarse   time.Time `json:"last_coarse_update"`
}

type supplementalView struct {
	Airline            string     `json:"airline,omitempty"`
	FlightNumber       string     `json:"flight_number,omitempty"`
	AircraftType       string     `json:"aircraft_type,omitempty"`
	OriginAirport      string     `json:"origin_airport,omitempty"`
	DestinationAirport string     `json:"destination_airport,omitempty"`
	ActualDeparture    *time.Time `json:"actual_departure,omitempty"`
	EstimatedArrival   *time.Time `json:"estimated_arrival,omitempty"`
}

type snapshotView struct {
	Time     time.Time      `json:"time"`
	Count    int            `json:"count"`
	Aircraft []aircraftView `json:"aircraft"`
}

func entryToView(e fusion.SnapshotEntry) aircraftView {
	v := aircraftView{
		ICAO24:       e.ICAO24,
		Callsign:     e.Callsign,
		DisplayName:  e.DisplayName(),
		Latitude:     e.Position.Latitude,
		Longitude:    e.Position.Longitude,
		AltitudeM:    e.Position.Altitude,
		SpeedMS:      e.Position.GroundSpeed,
		HeadingDeg:   e.Position.Heading,
		VerticalRate: e.VerticalRate,
		OnGround:     e.OnGround,
		RangeM:       e.RangeMeters,
		BearingDeg:   e.BearingFromHome,
		Motion:       e.Motion.String(),
		FetchState:   e.FetchState.String(),
		PositionTime: e.Position.Timestamp,
		LastCoarse:   e.LastCoarseUpdate,
	}
	if sup := e.Supplemental; sup != nil {
		v.Supplemental = &supplementalView{
			Airline:            sup.Airline,
			FlightNumber:       sup.FlightNumber,
			AircraftType:       sup.AircraftType,
			OriginAirport:      sup.OriginAirport,
			DestinationAirport: sup.DestinationAirport,
			ActualDeparture:    sup.ActualDeparture,
			EstimatedArrival:   sup.EstimatedArrival,
		}
	}
	return v
}

func (s *Server) snapshotView(now time.Time) snapshotView {
	entries := s.store.Snapshot(now)
	views := make([]aircraftView, len(entries))
	for i, e := range entries {
		views[i] = entryToView(e)
	}
	return snapshotView{Time: now, Count: len(views), Aircraft: views}
}

// handleGetAircraft returns the full snapshot, nearest aircraft first.
func (s *Server) handleGetAircraft(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.snapshotView(time.Now().UTC()))
}

// handleGetAircraftByICAO returns one aircraft and nudges enrichment,
// since a client asking for details probably wants the full record.
func (s *Server) handleGetAircraftByICAO(w http.ResponseWriter, r *http.Request) {
	icao := strings.ToLower(chi.URLParam(r, "icao"))

	for _, e := range s.store.Snapshot(time.Now().UTC()) {
		if e.ICAO24 != icao {
			continue
		}
		if s.requester != nil && e.FetchState == fusion.FetchNotRequested {
			s.requester.Request(icao)
		}
		writeJSON(w, http.StatusOK, entryToView(e))
		return
	}

	writeError(w, http.StatusNotFound, "aircraft not tracked")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"tracked": s.store.Len(),
		"time":    time.Now().UTC(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
