// SkyFuse TUI: a terminal display of the closest aircraft, running the
// fusion engine in-process. Selecting an aircraft nudges supplemental
// enrichment for it.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/sync/errgroup"

	"github.com/skyfuse/skyfuse/internal/fusion"
	"github.com/skyfuse/skyfuse/pkg/aeroapi"
	"github.com/skyfuse/skyfuse/pkg/config"
	"github.com/skyfuse/skyfuse/pkg/geo"
	"github.com/skyfuse/skyfuse/pkg/opensky"
)

func main() {
	configPath := flag.String("config", "configs/config.json", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// The engine logs would corrupt the TUI; discard them.
	quiet := log.New(io.Discard, "", 0)

	home := geo.Position{Latitude: cfg.Home.Latitude, Longitude: cfg.Home.Longitude}
	store := fusion.NewStore(home, cfg.Engine.ApproachToleranceDeg)

	coarseOpts := []opensky.ClientOption{}
	if cfg.OpenSky.ClientID != "" && cfg.OpenSky.ClientSecret != "" {
		coarseOpts = append(coarseOpts,
			opensky.WithClientCredentials(cfg.OpenSky.ClientID, cfg.OpenSky.ClientSecret))
	}
	if cfg.OpenSky.BaseURL != "" {
		coarseOpts = append(coarseOpts, opensky.WithBaseURL(cfg.OpenSky.BaseURL))
	}

	poller := fusion.NewPoller(opensky.NewClient(coarseOpts...), store, fusion.PollerConfig{
		RadiusKm: cfg.Engine.RadiusKm,
		Interval: cfg.Engine.PollInterval(),
		Timeout:  cfg.Engine.PollTimeout(),
	}, quiet)

	var fetcher *fusion.Fetcher
	if cfg.AeroAPI.Enabled && cfg.AeroAPI.APIKey != "" {
		detail := aeroapi.NewClient(aeroapi.Config{
			APIKey:          cfg.AeroAPI.APIKey,
			RequestsPerHour: cfg.AeroAPI.RequestsPerHour,
			Timeout:         cfg.AeroAPI.FetchTimeout(),
			BaseURL:         cfg.AeroAPI.BaseURL,
		})
		fetcher = fusion.NewFetcher(detail, nil, store, fusion.FetcherConfig{
			Concurrency:     cfg.AeroAPI.Concurrency,
			ScanInterval:    cfg.Engine.PollInterval(),
			FetchTimeout:    cfg.AeroAPI.FetchTimeout(),
			FailureCooldown: cfg.AeroAPI.FailureCooldown(),
			QuotaBackoff:    cfg.AeroAPI.QuotaBackoff(),
		}, quiet)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return poller.Run(gctx) })
	if fetcher != nil {
		g.Go(func() error { return fetcher.Run(gctx) })
	}

	m := model{
		cfg:     cfg,
		store:   store,
		fetcher: fetcher,
	}

	p := tea.NewProgram(m, tea.WithAltScreen())

	// Surface fatal engine errors in the TUI instead of dying silently.
	go func() {
		if err := g.Wait(); err != nil && err != context.Canceled {
			p.Send(engineErrMsg{err})
		}
	}()

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		os.Exit(1)
	}
	cancel()
}

type tickMsg time.Time

type engineErrMsg struct{ err error }

type model struct {
	cfg     *config.Config
	store   *fusion.Store
	fetcher *fusion.Fetcher

	entries  []fusion.SnapshotEntry
	selected int
	err      error
}

func (m model) tick() tea.Cmd {
	interval := time.Duration(m.cfg.Display.RefreshMillis) * time.Millisecond
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Init() tea.Cmd {
	return m.tick()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "up", "k":
			if m.selected > 0 {
				m.selected--
			}
		case "down", "j":
			if m.selected < len(m.entries)-1 {
				m.selected++
			}
		case "enter", "f":
			if m.fetcher != nil && m.selected < len(m.entries) {
				m.fetcher.Request(m.entries[m.selected].ICAO24)
			}
		}

	case tickMsg:
		m.entries = m.store.Snapshot(time.Now().UTC())
		if m.selected >= len(m.entries) {
			m.selected = 0
		}
		m.requestDisplayed()
		return m, m.tick()

	case engineErrMsg:
		m.err = msg.err
	}

	return m, nil
}

// requestDisplayed nudges enrichment for the aircraft currently on
// screen; the ones a person is looking at deserve details first.
func (m model) requestDisplayed() {
	if m.fetcher == nil {
		return
	}
	for i, e := range m.entries {
		if i >= m.displayCount() {
			break
		}
		if e.FetchState == fusion.FetchNotRequested {
			m.fetcher.Request(e.ICAO24)
		}
	}
}

func (m model) displayCount() int {
	if m.cfg.Display.Count > 0 {
		return m.cfg.Display.Count
	}
	return 3
}

// quietHours reports whether the local time falls inside the configured
// dimming window. The window may wrap midnight; equal bounds disable it.
func quietHours(now time.Time, start, end int) bool {
	if start == end {
		return false
	}
	h := now.Hour()
	if start < end {
		return h >= start && h < end
	}
	return h >= start || h < end
}

func (m model) View() string {
	dimmed := quietHours(time.Now(), m.cfg.Display.QuietStart, m.cfg.Display.QuietEnd)

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("86")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	helpStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	rowStyle := lipgloss.NewStyle()
	selectedStyle := lipgloss.NewStyle().Background(lipgloss.Color("237")).Bold(true)
	supStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("75"))

	if dimmed {
		dim := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
		titleStyle = dim.Copy().Bold(true)
		headerStyle = dim
		rowStyle = dim
		selectedStyle = dim.Copy().Bold(true)
		supStyle = dim
	}

	var b strings.Builder

	title := fmt.Sprintf("SkyFuse  %.4f°, %.4f°  r=%.0fkm",
		m.cfg.Home.Latitude, m.cfg.Home.Longitude, m.cfg.Engine.RadiusKm)
	if dimmed {
		title += "  (quiet hours)"
	}
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n\n")

	if m.err != nil {
		b.WriteString(errStyle.Render(fmt.Sprintf("Engine stopped: %v", m.err)))
		b.WriteString("\n\n")
	}

	if m.fetcher != nil {
		if suspended, until := m.fetcher.Suspended(); suspended {
			b.WriteString(errStyle.Render(
				fmt.Sprintf("Enrichment suspended until %s", until.Format("15:04:05"))))
			b.WriteString("\n\n")
		}
	}

	b.WriteString(headerStyle.Render(fmt.Sprintf("  %-9s %8s %5s %8s %6s %-12s %s",
		"FLIGHT", "RANGE", "BRG", "ALT", "SPD", "MOTION", "ROUTE")))
	b.WriteString("\n")

	if len(m.entries) == 0 {
		b.WriteString(helpStyle.Render("  No aircraft in range"))
		b.WriteString("\n")
	}

	count := m.displayCount()
	for i, e := range m.entries {
		if i >= count {
			break
		}

		line := fmt.Sprintf("  %-9s %7.1fkm %4s %8s %6s %-12s %s",
			e.DisplayName(),
			e.RangeMeters/1000.0,
			formatBearing(e.BearingFromHome),
			formatAltitude(e.Position.Altitude),
			formatSpeed(e.Position.GroundSpeed),
			motionLabel(e.Motion),
			routeLabel(e),
		)

		style := rowStyle
		if i == m.selected {
			style = selectedStyle
		}
		b.WriteString(style.Render(line))
		b.WriteString("\n")

		if i == m.selected && e.Supplemental != nil {
			sup := e.Supplemental
			extra := fmt.Sprintf("    %s %s  %s", sup.Airline, sup.FlightNumber, sup.AircraftType)
			if sup.EstimatedArrival != nil {
				extra += fmt.Sprintf("  ETA %s", sup.EstimatedArrival.Local().Format("15:04"))
			}
			b.WriteString(supStyle.Render(extra))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render(fmt.Sprintf(
		"  %d tracked | ↑/↓ select | enter fetch details | q quit", len(m.entries))))
	b.WriteString("\n")

	return b.String()
}

func formatBearing(b *float64) string {
	if b == nil {
		return "---"
	}
	return fmt.Sprintf("%03.0f", *b)
}

func formatAltitude(alt *float64) string {
	if alt == nil {
		return "---"
	}
	return fmt.Sprintf("%.0fm", *alt)
}

func formatSpeed(speed *float64) string {
	if speed == nil {
		return "---"
	}
	return fmt.Sprintf("%.0fkt", *speed*geo.MetersPerSecondToKnots)
}

func motionLabel(mo geo.Motion) string {
	switch mo {
	case geo.MotionApproaching:
		return "▼ inbound"
	case geo.MotionDeparting:
		return "▲ outbound"
	default:
		return "· holding"
	}
}

func routeLabel(e fusion.SnapshotEntry) string {
	if sup := e.Supplemental; sup != nil && sup.OriginAirport != "" {
		return sup.OriginAirport + "→" + sup.DestinationAirport
	}
	switch e.FetchState {
	case fusion.FetchPending:
		return "fetching..."
	case fusion.FetchFailed:
		return "no details"
	default:
		return ""
	}
}
