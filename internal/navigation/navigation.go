// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package navigation runs the locate, route, navigate cycle against the
// remote services.
package navigation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	geo "github.com/kellydunn/golang-geo"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/indoor_nav/internal/clock"
	"github.com/relabs-tech/indoor_nav/internal/selection"
)

type State int

const (
	Idle State = iota
	Locating
	Routing
	Navigating
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Locating:
		return "locating"
	case Routing:
		return "routing"
	case Navigating:
		return "navigating"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Event is returned by Update on the step that enters Navigating.
type Event int

const (
	None Event = iota
	Routed
	Arrived
)

func (e Event) String() string {
	switch e {
	case None:
		return "none"
	case Routed:
		return "routed"
	case Arrived:
		return "arrived"
	}
	return fmt.Sprintf("event(%d)", int(e))
}

const (
	DefaultInterval   = 10 * time.Second
	DefaultRetryDelay = time.Second
)

// View is a copy of the navigation state for display and the web UI.
type View struct {
	State        string                `json:"state"`
	Session      string                `json:"session,omitempty"`
	Destination  selection.Destination `json:"destination"`
	Location     Location              `json:"location"`
	Instructions *Instructions         `json:"instructions,omitempty"`
	Arrived      bool                  `json:"arrived"`
	Failures     int                   `json:"failures"`
}

// Machine is the navigation state machine. Update blocks for the duration
// of one fetch.
type Machine struct {
	client Client
	clk    clock.Clock

	UserID     string
	Interval   time.Duration // time spent in Navigating before relocating
	RetryDelay time.Duration // wait after a failed fetch

	state        State
	navigating   bool
	session      uuid.UUID
	currentFloor string
	dest         selection.Destination

	location     Location
	lastFix      *geo.Point
	instructions Instructions
	routed       bool
	arrived      bool

	polledAt  time.Time
	failedAt  time.Time
	failures  int
	lastError error
}

func New(client Client, clk clock.Clock, userID string) *Machine {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Machine{
		client:     client,
		clk:        clk,
		UserID:     userID,
		Interval:   DefaultInterval,
		RetryDelay: DefaultRetryDelay,
	}
}

// Begin starts navigation to dest on the next Update.
func (m *Machine) Begin(currentFloor string, dest selection.Destination) {
	m.navigating = true
	m.session = uuid.New()
	m.currentFloor = currentFloor
	m.dest = dest
	m.routed = false
	m.arrived = false
	m.failures = 0
	m.lastError = nil
	m.polledAt = m.clk.Now()
	log.WithFields(log.Fields{
		"session":  m.session,
		"building": dest.Building,
		"floor":    dest.Floor,
	}).Info("navigation: begin")
}

// End stops navigation; the machine returns to Idle on the next Update.
func (m *Machine) End() { m.navigating = false }

func (m *Machine) State() State       { return m.state }
func (m *Machine) Navigating() bool   { return m.navigating }
func (m *Machine) Arrived() bool      { return m.arrived }
func (m *Machine) LastError() error   { return m.lastError }
func (m *Machine) Location() Location { return m.location }
func (m *Machine) Session() string {
	if m.session == uuid.Nil {
		return ""
	}
	return m.session.String()
}

// Instructions returns the latest route; ok is false before the first one.
func (m *Machine) Instructions() (Instructions, bool) {
	return m.instructions, m.routed
}

func (m *Machine) View() View {
	v := View{
		State:       m.state.String(),
		Session:     m.Session(),
		Destination: m.dest,
		Location:    m.location,
		Arrived:     m.arrived,
		Failures:    m.failures,
	}
	if m.routed {
		in := m.instructions
		v.Instructions = &in
	}
	return v
}

func (m *Machine) setState(s State) {
	log.WithFields(log.Fields{"session": m.Session(), "from": m.state, "to": s}).Info("navigation: transition")
	m.state = s
}

// fail records a fetch failure. The state is left as it is.
func (m *Machine) fail(what string, err error) {
	m.failures++
	m.lastError = err
	m.failedAt = m.clk.Now()
	log.WithFields(log.Fields{"session": m.Session(), "failures": m.failures}).WithError(err).Warnf("navigation: %s failed, retrying", what)
}

func (m *Machine) retrying() bool {
	return !m.failedAt.IsZero() && m.clk.Now().Sub(m.failedAt) < m.RetryDelay
}

// Update performs at most one transition. Fetch failures are recorded in
// LastError and never promote the machine.
func (m *Machine) Update(ctx context.Context) Event {
	if !m.navigating {
		if m.state != Idle {
			m.setState(Idle)
		}
		return None
	}

	switch m.state {
	case Idle:
		m.failedAt = time.Time{}
		m.setState(Locating)

	case Locating:
		if m.retrying() {
			return None
		}
		loc, err := m.client.FetchLocation(ctx)
		if err == nil && !loc.Valid() {
			err = fmt.Errorf("%w: empty location %+v", ErrFetchFailed, loc)
		}
		if err != nil {
			m.fail("location", err)
			return None
		}
		fix := geo.NewPoint(loc.Latitude, loc.Longitude)
		if m.lastFix != nil {
			log.WithField("moved_m", fix.GreatCircleDistance(m.lastFix)*1000).Debug("navigation: new fix")
		}
		m.lastFix = fix
		m.location = loc
		m.failedAt = time.Time{}
		m.setState(Routing)

	case Routing:
		if m.retrying() {
			return None
		}
		in, err := m.client.FetchInstructions(ctx, RouteRequest{
			UserID:           m.UserID,
			Location:         m.location,
			CurrentFloor:     m.currentFloor,
			Destination:      m.dest.Building,
			DestinationFloor: m.dest.Floor,
		})
		if err == nil {
			if verr := in.Validate(); verr != nil {
				err = fmt.Errorf("%w: %w", ErrFetchFailed, verr)
			}
		}
		if err != nil {
			m.fail("route", err)
			return None
		}
		m.instructions = in
		m.routed = true
		m.arrived = in.HasArrived
		m.failedAt = time.Time{}
		m.polledAt = m.clk.Now()
		m.setState(Navigating)
		if in.HasArrived {
			log.WithField("session", m.Session()).Info("navigation: arrived")
			return Arrived
		}
		return Routed

	case Navigating:
		if m.clk.Now().Sub(m.polledAt) > m.Interval {
			m.setState(Locating)
		}
	}
	return None
}
