// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package button turns a sampled push-button level into short and long
// press events.
package button

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/indoor_nav/internal/clock"
)

// State of the press detector.
type State int

const (
	Idle         State = iota // S0
	DebounceDown              // S1
	Held                      // S2
	LongHeld                  // S3
	DebounceUp                // S4
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case DebounceDown:
		return "debounce-down"
	case Held:
		return "held"
	case LongHeld:
		return "long-held"
	case DebounceUp:
		return "debounce-up"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Event is emitted by Update on release.
type Event int

const (
	None Event = iota
	ShortPress
	LongPress
)

func (e Event) String() string {
	switch e {
	case None:
		return "none"
	case ShortPress:
		return "short"
	case LongPress:
		return "long"
	}
	return fmt.Sprintf("event(%d)", int(e))
}

// Input reports whether the button is currently pressed.
type Input interface {
	Pressed() bool
}

// InputFunc adapts a function to Input.
type InputFunc func() bool

func (f InputFunc) Pressed() bool { return f() }

const (
	DefaultDebounce  = 10 * time.Millisecond
	DefaultLongPress = 1000 * time.Millisecond
)

// Machine is the five-state press detector. It is not safe for concurrent
// use; call Update from one polling loop.
type Machine struct {
	in  Input
	clk clock.Clock

	Debounce  time.Duration
	LongPress time.Duration

	state     State
	changedAt time.Time // last edge seen in a debounce state
	heldAt    time.Time // entry into Held, start of the press
}

// New returns a machine with the default durations.
func New(in Input, clk clock.Clock) *Machine {
	if clk == nil {
		clk = clock.Real{}
	}
	now := clk.Now()
	return &Machine{
		in:        in,
		clk:       clk,
		Debounce:  DefaultDebounce,
		LongPress: DefaultLongPress,
		changedAt: now,
		heldAt:    now,
	}
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Update samples the input once and performs at most one transition.
func (m *Machine) Update() Event {
	pressed := m.in.Pressed()
	now := m.clk.Now()
	prev := m.state
	ev := None

	switch m.state {
	case Idle:
		if pressed {
			m.state = DebounceDown
			m.changedAt = now
		}
	case DebounceDown:
		if pressed && now.Sub(m.changedAt) >= m.Debounce {
			m.state = Held
			m.heldAt = now
		} else if !pressed {
			m.state = Idle
			m.changedAt = now
		}
	case Held:
		if pressed && now.Sub(m.heldAt) >= m.LongPress {
			m.state = LongHeld
		} else if !pressed {
			m.state = DebounceUp
			m.changedAt = now
		}
	case LongHeld:
		if !pressed {
			m.state = DebounceUp
			m.changedAt = now
		}
	case DebounceUp:
		long := now.Sub(m.heldAt) >= m.LongPress
		switch {
		case !pressed && now.Sub(m.changedAt) >= m.Debounce:
			ev = ShortPress
			if long {
				ev = LongPress
			}
			m.state = Idle
		case pressed && !long:
			m.state = Held
			m.changedAt = now
		case pressed:
			m.state = LongHeld
			m.changedAt = now
		}
	}

	if m.state != prev {
		log.WithFields(log.Fields{"from": prev, "to": m.state}).Debug("button: transition")
	}
	if ev != None {
		log.WithField("event", ev).Debug("button: press")
	}
	return ev
}
