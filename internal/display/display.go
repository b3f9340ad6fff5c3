// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package display pushes messages, the destination picker and route
// instructions to the user. Outputs only read the values they are given.
package display

import (
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/indoor_nav/internal/navigation"
	"github.com/relabs-tech/indoor_nav/internal/selection"
)

// Output is anything that can show device state.
type Output interface {
	ShowMessage(lines ...string) error
	ShowSelection(v selection.View) error
	ShowNavigation(heading float64, v navigation.View) error
}

// Log writes screens to the logger. Unchanged screens are not repeated.
type Log struct {
	last string
}

func (l *Log) show(kind string, lines []string) error {
	text := strings.Join(lines, " | ")
	if text == l.last {
		return nil
	}
	l.last = text
	log.WithField("screen", kind).Info("display: " + text)
	return nil
}

func (l *Log) ShowMessage(lines ...string) error { return l.show("message", lines) }

func (l *Log) ShowSelection(v selection.View) error {
	return l.show("selection", SelectionLines(v))
}

func (l *Log) ShowNavigation(heading float64, v navigation.View) error {
	// heading changes every frame; log the instruction part only
	return l.show("navigation", NavigationLines(heading, v)[1:])
}

// Multi fans out to several outputs; every output is tried.
type Multi []Output

func (m Multi) each(f func(Output) error) error {
	var first error
	for _, o := range m {
		if err := f(o); err != nil && first == nil {
			first = errors.Wrapf(err, "%T", o)
		}
	}
	return first
}

func (m Multi) ShowMessage(lines ...string) error {
	return m.each(func(o Output) error { return o.ShowMessage(lines...) })
}

func (m Multi) ShowSelection(v selection.View) error {
	return m.each(func(o Output) error { return o.ShowSelection(v) })
}

func (m Multi) ShowNavigation(heading float64, v navigation.View) error {
	return m.each(func(o Output) error { return o.ShowNavigation(heading, v) })
}
