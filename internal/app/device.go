// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/indoor_nav/internal/button"
	"github.com/relabs-tech/indoor_nav/internal/clock"
	"github.com/relabs-tech/indoor_nav/internal/display"
	"github.com/relabs-tech/indoor_nav/internal/imu"
	"github.com/relabs-tech/indoor_nav/internal/metrics"
	"github.com/relabs-tech/indoor_nav/internal/navigation"
	"github.com/relabs-tech/indoor_nav/internal/orientation"
	"github.com/relabs-tech/indoor_nav/internal/selection"
)

// RegisterDumper reads diagnostic register tables.
type RegisterDumper interface {
	DumpRegisters(device string) ([]imu.RegisterValue, error)
}

// Parts are the components a Device drives.
type Parts struct {
	Clock      clock.Clock
	Compass    *orientation.Compass
	Button     *button.Machine
	Selection  *selection.Machine
	Navigation *navigation.Machine
	Output     display.Output
	Metrics    *metrics.Metrics
	Registers  RegisterDumper // optional

	CurrentFloor    string
	LoopInterval    time.Duration
	DisplayInterval time.Duration
}

type regRequest struct {
	device string
	resp   chan regResponse
}

type regResponse struct {
	values []imu.RegisterValue
	err    error
}

// Device is the single cooperative polling loop. Every component is
// updated from the loop goroutine only; other goroutines see the device
// through its StateStore and the register request channel.
type Device struct {
	Parts
	State *StateStore

	regReq    chan regRequest
	reselect  bool
	shownAt   time.Time
	busErrors int
	fatal     error
}

// NewDevice wires parts together and starts destination selection.
func NewDevice(p Parts) *Device {
	if p.Clock == nil {
		p.Clock = clock.Real{}
	}
	if p.Metrics == nil {
		p.Metrics = metrics.New()
	}
	if p.Output == nil {
		p.Output = &display.Log{}
	}
	if p.LoopInterval <= 0 {
		p.LoopInterval = 20 * time.Millisecond
	}
	if p.DisplayInterval <= 0 {
		p.DisplayInterval = 100 * time.Millisecond
	}
	d := &Device{
		Parts:  p,
		State:  &StateStore{},
		regReq: make(chan regRequest),
	}
	d.Selection.Begin()
	return d
}

// Run steps the device every LoopInterval until ctx is done or a fatal
// error stops it.
func (d *Device) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.LoopInterval)
	defer ticker.Stop()
	log.Printf("device: loop running every %v", d.LoopInterval)

	for {
		select {
		case <-ctx.Done():
			log.Println("device: stopping")
			return nil
		case <-ticker.C:
			start := time.Now()
			if err := d.Step(ctx); err != nil {
				return err
			}
			if time.Since(start) > d.LoopInterval {
				d.Metrics.LoopOverruns.Inc()
			}
		}
	}
}

// showHalt puts a fatal error on out.
func showHalt(out display.Output, err error) {
	log.WithError(err).Error("device: halted")
	if derr := out.ShowMessage("HALTED", diagnostic(err)); derr != nil {
		log.Printf("display: %v", derr)
	}
}

// Halt stops the device with a diagnostic on the display.
func (d *Device) Halt(err error) error {
	d.fatal = err
	showHalt(d.Output, err)
	d.publish()
	return err
}

// diagnostic shortens an error to what fits on one display line.
func diagnostic(err error) string {
	switch {
	case errors.Is(err, imu.ErrDeviceAbsent):
		return "IMU not found"
	case errors.Is(err, orientation.ErrFilterDiverged):
		return "Filter diverged"
	case errors.Is(err, ErrSelfTestFailed):
		return "Self-test failed"
	}
	msg := err.Error()
	if len(msg) > 18 {
		msg = msg[:18]
	}
	return msg
}

// Step runs one loop iteration. It returns an error only for fatal
// conditions.
func (d *Device) Step(ctx context.Context) error {
	if d.fatal != nil {
		return d.fatal
	}
	now := d.Clock.Now()

	ok, err := d.Compass.Step(now)
	switch {
	case errors.Is(err, orientation.ErrFilterDiverged):
		return d.Halt(err)
	case err != nil:
		d.Metrics.FilterRejections.Inc()
		d.busErrors++
		if d.busErrors == 1 || d.busErrors%500 == 0 {
			log.WithError(err).WithField("count", d.busErrors).Warn("IMU: sample read failed")
		}
	case ok:
		d.Metrics.FilterSteps.Inc()
	default:
		d.Metrics.FilterRejections.Inc()
	}
	heading := d.Compass.Heading()
	d.Metrics.Heading.Set(heading)

	ev := d.Button.Update()
	if ev != button.None {
		d.Metrics.ButtonEvents.WithLabelValues(ev.String()).Inc()
	}

	selected, err := d.Selection.Update(ev)
	if err != nil {
		log.WithError(err).Warn("selection: tilt read failed")
	}
	if selected {
		dest, _ := d.Selection.Destination()
		d.Navigation.Begin(d.CurrentFloor, dest)
	} else if ev == button.LongPress && d.Selection.State() == selection.DestinationSelected {
		log.Println("device: destination cancelled")
		d.Navigation.End()
		d.Selection.End()
		d.reselect = true
	}
	if d.reselect && d.Selection.State() == selection.Idle {
		d.Selection.Begin()
		d.reselect = false
	}

	if d.Navigation.Update(ctx) == navigation.Arrived {
		d.Navigation.End()
	}
	d.Metrics.NavigationState.Set(float64(d.Navigation.State()))

	if now.Sub(d.shownAt) >= d.DisplayInterval {
		d.refresh(heading)
		d.shownAt = now
	}

	select {
	case r := <-d.regReq:
		r.resp <- d.dump(r.device)
	default:
	}

	d.publish()
	return nil
}

func (d *Device) refresh(heading float64) {
	var err error
	switch d.Selection.State() {
	case selection.Idle:
		err = d.Output.ShowMessage("Indoor Nav", "Starting...")
	case selection.DestinationSelected:
		err = d.Output.ShowNavigation(heading, d.Navigation.View())
	default:
		err = d.Output.ShowSelection(d.Selection.View())
	}
	if err != nil {
		log.Printf("display: update error: %v", err)
	}
}

func (d *Device) dump(device string) regResponse {
	if d.Registers == nil {
		return regResponse{err: errors.New("register access not available")}
	}
	v, err := d.Registers.DumpRegisters(device)
	return regResponse{values: v, err: err}
}

func (d *Device) publish() {
	snap := Snapshot{
		Time:        d.Clock.Now(),
		Pose:        d.Compass.Pose(),
		FilterSteps: d.Compass.Steps(),
		Button:      d.Button.State().String(),
		Selection:   d.Selection.View(),
		Navigation:  d.Navigation.View(),
	}
	if d.fatal != nil {
		snap.Fatal = d.fatal.Error()
	}
	d.State.Set(snap)
}

// DumpRegisters asks the loop to read a register table between two
// iterations, so the bus keeps a single user.
func (d *Device) DumpRegisters(ctx context.Context, device string) ([]imu.RegisterValue, error) {
	req := regRequest{device: device, resp: make(chan regResponse, 1)}
	select {
	case d.regReq <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-req.resp:
		return r.values, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
