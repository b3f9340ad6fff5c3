// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/indoor_nav/internal/apiclient"
	"github.com/relabs-tech/indoor_nav/internal/button"
	"github.com/relabs-tech/indoor_nav/internal/calibration"
	"github.com/relabs-tech/indoor_nav/internal/config"
	"github.com/relabs-tech/indoor_nav/internal/display"
	"github.com/relabs-tech/indoor_nav/internal/imu"
	"github.com/relabs-tech/indoor_nav/internal/metrics"
	"github.com/relabs-tech/indoor_nav/internal/navigation"
	"github.com/relabs-tech/indoor_nav/internal/orientation"
	"github.com/relabs-tech/indoor_nav/internal/selection"
)

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

// openOutputs returns every configured output plus a cleanup func. The
// log output is always present; OLED and MQTT failures only disable
// that output.
func openOutputs(cfg *config.Config, hw *Hardware) (display.Output, func()) {
	outs := display.Multi{&display.Log{}}
	var cleanup []func()

	if cfg.DisplayEnabled && hw.I2C != nil {
		oled, err := display.OpenOLED(hw.I2C.Bus())
		if err != nil {
			log.WithError(err).Warn("display: OLED unavailable")
		} else {
			outs = append(outs, oled)
		}
	}
	if cfg.MQTTBroker != "" {
		client, err := display.Connect(cfg.MQTTBroker, cfg.MQTTClientID)
		if err != nil {
			log.WithError(err).Warn("display: MQTT telemetry disabled")
		} else {
			outs = append(outs, display.NewMQTT(client, display.Topics{
				Heading:    cfg.TopicHeading,
				Selection:  cfg.TopicSelection,
				Navigation: cfg.TopicNavigation,
			}))
			cleanup = append(cleanup, func() { client.Disconnect(250) })
		}
	}
	return outs, func() {
		for _, f := range cleanup {
			f()
		}
	}
}

func compassOptions(cfg *config.Config) (orientation.CompassOptions, error) {
	opts := orientation.CompassOptions{
		Kp:             cfg.FilterKp,
		Ki:             cfg.FilterKi,
		DeclinationDeg: cfg.DeclinationDeg,
		TrueNorth:      cfg.TrueNorth,
	}
	var err error
	if opts.AccelAxes, err = orientation.ParseAxisMap(cfg.AxisAccel); err != nil {
		return opts, errors.Wrap(err, "AXIS_ACCEL")
	}
	if opts.GyroAxes, err = orientation.ParseAxisMap(cfg.AxisGyro); err != nil {
		return opts, errors.Wrap(err, "AXIS_GYRO")
	}
	if opts.MagAxes, err = orientation.ParseAxisMap(cfg.AxisMag); err != nil {
		return opts, errors.Wrap(err, "AXIS_MAG")
	}
	return opts, nil
}

func newAPIClient(cfg *config.Config, m *metrics.Metrics) (*apiclient.Client, error) {
	scanner, err := apiclient.ParseAccessPoints(cfg.WiFiAccessPoints)
	if err != nil {
		return nil, errors.Wrap(err, "WIFI_ACCESS_POINTS")
	}
	c := apiclient.New(apiclient.Options{
		GeolocationURL:     cfg.GeolocationURL,
		GeolocationKey:     cfg.GeolocationKey,
		GeolocationFormat:  cfg.GeolocationFormat,
		MaxAccessPoints:    cfg.MaxAccessPoints,
		RoutingURL:         cfg.RoutingURL,
		Timeout:            ms(cfg.ResponseTimeoutMS),
		RequestBufferSize:  cfg.RequestBufferSize,
		ResponseBufferSize: cfg.ResponseBufferSize,
	}, scanner, nil)
	c.Observe = m.ObserveFetch
	return c, nil
}

// NewDeviceFromConfig assembles the device loop on top of opened hardware.
// The returned virtual button is nil on real hardware.
func NewDeviceFromConfig(cfg *config.Config, hw *Hardware, out display.Output, m *metrics.Metrics) (*Device, *button.Virtual, error) {
	profile, err := calibration.Store{Path: cfg.CalibrationFile}.LoadOrDefault()
	if err != nil {
		return nil, nil, err
	}
	copts, err := compassOptions(cfg)
	if err != nil {
		return nil, nil, err
	}
	compass, err := orientation.NewCompass(hw.Driver, profile, copts)
	if err != nil {
		return nil, nil, err
	}

	var (
		in      button.Input
		virtual *button.Virtual
	)
	if hw.Sim != nil {
		virtual = button.NewVirtual(hw.Clock)
		in = virtual
	} else {
		g, err := button.OpenGPIO(cfg.ButtonPin)
		if err != nil {
			return nil, nil, err
		}
		in = g
	}
	btn := button.New(in, hw.Clock)
	btn.Debounce = ms(cfg.DebounceMS)
	btn.LongPress = ms(cfg.LongPressMS)

	tilt, err := imu.NewTilt(hw.Driver, cfg.TiltAxis)
	if err != nil {
		return nil, nil, err
	}
	sel := selection.New(tilt, hw.Clock)
	sel.ScrollDebounce = ms(cfg.ScrollDebounceMS)
	sel.TiltThreshold = cfg.TiltThresholdG

	client, err := newAPIClient(cfg, m)
	if err != nil {
		return nil, nil, err
	}
	nav := navigation.New(client, hw.Clock, cfg.UserID)
	nav.Interval = ms(cfg.NavIntervalMS)

	d := NewDevice(Parts{
		Clock:           hw.Clock,
		Compass:         compass,
		Button:          btn,
		Selection:       sel,
		Navigation:      nav,
		Output:          out,
		Metrics:         m,
		Registers:       hw.Driver,
		CurrentFloor:    cfg.CurrentFloor,
		LoopInterval:    ms(cfg.LoopIntervalMS),
		DisplayInterval: ms(cfg.DisplayUpdateInterval),
	})
	return d, virtual, nil
}

// startDevice brings up the sensors on an opened bus and assembles the
// loop. A failure is shown on out before it is returned.
func startDevice(cfg *config.Config, hw *Hardware, out display.Output, m *metrics.Metrics) (*Device, *button.Virtual, error) {
	if err := hw.Start(cfg); err != nil {
		showHalt(out, err)
		return nil, nil, err
	}
	d, virtual, err := NewDeviceFromConfig(cfg, hw, out, m)
	if err != nil {
		showHalt(out, err)
		return nil, nil, err
	}
	return d, virtual, nil
}

// RunDevice brings up the hardware and runs the device loop and the web
// server until ctx is done or the loop halts.
func RunDevice(ctx context.Context, cfg *config.Config) error {
	hw, err := OpenBus(cfg)
	if err != nil {
		return err
	}
	defer hw.Close()

	// outputs first, so a missing IMU still reaches the display
	out, cleanup := openOutputs(cfg, hw)
	defer cleanup()

	m := metrics.New()
	d, virtual, err := startDevice(cfg, hw, out, m)
	if err != nil {
		return err
	}

	if cfg.SelfTestOnStart {
		if _, err := RunSelfTest(hw, cfg.SelfTestTolerancePct); err != nil {
			return d.Halt(err)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if cfg.WebServerPort > 0 {
		srv := &Server{
			State:        d.State,
			Registers:    d,
			Metrics:      m.Handler(),
			PushInterval: ms(cfg.WebPushIntervalMS),
		}
		if virtual != nil {
			srv.Button = virtual
		}
		go func() {
			if err := srv.ListenAndServe(ctx, fmt.Sprintf(":%d", cfg.WebServerPort)); err != nil {
				log.WithError(err).Error("web: server stopped")
			}
		}()
	}

	return d.Run(ctx)
}

// RunCalibration opens the hardware and runs the calibration procedures.
func RunCalibration(ctx context.Context, cfg *config.Config, withMag bool) error {
	hw, err := OpenHardware(cfg)
	if err != nil {
		return err
	}
	defer hw.Close()

	out, cleanup := openOutputs(cfg, hw)
	defer cleanup()

	_, err = Calibrate(ctx, hw, calibration.Store{Path: cfg.CalibrationFile}, out, withMag)
	return err
}

// RunSelfTestOnce opens the hardware, runs the self-test and prints the
// per-axis deviations to w.
func RunSelfTestOnce(cfg *config.Config, w io.Writer) error {
	hw, err := OpenHardware(cfg)
	if err != nil {
		return err
	}
	defer hw.Close()

	res, err := RunSelfTest(hw, cfg.SelfTestTolerancePct)
	if err != nil && !errors.Is(err, ErrSelfTestFailed) {
		return err
	}
	fmt.Fprintf(w, "accel deviation %%: x=%6.2f y=%6.2f z=%6.2f\n", res.AccelDeviation.X, res.AccelDeviation.Y, res.AccelDeviation.Z)
	fmt.Fprintf(w, "gyro  deviation %%: x=%6.2f y=%6.2f z=%6.2f\n", res.GyroDeviation.X, res.GyroDeviation.Y, res.GyroDeviation.Z)
	return err
}

// PrintRegisters opens the hardware and writes a register table to w.
func PrintRegisters(cfg *config.Config, device string, w io.Writer) error {
	hw, err := OpenHardware(cfg)
	if err != nil {
		return err
	}
	defer hw.Close()

	values, err := hw.Driver.DumpRegisters(device)
	if err != nil {
		return err
	}
	for _, v := range values {
		fmt.Fprintf(w, "0x%02X  %-14s 0x%02X  %08b  %s\n", v.Addr, v.Name, v.Value, v.Value, v.Description)
	}
	return nil
}
