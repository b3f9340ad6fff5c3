// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/indoor_nav/internal/bus"
	"github.com/relabs-tech/indoor_nav/internal/clock"
	"github.com/relabs-tech/indoor_nav/internal/config"
	"github.com/relabs-tech/indoor_nav/internal/imu"
)

// Hardware is the opened sensor bus and the initialized inertial driver.
type Hardware struct {
	Bus    bus.SensorBus
	I2C    *bus.I2C    // nil when simulating
	Sim    *imu.Sim    // nil on hardware
	Driver *imu.Driver // nil until Start succeeds
	Clock  clock.Clock
}

func driverOptions(cfg *config.Config, clk clock.Clock) (imu.Options, error) {
	mode, err := imu.MagModeForRate(cfg.MagRateHz)
	if err != nil {
		return imu.Options{}, err
	}
	return imu.Options{
		Addr:       cfg.IMUI2CAddr,
		MagAddr:    cfg.MagI2CAddr,
		AccelScale: imu.AccelScale(cfg.IMUAccelRange),
		GyroScale:  imu.GyroScale(cfg.IMUGyroRange),
		MagScale:   imu.MagScale(cfg.MagScale),
		MagMode:    mode,
		Clock:      clk,
	}, nil
}

// OpenBus opens the I2C bus, or the simulator, without touching the
// sensors, so a display on the same bus can report a bring-up failure.
func OpenBus(cfg *config.Config) (*Hardware, error) {
	h := &Hardware{Clock: clock.Real{}}
	if cfg.Simulation {
		h.Sim = imu.NewSim(time.Now)
		h.Sim.Spin(cfg.SimHeadingDeg, cfg.SimSpinDegPerSec)
		h.Bus = h.Sim
		log.Printf("IMU: using simulated sensor bus, heading %.1f°, spin %.1f°/s", cfg.SimHeadingDeg, cfg.SimSpinDegPerSec)
		return h, nil
	}
	b, err := bus.OpenI2C(cfg.I2CBus)
	if err != nil {
		return nil, err
	}
	h.I2C = b
	h.Bus = b
	return h, nil
}

// Start brings up both sensors on the opened bus. An identity mismatch is
// returned as imu.ErrDeviceAbsent.
func (h *Hardware) Start(cfg *config.Config) error {
	opts, err := driverOptions(cfg, h.Clock)
	if err != nil {
		return err
	}
	d := imu.New(h.Bus, opts)
	if err := d.Init(); err != nil {
		return err
	}
	if err := d.InitMag(); err != nil {
		return err
	}
	h.Driver = d
	log.WithFields(log.Fields{
		"accel": opts.AccelScale,
		"gyro":  opts.GyroScale,
		"mag":   opts.MagScale,
		"rate":  opts.MagMode,
	}).Info("IMU: initialized")
	return nil
}

// OpenHardware opens the bus and starts the sensors. The bus is closed
// again on failure.
func OpenHardware(cfg *config.Config) (*Hardware, error) {
	h, err := OpenBus(cfg)
	if err != nil {
		return nil, err
	}
	if err := h.Start(cfg); err != nil {
		h.Close()
		return nil, err
	}
	return h, nil
}

// Close releases the I2C bus. The simulator needs no cleanup.
func (h *Hardware) Close() error {
	if h.I2C != nil {
		return errors.Wrap(h.I2C.Close(), "close i2c")
	}
	return nil
}
