package calibration

import (
	"context"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/indoor_nav/internal/clock"
	"github.com/relabs-tech/indoor_nav/internal/imu"
)

// Sensor is the part of the inertial driver the calibration procedures need.
type Sensor interface {
	CaptureBurst() (imu.Burst, error)
	ReadMagCounts() (imu.RawVector, bool, error)
	MagAdjust() r3.Vector
	MagRes() float64
	MagMode() imu.MagMode
}

// Progress is called after each tumble sample with the number taken so far.
type Progress func(done, total int)

// Engine runs calibration procedures and holds the last good profile.
// A failed run leaves the held profile untouched.
type Engine struct {
	sensor  Sensor
	clk     clock.Clock
	profile Profile
}

// NewEngine starts from current, which must be valid.
func NewEngine(s Sensor, clk clock.Clock, current Profile) (*Engine, error) {
	if err := current.Validate(); err != nil {
		return nil, err
	}
	return &Engine{sensor: s, clk: clk, profile: current}, nil
}

// Profile returns the last good profile.
func (e *Engine) Profile() Profile { return e.profile }

func (e *Engine) commit(p Profile) (Profile, error) {
	if err := p.Validate(); err != nil {
		return e.profile, err
	}
	p.CalibratedAt = e.clk.Now()
	e.profile = p
	return p, nil
}

// RunBias measures gyro and accelerometer bias. The device must be at rest.
func (e *Engine) RunBias(ctx context.Context) (Profile, error) {
	if err := ctx.Err(); err != nil {
		return e.profile, err
	}
	burst, err := e.sensor.CaptureBurst()
	if err != nil {
		return e.profile, errors.Wrap(err, "bias burst")
	}
	gyro, accel, err := ComputeBias(burst)
	if err != nil {
		return e.profile, err
	}
	log.WithFields(log.Fields{"gyro_dps": gyro, "accel_g": accel, "packets": len(burst.Accel)}).
		Info("calibration: bias computed")

	p := e.profile
	p.GyroBias = gyro
	p.AccelBias = accel
	p.Source = "bias"
	if e.profile.Source == "mag" || e.profile.Source == "bias+mag" {
		p.Source = "bias+mag"
	}
	return e.commit(p)
}

// RunMag samples the magnetometer for about 30 s while the device is
// tumbled, then solves hard- and soft-iron corrections.
func (e *Engine) RunMag(ctx context.Context, progress Progress) (Profile, error) {
	total, spacing := e.sensor.MagMode().SampleCount()
	ext := NewMagExtents()
	for i := 0; i < total; i++ {
		if err := ctx.Err(); err != nil {
			return e.profile, err
		}
		v, ok, err := e.sensor.ReadMagCounts()
		if err != nil {
			return e.profile, errors.Wrap(err, "tumble sample")
		}
		if ok {
			ext.Add(v)
		}
		if progress != nil {
			progress(i+1, total)
		}
		e.clk.Sleep(spacing)
	}

	bias, scale, err := ext.Solve(e.sensor.MagAdjust(), e.sensor.MagRes())
	if err != nil {
		log.WithFields(log.Fields{"min": ext.Min, "max": ext.Max, "samples": ext.Count}).
			Warn("calibration: magnetometer run rejected")
		return e.profile, err
	}
	log.WithFields(log.Fields{"bias_mG": bias, "scale": scale, "samples": ext.Count}).
		Info("calibration: magnetometer solved")

	p := e.profile
	p.MagBias = bias
	p.MagScale = scale
	p.Source = "mag"
	if e.profile.Source == "bias" || e.profile.Source == "bias+mag" {
		p.Source = "bias+mag"
	}
	return e.commit(p)
}
