// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"sync"
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/indoor_nav/internal/calibration"
	"github.com/relabs-tech/indoor_nav/internal/imu"
)

// Sensor is the part of the inertial driver the compass needs.
type Sensor interface {
	ReadSample() (imu.RawSample, bool, error)
	MagAdjust() r3.Vector
}

// CompassOptions configures filter gains, declination and axis mapping.
type CompassOptions struct {
	Kp, Ki         float64
	DeclinationDeg float64
	TrueNorth      bool

	AccelAxes AxisMap
	GyroAxes  AxisMap
	MagAxes   AxisMap
}

// DefaultCompassOptions matches an MPU9250 breakout with the magnetometer
// die in its usual orientation.
func DefaultCompassOptions() CompassOptions {
	acc, _ := ParseAxisMap("x,-y,z")
	gyr, _ := ParseAxisMap("x,-y,z")
	mag, _ := ParseAxisMap("y,-x,-z")
	return CompassOptions{
		Kp:             40,
		DeclinationDeg: -14.23,
		TrueNorth:      true,
		AccelAxes:      acc,
		GyroAxes:       gyr,
		MagAxes:        mag,
	}
}

// Compass reads the sensor, applies the calibration profile and feeds the
// attitude filter. Heading and Pose are safe to call from other goroutines.
type Compass struct {
	s    Sensor
	opts CompassOptions

	mu      sync.RWMutex
	profile calibration.Profile
	filter  *Filter
	pose    Pose
	lastMag r3.Vector
	haveMag bool
	steps   uint64
}

// NewCompass refuses a profile that fails validation.
func NewCompass(s Sensor, profile calibration.Profile, opts CompassOptions) (*Compass, error) {
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	c := &Compass{
		s:       s,
		opts:    opts,
		profile: profile,
		filter:  NewFilter(opts.Kp, opts.Ki),
	}
	c.pose = c.filter.Pose(opts.DeclinationDeg, opts.TrueNorth)
	return c, nil
}

// SetProfile swaps in a new calibration profile.
func (c *Compass) SetProfile(p calibration.Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	c.profile = p
	c.mu.Unlock()
	return nil
}

// Profile returns the profile currently applied.
func (c *Compass) Profile() calibration.Profile {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.profile
}

// Step reads one sample and runs a filter update. It returns false when
// no sample was ready, no magnetometer reading has arrived yet or the
// filter rejected the step. Only ErrFilterDiverged and bus errors are
// returned as errors.
func (c *Compass) Step(now time.Time) (bool, error) {
	sample, ready, err := c.s.ReadSample()
	if err != nil {
		return false, errors.Wrap(err, "read sample")
	}
	if !ready {
		return false, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.profile
	if sample.MagValid {
		c.lastMag = p.ApplyMag(sample.Mag, c.s.MagAdjust(), sample.MagRes)
		c.haveMag = true
	}
	if !c.haveMag {
		return false, nil
	}

	a := sample.Accel.Scale(sample.AccelRes).Sub(p.AccelBias)
	g := sample.Gyro.Scale(sample.GyroRes).Sub(p.GyroBias).Mul(radPerDeg)

	ok, err := c.filter.Update(
		c.opts.AccelAxes.Apply(a),
		c.opts.GyroAxes.Apply(g),
		c.opts.MagAxes.Apply(c.lastMag),
		now,
	)
	if err != nil {
		log.WithError(err).Error("IMU: attitude filter diverged")
		return false, err
	}
	if !ok {
		return false, nil
	}
	c.steps++
	c.pose = c.filter.Pose(c.opts.DeclinationDeg, c.opts.TrueNorth)
	return true, nil
}

// Heading returns the latest compass heading in [0, 360).
func (c *Compass) Heading() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pose.Heading
}

// Pose returns the latest attitude.
func (c *Compass) Pose() Pose {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pose
}

// Steps counts accepted filter updates.
func (c *Compass) Steps() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.steps
}
