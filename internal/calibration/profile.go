// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package calibration computes and stores sensor bias and magnetometer
// hard/soft-iron corrections.
package calibration

import (
	"math"
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

var (
	// ErrDegenerate marks a calibration run whose data cannot produce a
	// usable correction (flat axis, no samples, non-finite result).
	ErrDegenerate = errors.New("degenerate calibration data")
	// ErrInvalidProfile marks a profile that must not be applied.
	ErrInvalidProfile = errors.New("invalid calibration profile")
)

// Profile is the full set of corrections applied to every reading.
type Profile struct {
	GyroBias  r3.Vector `yaml:"gyro_bias" json:"gyro_bias"`   // °/s
	AccelBias r3.Vector `yaml:"accel_bias" json:"accel_bias"` // g
	MagBias   r3.Vector `yaml:"mag_bias" json:"mag_bias"`     // mG
	MagScale  r3.Vector `yaml:"mag_scale" json:"mag_scale"`   // unitless

	Source       string    `yaml:"source" json:"source"`
	CalibratedAt time.Time `yaml:"calibrated_at" json:"calibrated_at"`
}

// DefaultProfile applies no correction.
func DefaultProfile() Profile {
	return Profile{
		MagScale: r3.Vector{X: 1, Y: 1, Z: 1},
		Source:   "default",
	}
}

func finite(v r3.Vector) bool {
	for _, f := range []float64{v.X, v.Y, v.Z} {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

// Validate rejects non-finite values and non-positive scale factors. A
// zero scale would otherwise erase an axis.
func (p Profile) Validate() error {
	for name, v := range map[string]r3.Vector{
		"gyro bias":  p.GyroBias,
		"accel bias": p.AccelBias,
		"mag bias":   p.MagBias,
		"mag scale":  p.MagScale,
	} {
		if !finite(v) {
			return errors.Wrapf(ErrInvalidProfile, "%s %v is not finite", name, v)
		}
	}
	if p.MagScale.X <= 0 || p.MagScale.Y <= 0 || p.MagScale.Z <= 0 {
		return errors.Wrapf(ErrInvalidProfile, "mag scale %v must be positive", p.MagScale)
	}
	return nil
}

// ApplyMag converts raw magnetometer counts to corrected milliGauss:
// (counts*asa*mres - bias) * scale.
func (p Profile) ApplyMag(counts [3]int16, asa r3.Vector, mres float64) r3.Vector {
	return r3.Vector{
		X: (float64(counts[0])*mres*asa.X - p.MagBias.X) * p.MagScale.X,
		Y: (float64(counts[1])*mres*asa.Y - p.MagBias.Y) * p.MagScale.Y,
		Z: (float64(counts[2])*mres*asa.Z - p.MagBias.Z) * p.MagScale.Z,
	}
}
