package calibration

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/relabs-tech/indoor_nav/internal/imu"
)

// MagExtents tracks the running per-axis min/max of raw magnetometer counts.
type MagExtents struct {
	Min, Max imu.RawVector
	Count    int
}

// NewMagExtents returns empty extents.
func NewMagExtents() *MagExtents {
	return &MagExtents{
		Min: imu.RawVector{math.MaxInt16, math.MaxInt16, math.MaxInt16},
		Max: imu.RawVector{math.MinInt16, math.MinInt16, math.MinInt16},
	}
}

// Add folds one sample into the extents.
func (e *MagExtents) Add(v imu.RawVector) {
	for k := 0; k < 3; k++ {
		if v[k] > e.Max[k] {
			e.Max[k] = v[k]
		}
		if v[k] < e.Min[k] {
			e.Min[k] = v[k]
		}
	}
	e.Count++
}

// Solve returns the hard-iron bias in mG and the soft-iron scale factors.
// bias = (max+min)/2 * asa * mres, scale = mean(half range) / half range.
// A flat axis or a non-finite result is ErrDegenerate.
func (e *MagExtents) Solve(asa r3.Vector, mres float64) (bias, scale r3.Vector, err error) {
	if e.Count == 0 {
		return bias, scale, errors.Wrap(ErrDegenerate, "no magnetometer samples")
	}
	var half [3]float64
	var mid [3]int64
	for k := 0; k < 3; k++ {
		mid[k] = (int64(e.Max[k]) + int64(e.Min[k])) / 2
		half[k] = float64(int64(e.Max[k])-int64(e.Min[k])) / 2
		if half[k] <= 0 {
			return bias, scale, errors.Wrapf(ErrDegenerate, "magnetometer axis %c has zero range", "xyz"[k])
		}
	}
	avg := (half[0] + half[1] + half[2]) / 3

	bias = r3.Vector{
		X: float64(mid[0]) * asa.X * mres,
		Y: float64(mid[1]) * asa.Y * mres,
		Z: float64(mid[2]) * asa.Z * mres,
	}
	scale = r3.Vector{X: avg / half[0], Y: avg / half[1], Z: avg / half[2]}
	if !finite(bias) || !finite(scale) {
		return r3.Vector{}, r3.Vector{}, errors.Wrapf(ErrDegenerate, "non-finite result bias=%v scale=%v", bias, scale)
	}
	return bias, scale, nil
}
