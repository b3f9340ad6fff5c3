package orientation

import (
	"math"
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/westphae/quaternion"
)

// ErrFilterDiverged means the quaternion could not be renormalized. It is an
// internal consistency failure and the filter must not be used afterwards.
var ErrFilterDiverged = errors.New("attitude filter diverged")

// Filter is a Mahony proportional-integral attitude filter. The state is a
// unit quaternion rotating the body frame into the earth frame (x north,
// z up), plus the integral error used when Ki > 0.
type Filter struct {
	Kp float64
	Ki float64

	q    quaternion.Quaternion
	eInt r3.Vector
	last time.Time
}

// NewFilter returns a filter at the identity attitude.
func NewFilter(kp, ki float64) *Filter {
	return &Filter{Kp: kp, Ki: ki, q: quaternion.Quaternion{W: 1}}
}

// Quaternion returns the current attitude.
func (f *Filter) Quaternion() quaternion.Quaternion { return f.q }

// IntegralError returns the accumulated error term.
func (f *Filter) IntegralError() r3.Vector { return f.eInt }

// Reset returns the filter to the identity attitude and forgets the last
// update time.
func (f *Filter) Reset() {
	f.q = quaternion.Quaternion{W: 1}
	f.eInt = r3.Vector{}
	f.last = time.Time{}
}

func unit(v r3.Vector) (r3.Vector, bool) {
	n := v.Norm()
	if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return v, false
	}
	return v.Mul(1 / n), true
}

// Update runs one step with accelerometer a (any unit), gyro rate g in
// rad/s and magnetometer m (any unit), all in the filter frame. The step
// is rejected, leaving the state untouched, when a or m has no direction.
// The integration interval is now minus the previous accepted step; the
// first step only corrects the integral term.
func (f *Filter) Update(a, g, m r3.Vector, now time.Time) (bool, error) {
	a, ok := unit(a)
	if !ok {
		return false, nil
	}
	m, ok = unit(m)
	if !ok {
		return false, nil
	}

	q1, q2, q3, q4 := f.q.W, f.q.X, f.q.Y, f.q.Z
	q1q1, q1q2, q1q3, q1q4 := q1*q1, q1*q2, q1*q3, q1*q4
	q2q2, q2q3, q2q4 := q2*q2, q2*q3, q2*q4
	q3q3, q3q4 := q3*q3, q3*q4
	q4q4 := q4 * q4

	// earth field direction seen through the current estimate
	hx := 2*m.X*(0.5-q3q3-q4q4) + 2*m.Y*(q2q3-q1q4) + 2*m.Z*(q2q4+q1q3)
	hy := 2*m.X*(q2q3+q1q4) + 2*m.Y*(0.5-q2q2-q4q4) + 2*m.Z*(q3q4-q1q2)
	bx := math.Sqrt(hx*hx + hy*hy)
	bz := 2*m.X*(q2q4-q1q3) + 2*m.Y*(q3q4+q1q2) + 2*m.Z*(0.5-q2q2-q3q3)

	// estimated gravity and field directions in the body frame
	v := r3.Vector{
		X: 2 * (q2q4 - q1q3),
		Y: 2 * (q1q2 + q3q4),
		Z: q1q1 - q2q2 - q3q3 + q4q4,
	}
	w := r3.Vector{
		X: 2*bx*(0.5-q3q3-q4q4) + 2*bz*(q2q4-q1q3),
		Y: 2*bx*(q2q3-q1q4) + 2*bz*(q1q2+q3q4),
		Z: 2*bx*(q1q3+q2q4) + 2*bz*(0.5-q2q2-q3q3),
	}

	e := a.Cross(v).Add(m.Cross(w))

	eInt := r3.Vector{}
	if f.Ki > 0 {
		eInt = f.eInt.Add(e)
	}
	rate := g.Add(e.Mul(f.Kp)).Add(eInt.Mul(f.Ki))

	dt := 0.0
	if !f.last.IsZero() {
		dt = now.Sub(f.last).Seconds()
	}

	qDot := quaternion.Prod(f.q, quaternion.Quaternion{X: rate.X, Y: rate.Y, Z: rate.Z})
	h := 0.5 * dt
	next := quaternion.Quaternion{
		W: q1 + qDot.W*h,
		X: q2 + qDot.X*h,
		Y: q3 + qDot.Y*h,
		Z: q4 + qDot.Z*h,
	}
	n := math.Sqrt(next.W*next.W + next.X*next.X + next.Y*next.Y + next.Z*next.Z)
	if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return false, errors.Wrapf(ErrFilterDiverged, "quaternion norm %g after dt=%gs", n, dt)
	}

	f.q = quaternion.Quaternion{W: next.W / n, X: next.X / n, Y: next.Y / n, Z: next.Z / n}
	f.eInt = eInt
	f.last = now
	return true, nil
}

// Euler returns roll, pitch and yaw in degrees.
func (f *Filter) Euler() (roll, pitch, yaw float64) {
	q0, q1, q2, q3 := f.q.W, f.q.X, f.q.Y, f.q.Z
	s := 2 * (q1*q3 - q0*q2)
	s = math.Max(-1, math.Min(1, s))
	pitch = math.Asin(s)
	roll = -math.Atan2(2*(q0*q1+q2*q3), q0*q0-q1*q1-q2*q2+q3*q3)
	yaw = math.Atan2(2*(q1*q2+q0*q3), q0*q0+q1*q1-q2*q2-q3*q3)
	return roll * degPerRad, pitch * degPerRad, yaw * degPerRad
}

// Heading returns the yaw folded into [0, 360), with declinationDeg added
// and refolded when trueNorth is set.
func (f *Filter) Heading(declinationDeg float64, trueNorth bool) float64 {
	_, _, yaw := f.Euler()
	h := FoldDegrees(yaw)
	if trueNorth {
		h = FoldDegrees(h + declinationDeg)
	}
	return h
}

// Pose returns the full attitude.
func (f *Filter) Pose(declinationDeg float64, trueNorth bool) Pose {
	roll, pitch, yaw := f.Euler()
	return Pose{Roll: roll, Pitch: pitch, Yaw: yaw, Heading: f.Heading(declinationDeg, trueNorth)}
}
