package imu

import (
	"strings"

	"github.com/pkg/errors"
)

// Tilt exposes one live accelerometer axis, in g, for gesture input.
type Tilt struct {
	d    *Driver
	axis int
	sign float64
}

// NewTilt returns a tilt source reading axis ("x", "y" or "z", optionally
// prefixed with "-").
func NewTilt(d *Driver, axis string) (*Tilt, error) {
	t := &Tilt{d: d, sign: 1}
	axis = strings.TrimSpace(axis)
	if strings.HasPrefix(axis, "-") {
		t.sign = -1
		axis = axis[1:]
	}
	switch axis {
	case "x":
		t.axis = 0
	case "y":
		t.axis = 1
	case "z":
		t.axis = 2
	default:
		return nil, errors.Errorf("unknown tilt axis %q", axis)
	}
	return t, nil
}

// Tilt returns the current reading of the selected axis.
func (t *Tilt) Tilt() (float64, error) {
	c, err := t.d.ReadAccelCounts()
	if err != nil {
		return 0, err
	}
	return t.sign * float64(c[t.axis]) * t.d.AccelRes(), nil
}
