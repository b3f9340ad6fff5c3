package orientation

import (
	"strings"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

type axisTerm struct {
	src  int
	sign float64
}

// AxisMap remaps and sign-flips sensor axes into the filter frame.
// "y,-x,-z" means out = (in.y, -in.x, -in.z).
type AxisMap [3]axisTerm

// Identity leaves axes unchanged.
var Identity = AxisMap{{0, 1}, {1, 1}, {2, 1}}

// ParseAxisMap parses three comma-separated terms, each an optionally
// negated x, y or z. Every source axis must appear once.
func ParseAxisMap(s string) (AxisMap, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return AxisMap{}, errors.Errorf("axis map %q: want 3 terms", s)
	}
	var m AxisMap
	var seen [3]bool
	for i, p := range parts {
		p = strings.TrimSpace(p)
		t := axisTerm{sign: 1}
		if strings.HasPrefix(p, "-") {
			t.sign = -1
			p = p[1:]
		}
		switch p {
		case "x":
			t.src = 0
		case "y":
			t.src = 1
		case "z":
			t.src = 2
		default:
			return AxisMap{}, errors.Errorf("axis map %q: unknown axis %q", s, p)
		}
		if seen[t.src] {
			return AxisMap{}, errors.Errorf("axis map %q: axis %q used twice", s, p)
		}
		seen[t.src] = true
		m[i] = t
	}
	return m, nil
}

// Apply remaps v.
func (m AxisMap) Apply(v r3.Vector) r3.Vector {
	in := [3]float64{v.X, v.Y, v.Z}
	return r3.Vector{
		X: m[0].sign * in[m[0].src],
		Y: m[1].sign * in[m[1].src],
		Z: m[2].sign * in[m[2].src],
	}
}

func (m AxisMap) String() string {
	var b strings.Builder
	for i, t := range m {
		if i > 0 {
			b.WriteByte(',')
		}
		if t.sign < 0 {
			b.WriteByte('-')
		}
		b.WriteByte("xyz"[t.src])
	}
	return b.String()
}
