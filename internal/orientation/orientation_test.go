package orientation

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/golang/geo/r3"

	"github.com/relabs-tech/indoor_nav/internal/calibration"
	"github.com/relabs-tech/indoor_nav/internal/clock"
	"github.com/relabs-tech/indoor_nav/internal/imu"
)

func qNorm(f *Filter) float64 {
	q := f.Quaternion()
	return math.Sqrt(q.W*q.W + q.X*q.X + q.Y*q.Y + q.Z*q.Z)
}

// angleDiff returns the smallest absolute difference between two headings.
func angleDiff(a, b float64) float64 {
	d := math.Abs(FoldDegrees(a) - FoldDegrees(b))
	if d > 180 {
		d = 360 - d
	}
	return d
}

func TestComputePoseFromAccel(t *testing.T) {
	p := ComputePoseFromAccel(0, 0, 1)
	if p.Roll != 0 || p.Pitch != 0 {
		t.Errorf("level pose = %+v", p)
	}
	p = ComputePoseFromAccel(-1, 0, 0)
	if math.Abs(p.Pitch-90) > 1e-9 {
		t.Errorf("nose-up pitch = %v, want 90", p.Pitch)
	}
}

func TestFoldDegrees(t *testing.T) {
	cases := map[float64]float64{
		0:      0,
		360:    0,
		-90:    270,
		725:    5,
		-1e-15: 0,
	}
	for in, want := range cases {
		got := FoldDegrees(in)
		if got < 0 || got >= 360 {
			t.Errorf("FoldDegrees(%v) = %v out of range", in, got)
		}
		if math.Abs(got-want) > 1e-9 {
			t.Errorf("FoldDegrees(%v) = %v, want %v", in, got, want)
		}
	}
}

func TestRelativeBearing(t *testing.T) {
	cases := []struct {
		heading, dir, want float64
	}{
		{0, 90, 0},     // facing north, target north
		{0, 0, 90},     // facing north, target east
		{90, 0, 0},     // facing east, target east
		{270, 180, 0},  // facing west, target west
		{180, 90, 180}, // facing south, target north
	}
	for _, c := range cases {
		if got := RelativeBearing(c.heading, c.dir); math.Abs(got-c.want) > 1e-9 {
			t.Errorf("RelativeBearing(%v, %v) = %v, want %v", c.heading, c.dir, got, c.want)
		}
	}
}

func TestParseAxisMap(t *testing.T) {
	m, err := ParseAxisMap("y,-x,-z")
	if err != nil {
		t.Fatal(err)
	}
	got := m.Apply(r3.Vector{X: 1, Y: 2, Z: 3})
	if got != (r3.Vector{X: 2, Y: -1, Z: -3}) {
		t.Errorf("Apply = %v", got)
	}
	if m.String() != "y,-x,-z" {
		t.Errorf("String = %q", m.String())
	}
	for _, bad := range []string{"x,y", "x,x,z", "x,y,w", ""} {
		if _, err := ParseAxisMap(bad); err == nil {
			t.Errorf("ParseAxisMap(%q) accepted", bad)
		}
	}
}

func TestFilterStaysNormalized(t *testing.T) {
	f := NewFilter(40, 0.5)
	now := time.Unix(0, 0)
	a := r3.Vector{X: 0.1, Y: -0.2, Z: 0.97}
	m := r3.Vector{X: 180, Y: 60, Z: -420}
	g := r3.Vector{X: 0.3, Y: -0.1, Z: 1.2}
	for i := 0; i < 2000; i++ {
		now = now.Add(20 * time.Millisecond)
		ok, err := f.Update(a, g, m, now)
		if err != nil || !ok {
			t.Fatalf("step %d: ok=%v err=%v", i, ok, err)
		}
		if n := qNorm(f); math.Abs(n-1) > 1e-4 {
			t.Fatalf("step %d: |q| = %v", i, n)
		}
		if h := f.Heading(-14.23, true); h < 0 || h >= 360 {
			t.Fatalf("step %d: heading %v out of range", i, h)
		}
	}
}

func TestFilterRejectsZeroNorm(t *testing.T) {
	f := NewFilter(40, 1)
	now := time.Unix(100, 0)
	if ok, err := f.Update(r3.Vector{Z: 1}, r3.Vector{}, r3.Vector{X: 1, Z: -1}, now); !ok || err != nil {
		t.Fatalf("first step: ok=%v err=%v", ok, err)
	}
	before, beforeInt := f.Quaternion(), f.IntegralError()

	ok, err := f.Update(r3.Vector{}, r3.Vector{Z: 1}, r3.Vector{X: 1}, now.Add(time.Second))
	if ok || err != nil {
		t.Fatalf("zero accel: ok=%v err=%v", ok, err)
	}
	ok, err = f.Update(r3.Vector{Z: 1}, r3.Vector{Z: 1}, r3.Vector{}, now.Add(time.Second))
	if ok || err != nil {
		t.Fatalf("zero mag: ok=%v err=%v", ok, err)
	}
	ok, _ = f.Update(r3.Vector{Z: math.NaN()}, r3.Vector{}, r3.Vector{X: 1}, now.Add(time.Second))
	if ok {
		t.Fatal("NaN accel accepted")
	}
	if f.Quaternion() != before || f.IntegralError() != beforeInt {
		t.Fatal("rejected step changed state")
	}
}

func TestFilterDiverges(t *testing.T) {
	f := NewFilter(40, 0)
	now := time.Unix(0, 0)
	f.Update(r3.Vector{Z: 1}, r3.Vector{}, r3.Vector{X: 1, Z: -1}, now)
	_, err := f.Update(r3.Vector{Z: 1}, r3.Vector{X: math.Inf(1)}, r3.Vector{X: 1, Z: -1}, now.Add(time.Millisecond))
	if !errors.Is(err, ErrFilterDiverged) {
		t.Fatalf("err = %v, want ErrFilterDiverged", err)
	}
}

func TestFilterTracksLevelHeading(t *testing.T) {
	for _, yaw := range []float64{0, 30, 135, -100} {
		f := NewFilter(40, 0)
		r := yaw * radPerDeg
		// earth field x north, z up, seen from a level body yawed by r
		field := r3.Vector{X: 200, Z: -450}
		m := r3.Vector{
			X: math.Cos(r)*field.X + math.Sin(r)*field.Y,
			Y: -math.Sin(r)*field.X + math.Cos(r)*field.Y,
			Z: field.Z,
		}
		now := time.Unix(0, 0)
		for i := 0; i < 500; i++ {
			now = now.Add(20 * time.Millisecond)
			f.Update(r3.Vector{Z: 1}, r3.Vector{}, m, now)
		}
		if d := angleDiff(f.Heading(0, false), yaw); d > 0.5 {
			t.Errorf("yaw %v: heading %v", yaw, f.Heading(0, false))
		}
		if d := angleDiff(f.Heading(-14.23, true), yaw-14.23); d > 0.5 {
			t.Errorf("yaw %v: true heading %v", yaw, f.Heading(-14.23, true))
		}
	}
}

func newSimCompass(t *testing.T, profile calibration.Profile, opts CompassOptions) (*Compass, *imu.Sim, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	sim := imu.NewSim(clk.Now)
	dopts := imu.DefaultOptions()
	dopts.Clock = clk
	d := imu.New(sim, dopts)
	if err := d.Init(); err != nil {
		t.Fatal(err)
	}
	if err := d.InitMag(); err != nil {
		t.Fatal(err)
	}
	c, err := NewCompass(d, profile, opts)
	if err != nil {
		t.Fatal(err)
	}
	return c, sim, clk
}

func TestCompassConvergesOnSim(t *testing.T) {
	opts := DefaultCompassOptions()
	opts.TrueNorth = false
	c, sim, clk := newSimCompass(t, calibration.DefaultProfile(), opts)
	sim.Spin(30, 0)

	for i := 0; i < 500; i++ {
		clk.Advance(20 * time.Millisecond)
		if _, err := c.Step(clk.Now()); err != nil {
			t.Fatal(err)
		}
	}
	if c.Steps() == 0 {
		t.Fatal("no filter steps accepted")
	}
	if d := angleDiff(c.Heading(), 30); d > 1 {
		t.Fatalf("heading %v, want about 30", c.Heading())
	}
	p := c.Pose()
	if math.Abs(p.Roll) > 1 || math.Abs(p.Pitch) > 1 {
		t.Errorf("level device reports %+v", p)
	}
}

func TestCompassAppliesBias(t *testing.T) {
	opts := DefaultCompassOptions()
	opts.TrueNorth = false

	clk := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	sim := imu.NewSim(clk.Now)
	sim.Spin(200, 0)
	// hard iron offset on the magnetometer, in counts along its own axes
	sim.MagOffset = imu.RawVector{400, -300, 100}
	dopts := imu.DefaultOptions()
	dopts.Clock = clk
	d := imu.New(sim, dopts)
	if err := d.Init(); err != nil {
		t.Fatal(err)
	}
	if err := d.InitMag(); err != nil {
		t.Fatal(err)
	}

	p := calibration.DefaultProfile()
	res := d.MagRes()
	p.MagBias = r3.Vector{X: 400 * res, Y: -300 * res, Z: 100 * res}
	c, err := NewCompass(d, p, opts)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 500; i++ {
		clk.Advance(20 * time.Millisecond)
		if _, err := c.Step(clk.Now()); err != nil {
			t.Fatal(err)
		}
	}
	if d := angleDiff(c.Heading(), 200); d > 1 {
		t.Fatalf("heading %v, want about 200", c.Heading())
	}
}

func TestCompassRejectsInvalidProfile(t *testing.T) {
	p := calibration.DefaultProfile()
	p.MagScale.Y = 0
	if _, err := NewCompass(nil, p, DefaultCompassOptions()); !errors.Is(err, calibration.ErrInvalidProfile) {
		t.Fatalf("err = %v, want ErrInvalidProfile", err)
	}
}
