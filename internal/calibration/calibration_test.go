package calibration

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang/geo/r3"

	"github.com/relabs-tech/indoor_nav/internal/clock"
	"github.com/relabs-tech/indoor_nav/internal/imu"
)

const tol = 1e-4

func vecNear(a, b r3.Vector, eps float64) bool {
	return math.Abs(a.X-b.X) <= eps && math.Abs(a.Y-b.Y) <= eps && math.Abs(a.Z-b.Z) <= eps
}

func TestMagSolveRoundTrip(t *testing.T) {
	ext := NewMagExtents()
	ext.Add(imu.RawVector{100, 200, 300})
	ext.Add(imu.RawVector{-100, 0, 100})
	ext.Add(imu.RawVector{0, 100, 200})

	bias, scale, err := ext.Solve(r3.Vector{X: 1, Y: 1, Z: 1}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !vecNear(bias, r3.Vector{X: 0, Y: 100, Z: 200}, tol) {
		t.Errorf("bias = %v, want (0,100,200)", bias)
	}
	for _, s := range []float64{scale.X, scale.Y, scale.Z} {
		if s <= 0 || math.IsInf(s, 0) || math.IsNaN(s) {
			t.Errorf("scale = %v, want finite positive", scale)
		}
	}
}

func TestMagSolveScalesToSphere(t *testing.T) {
	ext := NewMagExtents()
	ext.Add(imu.RawVector{200, 100, 300})
	ext.Add(imu.RawVector{-200, -100, -300})

	_, scale, err := ext.Solve(r3.Vector{X: 1, Y: 1, Z: 1}, 0.15)
	if err != nil {
		t.Fatal(err)
	}
	if !vecNear(scale, r3.Vector{X: 1, Y: 2, Z: 2.0 / 3.0}, tol) {
		t.Errorf("scale = %v", scale)
	}
}

func TestMagSolveDegenerate(t *testing.T) {
	ext := NewMagExtents()
	if _, _, err := ext.Solve(r3.Vector{X: 1, Y: 1, Z: 1}, 1); !errors.Is(err, ErrDegenerate) {
		t.Errorf("empty extents: err = %v", err)
	}
	ext.Add(imu.RawVector{10, 20, 30})
	ext.Add(imu.RawVector{-10, -20, 30})
	if _, _, err := ext.Solve(r3.Vector{X: 1, Y: 1, Z: 1}, 1); !errors.Is(err, ErrDegenerate) {
		t.Errorf("flat z axis: err = %v", err)
	}
}

func TestComputeBias(t *testing.T) {
	b := imu.Burst{AccelRes: 1.0 / 16384, GyroRes: 250.0 / 32768}
	for i := 0; i < 40; i++ {
		b.Accel = append(b.Accel, imu.RawVector{164, -82, 16384 + 328})
		b.Gyro = append(b.Gyro, imu.RawVector{131, 0, -262})
	}
	gyro, accel, err := ComputeBias(b)
	if err != nil {
		t.Fatal(err)
	}
	if !vecNear(accel, r3.Vector{X: 164.0 / 16384, Y: -82.0 / 16384, Z: 328.0 / 16384}, tol) {
		t.Errorf("accel bias = %v", accel)
	}
	if !vecNear(gyro, r3.Vector{X: 131 * 250.0 / 32768, Y: 0, Z: -262 * 250.0 / 32768}, tol) {
		t.Errorf("gyro bias = %v", gyro)
	}

	// face down: gravity is added back instead of subtracted
	for i := range b.Accel {
		b.Accel[i] = imu.RawVector{0, 0, -16384 + 164}
	}
	_, accel, err = ComputeBias(b)
	if err != nil {
		t.Fatal(err)
	}
	if !vecNear(accel, r3.Vector{Z: 164.0 / 16384}, tol) {
		t.Errorf("face-down accel bias = %v", accel)
	}
}

func TestComputeBiasEmptyBurst(t *testing.T) {
	_, _, err := ComputeBias(imu.Burst{AccelRes: 1, GyroRes: 1})
	if !errors.Is(err, ErrDegenerate) {
		t.Errorf("err = %v, want ErrDegenerate", err)
	}
}

func TestValidate(t *testing.T) {
	if err := DefaultProfile().Validate(); err != nil {
		t.Errorf("default profile invalid: %v", err)
	}
	p := DefaultProfile()
	p.MagScale.Y = 0
	if err := p.Validate(); !errors.Is(err, ErrInvalidProfile) {
		t.Errorf("zero scale: err = %v", err)
	}
	p = DefaultProfile()
	p.GyroBias.X = math.NaN()
	if err := p.Validate(); !errors.Is(err, ErrInvalidProfile) {
		t.Errorf("NaN bias: err = %v", err)
	}
}

func TestApplyMag(t *testing.T) {
	p := Profile{MagBias: r3.Vector{X: 10, Y: -20, Z: 0}, MagScale: r3.Vector{X: 2, Y: 1, Z: 0.5}}
	got := p.ApplyMag([3]int16{10, 20, 40}, r3.Vector{X: 1, Y: 1, Z: 1}, 1.5)
	if !vecNear(got, r3.Vector{X: 10, Y: 50, Z: 30}, tol) {
		t.Errorf("ApplyMag = %v", got)
	}
}

// scriptedSensor replays a fixed list of magnetometer samples.
type scriptedSensor struct {
	samples []imu.RawVector
	i       int
	mode    imu.MagMode
	burst   imu.Burst
}

func (s *scriptedSensor) CaptureBurst() (imu.Burst, error) { return s.burst, nil }
func (s *scriptedSensor) MagAdjust() r3.Vector             { return r3.Vector{X: 1, Y: 1, Z: 1} }
func (s *scriptedSensor) MagRes() float64                  { return 1 }
func (s *scriptedSensor) MagMode() imu.MagMode             { return s.mode }

func (s *scriptedSensor) ReadMagCounts() (imu.RawVector, bool, error) {
	v := s.samples[s.i%len(s.samples)]
	s.i++
	return v, true, nil
}

func TestEngineMag(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	s := &scriptedSensor{
		mode: imu.Mag8Hz,
		samples: []imu.RawVector{
			{300, 0, 0}, {-100, 0, 0}, {0, 250, 0}, {0, -150, 0}, {0, 0, 220}, {0, 0, -180},
		},
	}
	e, err := NewEngine(s, clk, DefaultProfile())
	if err != nil {
		t.Fatal(err)
	}
	calls := 0
	p, err := e.RunMag(context.Background(), func(done, total int) {
		calls++
		if total != 240 {
			t.Fatalf("total = %d, want 240 at 8 Hz", total)
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	if calls != 240 || s.i != 240 {
		t.Errorf("progress calls = %d, reads = %d", calls, s.i)
	}
	if !vecNear(p.MagBias, r3.Vector{X: 100, Y: 50, Z: 20}, tol) {
		t.Errorf("bias = %v", p.MagBias)
	}
	if !vecNear(p.MagScale, r3.Vector{X: 1, Y: 1, Z: 1}, tol) {
		t.Errorf("scale = %v", p.MagScale)
	}
	if got := clk.Now().Sub(time.Unix(0, 0)); got != 240*135*time.Millisecond {
		t.Errorf("run took %v", got)
	}
	if e.Profile().Source != "mag" {
		t.Errorf("source = %q", e.Profile().Source)
	}
}

func TestEngineRejectsDegenerateAndKeepsProfile(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	good := DefaultProfile()
	good.MagBias = r3.Vector{X: -30, Y: 365, Z: -255.17}
	good.MagScale = r3.Vector{X: 1.05, Y: 1.10, Z: 0.9}

	// stuck sensor: every axis flat
	s := &scriptedSensor{mode: imu.Mag100Hz, samples: []imu.RawVector{{5, 5, 5}}}
	e, err := NewEngine(s, clk, good)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.RunMag(context.Background(), nil); !errors.Is(err, ErrDegenerate) {
		t.Fatalf("err = %v, want ErrDegenerate", err)
	}
	if e.Profile() != good {
		t.Errorf("profile overwritten: %+v", e.Profile())
	}
}

func TestEngineMagCancelled(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	s := &scriptedSensor{mode: imu.Mag8Hz, samples: []imu.RawVector{{1, 2, 3}}}
	e, _ := NewEngine(s, clk, DefaultProfile())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.RunMag(ctx, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if s.i != 0 {
		t.Errorf("read %d samples after cancel", s.i)
	}
}

func TestEngineBiasOnSimulatedDevice(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	sim := imu.NewSim(clk.Now)
	sim.GyroOffset = imu.RawVector{262, -131, 0}
	opts := imu.DefaultOptions()
	opts.Clock = clk
	d := imu.New(sim, opts)
	if err := d.Init(); err != nil {
		t.Fatal(err)
	}
	if err := d.InitMag(); err != nil {
		t.Fatal(err)
	}

	e, err := NewEngine(d, clk, DefaultProfile())
	if err != nil {
		t.Fatal(err)
	}
	p, err := e.RunBias(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	res := 250.0 / 32768
	if !vecNear(p.GyroBias, r3.Vector{X: 262 * res, Y: -131 * res}, tol) {
		t.Errorf("gyro bias = %v", p.GyroBias)
	}
	if !vecNear(p.AccelBias, r3.Vector{}, tol) {
		t.Errorf("accel bias = %v", p.AccelBias)
	}
}

func TestStore(t *testing.T) {
	s := Store{Path: filepath.Join(t.TempDir(), "cal", "profile.yaml")}
	if _, err := s.Load(); !errors.Is(err, ErrNoProfile) {
		t.Fatalf("Load on empty store: %v", err)
	}
	p, err := s.LoadOrDefault()
	if err != nil || p.MagScale != (r3.Vector{X: 1, Y: 1, Z: 1}) {
		t.Fatalf("LoadOrDefault = %+v, %v", p, err)
	}

	want := DefaultProfile()
	want.MagBias = r3.Vector{X: 1.5, Y: -2, Z: 3}
	want.MagScale = r3.Vector{X: 1.1, Y: 0.9, Z: 1}
	want.CalibratedAt = time.Date(2026, 5, 4, 3, 2, 1, 0, time.UTC)
	if err := s.Save(want); err != nil {
		t.Fatal(err)
	}
	got, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if got.MagBias != want.MagBias || got.MagScale != want.MagScale || !got.CalibratedAt.Equal(want.CalibratedAt) {
		t.Errorf("round trip = %+v, want %+v", got, want)
	}

	bad := want
	bad.MagScale.Z = 0
	if err := s.Save(bad); !errors.Is(err, ErrInvalidProfile) {
		t.Errorf("Save(invalid) err = %v", err)
	}
	got, err = s.Load()
	if err != nil || got.MagScale != want.MagScale {
		t.Errorf("good profile replaced: %+v, %v", got, err)
	}
}
