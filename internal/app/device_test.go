package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/relabs-tech/indoor_nav/internal/button"
	"github.com/relabs-tech/indoor_nav/internal/calibration"
	"github.com/relabs-tech/indoor_nav/internal/clock"
	"github.com/relabs-tech/indoor_nav/internal/imu"
	"github.com/relabs-tech/indoor_nav/internal/navigation"
	"github.com/relabs-tech/indoor_nav/internal/orientation"
	"github.com/relabs-tech/indoor_nav/internal/selection"
)

type fakeTilt struct{ g float64 }

func (f *fakeTilt) Tilt() (float64, error) { return f.g, nil }

type fakeClient struct {
	route   navigation.Instructions
	lastReq navigation.RouteRequest
	routes  int
}

func (c *fakeClient) FetchLocation(ctx context.Context) (navigation.Location, error) {
	return navigation.Location{Latitude: 42.3591, Longitude: -71.0936, Accuracy: 20}, nil
}

func (c *fakeClient) FetchInstructions(ctx context.Context, req navigation.RouteRequest) (navigation.Instructions, error) {
	c.routes++
	c.lastReq = req
	return c.route, nil
}

type recorder struct {
	messages   [][]string
	selections []selection.View
	navs       []navigation.View
}

func (r *recorder) ShowMessage(lines ...string) error {
	r.messages = append(r.messages, lines)
	return nil
}

func (r *recorder) ShowSelection(v selection.View) error {
	r.selections = append(r.selections, v)
	return nil
}

func (r *recorder) ShowNavigation(heading float64, v navigation.View) error {
	r.navs = append(r.navs, v)
	return nil
}

type rig struct {
	d      *Device
	clk    *clock.Fake
	tilt   *fakeTilt
	btn    *button.Virtual
	client *fakeClient
	out    *recorder
}

func newRig(t *testing.T, route navigation.Instructions) *rig {
	t.Helper()
	clk := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	sim := imu.NewSim(clk.Now)
	sim.Spin(30, 0)
	opts := imu.DefaultOptions()
	opts.Clock = clk
	drv := imu.New(sim, opts)
	if err := drv.Init(); err != nil {
		t.Fatal(err)
	}
	if err := drv.InitMag(); err != nil {
		t.Fatal(err)
	}
	copts := orientation.DefaultCompassOptions()
	copts.TrueNorth = false
	compass, err := orientation.NewCompass(drv, calibration.DefaultProfile(), copts)
	if err != nil {
		t.Fatal(err)
	}

	r := &rig{
		clk:    clk,
		tilt:   &fakeTilt{},
		btn:    button.NewVirtual(clk),
		client: &fakeClient{route: route},
		out:    &recorder{},
	}
	nav := navigation.New(r.client, clk, "Team8")
	r.d = NewDevice(Parts{
		Clock:        clk,
		Compass:      compass,
		Button:       button.New(r.btn, clk),
		Selection:    selection.New(r.tilt, clk),
		Navigation:   nav,
		Output:       r.out,
		Registers:    drv,
		CurrentFloor: "1",
	})
	return r
}

// run steps the device every 20 ms for d.
func (r *rig) run(t *testing.T, d time.Duration) {
	t.Helper()
	for el := time.Duration(0); el < d; el += 20 * time.Millisecond {
		if err := r.d.Step(context.Background()); err != nil {
			t.Fatal(err)
		}
		r.clk.Advance(20 * time.Millisecond)
	}
}

// scroll tilts the device until the selection moves by one item.
func (r *rig) scroll(t *testing.T) {
	t.Helper()
	before := r.d.Selection.View()
	r.tilt.g = 0.6
	defer func() { r.tilt.g = 0 }()
	for i := 0; i < 50; i++ {
		r.run(t, 20*time.Millisecond)
		if r.d.Selection.View() != before {
			return
		}
	}
	t.Fatal("tilt never scrolled")
}

func (r *rig) press(t *testing.T, hold time.Duration) {
	t.Helper()
	r.btn.Press(hold)
	r.run(t, hold+200*time.Millisecond)
}

var walk = navigation.Instructions{
	CurrBuilding: "1", NextBuilding: "1", CurrNode: "a1", NextNode: "a2",
	DistNextNode: 12, DirNextNode: 90, ETA: 40, DestNode: "a9", DestBuilding: "1",
}

func (r *rig) selectDestination(t *testing.T) {
	t.Helper()
	r.run(t, 40*time.Millisecond)
	if got := r.d.Selection.State(); got != selection.BuildingSelection {
		t.Fatalf("selection state %v, want building selection", got)
	}
	r.scroll(t)
	r.press(t, 100*time.Millisecond)
	r.scroll(t)
	r.press(t, 100*time.Millisecond)
	if got := r.d.Selection.State(); got != selection.ConfirmDestination {
		t.Fatalf("selection state %v, want confirm", got)
	}
	r.press(t, 100*time.Millisecond)
}

func TestDeviceSelectsAndNavigates(t *testing.T) {
	r := newRig(t, walk)
	r.selectDestination(t)

	if got := r.d.Navigation.State(); got != navigation.Navigating {
		t.Fatalf("navigation state %v, want navigating", got)
	}
	req := r.client.lastReq
	if req.Destination != "1" || req.DestinationFloor != "0" || req.CurrentFloor != "1" || req.UserID != "Team8" {
		t.Fatalf("route request %+v", req)
	}
	if len(r.out.selections) == 0 || len(r.out.navs) == 0 {
		t.Fatalf("display saw %d selection and %d navigation screens", len(r.out.selections), len(r.out.navs))
	}
	last := r.out.navs[len(r.out.navs)-1]
	if last.Instructions == nil || last.Instructions.NextNode != "a2" {
		t.Fatalf("last navigation screen %+v", last)
	}

	snap, ok := r.d.State.Get()
	if !ok || snap.Navigation.State != "navigating" || snap.Selection.StateStr != selection.DestinationSelected.String() {
		t.Fatalf("snapshot %+v", snap)
	}
	if snap.FilterSteps == 0 {
		t.Fatal("compass never stepped")
	}
}

func TestDeviceLongPressCancelsNavigation(t *testing.T) {
	r := newRig(t, walk)
	r.selectDestination(t)
	r.press(t, 1200*time.Millisecond)
	r.run(t, 60*time.Millisecond)

	if got := r.d.Navigation.State(); got != navigation.Idle {
		t.Fatalf("navigation state %v, want idle", got)
	}
	if got := r.d.Selection.State(); got != selection.BuildingSelection {
		t.Fatalf("selection state %v, want building selection", got)
	}
	if v := r.d.Selection.View(); v.Building != "" || v.Floor != "" {
		t.Fatalf("selection not cleared: %+v", v)
	}
}

func TestDeviceStopsOnArrival(t *testing.T) {
	arrived := walk
	arrived.HasArrived = true
	r := newRig(t, arrived)
	r.selectDestination(t)
	r.run(t, 200*time.Millisecond)

	if got := r.d.Navigation.State(); got != navigation.Idle {
		t.Fatalf("navigation state %v, want idle after arrival", got)
	}
	if r.client.routes != 1 {
		t.Fatalf("routing fetched %d times, want 1", r.client.routes)
	}
	last := r.out.navs[len(r.out.navs)-1]
	if !last.Arrived {
		t.Fatalf("last navigation screen %+v, want arrived", last)
	}
}

func TestDeviceHalt(t *testing.T) {
	r := newRig(t, walk)
	err := r.d.Halt(ErrSelfTestFailed)
	if !errors.Is(err, ErrSelfTestFailed) {
		t.Fatalf("Halt returned %v", err)
	}
	last := r.out.messages[len(r.out.messages)-1]
	if len(last) != 2 || last[1] != "Self-test failed" {
		t.Fatalf("halt screen %q", last)
	}
	if err := r.d.Step(context.Background()); !errors.Is(err, ErrSelfTestFailed) {
		t.Fatalf("Step after halt returned %v", err)
	}
	if snap, _ := r.d.State.Get(); snap.Fatal == "" {
		t.Fatal("snapshot does not carry the fatal error")
	}
}

func TestDeviceServesRegisterDump(t *testing.T) {
	r := newRig(t, walk)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	type result struct {
		values []imu.RegisterValue
		err    error
	}
	done := make(chan result, 1)
	go func() {
		v, err := r.d.DumpRegisters(ctx, "ak8963")
		done <- result{v, err}
	}()

	for {
		select {
		case res := <-done:
			if res.err != nil {
				t.Fatal(res.err)
			}
			if len(res.values) != len(imu.AK8963Registers) || res.values[0].Value != 0x48 {
				t.Fatalf("dump %+v", res.values)
			}
			return
		case <-ctx.Done():
			t.Fatal("register dump not served")
		default:
			if err := r.d.Step(ctx); err != nil {
				t.Fatal(err)
			}
			time.Sleep(time.Millisecond)
		}
	}
}
