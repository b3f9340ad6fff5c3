package selection

import (
	"errors"
	"testing"
	"time"

	"github.com/relabs-tech/indoor_nav/internal/button"
	"github.com/relabs-tech/indoor_nav/internal/clock"
)

type fakeTilt struct {
	g   float64
	err error
}

func (f *fakeTilt) Tilt() (float64, error) { return f.g, f.err }

func TestWrap(t *testing.T) {
	for n := 1; n <= 12; n++ {
		for i := -3 * n; i <= 3*n; i++ {
			w := Wrap(i, n)
			if w < 0 || w >= n {
				t.Fatalf("Wrap(%d, %d) = %d out of range", i, n, w)
			}
			if Wrap(i+n, n) != w {
				t.Fatalf("Wrap(%d+%d, %d) != Wrap(%d, %d)", i, n, n, i, n)
			}
		}
	}
	if Wrap(-1, 10) != 9 {
		t.Errorf("Wrap(-1, 10) = %d, want 9", Wrap(-1, 10))
	}
}

func newMachine() (*Machine, *fakeTilt, *clock.Fake) {
	clk := clock.NewFake(time.Unix(500, 0))
	tilt := &fakeTilt{}
	return New(tilt, clk), tilt, clk
}

func TestTiltScrollsAfterDebounce(t *testing.T) {
	m, tilt, clk := newMachine()
	m.Begin()
	m.Update(button.None)
	if m.State() != BuildingSelection {
		t.Fatalf("state = %v, want building", m.State())
	}
	if v := m.View(); v.Building != "" {
		t.Fatalf("building preset to %q", v.Building)
	}

	tilt.g = 0.5
	clk.Advance(100 * time.Millisecond)
	m.Update(button.None)
	if v := m.View(); v.Building != "" {
		t.Fatalf("scrolled before debounce: %q", v.Building)
	}
	clk.Advance(50 * time.Millisecond) // exactly 150 ms, still not past
	m.Update(button.None)
	if v := m.View(); v.Building != "" {
		t.Fatalf("scrolled at debounce boundary: %q", v.Building)
	}
	clk.Advance(time.Millisecond)
	m.Update(button.None)
	if v := m.View(); v.Building != Buildings[0] {
		t.Fatalf("building = %q, want %q", v.Building, Buildings[0])
	}
}

func TestSmallTiltIsIgnored(t *testing.T) {
	m, tilt, clk := newMachine()
	m.Begin()
	m.Update(button.None)
	tilt.g = -0.3
	for i := 0; i < 10; i++ {
		clk.Advance(time.Second)
		m.Update(button.None)
	}
	if v := m.View(); v.Building != "" {
		t.Fatalf("scrolled on threshold tilt: %q", v.Building)
	}
}

func TestNegativeTiltWraps(t *testing.T) {
	m, tilt, clk := newMachine()
	m.Begin()
	m.Update(button.None)
	tilt.g = -0.8
	clk.Advance(200 * time.Millisecond)
	m.Update(button.None)
	// -1 - 1 wraps to the second to last building
	if v := m.View(); v.Building != Buildings[len(Buildings)-2] {
		t.Fatalf("building = %q", v.Building)
	}
}

func TestFullSelection(t *testing.T) {
	m, tilt, clk := newMachine()
	m.Begin()
	m.Update(button.None)

	// a press with nothing chosen does not advance
	m.Update(button.ShortPress)
	if m.State() != BuildingSelection {
		t.Fatalf("advanced without a building: %v", m.State())
	}

	tilt.g = 0.5
	for i := 0; i < 3; i++ {
		clk.Advance(200 * time.Millisecond)
		m.Update(button.None)
	}
	tilt.g = 0
	m.Update(button.ShortPress)
	if m.State() != FloorSelection {
		t.Fatalf("state = %v, want floor", m.State())
	}

	tilt.g = 0.5
	clk.Advance(200 * time.Millisecond)
	m.Update(button.None)
	clk.Advance(200 * time.Millisecond)
	m.Update(button.None)
	tilt.g = 0
	m.Update(button.ShortPress)
	if m.State() != ConfirmDestination {
		t.Fatalf("state = %v, want confirm", m.State())
	}
	if _, ok := m.Destination(); ok {
		t.Fatal("destination valid before confirmation")
	}

	done, err := m.Update(button.ShortPress)
	if err != nil || !done {
		t.Fatalf("confirm: done=%v err=%v", done, err)
	}
	d, ok := m.Destination()
	if !ok || d.Building != "3" || d.Floor != "1" {
		t.Fatalf("destination = %+v ok=%v, want 3/1", d, ok)
	}

	// terminal until End
	m.Update(button.LongPress)
	if m.State() != DestinationSelected {
		t.Fatalf("state = %v, want selected", m.State())
	}
	m.End()
	m.Update(button.None)
	if m.State() != Idle {
		t.Fatalf("state = %v, want idle", m.State())
	}
	if v := m.View(); v.Building != "" || v.Floor != "" {
		t.Fatalf("selection not cleared: %+v", v)
	}
}

func TestLongPressCancels(t *testing.T) {
	m, tilt, clk := newMachine()
	m.Begin()
	m.Update(button.None)
	tilt.g = 0.5
	clk.Advance(200 * time.Millisecond)
	m.Update(button.None)
	tilt.g = 0
	m.Update(button.ShortPress)
	tilt.g = 0.5
	clk.Advance(200 * time.Millisecond)
	m.Update(button.None)
	tilt.g = 0
	m.Update(button.ShortPress)
	if m.State() != ConfirmDestination {
		t.Fatalf("state = %v, want confirm", m.State())
	}
	m.Update(button.LongPress)
	if m.State() != BuildingSelection {
		t.Fatalf("state = %v, want building", m.State())
	}
	if v := m.View(); v.Building != "" || v.Floor != "" {
		t.Fatalf("selection not cleared: %+v", v)
	}
}

func TestTiltErrorKeepsPress(t *testing.T) {
	m, tilt, clk := newMachine()
	m.Begin()
	m.Update(button.None)
	tilt.g = 0.5
	clk.Advance(200 * time.Millisecond)
	m.Update(button.None)
	tilt.g = 0

	busErr := errors.New("i2c: nack")
	tilt.err = busErr
	if _, err := m.Update(button.ShortPress); !errors.Is(err, busErr) {
		t.Fatalf("err = %v, want the tilt error", err)
	}
	if m.State() != FloorSelection {
		t.Fatalf("state = %v, want floor after press", m.State())
	}
	if _, err := m.Update(button.LongPress); !errors.Is(err, busErr) {
		t.Fatalf("err = %v, want the tilt error", err)
	}
	if m.State() != BuildingSelection {
		t.Fatalf("state = %v, want building after long press", m.State())
	}
}
