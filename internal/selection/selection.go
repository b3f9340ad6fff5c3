// Package selection lets the user pick a destination building and floor by
// tilting the device and pressing the button.
package selection

import (
	"fmt"
	"math"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/indoor_nav/internal/button"
	"github.com/relabs-tech/indoor_nav/internal/clock"
)

// Catalogs the user scrolls through.
var (
	Buildings = []string{"1", "2", "3", "4", "5", "6", "7", "8", "10", "11"}
	Floors    = []string{"0", "1"}
)

const (
	DefaultScrollDebounce = 150 * time.Millisecond
	DefaultTiltThreshold  = 0.3 // g
)

// Wrap is the mathematical modulo: the result is in [0, n) for any i.
func Wrap(i, n int) int {
	r := i % n
	if r < 0 {
		r += n
	}
	return r
}

type State int

const (
	Idle State = iota
	BuildingSelection
	FloorSelection
	ConfirmDestination
	DestinationSelected
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case BuildingSelection:
		return "building"
	case FloorSelection:
		return "floor"
	case ConfirmDestination:
		return "confirm"
	case DestinationSelected:
		return "selected"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// TiltSource returns the live tilt of the scroll axis in g.
type TiltSource interface {
	Tilt() (float64, error)
}

// Destination is a confirmed building and floor.
type Destination struct {
	Building string `json:"building"`
	Floor    string `json:"floor"`
}

// View is what the display shows for the current selection.
type View struct {
	State    State  `json:"-"`
	StateStr string `json:"state"`
	Building string `json:"building"`
	Floor    string `json:"floor"`
	Prompt   string `json:"prompt,omitempty"`
}

// Machine is the destination selection state machine.
type Machine struct {
	tilt TiltSource
	clk  clock.Clock

	ScrollDebounce time.Duration
	TiltThreshold  float64

	state      State
	selecting  bool
	building   int // -1 until the user scrolls
	floor      int
	scrolledAt time.Time
}

func New(tilt TiltSource, clk clock.Clock) *Machine {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Machine{
		tilt:           tilt,
		clk:            clk,
		ScrollDebounce: DefaultScrollDebounce,
		TiltThreshold:  DefaultTiltThreshold,
		building:       -1,
		floor:          -1,
		scrolledAt:     clk.Now(),
	}
}

// Begin asks the machine to start selecting on the next Update.
func (m *Machine) Begin() { m.selecting = true }

// End returns the machine to Idle, clearing the selection, on the next Update.
func (m *Machine) End() { m.selecting = false }

func (m *Machine) State() State { return m.state }

func (m *Machine) clear() {
	m.building = -1
	m.floor = -1
}

// scroll applies one accepted tilt step to idx.
func (m *Machine) scroll(idx *int, n int) error {
	angle, err := m.tilt.Tilt()
	if err != nil {
		return errors.Wrap(err, "read tilt")
	}
	if math.Abs(angle) <= m.TiltThreshold {
		return nil
	}
	now := m.clk.Now()
	if now.Sub(m.scrolledAt) <= m.ScrollDebounce {
		return nil
	}
	if angle > 0 {
		*idx++
	} else {
		*idx--
	}
	*idx = Wrap(*idx, n)
	m.scrolledAt = now
	return nil
}

func (m *Machine) setState(s State) {
	if s == m.state {
		return
	}
	log.WithFields(log.Fields{"from": m.state, "to": s}).Info("selection: transition")
	m.state = s
}

// Update advances the machine with one button event. It returns true on
// the update that confirms a destination. A tilt read error is returned
// after the event has been applied.
func (m *Machine) Update(ev button.Event) (bool, error) {
	if !m.selecting && m.state != Idle {
		m.clear()
		m.setState(Idle)
		return false, nil
	}

	var tiltErr error
	switch m.state {
	case Idle:
		if m.selecting {
			m.clear()
			m.scrolledAt = m.clk.Now()
			m.setState(BuildingSelection)
		}

	case BuildingSelection:
		// a failed tilt read must not swallow the press
		tiltErr = m.scroll(&m.building, len(Buildings))
		if ev == button.ShortPress && m.building >= 0 {
			m.setState(FloorSelection)
		}

	case FloorSelection:
		tiltErr = m.scroll(&m.floor, len(Floors))
		switch {
		case ev == button.ShortPress && m.floor >= 0:
			m.setState(ConfirmDestination)
		case ev == button.LongPress:
			m.clear()
			m.setState(BuildingSelection)
		}

	case ConfirmDestination:
		switch ev {
		case button.ShortPress:
			m.setState(DestinationSelected)
			d, _ := m.Destination()
			log.WithFields(log.Fields{"building": d.Building, "floor": d.Floor}).Info("selection: destination confirmed")
			return true, nil
		case button.LongPress:
			m.clear()
			m.setState(BuildingSelection)
		}

	case DestinationSelected:
		// held until End
	}
	return false, tiltErr
}

// Destination is only valid once a destination has been confirmed.
func (m *Machine) Destination() (Destination, bool) {
	if m.state != DestinationSelected || m.building < 0 || m.floor < 0 {
		return Destination{}, false
	}
	return Destination{Building: Buildings[m.building], Floor: Floors[m.floor]}, true
}

// View returns the current selection for display.
func (m *Machine) View() View {
	v := View{State: m.state, StateStr: m.state.String()}
	if m.building >= 0 {
		v.Building = Buildings[m.building]
	}
	if m.floor >= 0 {
		v.Floor = Floors[m.floor]
	}
	switch m.state {
	case BuildingSelection:
		v.Prompt = "Tilt to pick building"
	case FloorSelection:
		v.Prompt = "Tilt to pick floor"
	case ConfirmDestination:
		v.Prompt = "Short: confirm  Long: cancel"
	case DestinationSelected:
		v.Prompt = "Confirmed!"
	}
	return v
}
