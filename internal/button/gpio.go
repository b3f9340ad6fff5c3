package button

import (
	"github.com/pkg/errors"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// GPIOInput reads an active-low button wired to ground with the internal
// pull-up enabled.
type GPIOInput struct {
	pin gpio.PinIn
}

// OpenGPIO configures the named pin (for example "GPIO17") as an input.
func OpenGPIO(name string) (*GPIOInput, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrap(err, "periph host init")
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, errors.Errorf("gpio pin %q not found", name)
	}
	if err := p.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return nil, errors.Wrapf(err, "configure %s as input", name)
	}
	return &GPIOInput{pin: p}, nil
}

// Pressed is true while the line is pulled low.
func (g *GPIOInput) Pressed() bool {
	return g.pin.Read() == gpio.Low
}
