package button

import (
	"sync"
	"time"

	"github.com/relabs-tech/indoor_nav/internal/clock"
)

// Virtual is a software button. The simulator and the web API press it.
type Virtual struct {
	clk clock.Clock

	mu    sync.Mutex
	until time.Time
}

func NewVirtual(clk clock.Clock) *Virtual {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Virtual{clk: clk}
}

// Press holds the button down for hold, starting now.
func (v *Virtual) Press(hold time.Duration) {
	v.mu.Lock()
	v.until = v.clk.Now().Add(hold)
	v.mu.Unlock()
}

func (v *Virtual) Pressed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.clk.Now().Before(v.until)
}
