package app

import (
	"sync"
	"time"

	"github.com/relabs-tech/indoor_nav/internal/navigation"
	"github.com/relabs-tech/indoor_nav/internal/orientation"
	"github.com/relabs-tech/indoor_nav/internal/selection"
)

// Snapshot is a read-only copy of the device state published once per
// loop iteration for the web server.
type Snapshot struct {
	Time        time.Time        `json:"time"`
	Pose        orientation.Pose `json:"pose"`
	FilterSteps uint64           `json:"filter_steps"`
	Button      string           `json:"button"`
	Selection   selection.View   `json:"selection"`
	Navigation  navigation.View  `json:"navigation"`
	Fatal       string           `json:"fatal,omitempty"`
}

// StateStore holds the latest snapshot. The loop writes, readers copy.
type StateStore struct {
	mu   sync.RWMutex
	snap Snapshot
	have bool
}

func (s *StateStore) Set(snap Snapshot) {
	s.mu.Lock()
	s.snap = snap
	s.have = true
	s.mu.Unlock()
}

// Get returns the latest snapshot and whether one was ever set.
func (s *StateStore) Get() (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap, s.have
}
