package navigation

import (
	"context"
	"math"

	"github.com/pkg/errors"
)

// ErrFetchFailed wraps every failed, timed out, truncated or malformed
// exchange with the location or routing service. It is recoverable: the
// machine holds its state and retries on the next poll.
var ErrFetchFailed = errors.New("fetch failed")

// Field capacities of the instruction record, terminator included.
const (
	MaxNodeIDLen       = 7
	MaxBuildingNameLen = 25
)

// Location is a geolocation fix in degrees.
type Location struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
	Accuracy  float64 `json:"accuracy,omitempty"`
}

// Valid rejects the all-zero fix returned by an empty or unparsable body.
func (l Location) Valid() bool {
	if math.IsNaN(l.Latitude) || math.IsNaN(l.Longitude) {
		return false
	}
	if l.Latitude == 0 && l.Longitude == 0 {
		return false
	}
	return math.Abs(l.Latitude) <= 90 && math.Abs(l.Longitude) <= 180
}

// Instructions is one routing answer, consumed verbatim from the service.
type Instructions struct {
	CurrBuilding string  `json:"curr_building"`
	NextBuilding string  `json:"next_building"`
	CurrNode     string  `json:"curr_node"`
	NextNode     string  `json:"next_node"`
	DistNextNode float64 `json:"dist_next_node"` // meters
	DirNextNode  float64 `json:"dir_next_node"`  // degrees counter-clockwise from east
	HasArrived   bool    `json:"has_arrived"`
	ETA          float64 `json:"eta"` // seconds
	DestNode     string  `json:"dest_node"`
	DestBuilding string  `json:"dest_building"`
}

func checkLen(field, v string, capacity int) error {
	if len(v) >= capacity {
		return errors.Errorf("%s %q longer than %d bytes", field, v, capacity-1)
	}
	return nil
}

// Validate enforces the field bounds and that a route has somewhere to go.
func (in Instructions) Validate() error {
	for _, c := range []struct {
		field, v string
		cap      int
	}{
		{"curr_building", in.CurrBuilding, MaxBuildingNameLen},
		{"next_building", in.NextBuilding, MaxBuildingNameLen},
		{"dest_building", in.DestBuilding, MaxBuildingNameLen},
		{"curr_node", in.CurrNode, MaxNodeIDLen},
		{"next_node", in.NextNode, MaxNodeIDLen},
		{"dest_node", in.DestNode, MaxNodeIDLen},
	} {
		if err := checkLen(c.field, c.v, c.cap); err != nil {
			return err
		}
	}
	if in.DestNode == "" {
		return errors.New("dest_node missing")
	}
	for name, f := range map[string]float64{"dist_next_node": in.DistNextNode, "dir_next_node": in.DirNextNode, "eta": in.ETA} {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return errors.Errorf("%s is not finite", name)
		}
	}
	return nil
}

// RouteRequest is the query sent to the routing service.
type RouteRequest struct {
	UserID           string
	Location         Location
	CurrentFloor     string
	Destination      string
	DestinationFloor string
}

// Client fetches fixes and routes. Implementations honor ctx deadlines.
type Client interface {
	FetchLocation(ctx context.Context) (Location, error)
	FetchInstructions(ctx context.Context, req RouteRequest) (Instructions, error)
}
