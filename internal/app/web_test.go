package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/indoor_nav/internal/imu"
	"github.com/relabs-tech/indoor_nav/internal/metrics"
	"github.com/relabs-tech/indoor_nav/internal/orientation"
)

type fakeRegisters struct{ device string }

func (f *fakeRegisters) DumpRegisters(ctx context.Context, device string) ([]imu.RegisterValue, error) {
	f.device = device
	return []imu.RegisterValue{{Register: imu.MPU9250Registers[0], Value: 7}}, nil
}

type fakePresser struct{ hold time.Duration }

func (f *fakePresser) Press(hold time.Duration) { f.hold = hold }

func newTestServer(t *testing.T) (*httptest.Server, *Server) {
	t.Helper()
	s := &Server{
		State:        &StateStore{},
		Registers:    &fakeRegisters{},
		Metrics:      metrics.New().Handler(),
		Button:       &fakePresser{},
		PushInterval: 10 * time.Millisecond,
	}
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts, s
}

func TestStateEndpoint(t *testing.T) {
	ts, s := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/state")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status before first snapshot = %d", resp.StatusCode)
	}

	s.State.Set(Snapshot{Pose: orientation.Pose{Heading: 123}, FilterSteps: 9})
	resp, err = http.Get(ts.URL + "/api/state")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var got Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.Pose.Heading != 123 || got.FilterSteps != 9 {
		t.Fatalf("snapshot = %+v", got)
	}
}

func TestWebSocketPushesSnapshots(t *testing.T) {
	ts, s := newTestServer(t)
	s.State.Set(Snapshot{Button: "held"})

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var got Snapshot
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatal(err)
	}
	if got.Button != "held" {
		t.Fatalf("pushed %+v", got)
	}
}

func TestRegistersAndButtonEndpoints(t *testing.T) {
	ts, s := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/registers?device=ak8963")
	if err != nil {
		t.Fatal(err)
	}
	var values []imu.RegisterValue
	err = json.NewDecoder(resp.Body).Decode(&values)
	resp.Body.Close()
	if err != nil {
		t.Fatal(err)
	}
	if len(values) != 1 || values[0].Value != 7 || s.Registers.(*fakeRegisters).device != "ak8963" {
		t.Fatalf("registers = %+v", values)
	}

	resp, err = http.Post(ts.URL+"/api/button?hold_ms=1500", "text/plain", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent || s.Button.(*fakePresser).hold != 1500*time.Millisecond {
		t.Fatalf("button press status %d hold %v", resp.StatusCode, s.Button.(*fakePresser).hold)
	}

	resp, err = http.Post(ts.URL+"/api/button?hold_ms=soon", "text/plain", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad hold status %d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics status %d", resp.StatusCode)
	}
}
