package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHandlerExposesFetchMetrics(t *testing.T) {
	m := New()
	m.ObserveFetch("route", 120*time.Millisecond, nil)
	m.ObserveFetch("route", time.Second, errors.New("timeout"))
	m.Heading.Set(271)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	for _, want := range []string{
		`indoor_nav_fetch_attempts_total{kind="route"} 2`,
		`indoor_nav_fetch_failures_total{kind="route"} 1`,
		`indoor_nav_heading_degrees 271`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("missing %q", want)
		}
	}
}
