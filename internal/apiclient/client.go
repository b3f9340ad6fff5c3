// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package apiclient talks to the WiFi geolocation service and the campus
// routing service.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/indoor_nav/internal/navigation"
)

// Response formats of the geolocation service.
const (
	FormatGoogle = "google" // {"location":{"lat":..,"lng":..},"accuracy":..}
	FormatFlat   = "flat"   // {"lat":..,"lon":..}
	FormatAuto   = "auto"   // either
)

// Options configures a Client.
type Options struct {
	GeolocationURL    string
	GeolocationKey    string
	GeolocationFormat string
	MaxAccessPoints   int
	RoutingURL        string

	Timeout            time.Duration // per request
	RequestBufferSize  int
	ResponseBufferSize int
}

// Observer is told about every fetch. kind is "location" or "route".
type Observer func(kind string, d time.Duration, err error)

// Client implements navigation.Client over HTTP.
type Client struct {
	opts    Options
	http    *http.Client
	scanner Scanner

	// Observe, if set, is called after every fetch.
	Observe Observer
}

var _ navigation.Client = (*Client)(nil)

// New returns a client. httpClient may be nil.
func New(opts Options, scanner Scanner, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if opts.GeolocationFormat == "" {
		opts.GeolocationFormat = FormatGoogle
	}
	return &Client{opts: opts, http: httpClient, scanner: scanner}
}

// fetchErr marks cause as a fetch failure while keeping it matchable.
func fetchErr(cause error, what string) error {
	return fmt.Errorf("%w: %s: %w", navigation.ErrFetchFailed, what, cause)
}

func (c *Client) observe(kind string, start time.Time, err error) {
	if c.Observe != nil {
		c.Observe(kind, time.Since(start), err)
	}
}

// do runs req with the per-request timeout and reads the body into a
// fresh response buffer.
func (c *Client) do(ctx context.Context, req *http.Request) (*Scratch, error) {
	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}
	resp, err := c.http.Do(req.WithContext(ctx))
	if err != nil {
		return nil, fetchErr(err, req.Method+" "+req.URL.Host)
	}
	defer resp.Body.Close()

	body := NewScratch(c.opts.ResponseBufferSize)
	if _, err := body.ReadFrom(resp.Body); err != nil {
		return nil, fetchErr(err, "read "+req.URL.Host)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fetchErr(errors.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(body.String())), req.Method+" "+req.URL.Host)
	}
	return body, nil
}

// geolocationBody builds the POST body into a bounded request buffer.
func (c *Client) geolocationBody(aps []AccessPoint) (*Scratch, error) {
	if n := c.opts.MaxAccessPoints; n > 0 && len(aps) > n {
		aps = aps[:n]
	}
	if aps == nil {
		aps = []AccessPoint{}
	}
	buf := NewScratch(c.opts.RequestBufferSize)
	err := json.NewEncoder(buf).Encode(struct {
		WifiAccessPoints []AccessPoint `json:"wifiAccessPoints"`
	}{aps})
	if err != nil {
		return nil, err
	}
	return buf, nil
}

type googleFix struct {
	Location *struct {
		Lat *float64 `json:"lat"`
		Lng *float64 `json:"lng"`
	} `json:"location"`
	Accuracy float64 `json:"accuracy"`
}

type flatFix struct {
	Lat *float64 `json:"lat"`
	Lon *float64 `json:"lon"`
}

func parseFix(body []byte, format string) (navigation.Location, error) {
	tryGoogle := format == FormatGoogle || format == FormatAuto
	tryFlat := format == FormatFlat || format == FormatAuto
	if !tryGoogle && !tryFlat {
		return navigation.Location{}, errors.Errorf("unknown geolocation format %q", format)
	}
	if tryGoogle {
		var g googleFix
		if err := json.Unmarshal(body, &g); err != nil {
			return navigation.Location{}, err
		}
		if g.Location != nil && g.Location.Lat != nil && g.Location.Lng != nil {
			return navigation.Location{Latitude: *g.Location.Lat, Longitude: *g.Location.Lng, Accuracy: g.Accuracy}, nil
		}
	}
	if tryFlat {
		var f flatFix
		if err := json.Unmarshal(body, &f); err != nil {
			return navigation.Location{}, err
		}
		if f.Lat != nil && f.Lon != nil {
			return navigation.Location{Latitude: *f.Lat, Longitude: *f.Lon}, nil
		}
	}
	return navigation.Location{}, errors.Errorf("no %s coordinates in response", format)
}

// FetchLocation scans access points and asks the geolocation service for a fix.
func (c *Client) FetchLocation(ctx context.Context) (loc navigation.Location, err error) {
	start := time.Now()
	defer func() { c.observe("location", start, err) }()

	var aps []AccessPoint
	if c.scanner != nil {
		if aps, err = c.scanner.Scan(ctx); err != nil {
			return loc, fetchErr(err, "wifi scan")
		}
	}
	body, err := c.geolocationBody(aps)
	if err != nil {
		return loc, fetchErr(err, "geolocation request")
	}

	u, err := url.Parse(c.opts.GeolocationURL)
	if err != nil {
		return loc, fetchErr(err, "geolocation url")
	}
	if c.opts.GeolocationKey != "" {
		q := u.Query()
		q.Set("key", c.opts.GeolocationKey)
		u.RawQuery = q.Encode()
	}
	req, err := http.NewRequest(http.MethodPost, u.String(), bytes.NewReader(body.Bytes()))
	if err != nil {
		return loc, fetchErr(err, "geolocation request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.do(ctx, req)
	if err != nil {
		return loc, err
	}
	loc, err = parseFix(resp.Bytes(), c.opts.GeolocationFormat)
	if err != nil {
		return navigation.Location{}, fetchErr(err, "geolocation response")
	}
	if !loc.Valid() {
		return navigation.Location{}, fetchErr(errors.Errorf("empty fix %+v", loc), "geolocation response")
	}
	log.WithFields(log.Fields{"lat": loc.Latitude, "lon": loc.Longitude, "aps": len(aps)}).Debug("api: location")
	return loc, nil
}

// routingURL renders the query with the request buffer bound applied.
func (c *Client) routingURL(r navigation.RouteRequest) (string, error) {
	u, err := url.Parse(c.opts.RoutingURL)
	if err != nil {
		return "", err
	}
	q := url.Values{}
	q.Set("user_id", r.UserID)
	q.Set("lat", strconv.FormatFloat(r.Location.Latitude, 'f', 6, 64))
	q.Set("lon", strconv.FormatFloat(r.Location.Longitude, 'f', 6, 64))
	q.Set("current_floor", r.CurrentFloor)
	q.Set("destination", r.Destination)
	q.Set("destination_floor", r.DestinationFloor)
	u.RawQuery = q.Encode()

	buf := NewScratch(c.opts.RequestBufferSize)
	if _, err := buf.WriteString(u.String()); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// FetchInstructions asks the routing service for the next step.
func (c *Client) FetchInstructions(ctx context.Context, r navigation.RouteRequest) (in navigation.Instructions, err error) {
	start := time.Now()
	defer func() { c.observe("route", start, err) }()

	target, err := c.routingURL(r)
	if err != nil {
		return in, fetchErr(err, "routing request")
	}
	req, err := http.NewRequest(http.MethodGet, target, nil)
	if err != nil {
		return in, fetchErr(err, "routing request")
	}
	resp, err := c.do(ctx, req)
	if err != nil {
		return in, err
	}
	in, err = decodeInstructions(resp.Bytes())
	if err != nil {
		return navigation.Instructions{}, fetchErr(err, "routing response")
	}
	return in, nil
}

// looseString accepts a JSON string or number.
type looseString string

func (s *looseString) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*s = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = looseString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("want string or number, got %s", b)
	}
	*s = looseString(n.String())
	return nil
}

// looseFloat accepts a JSON number or a numeric string.
type looseFloat float64

func (f *looseFloat) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*f = 0
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		x, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("want number, got %s", b)
		}
		*f = looseFloat(x)
		return nil
	}
	var x float64
	if err := json.Unmarshal(b, &x); err != nil {
		return err
	}
	*f = looseFloat(x)
	return nil
}

type wireInstructions struct {
	CurrBuilding looseString `json:"curr_building"`
	NextBuilding looseString `json:"next_building"`
	CurrNode     looseString `json:"curr_node"`
	NextNode     looseString `json:"next_node"`
	DistNextNode looseFloat  `json:"dist_next_node"`
	DirNextNode  looseFloat  `json:"dir_next_node"`
	HasArrived   bool        `json:"has_arrived"`
	ETA          looseFloat  `json:"eta"`
	DestNode     looseString `json:"dest_node"`
	DestBuilding looseString `json:"dest_building"`
}

func decodeInstructions(body []byte) (navigation.Instructions, error) {
	var w wireInstructions
	if err := json.Unmarshal(body, &w); err != nil {
		return navigation.Instructions{}, err
	}
	in := navigation.Instructions{
		CurrBuilding: string(w.CurrBuilding),
		NextBuilding: string(w.NextBuilding),
		CurrNode:     string(w.CurrNode),
		NextNode:     string(w.NextNode),
		DistNextNode: float64(w.DistNextNode),
		DirNextNode:  float64(w.DirNextNode),
		HasArrived:   w.HasArrived,
		ETA:          float64(w.ETA),
		DestNode:     string(w.DestNode),
		DestBuilding: string(w.DestBuilding),
	}
	if err := in.Validate(); err != nil {
		return navigation.Instructions{}, err
	}
	return in, nil
}
