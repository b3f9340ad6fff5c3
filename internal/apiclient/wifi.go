package apiclient

import (
	"context"
	"net"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// AccessPoint is one scanned WiFi network as the geolocation API wants it.
type AccessPoint struct {
	MACAddress     string `json:"macAddress"`
	SignalStrength int    `json:"signalStrength"` // dBm
	Age            int    `json:"age"`
	Channel        int    `json:"channel"`
}

// Scanner lists nearby access points, strongest first.
type Scanner interface {
	Scan(ctx context.Context) ([]AccessPoint, error)
}

// StaticScanner returns a fixed list. It stands in for the radio on hosts
// that cannot scan.
type StaticScanner []AccessPoint

func (s StaticScanner) Scan(context.Context) ([]AccessPoint, error) {
	out := make([]AccessPoint, len(s))
	copy(out, s)
	return out, nil
}

// ParseAccessPoints parses "mac|rssi|channel;mac|rssi|channel". Blank
// entries are skipped.
func ParseAccessPoints(s string) (StaticScanner, error) {
	var aps StaticScanner
	for _, entry := range strings.Split(s, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		f := strings.Split(entry, "|")
		if len(f) != 3 {
			return nil, errors.Errorf("access point %q: want mac|rssi|channel", entry)
		}
		mac, err := net.ParseMAC(strings.TrimSpace(f[0]))
		if err != nil {
			return nil, errors.Wrapf(err, "access point %q", entry)
		}
		rssi, err := strconv.Atoi(strings.TrimSpace(f[1]))
		if err != nil {
			return nil, errors.Wrapf(err, "access point %q rssi", entry)
		}
		ch, err := strconv.Atoi(strings.TrimSpace(f[2]))
		if err != nil {
			return nil, errors.Wrapf(err, "access point %q channel", entry)
		}
		aps = append(aps, AccessPoint{MACAddress: mac.String(), SignalStrength: rssi, Channel: ch})
	}
	return aps, nil
}
