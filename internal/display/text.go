package display

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/relabs-tech/indoor_nav/internal/navigation"
	"github.com/relabs-tech/indoor_nav/internal/orientation"
	"github.com/relabs-tech/indoor_nav/internal/selection"
)

// Distance formats meters as "12.5 m" or "1.2 km".
func Distance(m float64) string {
	if m < 0 {
		m = 0
	}
	return humanize.SIWithDigits(m, 1, "m")
}

// ETA formats seconds as "15 seconds", "2 minutes".
func ETA(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	var t0 time.Time
	d := time.Duration(seconds * float64(time.Second))
	return strings.TrimSpace(humanize.RelTime(t0, t0.Add(d), "", ""))
}

var arrows = [8]string{"^", "^>", ">", "v>", "v", "<v", "<", "<^"}

// Arrow returns a text arrow for a bearing clockwise from straight ahead.
func Arrow(bearing float64) string {
	i := int((orientation.FoldDegrees(bearing)+22.5)/45) % 8
	return arrows[i]
}

// SelectionLines lays out the destination picker.
func SelectionLines(v selection.View) []string {
	lines := []string{
		"Destination",
		"Building: " + v.Building,
		"Floor: " + v.Floor,
	}
	if v.Prompt != "" {
		lines = append(lines, v.Prompt)
	}
	return lines
}

// NavigationLines lays out the route screen.
func NavigationLines(heading float64, v navigation.View) []string {
	lines := []string{fmt.Sprintf("Hdg %3.0f", heading)}
	switch {
	case v.Instructions == nil:
		lines = append(lines, "Routing...", "Finding the best path")
	case v.Arrived:
		lines = append(lines, "Arrived!", "Bldg "+v.Instructions.DestBuilding)
	default:
		in := v.Instructions
		b := orientation.RelativeBearing(heading, in.DirNextNode)
		lines = append(lines,
			fmt.Sprintf("Dest: %s", in.DestBuilding),
			fmt.Sprintf("%s %s", Arrow(b), Distance(in.DistNextNode)),
			"ETA: "+ETA(in.ETA),
		)
	}
	return lines
}
