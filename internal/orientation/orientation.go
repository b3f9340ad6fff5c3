// Package orientation fuses accelerometer, gyroscope and magnetometer
// readings into an attitude quaternion and a compass heading.
package orientation

import (
	"math"
)

// Pose is the attitude in degrees. Heading is the compass heading in
// [0, 360) with declination applied when enabled.
type Pose struct {
	Roll    float64 `json:"roll"`
	Pitch   float64 `json:"pitch"`
	Yaw     float64 `json:"yaw"`
	Heading float64 `json:"heading"`
}

const (
	degPerRad = 180.0 / math.Pi
	radPerDeg = math.Pi / 180.0
)

// ComputePoseFromAccel computes roll and pitch from accelerometer data only.
// Yaw and heading are left at 0.
//
//	roll  = atan2(ay, az)
//	pitch = atan2(-ax, sqrt(ay² + az²))
func ComputePoseFromAccel(ax, ay, az float64) Pose {
	return Pose{
		Roll:  math.Atan2(ay, az) * degPerRad,
		Pitch: math.Atan2(-ax, math.Sqrt(ay*ay+az*az)) * degPerRad,
	}
}

// FoldDegrees maps any angle into [0, 360).
func FoldDegrees(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	// -tiny + 360 rounds to 360 in float64
	if deg >= 360 {
		deg -= 360
	}
	return deg
}

// RelativeBearing returns the angle, clockwise from the device's forward
// direction, of a target whose direction is given counter-clockwise from
// east (the routing service convention). Result is in [0, 360).
func RelativeBearing(headingDeg, dirCCWFromEastDeg float64) float64 {
	compass := 90 - dirCCWFromEastDeg
	return FoldDegrees(compass - headingDeg)
}
