package imu

import "github.com/golang/geo/r3"

// RawVector holds signed 16-bit counts for the three axes.
type RawVector [3]int16

// RawSample is a single raw accel+gyro+mag reading together with the
// resolutions needed to scale it.
type RawSample struct {
	Accel    RawVector `json:"accel"`
	Gyro     RawVector `json:"gyro"`
	Mag      RawVector `json:"mag"`
	MagValid bool      `json:"mag_valid"` // false when the mag had no new data or overflowed

	AccelRes float64 `json:"accel_res"` // g/LSB
	GyroRes  float64 `json:"gyro_res"`  // dps/LSB
	MagRes   float64 `json:"mag_res"`   // mG/LSB
}

// Scale converts counts to physical units with a single resolution.
func (r RawVector) Scale(res float64) r3.Vector {
	return r3.Vector{X: float64(r[0]) * res, Y: float64(r[1]) * res, Z: float64(r[2]) * res}
}

func bigEndian(b []byte) RawVector {
	return RawVector{
		int16(uint16(b[0])<<8 | uint16(b[1])),
		int16(uint16(b[2])<<8 | uint16(b[3])),
		int16(uint16(b[4])<<8 | uint16(b[5])),
	}
}

func littleEndian(b []byte) RawVector {
	return RawVector{
		int16(uint16(b[1])<<8 | uint16(b[0])),
		int16(uint16(b[3])<<8 | uint16(b[2])),
		int16(uint16(b[5])<<8 | uint16(b[4])),
	}
}
