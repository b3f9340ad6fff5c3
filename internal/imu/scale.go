package imu

import (
	"fmt"
	"time"
)

// AccelScale selects the accelerometer full-scale range (ACCEL_FS_SEL).
type AccelScale byte

const (
	Accel2G AccelScale = iota
	Accel4G
	Accel8G
	Accel16G
)

// GyroScale selects the gyroscope full-scale range (GYRO_FS_SEL).
type GyroScale byte

const (
	Gyro250DPS GyroScale = iota
	Gyro500DPS
	Gyro1000DPS
	Gyro2000DPS
)

// MagScale selects the AK8963 output width.
type MagScale byte

const (
	Mag14Bit MagScale = iota
	Mag16Bit
)

// MagMode is the AK8963 continuous measurement mode.
type MagMode byte

const (
	Mag8Hz   MagMode = 0x02
	Mag100Hz MagMode = 0x06
)

// G returns the full-scale range in g.
func (s AccelScale) G() float64 {
	return [...]float64{2, 4, 8, 16}[s&3]
}

// DPS returns the full-scale range in degrees per second.
func (s GyroScale) DPS() float64 {
	return [...]float64{250, 500, 1000, 2000}[s&3]
}

func (s AccelScale) String() string { return fmt.Sprintf("±%gg", s.G()) }
func (s GyroScale) String() string  { return fmt.Sprintf("±%g°/s", s.DPS()) }

func (s MagScale) String() string {
	if s == Mag16Bit {
		return "16 bit"
	}
	return "14 bit"
}

// MagModeForRate maps an output rate in Hz to its measurement mode.
func MagModeForRate(hz int) (MagMode, error) {
	switch hz {
	case 8:
		return Mag8Hz, nil
	case 100:
		return Mag100Hz, nil
	}
	return 0, fmt.Errorf("unsupported magnetometer rate %d Hz", hz)
}

// SampleCount returns how many samples the tumble calibration collects in
// this mode, and the spacing between them; both cover about 30 s of data.
func (m MagMode) SampleCount() (int, time.Duration) {
	if m == Mag100Hz {
		return 3000, 12 * time.Millisecond
	}
	return 240, 135 * time.Millisecond
}

func (m MagMode) String() string {
	if m == Mag100Hz {
		return "100 Hz"
	}
	return "8 Hz"
}

// accelRes returns g per LSB.
func accelRes(s AccelScale) float64 { return s.G() / 32768.0 }

// gyroRes returns degrees per second per LSB.
func gyroRes(s GyroScale) float64 { return s.DPS() / 32768.0 }

// magRes returns milliGauss per LSB.
func magRes(s MagScale) float64 {
	if s == Mag16Bit {
		return 10.0 * 4912.0 / 32760.0
	}
	return 10.0 * 4912.0 / 8190.0
}
