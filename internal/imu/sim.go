package imu

import (
	"math"
	"sync"
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// SimAttitude is the simulated device attitude in radians.
type SimAttitude struct {
	Roll, Pitch, Yaw float64
}

// Sim is a SensorBus emulating an MPU9250 and AK8963 mounted the default
// way (magnetometer x/y swapped and z inverted against the accelerometer).
// Readings are noiseless and derived from Attitude, so a fused heading
// converges on Attitude().Yaw.
type Sim struct {
	mu    sync.Mutex
	now   func() time.Time
	start time.Time

	MPUWhoAmI    byte
	MagWhoAmI    byte
	ASA          [3]byte
	SelfTestCode [6]byte // accel x,y,z then gyro x,y,z
	// SelfTestGain scales the excited response against the trim the codes
	// report. 1 is a nominal part.
	SelfTestGain [6]float64

	// Attitude returns the device attitude at a time offset from creation.
	Attitude func(elapsed time.Duration) SimAttitude
	// YawRate is the rotation rate about the vertical in rad/s, as seen by the gyro.
	YawRate float64
	// Field is the earth magnetic field in mG, x north, z up.
	Field r3.Vector

	AccelOffset RawVector // counts, sensor axes
	GyroOffset  RawVector // counts, sensor axes
	MagOffset   RawVector // hard iron counts, magnetometer axes
	MagOverflow bool
	FIFOPackets int

	mpu       [128]byte
	mag       [32]byte
	fifo      []byte
	fifoArmed bool
}

// NewSim returns a level, stationary device pointing at yaw 0.
func NewSim(now func() time.Time) *Sim {
	s := &Sim{
		now:          now,
		start:        now(),
		MPUWhoAmI:    0x71,
		MagWhoAmI:    magWhoAmI,
		ASA:          [3]byte{128, 128, 128},
		SelfTestCode: [6]byte{1, 1, 1, 1, 1, 1},
		SelfTestGain: [6]float64{1, 1, 1, 1, 1, 1},
		Field:        r3.Vector{X: 200, Y: 0, Z: -450},
		FIFOPackets:  40,
	}
	s.Spin(0, 0)
	return s
}

// Spin makes the device sit level, starting at headingDeg and turning at
// rateDegPerSec.
func (s *Sim) Spin(headingDeg, rateDegPerSec float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	yaw0 := headingDeg * math.Pi / 180
	rate := rateDegPerSec * math.Pi / 180
	s.YawRate = rate
	s.Attitude = func(elapsed time.Duration) SimAttitude {
		return SimAttitude{Yaw: yaw0 + rate*elapsed.Seconds()}
	}
}

// toBody rotates an earth-frame vector into the body frame.
func toBody(e r3.Vector, a SimAttitude) r3.Vector {
	c, s := math.Cos(-a.Yaw), math.Sin(-a.Yaw)
	v := r3.Vector{X: c*e.X - s*e.Y, Y: s*e.X + c*e.Y, Z: e.Z}
	c, s = math.Cos(-a.Pitch), math.Sin(-a.Pitch)
	v = r3.Vector{X: c*v.X + s*v.Z, Y: v.Y, Z: -s*v.X + c*v.Z}
	c, s = math.Cos(-a.Roll), math.Sin(-a.Roll)
	return r3.Vector{X: v.X, Y: c*v.Y - s*v.Z, Z: s*v.Y + c*v.Z}
}

func clamp16(f float64) int16 {
	f = math.Round(f)
	if f > math.MaxInt16 {
		return math.MaxInt16
	}
	if f < math.MinInt16 {
		return math.MinInt16
	}
	return int16(f)
}

func putBE(dst []byte, v RawVector) {
	for i, c := range v {
		dst[2*i] = byte(uint16(c) >> 8)
		dst[2*i+1] = byte(uint16(c))
	}
}

func putLE(dst []byte, v RawVector) {
	for i, c := range v {
		dst[2*i] = byte(uint16(c))
		dst[2*i+1] = byte(uint16(c) >> 8)
	}
}

// counts computes the current accel and gyro outputs in sensor axes.
func (s *Sim) counts() (accel, gyro RawVector) {
	att := s.Attitude(s.now().Sub(s.start))
	g := toBody(r3.Vector{Z: 1}, att)
	w := toBody(r3.Vector{Z: s.YawRate * 180 / math.Pi}, att)

	aRes := accelRes(AccelScale(s.mpu[regAccelConfig] >> 3 & 3))
	gRes := gyroRes(GyroScale(s.mpu[regGyroConfig] >> 3 & 3))
	aST := s.mpu[regAccelConfig]&selfTestBits == selfTestBits
	gST := s.mpu[regGyroConfig]&selfTestBits == selfTestBits

	// filter frame to sensor frame: y inverted
	a := [3]float64{g.X, -g.Y, g.Z}
	r := [3]float64{w.X, -w.Y, w.Z}
	for k := 0; k < 3; k++ {
		ac := a[k]/aRes + float64(s.AccelOffset[k])
		gc := r[k]/gRes + float64(s.GyroOffset[k])
		if aST {
			ac += factoryTrim(s.SelfTestCode[k]) * s.SelfTestGain[k]
		}
		if gST {
			gc += factoryTrim(s.SelfTestCode[k+3]) * s.SelfTestGain[k+3]
		}
		accel[k] = clamp16(ac)
		gyro[k] = clamp16(gc)
	}
	return accel, gyro
}

func (s *Sim) magCounts() RawVector {
	att := s.Attitude(s.now().Sub(s.start))
	f := toBody(s.Field, att)
	res := magRes(MagScale(s.mag[regMagCNTL] >> 4 & 1))
	// filter frame to magnetometer frame
	m := [3]float64{-f.Y, f.X, -f.Z}
	var out RawVector
	for k := 0; k < 3; k++ {
		adj := (float64(s.ASA[k])-128)/256 + 1
		out[k] = clamp16(m[k]/(res*adj) + float64(s.MagOffset[k]))
	}
	return out
}

func (s *Sim) refreshMPU() {
	a, g := s.counts()
	putBE(s.mpu[regAccelXoutH:], a)
	putBE(s.mpu[regGyroXoutH:], g)
	temp := clamp16((25 - 21) * 333.87)
	s.mpu[regTempOutH] = byte(uint16(temp) >> 8)
	s.mpu[regTempOutH+1] = byte(uint16(temp))
	s.mpu[regIntStatus] = intDataReady
	s.mpu[regFIFOCountH] = byte(len(s.fifo) >> 8)
	s.mpu[regFIFOCountH+1] = byte(len(s.fifo))
	s.mpu[regWhoAmI] = s.MPUWhoAmI
	s.mpu[regSelfTestXAccel] = s.SelfTestCode[0]
	s.mpu[regSelfTestYAccel] = s.SelfTestCode[1]
	s.mpu[regSelfTestZAccel] = s.SelfTestCode[2]
	s.mpu[regSelfTestXGyro] = s.SelfTestCode[3]
	s.mpu[regSelfTestYGyro] = s.SelfTestCode[4]
	s.mpu[regSelfTestZGyro] = s.SelfTestCode[5]
}

func (s *Sim) refreshMag() {
	s.mag[regMagWIA] = s.MagWhoAmI
	mode := s.mag[regMagCNTL] & 0x0F
	s.mag[regMagST1] = 0
	if mode == byte(Mag8Hz) || mode == byte(Mag100Hz) {
		s.mag[regMagST1] = magDataReady
	}
	putLE(s.mag[regMagHXL:], s.magCounts())
	st2 := s.mag[regMagCNTL] & 0x10
	if s.MagOverflow {
		st2 |= magOverflow
	}
	s.mag[regMagST2] = st2
	copy(s.mag[regMagASAX:], s.ASA[:])
}

func (s *Sim) WriteRegister(addr uint16, reg, val byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch addr {
	case AddrMPU9250:
		if int(reg) >= len(s.mpu) {
			return errors.Errorf("sim: register 0x%02X out of range", reg)
		}
		switch {
		case reg == regPwrMgmt1 && val&0x80 != 0:
			s.mpu = [128]byte{}
			s.fifo = nil
			s.fifoArmed = false
			return nil
		case reg == regUserCtrl && val&0x04 != 0:
			s.fifo = nil
		case reg == regFIFOEn && val == 0x78 && s.mpu[regUserCtrl]&0x40 != 0:
			s.fifoArmed = true
		case reg == regFIFOEn && val == 0 && s.fifoArmed:
			s.fifoArmed = false
			a, g := s.counts()
			var pkt [fifoPacketSize]byte
			putBE(pkt[0:6], a)
			putBE(pkt[6:12], g)
			for i := 0; i < s.FIFOPackets; i++ {
				s.fifo = append(s.fifo, pkt[:]...)
			}
		}
		s.mpu[reg] = val
	case AddrAK8963:
		if int(reg) >= len(s.mag) {
			return errors.Errorf("sim: register 0x%02X out of range", reg)
		}
		s.mag[reg] = val
	default:
		return errors.Errorf("sim: no device at 0x%02X", addr)
	}
	return nil
}

func (s *Sim) ReadRegister(addr uint16, reg byte) (byte, error) {
	var b [1]byte
	err := s.ReadRegisters(addr, reg, b[:])
	return b[0], err
}

func (s *Sim) ReadRegisters(addr uint16, reg byte, dst []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch addr {
	case AddrMPU9250:
		if reg == regFIFORW {
			n := copy(dst, s.fifo)
			s.fifo = s.fifo[n:]
			for i := n; i < len(dst); i++ {
				dst[i] = 0
			}
			return nil
		}
		if int(reg)+len(dst) > len(s.mpu) {
			return errors.Errorf("sim: read past 0x%02X", reg)
		}
		s.refreshMPU()
		copy(dst, s.mpu[reg:])
	case AddrAK8963:
		if int(reg)+len(dst) > len(s.mag) {
			return errors.Errorf("sim: read past 0x%02X", reg)
		}
		s.refreshMag()
		copy(dst, s.mag[reg:])
	default:
		return errors.Errorf("sim: no device at 0x%02X", addr)
	}
	return nil
}
