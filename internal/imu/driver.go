// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package imu drives an MPU9250 with its AK8963 magnetometer over a
// register bus and converts raw counts to physical units.
package imu

import (
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/indoor_nav/internal/bus"
	"github.com/relabs-tech/indoor_nav/internal/clock"
)

// ErrDeviceAbsent is returned when an identity register does not match.
// It is fatal: readings taken after it would be meaningless.
var ErrDeviceAbsent = errors.New("inertial device absent")

// Options configures a Driver.
type Options struct {
	Addr       uint16
	MagAddr    uint16
	AccelScale AccelScale
	GyroScale  GyroScale
	MagScale   MagScale
	MagMode    MagMode
	Clock      clock.Clock
}

// DefaultOptions matches the device defaults: ±2 g, ±250 °/s, 16 bit mag at 8 Hz.
func DefaultOptions() Options {
	return Options{
		Addr:       AddrMPU9250,
		MagAddr:    AddrAK8963,
		AccelScale: Accel2G,
		GyroScale:  Gyro250DPS,
		MagScale:   Mag16Bit,
		MagMode:    Mag8Hz,
		Clock:      clock.Real{},
	}
}

// Driver owns the sensor registers. It keeps no sample buffer beyond the
// current read.
type Driver struct {
	bus     bus.SensorBus
	clk     clock.Clock
	addr    uint16
	magAddr uint16

	accelScale AccelScale
	gyroScale  GyroScale
	magScale   MagScale
	magMode    MagMode

	// resolution cache, invalidated by the scale setters
	aRes, gRes, mRes       float64
	aResOK, gResOK, mResOK bool

	magAdjust r3.Vector
	magReady  bool
}

// New returns a driver for the device on b. Init must be called before reads.
func New(b bus.SensorBus, opts Options) *Driver {
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	return &Driver{
		bus:        b,
		clk:        opts.Clock,
		addr:       opts.Addr,
		magAddr:    opts.MagAddr,
		accelScale: opts.AccelScale,
		gyroScale:  opts.GyroScale,
		magScale:   opts.MagScale,
		magMode:    opts.MagMode,
		magAdjust:  r3.Vector{X: 1, Y: 1, Z: 1},
	}
}

type regWrite struct {
	reg   byte
	val   byte
	delay time.Duration
}

func (d *Driver) writeSeq(addr uint16, seq []regWrite) error {
	for _, w := range seq {
		if err := d.bus.WriteRegister(addr, w.reg, w.val); err != nil {
			return err
		}
		if w.delay > 0 {
			d.clk.Sleep(w.delay)
		}
	}
	return nil
}

// Init checks the device identity and configures it for continuous reads.
func (d *Driver) Init() error {
	id, err := d.bus.ReadRegister(d.addr, regWhoAmI)
	if err != nil {
		return errors.Wrapf(ErrDeviceAbsent, "MPU9250 WHO_AM_I: %v", err)
	}
	switch id {
	case 0x71, 0x73, 0x68:
	default:
		return errors.Wrapf(ErrDeviceAbsent, "MPU9250 WHO_AM_I = 0x%02X", id)
	}
	log.Printf("IMU: MPU9250 online (WHO_AM_I = 0x%02X)", id)

	return d.configure()
}

// configure puts the device in its operating mode: PLL clock, 41 Hz DLPF,
// 200 Hz output, configured ranges, bypass enabled so the AK8963 is
// reachable, data-ready interrupt on.
func (d *Driver) configure() error {
	err := d.writeSeq(d.addr, []regWrite{
		{regPwrMgmt1, 0x00, 100 * time.Millisecond},
		{regPwrMgmt1, 0x01, 200 * time.Millisecond},
		{regConfig, 0x03, 0},
		{regSmplrtDiv, 0x04, 0},
	})
	if err != nil {
		return errors.Wrap(err, "configure MPU9250")
	}
	if err := d.SetGyroScale(d.gyroScale); err != nil {
		return err
	}
	if err := d.SetAccelScale(d.accelScale); err != nil {
		return err
	}

	c, err := d.bus.ReadRegister(d.addr, regAccelConfig2)
	if err != nil {
		return errors.Wrap(err, "read ACCEL_CONFIG2")
	}
	c = c&^0x0F | 0x03
	err = d.writeSeq(d.addr, []regWrite{
		{regAccelConfig2, c, 0},
		{regIntPinCfg, 0x22, 0},
		{regIntEnable, 0x01, 100 * time.Millisecond},
	})
	return errors.Wrap(err, "configure MPU9250 interrupts")
}

// InitMag checks the AK8963 identity, reads its factory sensitivity
// adjustment and starts continuous measurement.
func (d *Driver) InitMag() error {
	id, err := d.bus.ReadRegister(d.magAddr, regMagWIA)
	if err != nil {
		return errors.Wrapf(ErrDeviceAbsent, "AK8963 WIA: %v", err)
	}
	if id != magWhoAmI {
		return errors.Wrapf(ErrDeviceAbsent, "AK8963 WIA = 0x%02X", id)
	}

	err = d.writeSeq(d.magAddr, []regWrite{
		{regMagCNTL, 0x00, 10 * time.Millisecond},
		{regMagCNTL, magFuseROMMode, 10 * time.Millisecond},
	})
	if err != nil {
		return errors.Wrap(err, "AK8963 fuse ROM mode")
	}
	var asa [3]byte
	if err := d.bus.ReadRegisters(d.magAddr, regMagASAX, asa[:]); err != nil {
		return errors.Wrap(err, "read AK8963 sensitivity adjustment")
	}
	d.magAdjust = r3.Vector{
		X: (float64(asa[0])-128)/256 + 1,
		Y: (float64(asa[1])-128)/256 + 1,
		Z: (float64(asa[2])-128)/256 + 1,
	}

	err = d.writeSeq(d.magAddr, []regWrite{
		{regMagCNTL, 0x00, 10 * time.Millisecond},
		{regMagCNTL, byte(d.magScale)<<4 | byte(d.magMode), 10 * time.Millisecond},
	})
	if err != nil {
		return errors.Wrap(err, "AK8963 continuous mode")
	}
	d.magReady = true
	log.Printf("IMU: AK8963 online, %s at %s, adj X=%.4f Y=%.4f Z=%.4f",
		d.magScale, d.magMode, d.magAdjust.X, d.magAdjust.Y, d.magAdjust.Z)
	return nil
}

// SetAccelScale writes ACCEL_FS_SEL and invalidates the cached resolution.
func (d *Driver) SetAccelScale(s AccelScale) error {
	if err := d.updateBits(regAccelConfig, 0x18, byte(s&3)<<3); err != nil {
		return errors.Wrap(err, "set accel scale")
	}
	d.accelScale = s
	d.aResOK = false
	log.Printf("IMU: accelerometer range set to %s", s)
	return nil
}

// SetGyroScale writes GYRO_FS_SEL (clearing Fchoice_b) and invalidates the
// cached resolution.
func (d *Driver) SetGyroScale(s GyroScale) error {
	if err := d.updateBits(regGyroConfig, 0x18|0x03, byte(s&3)<<3); err != nil {
		return errors.Wrap(err, "set gyro scale")
	}
	d.gyroScale = s
	d.gResOK = false
	log.Printf("IMU: gyroscope range set to %s", s)
	return nil
}

// SetMagScale changes the magnetometer width. The new width takes effect
// on the next InitMag.
func (d *Driver) SetMagScale(s MagScale) {
	d.magScale = s
	d.mResOK = false
}

func (d *Driver) updateBits(reg, mask, val byte) error {
	c, err := d.bus.ReadRegister(d.addr, reg)
	if err != nil {
		return err
	}
	return d.bus.WriteRegister(d.addr, reg, c&^mask|val)
}

// AccelRes returns g per LSB for the configured range.
func (d *Driver) AccelRes() float64 {
	if !d.aResOK {
		d.aRes = accelRes(d.accelScale)
		d.aResOK = true
	}
	return d.aRes
}

// GyroRes returns degrees per second per LSB for the configured range.
func (d *Driver) GyroRes() float64 {
	if !d.gResOK {
		d.gRes = gyroRes(d.gyroScale)
		d.gResOK = true
	}
	return d.gRes
}

// MagRes returns milliGauss per LSB for the configured width.
func (d *Driver) MagRes() float64 {
	if !d.mResOK {
		d.mRes = magRes(d.magScale)
		d.mResOK = true
	}
	return d.mRes
}

// MagAdjust returns the factory sensitivity adjustment read by InitMag.
func (d *Driver) MagAdjust() r3.Vector { return d.magAdjust }

// MagMode returns the configured magnetometer measurement mode.
func (d *Driver) MagMode() MagMode { return d.magMode }

// DataReady reports whether the MPU9250 has a new accel/gyro sample.
func (d *Driver) DataReady() (bool, error) {
	s, err := d.bus.ReadRegister(d.addr, regIntStatus)
	if err != nil {
		return false, errors.Wrap(err, "read INT_STATUS")
	}
	return s&intDataReady != 0, nil
}

func (d *Driver) readBE(reg byte) (RawVector, error) {
	var b [6]byte
	if err := d.bus.ReadRegisters(d.addr, reg, b[:]); err != nil {
		return RawVector{}, err
	}
	return bigEndian(b[:]), nil
}

// ReadAccelCounts returns the raw accelerometer counts.
func (d *Driver) ReadAccelCounts() (RawVector, error) {
	v, err := d.readBE(regAccelXoutH)
	return v, errors.Wrap(err, "read accel")
}

// ReadGyroCounts returns the raw gyroscope counts.
func (d *Driver) ReadGyroCounts() (RawVector, error) {
	v, err := d.readBE(regGyroXoutH)
	return v, errors.Wrap(err, "read gyro")
}

// ReadMagCounts returns the raw magnetometer counts. ok is false when no
// new data is ready or the sensor overflowed; such samples are dropped.
func (d *Driver) ReadMagCounts() (v RawVector, ok bool, err error) {
	st1, err := d.bus.ReadRegister(d.magAddr, regMagST1)
	if err != nil {
		return v, false, errors.Wrap(err, "read AK8963 ST1")
	}
	if st1&magDataReady == 0 {
		return v, false, nil
	}
	// ST2 must be read to end the measurement
	var b [7]byte
	if err := d.bus.ReadRegisters(d.magAddr, regMagHXL, b[:]); err != nil {
		return v, false, errors.Wrap(err, "read mag")
	}
	if b[6]&magOverflow != 0 {
		return v, false, nil
	}
	return littleEndian(b[:6]), true, nil
}

// ReadAccel returns acceleration in g.
func (d *Driver) ReadAccel() (r3.Vector, error) {
	c, err := d.ReadAccelCounts()
	if err != nil {
		return r3.Vector{}, err
	}
	return c.Scale(d.AccelRes()), nil
}

// ReadGyro returns angular rate in degrees per second.
func (d *Driver) ReadGyro() (r3.Vector, error) {
	c, err := d.ReadGyroCounts()
	if err != nil {
		return r3.Vector{}, err
	}
	return c.Scale(d.GyroRes()), nil
}

// ReadMag returns the field in milliGauss with the factory sensitivity
// adjustment applied.
func (d *Driver) ReadMag() (r3.Vector, bool, error) {
	c, ok, err := d.ReadMagCounts()
	if err != nil || !ok {
		return r3.Vector{}, ok, err
	}
	res := d.MagRes()
	return r3.Vector{
		X: float64(c[0]) * res * d.magAdjust.X,
		Y: float64(c[1]) * res * d.magAdjust.Y,
		Z: float64(c[2]) * res * d.magAdjust.Z,
	}, true, nil
}

// ReadTemp returns the die temperature in °C.
func (d *Driver) ReadTemp() (float64, error) {
	var b [2]byte
	if err := d.bus.ReadRegisters(d.addr, regTempOutH, b[:]); err != nil {
		return 0, errors.Wrap(err, "read temperature")
	}
	raw := int16(uint16(b[0])<<8 | uint16(b[1]))
	return float64(raw)/333.87 + 21.0, nil
}

// ReadSample reads one accel+gyro+mag sample. ready is false when the
// MPU9250 has no new data, in which case the sample is empty.
func (d *Driver) ReadSample() (s RawSample, ready bool, err error) {
	ready, err = d.DataReady()
	if err != nil || !ready {
		return s, false, err
	}
	if s.Accel, err = d.ReadAccelCounts(); err != nil {
		return s, false, err
	}
	if s.Gyro, err = d.ReadGyroCounts(); err != nil {
		return s, false, err
	}
	if d.magReady {
		if s.Mag, s.MagValid, err = d.ReadMagCounts(); err != nil {
			return s, false, err
		}
	}
	s.AccelRes = d.AccelRes()
	s.GyroRes = d.GyroRes()
	s.MagRes = d.MagRes()
	return s, true, nil
}
