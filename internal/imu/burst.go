package imu

import (
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const fifoPacketSize = 12

// Burst is a block of at-rest accel+gyro samples captured through the FIFO
// at maximum sensitivity.
type Burst struct {
	Accel    []RawVector
	Gyro     []RawVector
	AccelRes float64 // g/LSB at capture time
	GyroRes  float64 // dps/LSB at capture time
}

// CaptureBurst resets the device, streams accel and gyro into the FIFO for
// 40 ms at 1 kHz (±2 g, ±250 °/s) and returns the packets. The device is
// put back into its operating mode afterwards. The device must be at rest.
func (d *Driver) CaptureBurst() (Burst, error) {
	err := d.writeSeq(d.addr, []regWrite{
		{regPwrMgmt1, 0x80, 100 * time.Millisecond},
		{regPwrMgmt1, 0x01, 0},
		{regPwrMgmt2, 0x00, 200 * time.Millisecond},

		// interrupts, FIFO and I2C master off, then reset the FIFO
		{regIntEnable, 0x00, 0},
		{regFIFOEn, 0x00, 0},
		{regPwrMgmt1, 0x00, 0},
		{regI2CMstCtrl, 0x00, 0},
		{regUserCtrl, 0x00, 0},
		{regUserCtrl, 0x0C, 15 * time.Millisecond},

		// 188 Hz DLPF, 1 kHz, maximum sensitivity
		{regConfig, 0x01, 0},
		{regSmplrtDiv, 0x00, 0},
		{regGyroConfig, 0x00, 0},
		{regAccelConfig, 0x00, 0},

		{regUserCtrl, 0x40, 0},
		{regFIFOEn, 0x78, 40 * time.Millisecond},
		{regFIFOEn, 0x00, 0},
	})
	if err != nil {
		return Burst{}, errors.Wrap(err, "configure bias burst")
	}

	var cnt [2]byte
	if err := d.bus.ReadRegisters(d.addr, regFIFOCountH, cnt[:]); err != nil {
		return Burst{}, errors.Wrap(err, "read FIFO count")
	}
	packets := int(uint16(cnt[0])<<8|uint16(cnt[1])) / fifoPacketSize

	b := Burst{
		Accel:    make([]RawVector, 0, packets),
		Gyro:     make([]RawVector, 0, packets),
		AccelRes: accelRes(Accel2G),
		GyroRes:  gyroRes(Gyro250DPS),
	}
	var pkt [fifoPacketSize]byte
	for i := 0; i < packets; i++ {
		if err := d.bus.ReadRegisters(d.addr, regFIFORW, pkt[:]); err != nil {
			return Burst{}, errors.Wrapf(err, "read FIFO packet %d", i)
		}
		b.Accel = append(b.Accel, bigEndian(pkt[0:6]))
		b.Gyro = append(b.Gyro, bigEndian(pkt[6:12]))
	}
	log.Printf("IMU: captured %d FIFO packets for bias", packets)

	if err := d.configure(); err != nil {
		return b, errors.Wrap(err, "restore operating mode after burst")
	}
	return b, nil
}
