// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

import "github.com/pkg/errors"

// Default bus addresses.
const (
	AddrMPU9250 uint16 = 0x68
	AddrAK8963  uint16 = 0x0C
)

// MPU9250 registers.
const (
	regSelfTestXGyro  = 0x00
	regSelfTestYGyro  = 0x01
	regSelfTestZGyro  = 0x02
	regSelfTestXAccel = 0x0D
	regSelfTestYAccel = 0x0E
	regSelfTestZAccel = 0x0F
	regSmplrtDiv      = 0x19
	regConfig         = 0x1A
	regGyroConfig     = 0x1B
	regAccelConfig    = 0x1C
	regAccelConfig2   = 0x1D
	regFIFOEn         = 0x23
	regI2CMstCtrl     = 0x24
	regIntPinCfg      = 0x37
	regIntEnable      = 0x38
	regIntStatus      = 0x3A
	regAccelXoutH     = 0x3B
	regTempOutH       = 0x41
	regGyroXoutH      = 0x43
	regUserCtrl       = 0x6A
	regPwrMgmt1       = 0x6B
	regPwrMgmt2       = 0x6C
	regFIFOCountH     = 0x72
	regFIFORW         = 0x74
	regWhoAmI         = 0x75
)

// AK8963 registers.
const (
	regMagWIA  = 0x00
	regMagST1  = 0x02
	regMagHXL  = 0x03
	regMagST2  = 0x09
	regMagCNTL = 0x0A
	regMagASAX = 0x10
)

const (
	magWhoAmI      = 0x48
	magDataReady   = 0x01
	magOverflow    = 0x08
	magFuseROMMode = 0x0F
	intDataReady   = 0x01
	selfTestBits   = 0xE0
)

// Register describes one register for diagnostic dumps.
type Register struct {
	Addr        byte   `json:"addr"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// MPU9250Registers lists the configuration and status registers the driver
// touches, in address order.
var MPU9250Registers = []Register{
	{regSmplrtDiv, "SMPLRT_DIV", "sample rate = internal rate / (1 + div)"},
	{regConfig, "CONFIG", "gyro/temperature DLPF"},
	{regGyroConfig, "GYRO_CONFIG", "self-test [7:5], GYRO_FS_SEL [4:3]"},
	{regAccelConfig, "ACCEL_CONFIG", "self-test [7:5], ACCEL_FS_SEL [4:3]"},
	{regAccelConfig2, "ACCEL_CONFIG2", "accel DLPF"},
	{regFIFOEn, "FIFO_EN", "FIFO sources"},
	{regIntPinCfg, "INT_PIN_CFG", "INT pin / bypass enable"},
	{regIntEnable, "INT_ENABLE", "interrupt enable"},
	{regIntStatus, "INT_STATUS", "RAW_DATA_RDY [0]"},
	{regUserCtrl, "USER_CTRL", "FIFO_EN [6], I2C_MST_EN [5], FIFO_RST [2]"},
	{regPwrMgmt1, "PWR_MGMT_1", "H_RESET [7], SLEEP [6], CLKSEL [2:0]"},
	{regPwrMgmt2, "PWR_MGMT_2", "per-axis disable"},
	{regWhoAmI, "WHO_AM_I", "0x71 MPU9250, 0x73 MPU9255"},
}

// AK8963Registers lists the magnetometer registers, in address order.
var AK8963Registers = []Register{
	{regMagWIA, "WIA", "device id, 0x48"},
	{regMagST1, "ST1", "DRDY [0], DOR [1]"},
	{regMagST2, "ST2", "HOFL [3], BITM [4]"},
	{regMagCNTL, "CNTL1", "BIT [4], MODE [3:0]"},
	{regMagASAX, "ASAX", "x sensitivity adjustment"},
	{regMagASAX + 1, "ASAY", "y sensitivity adjustment"},
	{regMagASAX + 2, "ASAZ", "z sensitivity adjustment"},
}

// RegisterValue is one register read back by DumpRegisters.
type RegisterValue struct {
	Register
	Value byte `json:"value"`
}

// DumpRegisters reads every register in the table for device ("mpu9250"
// or "ak8963").
func (d *Driver) DumpRegisters(device string) ([]RegisterValue, error) {
	var (
		addr  uint16
		table []Register
	)
	switch device {
	case "mpu9250", "":
		addr, table = d.addr, MPU9250Registers
	case "ak8963":
		addr, table = d.magAddr, AK8963Registers
	default:
		return nil, errors.Errorf("unknown device %q", device)
	}
	out := make([]RegisterValue, 0, len(table))
	for _, r := range table {
		v, err := d.bus.ReadRegister(addr, r.Addr)
		if err != nil {
			return nil, errors.Wrapf(err, "read %s", r.Name)
		}
		out = append(out, RegisterValue{Register: r, Value: v})
	}
	return out, nil
}
