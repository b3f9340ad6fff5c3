// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package bus provides the register-addressed transport used by the sensor
// drivers.
package bus

import (
	"sync"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// SensorBus reads and writes single-byte registers on devices sharing a
// restart-capable bus.
type SensorBus interface {
	WriteRegister(addr uint16, reg, val byte) error
	ReadRegister(addr uint16, reg byte) (byte, error)
	ReadRegisters(addr uint16, reg byte, dst []byte) error
}

// I2C is a SensorBus backed by a periph.io I2C bus. Reads use a
// write-then-read transaction with a repeated start.
type I2C struct {
	mu  sync.Mutex
	bus i2c.BusCloser
}

// OpenI2C initializes the periph host drivers and opens the named bus.
// An empty name selects the first available bus.
func OpenI2C(name string) (*I2C, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrap(err, "periph host init")
	}
	b, err := i2creg.Open(name)
	if err != nil {
		return nil, errors.Wrapf(err, "open I2C bus %q", name)
	}
	return &I2C{bus: b}, nil
}

// Bus exposes the underlying periph bus so other devices (the OLED) can share it.
func (b *I2C) Bus() i2c.Bus {
	return b.bus
}

func (b *I2C) WriteRegister(addr uint16, reg, val byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.bus.Tx(addr, []byte{reg, val}, nil); err != nil {
		return errors.Wrapf(err, "write 0x%02X to 0x%02X@0x%02X", val, reg, addr)
	}
	return nil
}

func (b *I2C) ReadRegister(addr uint16, reg byte) (byte, error) {
	var buf [1]byte
	if err := b.ReadRegisters(addr, reg, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

func (b *I2C) ReadRegisters(addr uint16, reg byte, dst []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.bus.Tx(addr, []byte{reg}, dst); err != nil {
		return errors.Wrapf(err, "read %d bytes from 0x%02X@0x%02X", len(dst), reg, addr)
	}
	return nil
}

// Close releases the bus.
func (b *I2C) Close() error {
	return b.bus.Close()
}
