package imu

import (
	"math"
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

const selfTestSamples = 200

// SelfTestResult holds the percent deviation of the self-test response from
// the factory trim, per axis.
type SelfTestResult struct {
	AccelDeviation r3.Vector `json:"accel_deviation"`
	GyroDeviation  r3.Vector `json:"gyro_deviation"`
}

// Passed reports whether every axis is within tol percent.
func (r SelfTestResult) Passed(tol float64) bool {
	for _, v := range []r3.Vector{r.AccelDeviation, r.GyroDeviation} {
		if math.Abs(v.X) > tol || math.Abs(v.Y) > tol || math.Abs(v.Z) > tol {
			return false
		}
		if math.IsNaN(v.X) || math.IsNaN(v.Y) || math.IsNaN(v.Z) {
			return false
		}
	}
	return true
}

// factoryTrim converts a SELF_TEST register code to the expected response
// in counts at ±250 °/s / ±2 g.
func factoryTrim(code byte) float64 {
	return 2620 * math.Pow(1.01, float64(code)-1)
}

func (d *Driver) averageCounts(n int) (accel, gyro [3]float64, err error) {
	var aSum, gSum [3]int64
	for i := 0; i < n; i++ {
		a, err := d.ReadAccelCounts()
		if err != nil {
			return accel, gyro, err
		}
		g, err := d.ReadGyroCounts()
		if err != nil {
			return accel, gyro, err
		}
		for k := 0; k < 3; k++ {
			aSum[k] += int64(a[k])
			gSum[k] += int64(g[k])
		}
	}
	for k := 0; k < 3; k++ {
		accel[k] = float64(aSum[k] / int64(n))
		gyro[k] = float64(gSum[k] / int64(n))
	}
	return accel, gyro, nil
}

// SelfTest runs the one-shot excited self-test and restores the operating
// mode. It is a startup health check only.
func (d *Driver) SelfTest() (SelfTestResult, error) {
	err := d.writeSeq(d.addr, []regWrite{
		{regSmplrtDiv, 0x00, 0},
		{regConfig, 0x02, 0},
		{regGyroConfig, 0x00, 0},
		{regAccelConfig2, 0x02, 0},
		{regAccelConfig, 0x00, 0},
	})
	if err != nil {
		return SelfTestResult{}, errors.Wrap(err, "configure self-test")
	}
	aAvg, gAvg, err := d.averageCounts(selfTestSamples)
	if err != nil {
		return SelfTestResult{}, errors.Wrap(err, "self-test baseline")
	}

	err = d.writeSeq(d.addr, []regWrite{
		{regAccelConfig, selfTestBits, 0},
		{regGyroConfig, selfTestBits, 25 * time.Millisecond},
	})
	if err != nil {
		return SelfTestResult{}, errors.Wrap(err, "enable self-test")
	}
	aST, gST, err := d.averageCounts(selfTestSamples)
	if err != nil {
		return SelfTestResult{}, errors.Wrap(err, "self-test excited")
	}
	err = d.writeSeq(d.addr, []regWrite{
		{regAccelConfig, 0x00, 0},
		{regGyroConfig, 0x00, 25 * time.Millisecond},
	})
	if err != nil {
		return SelfTestResult{}, errors.Wrap(err, "disable self-test")
	}

	var codes [6]byte
	for i, reg := range []byte{
		regSelfTestXAccel, regSelfTestYAccel, regSelfTestZAccel,
		regSelfTestXGyro, regSelfTestYGyro, regSelfTestZGyro,
	} {
		if codes[i], err = d.bus.ReadRegister(d.addr, reg); err != nil {
			return SelfTestResult{}, errors.Wrap(err, "read self-test codes")
		}
	}

	var dev [6]float64
	for k := 0; k < 3; k++ {
		dev[k] = 100*(aST[k]-aAvg[k])/factoryTrim(codes[k]) - 100
		dev[k+3] = 100*(gST[k]-gAvg[k])/factoryTrim(codes[k+3]) - 100
	}

	if err := d.configure(); err != nil {
		return SelfTestResult{}, errors.Wrap(err, "restore operating mode after self-test")
	}
	return SelfTestResult{
		AccelDeviation: r3.Vector{X: dev[0], Y: dev[1], Z: dev[2]},
		GyroDeviation:  r3.Vector{X: dev[3], Y: dev[4], Z: dev[5]},
	}, nil
}
