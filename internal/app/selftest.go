package app

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/indoor_nav/internal/imu"
)

// ErrSelfTestFailed means the sensor response was outside tolerance.
var ErrSelfTestFailed = errors.New("IMU self-test failed")

// RunSelfTest runs the factory self-test on hw and checks every axis
// against tolPct percent.
func RunSelfTest(hw *Hardware, tolPct float64) (imu.SelfTestResult, error) {
	res, err := hw.Driver.SelfTest()
	if err != nil {
		return res, err
	}
	fields := log.Fields{
		"accel_pct": res.AccelDeviation,
		"gyro_pct":  res.GyroDeviation,
		"tolerance": tolPct,
	}
	if !res.Passed(tolPct) {
		log.WithFields(fields).Error("IMU: self-test out of tolerance")
		return res, errors.Wrapf(ErrSelfTestFailed, "tolerance %.1f%%", tolPct)
	}
	log.WithFields(fields).Info("IMU: self-test passed")
	return res, nil
}
