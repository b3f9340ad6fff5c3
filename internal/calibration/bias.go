package calibration

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/relabs-tech/indoor_nav/internal/imu"
)

// ComputeBias averages an at-rest burst. Gravity is removed from the
// accelerometer z axis, with its sign taken from the mean. Results are in
// °/s and g.
func ComputeBias(b imu.Burst) (gyro, accel r3.Vector, err error) {
	n := len(b.Accel)
	if n == 0 || len(b.Gyro) != n {
		return gyro, accel, errors.Wrapf(ErrDegenerate, "bias burst has %d accel and %d gyro packets", n, len(b.Gyro))
	}
	if b.AccelRes <= 0 || b.GyroRes <= 0 {
		return gyro, accel, errors.Wrap(ErrDegenerate, "bias burst has no resolution")
	}

	var aSum, gSum [3]int64
	for i := 0; i < n; i++ {
		for k := 0; k < 3; k++ {
			aSum[k] += int64(b.Accel[i][k])
			gSum[k] += int64(b.Gyro[i][k])
		}
	}
	var aAvg, gAvg [3]int64
	for k := 0; k < 3; k++ {
		aAvg[k] = aSum[k] / int64(n)
		gAvg[k] = gSum[k] / int64(n)
	}

	oneG := int64(math.Round(1 / b.AccelRes))
	if aAvg[2] > 0 {
		aAvg[2] -= oneG
	} else {
		aAvg[2] += oneG
	}

	gyro = r3.Vector{X: float64(gAvg[0]), Y: float64(gAvg[1]), Z: float64(gAvg[2])}.Mul(b.GyroRes)
	accel = r3.Vector{X: float64(aAvg[0]), Y: float64(aAvg[1]), Z: float64(aAvg[2])}.Mul(b.AccelRes)
	return gyro, accel, nil
}
