// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"math"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/indoor_nav/internal/calibration"
	"github.com/relabs-tech/indoor_nav/internal/display"
	"github.com/relabs-tech/indoor_nav/internal/orientation"
)

// levelTolerance is how far from level, in degrees, the bias run warns.
const levelTolerance = 10.0

// Calibrate runs the bias procedure and, when withMag is set, the
// magnetometer tumble, then saves the profile to store. A failed
// procedure keeps the stored profile.
func Calibrate(ctx context.Context, hw *Hardware, store calibration.Store, out display.Output, withMag bool) (calibration.Profile, error) {
	current, err := store.LoadOrDefault()
	if err != nil {
		log.WithError(err).Warn("calibration: stored profile unusable, starting from defaults")
		current = calibration.DefaultProfile()
	}
	eng, err := calibration.NewEngine(hw.Driver, hw.Clock, current)
	if err != nil {
		return current, err
	}

	show := func(lines ...string) {
		if err := out.ShowMessage(lines...); err != nil {
			log.Printf("display: %v", err)
		}
	}

	a, err := hw.Driver.ReadAccel()
	if err != nil {
		return current, errors.Wrap(err, "level check")
	}
	pose := orientation.ComputePoseFromAccel(a.X, a.Y, a.Z)
	if math.Abs(pose.Roll) > levelTolerance || math.Abs(pose.Pitch) > levelTolerance {
		log.WithFields(log.Fields{"roll": pose.Roll, "pitch": pose.Pitch}).
			Warn("calibration: device is not level, accelerometer bias will absorb the tilt")
	}

	show("Calibrating", "Keep device still")
	p, err := eng.RunBias(ctx)
	if err != nil {
		show("Calibration", "bias failed")
		return current, err
	}

	if withMag {
		show("Calibrating", "Tumble device", "in a figure 8")
		last := -1
		p, err = eng.RunMag(ctx, func(done, total int) {
			pct := 100 * done / total
			if pct/10 != last {
				last = pct / 10
				show("Tumble device", fmt.Sprintf("%d%%", pct))
			}
		})
		if err != nil {
			show("Calibration", "mag failed")
			return current, err
		}
	}

	if err := store.Save(p); err != nil {
		return current, err
	}
	log.WithFields(log.Fields{"file": store.Path, "source": p.Source}).Info("calibration: profile saved")
	show("Calibration", "saved")
	return p, nil
}
