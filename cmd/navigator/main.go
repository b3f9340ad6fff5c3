// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/fang"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/relabs-tech/indoor_nav/internal/app"
	"github.com/relabs-tech/indoor_nav/internal/config"
)

const defaultConfigFile = "indoor_nav_config.txt"

var (
	configPath string
	simulate   bool
)

// loadConfig reads the config file. A missing default file falls back to
// built-in defaults; a missing explicit file is an error.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := configPath
	if !cmd.Flags().Changed("config") {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			log.Printf("no %s found, using defaults", path)
			path = ""
		}
	}
	if err := config.InitGlobal(path); err != nil {
		return nil, err
	}
	cfg := config.Get()
	if simulate {
		cfg.Simulation = true
	}
	if lvl, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(lvl)
	} else {
		log.Warnf("invalid LOG_LEVEL %q, keeping %s", cfg.LogLevel, log.GetLevel())
	}
	return cfg, nil
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	root := &cobra.Command{
		Use:   "navigator",
		Short: "Indoor navigation wearable",
		Long: `navigator runs the wearable: it fuses the MPU9250/AK8963 into a compass
heading, lets the user pick a destination with the button and tilt gestures,
and polls the geolocation and routing services while guiding them there.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigFile, "KEY=VALUE configuration file")
	root.PersistentFlags().BoolVar(&simulate, "sim", false, "use the simulated sensor bus")

	run := &cobra.Command{
		Use:   "run",
		Short: "Run the device loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return app.RunDevice(cmd.Context(), cfg)
		},
	}

	var withMag bool
	calibrate := &cobra.Command{
		Use:   "calibrate",
		Short: "Measure sensor bias and, optionally, magnetometer corrections",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return app.RunCalibration(cmd.Context(), cfg, withMag)
		},
	}
	calibrate.Flags().BoolVar(&withMag, "mag", true, "also run the magnetometer tumble")

	selftest := &cobra.Command{
		Use:   "selftest",
		Short: "Run the IMU factory self-test",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return app.RunSelfTestOnce(cfg, cmd.OutOrStdout())
		},
	}

	registers := &cobra.Command{
		Use:       "registers [mpu9250|ak8963]",
		Short:     "Dump sensor registers",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"mpu9250", "ak8963"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			device := "mpu9250"
			if len(args) == 1 {
				device = args[0]
			}
			return app.PrintRegisters(cfg, device, cmd.OutOrStdout())
		},
	}

	root.AddCommand(run, calibrate, selftest, registers)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := fang.Execute(ctx, root); err != nil {
		stop()
		os.Exit(1)
	}
}
