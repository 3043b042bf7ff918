/*************************************************************************
 * Copyright 2024 ENSTA Bretagne Robotics. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Command oculus-record is a thin shell over the driver package: it loads
// a config file, connects to a sonar, optionally records every message to
// disk and broadcasts a JSON stamp for each message, and logs a one-line
// summary per ping until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ENSTABretagneRobotics/oculus-driver/broadcaster"
	"github.com/ENSTABretagneRobotics/oculus-driver/config"
	"github.com/ENSTABretagneRobotics/oculus-driver/driver"
	"github.com/ENSTABretagneRobotics/oculus-driver/oculuslog"
	"github.com/ENSTABretagneRobotics/oculus-driver/reactor"
	"github.com/ENSTABretagneRobotics/oculus-driver/wire"
)

const defaultConfigLoc = `/etc/oculus-record.conf`

var (
	confLoc = flag.String("config-file", defaultConfigLoc, "location for configuration file")
	verbose = flag.Bool("v", false, "also log to stderr")
)

func main() {
	flag.Parse()

	var cfg config.Resolved
	if raw, err := config.LoadConfigFile(*confLoc); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "failed to load %s: %v\n", *confLoc, err)
			os.Exit(1)
		}
		cfg = config.Default()
	} else if cfg, err = raw.Verify(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	lg, err := buildLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open log file %s: %v\n", cfg.Global.LogFile, err)
		os.Exit(1)
	}
	defer lg.Close()

	lvl, _ := oculuslog.LevelFromString(cfg.Global.LogLevel)
	lg.SetLevel(lvl)

	statusAddr := cfg.StatusAddr()
	d := driver.New(statusAddr,
		driver.WithLogger(lg),
		driver.WithDataPort(cfg.Global.DataPort),
		driver.WithCheckerPeriod(cfg.Global.CheckerPeriod),
		driver.WithBackoff(cfg.Global.ConnectBackoffMin, cfg.Global.ConnectBackoffMax),
	)

	if cfg.Recording.Enabled {
		if err := d.RecorderOpen(cfg.Recording.Path, cfg.Recording.Overwrite); err != nil {
			lg.Criticalf("failed to open recording file %s: %v", cfg.Recording.Path, err)
			os.Exit(1)
		}
	}

	var bc *broadcaster.Broadcaster
	if cfg.Broadcast.Enabled {
		bc, err = broadcaster.Open(cfg.Broadcast.Port, lg)
		if err != nil {
			lg.Warnf("failed to open broadcaster: %v", err)
		} else {
			defer bc.Close()
			d.AddMessageCallback(bc.Send)
		}
	}

	d.AddPingCallback(func(view wire.PingView) {
		lg.Infof("ping: index=%d beams=%d ranges=%d mode=%d", view.PingIndex(), view.NBeams(), view.NRanges(), view.MasterMode())
	})

	r := reactor.New(d)

	ctx, cancel := context.WithCancel(context.Background())
	sch := make(chan os.Signal, 1)
	signal.Notify(sch, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sch
		cancel()
	}()

	if err := r.Run(ctx); err != nil {
		lg.Criticalf("reactor exited with error: %v", err)
		os.Exit(1)
	}
}

func buildLogger(cfg config.Resolved) (*oculuslog.Logger, error) {
	if cfg.Global.LogFile == "" {
		return oculuslog.New(os.Stderr), nil
	}
	lg, err := oculuslog.NewFile(cfg.Global.LogFile)
	if err != nil {
		return nil, err
	}
	if *verbose {
		lg.AddWriter(os.Stderr)
	}
	return lg, nil
}
