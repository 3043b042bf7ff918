/*************************************************************************
 * Copyright 2024 ENSTA Bretagne Robotics. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package config loads the INI-style configuration cmd/oculus-record
// runs from, grounded on ingest/config/{config.go,parse.go,loader.go}:
// gcfg for parsing, AppendDefaultPort-style normalization, and a Verify
// step that fills in defaults the way IngestConfig.Verify does.
package config

import (
	"errors"
	"time"

	"github.com/ENSTABretagneRobotics/oculus-driver/client"
	"github.com/ENSTABretagneRobotics/oculus-driver/oculuslog"
	"github.com/ENSTABretagneRobotics/oculus-driver/statuslistener"
)

// ErrInvalidLogLevel is returned by Verify when Log-Level does not name a
// known level.
var ErrInvalidLogLevel = errors.New("config: invalid Log-Level")

// Global holds the [global] section.
type Global struct {
	SonarAddress      string
	StatusPort        int
	DataPort          int
	CheckerPeriod     time.Duration
	ConnectBackoffMin time.Duration
	ConnectBackoffMax time.Duration
	LogFile           string
	LogLevel          string
	DesyncRetryBudget int
}

// Recording holds the [recording] section.
type Recording struct {
	Enabled   bool
	Path      string
	Overwrite bool
}

// Broadcast holds the [broadcast] section.
type Broadcast struct {
	Enabled bool
	Port    int
}

// Config is the top-level structure gcfg populates. Field names use the
// teacher's underscore convention (e.g. Ingest_Secret in
// ingest/config/config.go), which gcfg folds against this package's
// dashed INI keys (Sonar-Address, Status-Port, ...) case- and
// separator-insensitively.
type Config struct {
	Global struct {
		Sonar_Address       string
		Status_Port         int
		Data_Port           int
		Checker_Period      string
		Connect_Backoff_Min string
		Connect_Backoff_Max string
		Log_File            string
		Log_Level           string
		Desync_Retry_Budget int
	}
	Recording struct {
		Enabled   bool
		Path      string
		Overwrite bool
	}
	Broadcast struct {
		Enabled bool
		Port    int
	}
}

// Resolved is the typed, defaulted configuration applications use, built
// from Config by Verify.
type Resolved struct {
	Global    Global
	Recording Recording
	Broadcast Broadcast
}

// Default returns the configuration this package ships with when no file
// is loaded: discover the sonar via UDP, no recording, no broadcast.
func Default() Resolved {
	return Resolved{
		Global: Global{
			StatusPort:        statuslistener.DefaultPort,
			DataPort:          client.DefaultDataPort,
			CheckerPeriod:     client.DefaultCheckerPeriod,
			ConnectBackoffMin: client.DefaultBackoffMin,
			ConnectBackoffMax: client.DefaultBackoffMax,
			LogLevel:          "INFO",
			DesyncRetryBudget: client.DefaultDesyncRetryBudget,
		},
	}
}

// Verify parses c's string-typed duration fields, applies defaults for
// anything left zero, and validates Log-Level, producing a Resolved
// configuration. Mirrors IngestConfig.Verify's fill-in-the-defaults shape.
func (c Config) Verify() (Resolved, error) {
	r := Default()

	r.Global.SonarAddress = c.Global.Sonar_Address
	if c.Global.Status_Port != 0 {
		r.Global.StatusPort = c.Global.Status_Port
	}
	if c.Global.Data_Port != 0 {
		r.Global.DataPort = c.Global.Data_Port
	}
	if c.Global.Log_File != "" {
		r.Global.LogFile = c.Global.Log_File
	}
	if c.Global.Log_Level != "" {
		r.Global.LogLevel = c.Global.Log_Level
	}
	if c.Global.Desync_Retry_Budget != 0 {
		r.Global.DesyncRetryBudget = c.Global.Desync_Retry_Budget
	}
	if c.Global.Checker_Period != "" {
		d, err := time.ParseDuration(c.Global.Checker_Period)
		if err != nil {
			return Resolved{}, err
		}
		r.Global.CheckerPeriod = d
	}
	if c.Global.Connect_Backoff_Min != "" {
		d, err := time.ParseDuration(c.Global.Connect_Backoff_Min)
		if err != nil {
			return Resolved{}, err
		}
		r.Global.ConnectBackoffMin = d
	}
	if c.Global.Connect_Backoff_Max != "" {
		d, err := time.ParseDuration(c.Global.Connect_Backoff_Max)
		if err != nil {
			return Resolved{}, err
		}
		r.Global.ConnectBackoffMax = d
	}
	if _, err := oculuslog.LevelFromString(r.Global.LogLevel); err != nil {
		return Resolved{}, ErrInvalidLogLevel
	}

	r.Recording = Recording(c.Recording)
	r.Broadcast = Broadcast(c.Broadcast)
	return r, nil
}

// StatusAddr formats the address StatusListener should bind, per
// AppendDefaultPort's normalization idea: always host:port.
func (r Resolved) StatusAddr() string {
	return AppendDefaultPort("0.0.0.0", r.Global.StatusPort)
}
