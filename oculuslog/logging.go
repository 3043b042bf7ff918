/*************************************************************************
 * Copyright 2024 ENSTA Bretagne Robotics. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package oculuslog is the driver's structured logger: one or more
// io.WriteCloser destinations, RFC5424-formatted lines, and the level
// filtering the driver uses to report connection-state transitions, resync
// events, and I/O faults.
package oculuslog

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/crewjam/rfc5424"
)

// Level orders log severities; a Logger drops anything below its configured
// level.
type Level int

const (
	OFF Level = iota
	DEBUG
	INFO
	WARN
	ERROR
	CRITICAL
)

func (l Level) String() string {
	switch l {
	case OFF:
		return `OFF`
	case DEBUG:
		return `DEBUG`
	case INFO:
		return `INFO`
	case WARN:
		return `WARN`
	case ERROR:
		return `ERROR`
	case CRITICAL:
		return `CRITICAL`
	}
	return `UNKNOWN`
}

// LevelFromString parses a level name case-insensitively.
func LevelFromString(s string) (Level, error) {
	switch strings.ToUpper(s) {
	case `OFF`:
		return OFF, nil
	case `DEBUG`:
		return DEBUG, nil
	case `INFO`:
		return INFO, nil
	case `WARN`:
		return WARN, nil
	case `ERROR`:
		return ERROR, nil
	case `CRITICAL`:
		return CRITICAL, nil
	}
	return OFF, ErrInvalidLevel
}

// ErrInvalidLevel is returned by LevelFromString for an unrecognized name.
var ErrInvalidLevel = errors.New("oculuslog: invalid log level")

const (
	defaultMsgID = `oculus@1`
	maxAppname   = 48
	maxHostname  = 255
)

// Logger writes leveled, RFC5424-formatted lines to one or more writers.
// The zero value is not usable; construct with New or NewDiscard.
type Logger struct {
	mtx      sync.Mutex
	wtrs     []io.WriteCloser
	lvl      Level
	hostname string
	appname  string
}

// New wraps wtr as a Logger at INFO level, guessing hostname/appname from
// the running process the way the teacher's logger does.
func New(wtr io.WriteCloser) *Logger {
	l := &Logger{wtrs: []io.WriteCloser{wtr}, lvl: INFO}
	l.hostname, _ = os.Hostname()
	if len(l.hostname) > maxHostname {
		l.hostname = l.hostname[:maxHostname]
	}
	if len(os.Args) > 0 {
		exe := filepath.Base(os.Args[0])
		if ext := filepath.Ext(exe); len(ext) > 0 && len(ext) < len(exe) {
			exe = strings.TrimSuffix(exe, ext)
		}
		l.appname = exe
	}
	if len(l.appname) > maxAppname {
		l.appname = l.appname[:maxAppname]
	}
	return l
}

// NewFile opens (creating/appending) f and wraps it as a Logger.
func NewFile(f string) (*Logger, error) {
	fout, err := os.OpenFile(f, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0660)
	if err != nil {
		return nil, err
	}
	return New(fout), nil
}

type discardCloser struct{ io.Writer }

func (discardCloser) Close() error { return nil }

// NewDiscard returns a Logger that throws everything away; it is the
// default every component falls back to when constructed without an
// explicit logger.
func NewDiscard() *Logger {
	return New(discardCloser{io.Discard})
}

// AddWriter fans output out to an additional destination, e.g. stderr
// alongside a log file.
func (l *Logger) AddWriter(wtr io.WriteCloser) {
	l.mtx.Lock()
	l.wtrs = append(l.wtrs, wtr)
	l.mtx.Unlock()
}

// SetLevel changes the minimum level that will be emitted.
func (l *Logger) SetLevel(lvl Level) {
	l.mtx.Lock()
	l.lvl = lvl
	l.mtx.Unlock()
}

// Close closes every underlying writer.
func (l *Logger) Close() error {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	var first error
	for _, w := range l.wtrs {
		if err := w.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (l *Logger) output(lvl Level, msg string, sds ...rfc5424.SDParam) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	if lvl < l.lvl || l.lvl == OFF {
		return
	}
	m := rfc5424.Message{
		Priority:  priority(lvl),
		Timestamp: time.Now(),
		Hostname:  l.hostname,
		AppName:   l.appname,
		MessageID: defaultMsgID,
		Message:   []byte(msg),
	}
	if len(sds) > 0 {
		m.StructuredData = []rfc5424.StructuredData{{ID: `oculus@1`, Parameters: sds}}
	}
	b, err := m.MarshalBinary()
	if err != nil {
		return
	}
	for _, w := range l.wtrs {
		io.WriteString(w, string(b))
		io.WriteString(w, "\n")
	}
}

func priority(l Level) rfc5424.Priority {
	switch l {
	case DEBUG:
		return rfc5424.User | rfc5424.Debug
	case INFO:
		return rfc5424.User | rfc5424.Info
	case WARN:
		return rfc5424.User | rfc5424.Warning
	case ERROR:
		return rfc5424.User | rfc5424.Error
	case CRITICAL:
		return rfc5424.User | rfc5424.Crit
	}
	return rfc5424.User | rfc5424.Debug
}

func (l *Logger) Debugf(f string, a ...interface{})    { l.output(DEBUG, fmt.Sprintf(f, a...)) }
func (l *Logger) Infof(f string, a ...interface{})     { l.output(INFO, fmt.Sprintf(f, a...)) }
func (l *Logger) Warnf(f string, a ...interface{})     { l.output(WARN, fmt.Sprintf(f, a...)) }
func (l *Logger) Errorf(f string, a ...interface{})    { l.output(ERROR, fmt.Sprintf(f, a...)) }
func (l *Logger) Criticalf(f string, a ...interface{}) { l.output(CRITICAL, fmt.Sprintf(f, a...)) }
