/*************************************************************************
 * Copyright 2024 ENSTA Bretagne Robotics. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package recorder implements Recorder (C7): a binary log of every
// received message plus a nanosecond-precision sidecar timestamp.
package recorder

import (
	"bufio"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/ENSTABretagneRobotics/oculus-driver/logfile"
	"github.com/ENSTABretagneRobotics/oculus-driver/wire"
)

// ErrAlreadyOpen is returned by Open when a file already exists and
// overwrite is false.
var ErrAlreadyOpen = errors.New("recorder: file exists and overwrite is false")

const bufferSize = 256 * 1024

// Recorder appends framed messages to a log file opened for writing. Its
// Write method is called inline from Client's receive goroutine (via
// Driver's message subscriber) and must never block on I/O beyond the
// buffered writer filling, so writes are buffered and never fsynced per
// item.
type Recorder struct {
	mu  sync.Mutex
	f   *os.File
	bIO *bufio.Writer
}

// Open creates path (or truncates it when overwrite is true) and writes
// the 40-byte LogFileHeader.
func Open(path string, overwrite bool) (*Recorder, error) {
	flags := os.O_WRONLY | os.O_CREATE
	if overwrite {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, ErrAlreadyOpen
		}
		return nil, err
	}
	r := &Recorder{f: f, bIO: bufio.NewWriterSize(f, bufferSize)}
	now := time.Now()
	header := logfile.NewFileHeader(float64(now.Unix()) + float64(now.Nanosecond())/1e9)
	if _, err := r.bIO.Write(header.Encode()); err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

// Write appends a message as an OculusSonar item followed immediately by
// its OculusSonarStamp sidecar, per spec.md §4.7's ordering invariant.
func (r *Recorder) Write(msg wire.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data := rawBytes(msg)
	sonarTime := float64(msg.Timestamp.Unix()) + float64(msg.Timestamp.Nanosecond())/1e9
	sonarHeader := logfile.NewItemHeader(logfile.ItemOculusSonar, sonarTime, uint32(len(data)))
	if _, err := r.bIO.Write(sonarHeader.Encode()); err != nil {
		return err
	}
	if _, err := r.bIO.Write(data); err != nil {
		return err
	}

	stampPayload := logfile.EncodeStamp(uint64(msg.Timestamp.Unix()), uint64(msg.Timestamp.Nanosecond()))
	stampHeader := logfile.NewItemHeader(logfile.ItemOculusSonarStamp, sonarTime, uint32(len(stampPayload)))
	if _, err := r.bIO.Write(stampHeader.Encode()); err != nil {
		return err
	}
	if _, err := r.bIO.Write(stampPayload); err != nil {
		return err
	}
	return nil
}

// Flush pushes buffered bytes to the OS without closing the file.
func (r *Recorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bIO.Flush()
}

// Close flushes and closes the underlying file.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.bIO.Flush(); err != nil {
		r.f.Close()
		return err
	}
	return r.f.Close()
}

// rawBytes reconstructs the full header+payload wire bytes for msg. wire.Message
// keeps this in Data, which NewMessage built at construction time.
func rawBytes(msg wire.Message) []byte {
	return msg.Data
}
