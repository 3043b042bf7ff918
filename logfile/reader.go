/*************************************************************************
 * Copyright 2024 ENSTA Bretagne Robotics. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package logfile

import (
	"errors"
	"io"
	"math"
	"os"
	"time"

	"github.com/ENSTABretagneRobotics/oculus-driver/oculuslog"
	"github.com/ENSTABretagneRobotics/oculus-driver/wire"
)

// ErrEOF is returned by the read_next_* family when the file is exhausted.
var ErrEOF = errors.New("logfile: end of file")

// Reader implements FileReader (C8): sequential read-back of a Recorder
// log, yielding framed Messages and, where the item is a ping result,
// decoded PingViews.
type Reader struct {
	log    *oculuslog.Logger
	f      *os.File
	header FileHeader

	bodyStart int64
	cur       ItemHeader
	curValid  bool
	atEOF     bool
}

// Open opens path for sequential reading and validates its FileHeader.
// A version other than CurrentVersion is logged as a warning, not an
// error; a nonzero Encryption field is fatal.
func Open(path string, logger *oculuslog.Logger) (*Reader, error) {
	if logger == nil {
		logger = oculuslog.NewDiscard()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, FileHeaderSize)
	if _, err := io.ReadFull(f, buf); err != nil {
		f.Close()
		return nil, ErrLogFormatInvalid
	}
	fh, err := ParseFileHeader(buf)
	if err != nil {
		f.Close()
		return nil, err
	}
	if fh.Version != CurrentVersion {
		logger.Warnf("logfile: unexpected version %d (want %d)", fh.Version, CurrentVersion)
	}
	r := &Reader{log: logger, f: f, header: fh, bodyStart: FileHeaderSize}
	r.primeHeader()
	return r, nil
}

// Close releases the underlying file handle.
func (r *Reader) Close() error { return r.f.Close() }

// FileHeader returns the validated file header.
func (r *Reader) FileHeader() FileHeader { return r.header }

// primeHeader reads the next item's header into r.cur, or marks EOF.
func (r *Reader) primeHeader() {
	buf := make([]byte, ItemHeaderSize)
	if _, err := io.ReadFull(r.f, buf); err != nil {
		r.atEOF = true
		r.curValid = false
		return
	}
	h, err := ParseItemHeader(buf)
	if err != nil {
		r.atEOF = true
		r.curValid = false
		return
	}
	r.cur = h
	r.curValid = true
}

// NextItemHeader peeks at the header of the next unread item.
func (r *Reader) NextItemHeader() (ItemHeader, bool) {
	return r.cur, r.curValid
}

// ReadNextItem consumes the current item's payload and advances to the
// next header. It returns (nil, false) at end of file.
func (r *Reader) ReadNextItem() ([]byte, bool) {
	if !r.curValid {
		return nil, false
	}
	h := r.cur
	buf := make([]byte, h.PayloadSize)
	if h.PayloadSize > 0 {
		if _, err := io.ReadFull(r.f, buf); err != nil {
			r.atEOF = true
			r.curValid = false
			return nil, false
		}
	}
	r.primeHeader()
	return buf, true
}

// JumpItem seeks past the current item's payload without reading it.
func (r *Reader) JumpItem() bool {
	if !r.curValid {
		return false
	}
	if _, err := r.f.Seek(int64(r.cur.PayloadSize), io.SeekCurrent); err != nil {
		r.atEOF = true
		r.curValid = false
		return false
	}
	r.primeHeader()
	return true
}

// ReadNextMessage scans forward past any items that are not OculusSonar,
// consumes the sonar payload as a framed Message, and if the immediately
// following item is an OculusSonarStamp, uses its nanosecond-precision
// timestamp; otherwise falls back to the sonar item's time field.
func (r *Reader) ReadNextMessage() (wire.Message, error) {
	for {
		if !r.curValid {
			return wire.Message{}, ErrEOF
		}
		if r.cur.Type != ItemOculusSonar {
			if !r.JumpItem() {
				return wire.Message{}, ErrEOF
			}
			continue
		}
		sonarTime := r.cur.Time
		payload, ok := r.ReadNextItem()
		if !ok {
			return wire.Message{}, ErrEOF
		}
		h, err := wire.ValidateHeader(payload)
		if err != nil {
			continue
		}
		body := payload[wire.HeaderSize:]
		ts := timeFromSeconds(sonarTime)
		if r.curValid && r.cur.Type == ItemOculusSonarStamp {
			stampPayload, ok := r.ReadNextItem()
			if ok {
				if secs, nanos, ok := DecodeStamp(stampPayload); ok {
					ts = time.Unix(int64(secs), int64(nanos))
				}
			}
		}
		return wire.NewMessage(h, body, ts), nil
	}
}

// ReadNextPing is ReadNextMessage restricted to ping results, additionally
// decoding the payload into a PingView.
func (r *Reader) ReadNextPing() (wire.PingView, time.Time, error) {
	for {
		msg, err := r.ReadNextMessage()
		if err != nil {
			return wire.PingView{}, time.Time{}, err
		}
		if !wire.IsPing(msg.Header) {
			continue
		}
		view, ok := wire.ParsePing(msg.Header, msg.Payload())
		if !ok {
			continue
		}
		return view, msg.Timestamp, nil
	}
}

// Rewind seeks to end-of-file-header and re-primes the item cursor.
func (r *Reader) Rewind() error {
	if _, err := r.f.Seek(r.bodyStart, io.SeekStart); err != nil {
		return err
	}
	r.atEOF = false
	r.primeHeader()
	return nil
}

func timeFromSeconds(s float64) time.Time {
	whole, frac := math.Modf(s)
	return time.Unix(int64(whole), int64(frac*1e9))
}
