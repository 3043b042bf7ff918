/*************************************************************************
 * Copyright 2024 ENSTA Bretagne Robotics. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package broadcaster implements the optional UDP stamp broadcaster,
// supplemented from original_source/src/StampBroadcaster.cpp: a
// best-effort, non-fatal side channel that announces every received
// message's identity and timestamp to the local broadcast domain so other
// processes can correlate it without subscribing to the full driver.
package broadcaster

import (
	"context"
	"net"

	"github.com/goccy/go-json"

	"github.com/ENSTABretagneRobotics/oculus-driver/oculuslog"
	"github.com/ENSTABretagneRobotics/oculus-driver/wire"
)

// stamp is the wire shape the source emits, field names preserved.
type stamp struct {
	OculusID        uint16 `json:"oculusId"`
	DeviceID        uint16 `json:"deviceId"`
	TimestampMicros int64  `json:"timestampMicros"`
}

// Broadcaster sends a one-line JSON stamp for every message it is handed,
// over UDP broadcast. Errors are logged, never returned to the caller:
// the source treats this purely as a best-effort side channel.
type Broadcaster struct {
	log  *oculuslog.Logger
	conn *net.UDPConn
	dst  *net.UDPAddr
}

// Open binds an ephemeral UDP socket with broadcast enabled and targets
// 255.255.255.255:port.
func Open(port int, logger *oculuslog.Logger) (*Broadcaster, error) {
	if logger == nil {
		logger = oculuslog.NewDiscard()
	}
	lc := net.ListenConfig{Control: broadcastControl}
	pc, err := lc.ListenPacket(context.Background(), "udp4", ":0")
	if err != nil {
		return nil, err
	}
	return &Broadcaster{
		log:  logger,
		conn: pc.(*net.UDPConn),
		dst:  &net.UDPAddr{IP: net.IPv4bcast, Port: port},
	}, nil
}

// Close releases the underlying socket.
func (b *Broadcaster) Close() error {
	return b.conn.Close()
}

// Send serializes msg's identity and timestamp and broadcasts it. Any
// failure is logged at WARN and otherwise ignored.
func (b *Broadcaster) Send(msg wire.Message) {
	data, err := encodeStamp(msg)
	if err != nil {
		b.log.Warnf("broadcaster: marshal failed: %v", err)
		return
	}
	if _, err := b.conn.WriteToUDP(data, b.dst); err != nil {
		b.log.Warnf("broadcaster: send failed: %v", err)
	}
}

// encodeStamp builds the JSON payload Send broadcasts for msg.
func encodeStamp(msg wire.Message) ([]byte, error) {
	micros := msg.Timestamp.Unix()*1_000_000 + int64(msg.Timestamp.Nanosecond())/1_000
	return json.Marshal(stamp{
		OculusID:        msg.Header.Magic,
		DeviceID:        msg.Header.SrcID,
		TimestampMicros: micros,
	})
}
