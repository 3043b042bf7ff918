package wire

import "time"

// Message is a framed wire message: header, the timestamp assigned by
// whichever component produced the frame, and the raw bytes (header +
// payload). Message is immutable once constructed and safe to share across
// subscribers.
type Message struct {
	Header    Header
	Timestamp time.Time
	Data      []byte // header bytes followed by payload bytes
}

// NewMessage binds a header and payload into a Message, stamping the
// supplied timestamp. It does not validate payload size against the header;
// callers that need that check compare len(Payload()) with
// Header.PayloadSize themselves.
func NewMessage(h Header, payload []byte, ts time.Time) Message {
	data := make([]byte, HeaderSize+len(payload))
	PutHeader(data, h)
	copy(data[HeaderSize:], payload)
	return Message{Header: h, Timestamp: ts, Data: data}
}

// Payload returns the payload portion of the message's raw bytes.
func (m Message) Payload() []byte {
	if len(m.Data) < HeaderSize {
		return nil
	}
	return m.Data[HeaderSize:]
}
