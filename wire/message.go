package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MessageType identifies a peer wire message.
type MessageType uint8

const (
	Choke MessageType = iota
	Unchoke
	Interested
	NotInterested
	Have
	Bitfield
	Request
	PieceMsg
	Cancel
)

// Message is a framed peer wire message: a type byte plus its payload.
// A zero-length frame (keep-alive) never becomes a Message; ReadMessage
// loops past it.
type Message struct {
	Type    MessageType
	Payload []byte
}

// ReadMessage reads one frame from r, looping past keep-alive
// (zero-length) frames, and returns the resulting message. Reads loop
// internally until a full frame arrives, since TCP partial reads are
// normal.
func ReadMessage(r io.Reader) (*Message, error) {
	var lenBuf [4]byte
	for {
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			return nil, err
		}
		length := binary.BigEndian.Uint32(lenBuf[:])
		if length == 0 {
			continue // keep-alive
		}
		body := make([]byte, length)
		if _, err := io.ReadFull(r, body); err != nil {
			return nil, err
		}
		return &Message{
			Type:    MessageType(body[0]),
			Payload: body[1:],
		}, nil
	}
}

// Encode serialises a Message to its wire form:
// <length:u32><type:u8><payload>.
func (m *Message) Encode() []byte {
	// +1 for the type byte.
	payloadLen := uint32(len(m.Payload) + 1)
	out := make([]byte, 4+payloadLen)
	binary.BigEndian.PutUint32(out, payloadLen)
	out[4] = byte(m.Type)
	copy(out[5:], m.Payload)
	return out
}

// InterestedMsg returns a serialised "interested" message: wire bytes
// 0,0,0,1,2.
func InterestedMsg() []byte {
	return (&Message{Type: Interested}).Encode()
}

// UnchokeMsg returns a serialised "unchoke" message.
func UnchokeMsg() []byte {
	return (&Message{Type: Unchoke}).Encode()
}

// HaveMsg returns a serialised "have" message announcing index.
func HaveMsg(index int) []byte {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint32(payload, uint32(index))
	return (&Message{Type: Have, Payload: payload}).Encode()
}

// RequestMsg returns a serialised "request" message: 12-byte payload of
// piece index, begin offset and block length, each big-endian u32.
func RequestMsg(index, begin, length int) []byte {
	payload := make([]byte, 12)
	binary.BigEndian.PutUint32(payload, uint32(index))
	binary.BigEndian.PutUint32(payload[4:], uint32(begin))
	binary.BigEndian.PutUint32(payload[8:], uint32(length))
	return (&Message{Type: Request, Payload: payload}).Encode()
}

// ParsePiece extracts the piece index, begin offset and block data from
// a "piece" message's payload (8-byte index+begin prefix, then block
// bytes).
func ParsePiece(payload []byte) (index, begin int, block []byte, err error) {
	if len(payload) < 8 {
		return 0, 0, nil, fmt.Errorf("wire: piece payload too short: %d bytes", len(payload))
	}
	index = int(binary.BigEndian.Uint32(payload[:4]))
	begin = int(binary.BigEndian.Uint32(payload[4:8]))
	return index, begin, payload[8:], nil
}
