// Package wire implements the BitTorrent peer wire protocol's framing:
// the 68-byte handshake and the length-prefixed message stream.
package wire

import (
	"bytes"
	"fmt"
)

// Protocol is the protocol name exchanged in every handshake.
const Protocol = "BitTorrent protocol"

// HandshakeSize is the fixed size of a handshake message: length-prefix
// byte + protocol string + 8 reserved bytes + 20-byte info-hash +
// 20-byte peer id.
const HandshakeSize = 1 + len(Protocol) + 8 + 20 + 20

// Handshake builds the 68-byte handshake message: length byte, protocol
// string, 8 reserved zero bytes, info-hash, peer id.
func Handshake(infoHash, peerID [20]byte) []byte {
	buf := make([]byte, HandshakeSize)
	buf[0] = byte(len(Protocol))
	copy(buf[1:], Protocol)
	// buf[1+len(Protocol) : 1+len(Protocol)+8] stays zero (reserved).
	copy(buf[1+len(Protocol)+8:], infoHash[:])
	copy(buf[1+len(Protocol)+8+20:], peerID[:])
	return buf
}

// ParseHandshake validates and decodes a received handshake. It checks
// that the protocol name matches before returning the remote's
// info-hash and peer id; the caller is responsible for comparing both
// against what it expected.
func ParseHandshake(buf []byte) (infoHash, peerID [20]byte, err error) {
	if len(buf) != HandshakeSize {
		return infoHash, peerID, fmt.Errorf("wire: handshake has length %d, expected %d", len(buf), HandshakeSize)
	}
	protoLen := int(buf[0])
	if protoLen != len(Protocol) {
		return infoHash, peerID, fmt.Errorf("wire: handshake protocol length %d, expected %d", protoLen, len(Protocol))
	}
	if !bytes.Equal(buf[1:1+protoLen], []byte(Protocol)) {
		return infoHash, peerID, fmt.Errorf("wire: unexpected protocol %q", buf[1:1+protoLen])
	}
	copy(infoHash[:], buf[1+protoLen+8:1+protoLen+8+20])
	copy(peerID[:], buf[1+protoLen+8+20:])
	return infoHash, peerID, nil
}
