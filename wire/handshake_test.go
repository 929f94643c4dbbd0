package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandshakeRoundTrip(t *testing.T) {
	var infoHash, peerID [20]byte
	copy(infoHash[:], "aaaaaaaaaaaaaaaaaaaa")
	copy(peerID[:], "bbbbbbbbbbbbbbbbbbbb")

	buf := Handshake(infoHash, peerID)
	assert.Len(t, buf, HandshakeSize)

	gotHash, gotPeer, err := ParseHandshake(buf)
	require.NoError(t, err)
	assert.Equal(t, infoHash, gotHash)
	assert.Equal(t, peerID, gotPeer)
}

func TestParseHandshakeWrongLength(t *testing.T) {
	_, _, err := ParseHandshake(make([]byte, HandshakeSize-1))
	assert.Error(t, err)
}

func TestParseHandshakeWrongProtocol(t *testing.T) {
	buf := Handshake([20]byte{}, [20]byte{})
	buf[0] = 3
	copy(buf[1:4], "abc")
	_, _, err := ParseHandshake(buf)
	assert.Error(t, err)
}
