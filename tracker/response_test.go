package tracker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func peerDict(id, ip string, port int) string {
	return "d7:peer id20:" + id + "2:ip" + itoa(len(ip)) + ":" + ip + "4:porti" + itoa(port) + "ee"
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

func TestParseResponseWithPeers(t *testing.T) {
	id := "AAAAAAAAAAAAAAAAAAAA"
	raw := "d8:intervali900e5:peersl" + peerDict(id, "127.0.0.1", 6881) + "ee"

	resp, err := ParseResponse([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, 900, resp.Interval)
	require.Len(t, resp.Peers, 1)
	assert.Equal(t, "127.0.0.1:6881", resp.Peers[0].Address)
	assert.Equal(t, []byte(id), resp.Peers[0].ID[:])
}

func TestParseResponseFailureReason(t *testing.T) {
	raw := "d14:failure reason17:torrent not founde"
	_, err := ParseResponse([]byte(raw))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "torrent not found")
}

func TestParseResponseMissingPeers(t *testing.T) {
	raw := "d8:intervali900ee"
	_, err := ParseResponse([]byte(raw))
	require.Error(t, err)
}

func TestParseResponseInvalidIP(t *testing.T) {
	id := "AAAAAAAAAAAAAAAAAAAA"
	raw := "d8:intervali900e5:peersl" + peerDict(id, "not-an-ip", 6881) + "ee"
	_, err := ParseResponse([]byte(raw))
	require.Error(t, err)
}

func TestParseResponseIPv6(t *testing.T) {
	id := "AAAAAAAAAAAAAAAAAAAA"
	raw := "d8:intervali900e5:peersl" + peerDict(id, "::1", 6881) + "ee"
	resp, err := ParseResponse([]byte(raw))
	require.NoError(t, err)
	require.Len(t, resp.Peers, 1)
	assert.Equal(t, "[::1]:6881", resp.Peers[0].Address)
}
