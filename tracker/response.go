// Package tracker interprets a tracker's bencoded announce response and
// performs the HTTP GET announce itself. The tracker's own HTTP(S)
// behavior is treated as an external collaborator, named here only by
// the response shape it hands back.
package tracker

import (
	"fmt"
	"net"
	"strconv"

	"github.com/pkg/errors"

	"github.com/quillpeer/quill/bencode"
)

// PeerInfo is one entry of the tracker's "long form" (dictionary-model)
// peer list.
type PeerInfo struct {
	ID      [20]byte
	Address string // host:port, numeric
}

// Response is a parsed tracker announce response.
type Response struct {
	Interval int
	Peers    []PeerInfo
}

// ParseResponse interprets raw bencoded bytes as a tracker response. A
// "failure reason" key is a terminal error; otherwise the "peers" list
// must be present and well-formed. Only the dictionary-model peer list
// is read; the compact (6-byte record) format is not supported.
func ParseResponse(raw []byte) (*Response, error) {
	root, _, err := bencode.Decode(raw)
	if err != nil {
		return nil, errors.Wrap(err, "decoding tracker response")
	}
	if root.Kind != bencode.KindDict {
		return nil, errors.New("tracker response root is not a dictionary")
	}

	if reason, ok := root.Dict["failure reason"]; ok {
		return nil, fmt.Errorf("tracker: failure reason: %s", reason.Str)
	}

	interval, err := bencode.IntField(root, "interval")
	if err != nil {
		interval = 0 // some trackers omit it; treat as "unspecified"
	}

	peersVal, err := bencode.Field(root, "peers")
	if err != nil {
		return nil, errors.New("tracker response missing \"peers\"")
	}
	if peersVal.Kind != bencode.KindList {
		return nil, errors.New("tracker response \"peers\" is not a list")
	}

	peers := make([]PeerInfo, 0, len(peersVal.List))
	for i, entry := range peersVal.List {
		if entry.Kind != bencode.KindDict {
			return nil, fmt.Errorf("tracker: peer %d is not a dictionary", i)
		}
		p, err := parsePeer(entry)
		if err != nil {
			return nil, errors.Wrapf(err, "peer %d", i)
		}
		peers = append(peers, p)
	}

	return &Response{Interval: int(interval), Peers: peers}, nil
}

func parsePeer(v bencode.Value) (PeerInfo, error) {
	idRaw, err := bencode.StrField(v, "peer id")
	if err != nil {
		return PeerInfo{}, err
	}
	if len(idRaw) != 20 {
		return PeerInfo{}, fmt.Errorf("\"peer id\" has length %d, expected 20", len(idRaw))
	}

	hostRaw, err := bencode.StrField(v, "ip")
	if err != nil {
		return PeerInfo{}, err
	}
	host := string(hostRaw)
	if net.ParseIP(host) == nil {
		return PeerInfo{}, fmt.Errorf("\"ip\" %q is not a numeric IPv4/IPv6 address", host)
	}

	port, err := bencode.IntField(v, "port")
	if err != nil {
		return PeerInfo{}, err
	}

	var id [20]byte
	copy(id[:], idRaw)
	return PeerInfo{
		ID:      id,
		Address: net.JoinHostPort(host, strconv.FormatInt(port, 10)),
	}, nil
}
