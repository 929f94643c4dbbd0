// Package clientid generates the client's 20-byte peer id.
package clientid

import "crypto/rand"

// prefix identifies this client per the Azureus-style convention used
// by most BitTorrent clients: '-', a two-letter client code, a four
// digit version, '-', then random bytes.
var prefix = [8]byte{'-', 'Q', 'L', '0', '1', '0', '0', '-'}

// New returns a fresh random 20-byte peer id.
func New() ([20]byte, error) {
	var id [20]byte
	copy(id[:], prefix[:])
	if _, err := rand.Read(id[8:]); err != nil {
		return [20]byte{}, err
	}
	return id, nil
}
