// Package swarm maintains the in-memory piece table: per-piece state,
// owning peers, and the rarest-first assignment order.
package swarm

import (
	"sort"
	"sync"

	"github.com/willf/bitset"

	"github.com/quillpeer/quill/metainfo"
)

// State is a piece's lifecycle stage.
type State int

const (
	Available State = iota
	Downloading
	Done
)

// Piece is one piece of the torrent's payload.
type Piece struct {
	Index  int
	Length int
	Hash   [20]byte
	State  State
	// owners is the set of peer socket addresses whose bitfield
	// advertised this piece.
	owners map[string]struct{}
	// owner, when State == Downloading, is the worker currently holding
	// this piece's job.
	owner string
}

// Owners returns a snapshot of the peer addresses that advertised this
// piece.
func (p *Piece) Owners() []string {
	out := make([]string, 0, len(p.owners))
	for addr := range p.owners {
		out = append(out, addr)
	}
	sort.Strings(out)
	return out
}

// Table is the mutable, ordered sequence of Pieces that make up a
// torrent's payload. It is owned by a single goroutine (the
// coordinator); none of its methods are safe to call concurrently
// without the caller's own synchronization, except the completed-count
// accessors, which are read by reporting code and are therefore
// guarded.
type Table struct {
	pieces []*Piece
	// order holds indices into pieces, maintained in rarest-first order
	// once Sort has been called.
	order []int
	// sorted marks that Sort has run at least once.
	sorted bool

	mu        sync.Mutex
	completed *bitset.BitSet
}

// NewTable builds a piece table from a parsed torrent descriptor. Every
// piece starts Available with no owners, even ones that end up with
// zero owners after all bitfields arrive: such a piece stays in the
// table, simply never assignable.
func NewTable(info *metainfo.Info) *Table {
	n := info.NumPieces()
	pieces := make([]*Piece, n)
	order := make([]int, n)
	for i := range pieces {
		pieces[i] = &Piece{
			Index:  i,
			Length: info.PieceLength(i),
			Hash:   info.Pieces[i],
			State:  Available,
			owners: make(map[string]struct{}),
		}
		order[i] = i
	}
	return &Table{
		pieces:    pieces,
		order:     order,
		completed: bitset.New(uint(n)),
	}
}

// Len returns the number of pieces.
func (t *Table) Len() int { return len(t.pieces) }

// Piece returns the piece at index.
func (t *Table) Piece(index int) *Piece { return t.pieces[index] }

// AddOwner records that the peer at addr advertised the piece at index,
// per a received bitfield or have message.
func (t *Table) AddOwner(index int, addr string) {
	t.pieces[index].owners[addr] = struct{}{}
}

// Sort performs the one-time rarest-first sort: ascending owner count,
// ties broken deterministically by index. It is meant to run exactly
// once, after every worker's bitfield has been received.
func (t *Table) Sort() {
	sort.SliceStable(t.order, func(i, j int) bool {
		a, b := t.pieces[t.order[i]], t.pieces[t.order[j]]
		if len(a.owners) != len(b.owners) {
			return len(a.owners) < len(b.owners)
		}
		return a.Index < b.Index
	})
	t.sorted = true
}

// Assign scans the table in its current (rarity-sorted, once Sort has
// run) order and returns the first Available piece owned by addr,
// transitioning it to Downloading. The second return value is false if
// no assignable piece remains for this worker.
func (t *Table) Assign(addr string) (*Piece, bool) {
	for _, idx := range t.order {
		p := t.pieces[idx]
		if p.State != Available {
			continue
		}
		if _, owns := p.owners[addr]; !owns {
			continue
		}
		p.State = Downloading
		p.owner = addr
		return p, true
	}
	return nil, false
}

// MarkDone transitions the piece at index to Done. Once Done, no
// further writes for that index are allowed; Assign already skips
// non-Available pieces so it will never be revisited.
func (t *Table) MarkDone(index int) {
	p := t.pieces[index]
	p.State = Done
	p.owner = ""
	t.mu.Lock()
	t.completed.Set(uint(index))
	t.mu.Unlock()
}

// Release reverts a Downloading piece back to Available, e.g. because
// its owning worker died or a hash check failed against the wrong
// peer. Without this call such pieces would leak as permanently
// Downloading; Release is the hook an OrphanReclaimInterval-driven
// sweep (see internal/config) uses when reclaiming is enabled.
func (t *Table) Release(index int) {
	p := t.pieces[index]
	if p.State == Downloading {
		p.State = Available
		p.owner = ""
	}
}

// Owner returns the worker address currently holding the piece at
// index in the Downloading state, or "" if it is not being downloaded.
func (t *Table) Owner(index int) string {
	return t.pieces[index].owner
}

// AllDone reports whether every piece has reached the Done state.
func (t *Table) AllDone() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.completed.Count() == uint(len(t.pieces))
}

// CompletedCount returns the number of pieces currently Done.
func (t *Table) CompletedCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return int(t.completed.Count())
}
