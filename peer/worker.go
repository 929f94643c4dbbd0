// Package peer drives a single outbound connection to a remote peer:
// handshake, bitfield exchange, and the request/response loop that
// downloads whole pieces one job at a time.
package peer

import (
	"bytes"
	"context"
	"crypto/sha1"
	"fmt"
	"net"
	"time"

	"github.com/andres-erbsen/clock"
	"github.com/cenkalti/backoff"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/quillpeer/quill/internal/config"
	"github.com/quillpeer/quill/wire"
)

// Job is a unit of work handed to a worker by the coordinator: one
// piece to fetch in full.
type Job struct {
	Index  int
	Length int
	Hash   [20]byte
}

// Result is a successfully downloaded and hash-verified piece.
type Result struct {
	Addr  string
	Index int
	Data  []byte
}

// JobSource lets a worker ask the coordinator for its next job. ok is
// false when no job is currently assignable to this worker, which is
// not necessarily terminal: more pieces may free up later.
type JobSource interface {
	NextJob(ctx context.Context, addr string) (job Job, ok bool, done bool)
}

// Reporter receives a worker's observations: what it learned from the
// peer's bitfield/have messages, and the pieces it finished.
type Reporter interface {
	ReportBitfield(addr string, bf wire.Bitfield)
	ReportHave(addr string, index int)
	ReportResult(res Result)
	ReportDead(addr string, err error)
}

// Worker owns one peer connection for the lifetime of a download.
type Worker struct {
	addr     string
	infoHash [20]byte
	peerID   [20]byte
	cfg      config.Engine
	clock    clock.Clock
	log      *zap.Logger
	jobs     JobSource
	report   Reporter

	conn   net.Conn
	choked bool
}

// NewWorker builds a worker for the peer at addr. clk defaults to the
// real clock when nil.
func NewWorker(addr string, infoHash, peerID [20]byte, cfg config.Engine, clk clock.Clock, log *zap.Logger, jobs JobSource, report Reporter) *Worker {
	if clk == nil {
		clk = clock.New()
	}
	return &Worker{
		addr:     addr,
		infoHash: infoHash,
		peerID:   peerID,
		cfg:      cfg,
		clock:    clk,
		log:      log.With(zap.String("peer", addr)),
		jobs:     jobs,
		report:   report,
		choked:   true,
	}
}

// Run connects, handshakes, and then repeatedly requests and downloads
// jobs until the coordinator reports no more work, the context is
// cancelled, or the connection fails. It never returns an error itself;
// failures are reported through Reporter.ReportDead so that a single
// dead peer does not abort the rest of the swarm (errgroup callers
// should treat Run as always succeeding).
func (w *Worker) Run(ctx context.Context) error {
	if err := w.connect(ctx); err != nil {
		w.report.ReportDead(w.addr, err)
		return nil
	}
	defer w.conn.Close()

	bf, err := w.handshakeAndBitfield(ctx)
	if err != nil {
		w.report.ReportDead(w.addr, err)
		return nil
	}
	w.report.ReportBitfield(w.addr, bf)

	if _, err := w.conn.Write(wire.UnchokeMsg()); err != nil {
		w.report.ReportDead(w.addr, errors.Wrap(err, "sending unchoke"))
		return nil
	}
	if _, err := w.conn.Write(wire.InterestedMsg()); err != nil {
		w.report.ReportDead(w.addr, errors.Wrap(err, "sending interested"))
		return nil
	}

	for {
		job, ok, done := w.jobs.NextJob(ctx, w.addr)
		if done {
			w.log.Debug("no more work, terminating")
			return nil
		}
		if !ok {
			// Nothing assignable right now; yield briefly rather than
			// busy-looping the coordinator with requests.
			select {
			case <-ctx.Done():
				return nil
			case <-w.clock.After(100 * time.Millisecond):
				continue
			}
		}

		data, err := w.downloadJob(ctx, job)
		if err != nil {
			w.report.ReportDead(w.addr, err)
			return nil
		}
		w.report.ReportResult(Result{Addr: w.addr, Index: job.Index, Data: data})
	}
}

// connect dials the peer, bounded by cfg.ConnectTimeout.
func (w *Worker) connect(ctx context.Context) error {
	d := net.Dialer{Timeout: w.cfg.ConnectTimeout}
	conn, err := d.DialContext(ctx, "tcp", w.addr)
	if err != nil {
		return errors.Wrapf(err, "dialing %s", w.addr)
	}
	w.conn = conn
	return nil
}

// handshakeAndBitfield performs the 68-byte handshake, checks that the
// remote echoes our info-hash, and reads the peer's first message, which
// must be a bitfield. The remote's peer id is not checked.
func (w *Worker) handshakeAndBitfield(ctx context.Context) (wire.Bitfield, error) {
	if deadline, ok := ctx.Deadline(); ok {
		w.conn.SetDeadline(deadline)
	} else if w.cfg.ConnectTimeout > 0 {
		w.conn.SetDeadline(w.clock.Now().Add(w.cfg.ConnectTimeout))
	}
	defer w.conn.SetDeadline(time.Time{})

	if _, err := w.conn.Write(wire.Handshake(w.infoHash, w.peerID)); err != nil {
		return wire.Bitfield{}, errors.Wrap(err, "sending handshake")
	}

	buf := make([]byte, wire.HandshakeSize)
	if _, err := readFull(w.conn, buf); err != nil {
		return wire.Bitfield{}, errors.Wrap(err, "reading handshake")
	}
	gotHash, _, err := wire.ParseHandshake(buf)
	if err != nil {
		return wire.Bitfield{}, err
	}
	if !bytes.Equal(gotHash[:], w.infoHash[:]) {
		return wire.Bitfield{}, fmt.Errorf("peer %s returned mismatched info-hash", w.addr)
	}

	msg, err := wire.ReadMessage(w.conn)
	if err != nil {
		return wire.Bitfield{}, errors.Wrap(err, "reading bitfield message")
	}
	if msg.Type != wire.Bitfield {
		return wire.Bitfield{}, fmt.Errorf("peer %s sent %v before a bitfield", w.addr, msg.Type)
	}
	return wire.ParseBitfield(msg.Payload, numPiecesFromPayload(msg.Payload)), nil
}

// numPiecesFromPayload derives an upper bound on piece count from a raw
// bitfield payload; ParseBitfield only needs this to size its backing
// bitset; an over-estimate (byte boundary padding) never causes the
// caller to read a spurious set bit, since Has is still checked against
// the table's real piece count elsewhere.
func numPiecesFromPayload(payload []byte) int {
	return len(payload) * 8
}

// downloadJob requests blocks for a whole piece with up to
// cfg.PipelineDepth requests outstanding, reassembles them, and
// verifies the SHA-1 hash before returning. A hash mismatch is retried
// up to cfg.MaxRetries times with backoff.
func (w *Worker) downloadJob(ctx context.Context, job Job) ([]byte, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = 0

	var data []byte
	attempt := 0
	for {
		attempt++
		d, err := w.fetchPiece(ctx, job)
		if err != nil {
			return nil, err
		}
		sum := sha1.Sum(d)
		if bytes.Equal(sum[:], job.Hash[:]) {
			data = d
			break
		}
		if attempt > w.cfg.MaxRetries {
			return nil, fmt.Errorf("piece %d failed hash check after %d attempts from peer %s", job.Index, attempt, w.addr)
		}
		w.log.Warn("piece hash mismatch, retrying", zap.Int("index", job.Index), zap.Int("attempt", attempt))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-w.clock.After(b.NextBackOff()):
		}
	}
	return data, nil
}

// fetchPiece drives the block-level request pipeline for a single
// piece, blocking until every block has arrived or the connection
// fails.
func (w *Worker) fetchPiece(ctx context.Context, job Job) ([]byte, error) {
	blockSize := int(w.cfg.BlockSize)
	if blockSize <= 0 {
		blockSize = 16 * 1024
	}
	pipeline := w.cfg.PipelineDepth
	if pipeline <= 0 {
		pipeline = 1
	}

	data := make([]byte, job.Length)
	downloaded := 0
	nextOffset := 0
	inFlight := 0

	if w.cfg.ReadTimeout > 0 {
		w.conn.SetReadDeadline(w.clock.Now().Add(w.cfg.ReadTimeout))
		defer w.conn.SetReadDeadline(time.Time{})
	}

	for downloaded < job.Length {
		for !w.choked && inFlight < pipeline && nextOffset < job.Length {
			length := blockSize
			if nextOffset+length > job.Length {
				length = job.Length - nextOffset
			}
			if _, err := w.conn.Write(wire.RequestMsg(job.Index, nextOffset, length)); err != nil {
				return nil, errors.Wrap(err, "writing request")
			}
			nextOffset += length
			inFlight++
		}

		msg, err := wire.ReadMessage(w.conn)
		if err != nil {
			return nil, errors.Wrap(err, "reading message")
		}
		switch msg.Type {
		case wire.Choke:
			w.choked = true
		case wire.Unchoke:
			w.choked = false
		case wire.Have:
			// Ignored: have messages are not forwarded, so the
			// coordinator's owner sets come from the initial bitfield only.
		case wire.PieceMsg:
			index, begin, block, perr := wire.ParsePiece(msg.Payload)
			if perr != nil {
				return nil, perr
			}
			if index != job.Index {
				continue
			}
			if begin+len(block) > job.Length {
				return nil, fmt.Errorf("block for piece %d overruns piece length %d", job.Index, job.Length)
			}
			downloaded += copy(data[begin:], block)
			inFlight--
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return data, nil
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
