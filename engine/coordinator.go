// Package engine drives the single-threaded coordinator: it owns the
// piece table, assigns jobs to peer workers, writes completed pieces to
// storage, and periodically syncs it.
package engine

import (
	"context"
	"time"

	"github.com/andres-erbsen/clock"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/quillpeer/quill/internal/config"
	"github.com/quillpeer/quill/peer"
	"github.com/quillpeer/quill/storage"
	"github.com/quillpeer/quill/swarm"
	"github.com/quillpeer/quill/wire"
)

// bitfieldMsg, resultMsg and deadMsg are the "events up" side of the
// coordinator's inbox; jobRequest is the "job down" side, answered
// with a jobReply on its own reply channel.
type bitfieldMsg struct {
	addr string
	bf   wire.Bitfield
}

type resultMsg struct {
	res peer.Result
}

type deadMsg struct {
	addr string
	err  error
}

type jobRequest struct {
	addr  string
	reply chan jobReply
}

type jobReply struct {
	job  peer.Job
	ok   bool
	done bool
}

// Coordinator owns the piece table and storage sink for one download
// and assigns work to a fixed set of peer connections.
type Coordinator struct {
	table *swarm.Table
	sink  *storage.Sink
	cfg   config.Engine
	log   *zap.Logger
	clock clock.Clock
	Stats Stats

	events  chan interface{}
	jobReqs chan jobRequest

	// assignedAt records, for reclaim purposes, when each piece that is
	// still Downloading was assigned.
	assignedAt map[int]time.Time

	expectedWorkers int
	bitfieldAddrs   map[string]bool
	sorted          bool

	flushedBytes int64
	flushBuf     []int // piece indices written since the last flush
}

// New builds a Coordinator for a torrent whose piece table is table,
// writing verified pieces to sink.
func New(table *swarm.Table, sink *storage.Sink, cfg config.Engine, clk clock.Clock, log *zap.Logger, expectedWorkers int) *Coordinator {
	if clk == nil {
		clk = clock.New()
	}
	return &Coordinator{
		table:           table,
		sink:            sink,
		cfg:             cfg,
		log:             log,
		clock:           clk,
		events:          make(chan interface{}, 64),
		jobReqs:         make(chan jobRequest),
		assignedAt:      make(map[int]time.Time),
		expectedWorkers: expectedWorkers,
		bitfieldAddrs:   make(map[string]bool),
	}
}

// ReportBitfield implements peer.Reporter.
func (c *Coordinator) ReportBitfield(addr string, bf wire.Bitfield) {
	c.events <- bitfieldMsg{addr: addr, bf: bf}
}

// ReportHave implements peer.Reporter.
func (c *Coordinator) ReportHave(addr string, index int) {
	c.events <- bitfieldMsg{addr: addr, bf: singleIndexBitfield(index)}
}

func singleIndexBitfield(index int) wire.Bitfield {
	bf := wire.NewBitfield(index + 1)
	bf.Set(index)
	return bf
}

// ReportResult implements peer.Reporter.
func (c *Coordinator) ReportResult(res peer.Result) {
	c.events <- resultMsg{res: res}
}

// ReportDead implements peer.Reporter.
func (c *Coordinator) ReportDead(addr string, err error) {
	c.events <- deadMsg{addr: addr, err: err}
}

// NextJob implements peer.JobSource by turning a pull into a
// request/reply round trip against the coordinator's single event
// loop, so the piece table is only ever touched by that one goroutine.
func (c *Coordinator) NextJob(ctx context.Context, addr string) (peer.Job, bool, bool) {
	reply := make(chan jobReply, 1)
	select {
	case c.jobReqs <- jobRequest{addr: addr, reply: reply}:
	case <-ctx.Done():
		return peer.Job{}, false, true
	}
	select {
	case r := <-reply:
		return r.job, r.ok, r.done
	case <-ctx.Done():
		return peer.Job{}, false, true
	}
}

// Run spawns one worker goroutine per address and drives the event
// loop until every piece is Done, the context is cancelled, or every
// worker has died.
func (c *Coordinator) Run(ctx context.Context, infoHash, peerID [20]byte, addrs []string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	for _, addr := range addrs {
		addr := addr
		w := peer.NewWorker(addr, infoHash, peerID, c.cfg, c.clock, c.log, c, c)
		g.Go(func() error { return w.Run(gctx) })
	}

	var reclaim <-chan time.Time
	if c.cfg.OrphanReclaimInterval > 0 {
		ticker := c.clock.Ticker(c.cfg.OrphanReclaimInterval)
		defer ticker.Stop()
		reclaim = ticker.C
	}

	dead := 0
loop:
	for {
		if c.table.AllDone() {
			break loop
		}
		select {
		case <-ctx.Done():
			break loop
		case ev := <-c.events:
			c.handleEvent(ev)
			if _, ok := ev.(deadMsg); ok {
				dead++
				if dead >= len(addrs) {
					break loop
				}
			}
		case req := <-c.jobReqs:
			c.handleJobRequest(req)
		case <-reclaim:
			c.reclaimOrphans()
		}
	}

	if err := c.sink.Flush(); err != nil {
		return err
	}
	cancel()
	return g.Wait()
}

func (c *Coordinator) handleEvent(ev interface{}) {
	switch m := ev.(type) {
	case bitfieldMsg:
		c.handleBitfield(m.addr, m.bf)
	case resultMsg:
		c.handleResult(m.res)
	case deadMsg:
		c.handleDead(m.addr, m.err)
	}
}

func (c *Coordinator) handleBitfield(addr string, bf wire.Bitfield) {
	for _, idx := range bf.Indices() {
		if idx < c.table.Len() {
			c.table.AddOwner(idx, addr)
		}
	}

	firstSeen := !c.bitfieldAddrs[addr]
	c.bitfieldAddrs[addr] = true
	if firstSeen {
		c.Stats.bitfieldsReceived.Inc()
	}

	if !c.sorted && len(c.bitfieldAddrs) >= c.expectedWorkers {
		c.table.Sort()
		c.sorted = true
	}
}

func (c *Coordinator) handleResult(res peer.Result) {
	delete(c.assignedAt, res.Index)
	if err := c.sink.WriteAt(res.Index, res.Data); err != nil {
		c.log.Error("failed to write piece", zap.Int("index", res.Index), zap.Error(err))
		c.table.Release(res.Index)
		return
	}
	c.table.MarkDone(res.Index)
	c.Stats.piecesCompleted.Inc()
	c.Stats.bytesFlushed.Add(int64(len(res.Data)))

	c.flushBuf = append(c.flushBuf, res.Index)
	c.flushedBytes += int64(len(res.Data))
	if c.flushedBytes >= int64(c.cfg.FlushThreshold) {
		if err := c.sink.Flush(); err != nil {
			c.log.Error("flush failed", zap.Error(err))
		} else {
			c.log.Debug("flushed pieces to storage", zap.Int("count", len(c.flushBuf)))
		}
		c.flushedBytes = 0
		c.flushBuf = c.flushBuf[:0]
	}
}

func (c *Coordinator) handleDead(addr string, err error) {
	c.log.Warn("peer died", zap.String("peer", addr), zap.Error(err))
	delete(c.bitfieldAddrs, addr)
}

func (c *Coordinator) handleJobRequest(req jobRequest) {
	if c.table.AllDone() {
		req.reply <- jobReply{done: true}
		return
	}
	if !c.sorted {
		// Bitfields are still arriving; ask this worker to retry shortly
		// rather than assigning off an unsorted (but still correct)
		// table.
		req.reply <- jobReply{ok: false}
		return
	}
	p, ok := c.table.Assign(req.addr)
	if !ok {
		req.reply <- jobReply{ok: false}
		return
	}
	c.assignedAt[p.Index] = c.clock.Now()
	req.reply <- jobReply{ok: true, job: peer.Job{Index: p.Index, Length: p.Length, Hash: p.Hash}}
}

// reclaimOrphans releases pieces that have sat Downloading for longer
// than twice the configured reclaim interval, e.g. because their
// owning worker died without reporting it.
func (c *Coordinator) reclaimOrphans() {
	cutoff := c.clock.Now().Add(-2 * c.cfg.OrphanReclaimInterval)
	for index, assigned := range c.assignedAt {
		if assigned.Before(cutoff) {
			c.log.Info("reclaiming orphaned piece", zap.Int("index", index))
			c.table.Release(index)
			delete(c.assignedAt, index)
		}
	}
}
