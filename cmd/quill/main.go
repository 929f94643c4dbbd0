// Command quill downloads a single torrent's payload from its swarm
// given a .torrent file.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/alecthomas/kingpin"
	"go.uber.org/zap"

	"github.com/quillpeer/quill/engine"
	"github.com/quillpeer/quill/internal/clientid"
	"github.com/quillpeer/quill/internal/config"
	"github.com/quillpeer/quill/metainfo"
	"github.com/quillpeer/quill/storage"
	"github.com/quillpeer/quill/swarm"
	"github.com/quillpeer/quill/tracker"
)

const listenPort = 6881

var (
	app         = kingpin.New("quill", "Download a single torrent's payload from its swarm.")
	torrentPath = app.Arg("torrent-file", "Path of the .torrent file.").Required().String()
	outputPath  = app.Flag("output", "Path to write the downloaded payload to. Defaults to the torrent's name next to the .torrent file.").Short('o').String()
	configPath  = app.Flag("config", "Path to a YAML engine tuning file.").Short('c').String()
)

func main() {
	kingpin.MustParse(app.Parse(os.Args[1:]))

	log, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(log); err != nil {
		log.Error("download failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(log *zap.Logger) error {
	info, err := metainfo.Open(*torrentPath)
	if err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	peerID, err := clientid.New()
	if err != nil {
		return err
	}

	ctx := context.Background()
	resp, err := tracker.Announce(ctx, info.Announce, tracker.AnnounceRequest{
		InfoHash: info.InfoHash,
		PeerID:   peerID,
		Port:     listenPort,
		Left:     int64(info.TotalLength()),
	})
	if err != nil {
		return err
	}

	out := *outputPath
	if out == "" {
		out = filepath.Join(filepath.Dir(*torrentPath), info.Name)
	}
	sink, err := storage.Open(out, int64(info.TotalLength()), info.PieceLen)
	if err != nil {
		return err
	}
	defer sink.Close()

	table := swarm.NewTable(info)

	addrs := make([]string, len(resp.Peers))
	for i, p := range resp.Peers {
		addrs[i] = p.Address
	}

	log.Info("starting download",
		zap.String("name", info.Name),
		zap.Int("pieces", table.Len()),
		zap.Int("peers", len(addrs)),
	)

	coord := engine.New(table, sink, cfg, nil, log, len(addrs))
	if err := coord.Run(ctx, info.InfoHash, peerID, addrs); err != nil {
		return err
	}

	snap := coord.Stats.Snapshot()
	log.Info("download complete",
		zap.Int64("pieces_completed", snap.PiecesCompleted),
		zap.Int64("bytes_flushed", snap.BytesFlushed),
	)
	return nil
}
