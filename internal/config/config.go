// Package config holds the engine's tuning knobs: timeouts, block size,
// flush threshold and retry limits. These are not part of the torrent
// descriptor; they govern how the download engine behaves regardless of
// which torrent it is fetching.
package config

import (
	"os"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// Engine collects every tunable of the download engine.
type Engine struct {
	// ConnectTimeout bounds the TCP dial + handshake exchange.
	ConnectTimeout time.Duration
	// ReadTimeout is an optional per-read deadline; zero disables it.
	ReadTimeout time.Duration
	// BlockSize is the unit of wire request, capped at 16 KiB by
	// convention.
	BlockSize datasize.ByteSize
	// FlushThreshold is the number of piece bytes written since the last
	// sync after which the coordinator calls Sink.Flush. Pieces are
	// written to the file as soon as they are verified; they are not held
	// in memory until the threshold is reached.
	FlushThreshold datasize.ByteSize
	// MaxRetries bounds how many times a worker re-requests a piece
	// after a hash mismatch before dropping the peer.
	MaxRetries int
	// PipelineDepth is the number of outstanding requests a worker
	// keeps in flight at once.
	PipelineDepth int
	// OrphanReclaimInterval, if non-zero, makes the coordinator check on
	// this interval and re-queue every piece that has been Downloading
	// for longer than twice the interval, whether or not its worker is
	// still alive. Zero disables reclaiming, so a piece whose worker died
	// mid-job stays Downloading.
	OrphanReclaimInterval time.Duration
}

// Default returns the baseline tuning values used when no config file
// is supplied.
func Default() Engine {
	return Engine{
		ConnectTimeout:        17 * time.Second,
		ReadTimeout:           0,
		BlockSize:             16 * datasize.KB,
		FlushThreshold:        2 * datasize.GB,
		MaxRetries:            5,
		PipelineDepth:         1,
		OrphanReclaimInterval: 0,
	}
}

// fileEngine mirrors Engine as it appears on disk: byte sizes are
// human-readable strings ("16KB", "2GB") decoded through
// datasize.ByteSize's UnmarshalText, since yaml.v2 does not dispatch to
// encoding.TextUnmarshaler on its own.
type fileEngine struct {
	ConnectTimeout        time.Duration `yaml:"connect_timeout"`
	ReadTimeout           time.Duration `yaml:"read_timeout"`
	BlockSize             string        `yaml:"block_size"`
	FlushThreshold        string        `yaml:"flush_threshold"`
	MaxRetries            int           `yaml:"max_retries"`
	PipelineDepth         int           `yaml:"pipeline_depth"`
	OrphanReclaimInterval time.Duration `yaml:"orphan_reclaim_interval"`
}

// Load reads an Engine config from a YAML file at path, filling any
// field the file omits with the Default() value. A missing file is not
// an error; Default() is returned instead.
func Load(path string) (Engine, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Engine{}, errors.Wrapf(err, "reading engine config %q", path)
	}

	var overlay fileEngine
	if err := yaml.Unmarshal(raw, &overlay); err != nil {
		return Engine{}, errors.Wrapf(err, "parsing engine config %q", path)
	}

	if overlay.ConnectTimeout != 0 {
		cfg.ConnectTimeout = overlay.ConnectTimeout
	}
	if overlay.ReadTimeout != 0 {
		cfg.ReadTimeout = overlay.ReadTimeout
	}
	if overlay.BlockSize != "" {
		var b datasize.ByteSize
		if err := b.UnmarshalText([]byte(overlay.BlockSize)); err != nil {
			return Engine{}, errors.Wrapf(err, "parsing block_size %q", overlay.BlockSize)
		}
		cfg.BlockSize = b
	}
	if overlay.FlushThreshold != "" {
		var b datasize.ByteSize
		if err := b.UnmarshalText([]byte(overlay.FlushThreshold)); err != nil {
			return Engine{}, errors.Wrapf(err, "parsing flush_threshold %q", overlay.FlushThreshold)
		}
		cfg.FlushThreshold = b
	}
	if overlay.MaxRetries != 0 {
		cfg.MaxRetries = overlay.MaxRetries
	}
	if overlay.PipelineDepth != 0 {
		cfg.PipelineDepth = overlay.PipelineDepth
	}
	if overlay.OrphanReclaimInterval != 0 {
		cfg.OrphanReclaimInterval = overlay.OrphanReclaimInterval
	}
	return cfg, nil
}
