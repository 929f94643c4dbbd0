// Package metainfo interprets a decoded bencode tree as a typed torrent
// descriptor and computes its info-hash.
package metainfo

import (
	"crypto/sha1"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/quillpeer/quill/bencode"
)

// File is one entry of a multi-file torrent's file list.
type File struct {
	// CumulativeStart is the offset, in the torrent's flattened global
	// byte space, at which this file begins.
	CumulativeStart int
	Length          int
	Path            string
}

// Info is the parsed torrent descriptor: everything needed to announce
// to a tracker, open peer connections and verify downloaded pieces.
type Info struct {
	Announce string
	InfoHash [20]byte
	Name     string
	PieceLen int // "piece length": the configured size of every piece but possibly the last
	Pieces   [][20]byte
	Length   int // total payload length, single- or multi-file
	Files    []File
}

// Multi reports whether the descriptor describes more than one file.
func (info *Info) Multi() bool {
	return len(info.Files) > 1
}

// TotalLength returns the torrent's total payload size.
func (info *Info) TotalLength() int {
	return info.Length
}

// NumPieces returns the number of piece hashes in the descriptor. For a
// well-formed descriptor this is ceil(TotalLength / PieceLen); Parse
// does not check that the two agree.
func (info *Info) NumPieces() int {
	return len(info.Pieces)
}

// PieceLength returns the length in bytes of the piece at index: PieceLen
// for every piece except possibly the last, which may be shorter.
func (info *Info) PieceLength(index int) int {
	if index < 0 || index >= len(info.Pieces) {
		return 0
	}
	if index < len(info.Pieces)-1 {
		return info.PieceLen
	}
	rem := info.Length % info.PieceLen
	if rem == 0 {
		return info.PieceLen
	}
	return rem
}

// Open reads a .torrent file from path and parses it.
func Open(path string) (*Info, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading torrent file %q", path)
	}
	return Parse(raw)
}

// Parse interprets raw bencoded bytes as a torrent descriptor, computing
// the info-hash from the exact byte range the decoder recorded for the
// "info" sub-dictionary.
func Parse(raw []byte) (*Info, error) {
	root, _, err := bencode.Decode(raw)
	if err != nil {
		return nil, errors.Wrap(err, "decoding torrent file")
	}
	if root.Kind != bencode.KindDict {
		return nil, errors.New("torrent file root is not a dictionary")
	}

	announce, err := bencode.StrField(root, "announce")
	if err != nil {
		return nil, err
	}

	infoVal, err := bencode.Field(root, "info")
	if err != nil {
		return nil, err
	}
	if infoVal.Kind != bencode.KindDict {
		return nil, errors.New("\"info\" is not a dictionary")
	}

	infoBytes := raw[infoVal.Offset : infoVal.Offset+infoVal.Length]
	hash := sha1.Sum(infoBytes)

	info, err := parseInfoDict(infoVal, hash)
	if err != nil {
		return nil, err
	}
	info.Announce = string(announce)
	return info, nil
}

func parseInfoDict(v bencode.Value, hash [20]byte) (*Info, error) {
	piecesRaw, err := bencode.StrField(v, "pieces")
	if err != nil {
		return nil, errors.Wrap(err, "\"pieces\" not found")
	}
	pieces, err := splitPieces(piecesRaw)
	if err != nil {
		return nil, err
	}

	name, err := bencode.StrField(v, "name")
	if err != nil {
		return nil, errors.Wrap(err, "\"name\" not found")
	}

	pieceLen, err := bencode.IntField(v, "piece length")
	if err != nil {
		return nil, errors.Wrap(err, "\"piece length\" should be an integer")
	}
	if pieceLen <= 0 {
		return nil, fmt.Errorf("metainfo: non-positive piece length %d", pieceLen)
	}

	var files []File
	var totalLength int

	if lengthVal, lerr := bencode.IntField(v, "length"); lerr == nil {
		// Single-file mode: a "length" key; a "files" list next to it is
		// ignored.
		if lengthVal < 0 {
			return nil, fmt.Errorf("metainfo: negative length %d", lengthVal)
		}
		totalLength = int(lengthVal)
		files = []File{{Length: totalLength, Path: string(name)}}
	} else {
		filesVal, ferr := bencode.Field(v, "files")
		if ferr != nil {
			return nil, errors.New("metainfo: neither \"length\" nor \"files\" present")
		}
		if filesVal.Kind != bencode.KindList || len(filesVal.List) == 0 {
			return nil, errors.New("metainfo: \"files\" should be a non-empty list")
		}
		files, totalLength, err = parseFiles(filesVal.List)
		if err != nil {
			return nil, err
		}
	}

	info := &Info{
		InfoHash: hash,
		Name:     string(name),
		Pieces:   pieces,
		Length:   totalLength,
		Files:    files,
		PieceLen: int(pieceLen),
	}
	return info, nil
}

func splitPieces(raw []byte) ([][20]byte, error) {
	if len(raw)%20 != 0 {
		return nil, fmt.Errorf("metainfo: \"pieces\" length %d is not a multiple of 20", len(raw))
	}
	hashes := make([][20]byte, len(raw)/20)
	for i := range hashes {
		copy(hashes[i][:], raw[i*20:(i+1)*20])
	}
	return hashes, nil
}

func parseFiles(list []bencode.Value) ([]File, int, error) {
	files := make([]File, len(list))
	total := 0
	for i, entry := range list {
		if entry.Kind != bencode.KindDict {
			return nil, 0, fmt.Errorf("metainfo: file %d is not a dictionary", i)
		}
		length, err := bencode.IntField(entry, "length")
		if err != nil {
			return nil, 0, errors.Wrapf(err, "file %d missing \"length\"", i)
		}
		if length < 0 {
			return nil, 0, fmt.Errorf("metainfo: file %d has negative length %d", i, length)
		}
		pathVal, err := bencode.Field(entry, "path")
		if err != nil || pathVal.Kind != bencode.KindList || len(pathVal.List) == 0 {
			return nil, 0, fmt.Errorf("metainfo: file %d missing \"path\"", i)
		}
		segments := make([]string, len(pathVal.List))
		for j, seg := range pathVal.List {
			if seg.Kind != bencode.KindStr {
				return nil, 0, fmt.Errorf("metainfo: file %d path segment %d is not a string", i, j)
			}
			segments[j] = string(seg.Str)
		}
		files[i] = File{
			CumulativeStart: total,
			Length:          int(length),
			Path:            filepath.Join(segments...),
		}
		total += int(length)
	}
	return files, total, nil
}
