package catalog

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/chemvec/chemvec/blobstore"
)

// Compression selects the snapshot payload codec.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionZstd
	CompressionLZ4
)

// snapshot layout: magic, version, compression byte, entry count, payload
// length, CRC32-C of the compressed payload, then the payload itself.
var snapshotMagic = [4]byte{'C', 'V', 'C', 'S'}

const snapshotVersion uint8 = 1

var crcTable = crc32.MakeTable(crc32.Castagnoli)

// SnapshotOptions configures SaveSnapshot.
type SnapshotOptions struct {
	// Compression for the entry payload. Defaults to zstd.
	Compression Compression
}

type snapshotEntry struct {
	ID     uint64    `json:"id"`
	SMILES string    `json:"smiles"`
	Vector []float32 `json:"vector"`
}

// SaveSnapshot serializes the store and writes it to the blob store under
// the given name, replacing any previous snapshot with that name.
func SaveSnapshot(ctx context.Context, s *Store, bs blobstore.Store, name string, optFns ...func(o *SnapshotOptions)) error {
	opts := SnapshotOptions{Compression: CompressionZstd}
	for _, fn := range optFns {
		fn(&opts)
	}

	var entries []snapshotEntry
	for e := range s.All() {
		entries = append(entries, snapshotEntry{ID: uint64(e.ID), SMILES: e.SMILES, Vector: e.Vector})
	}

	raw, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshal entries: %w", err)
	}

	payload, err := compress(raw, opts.Compression)
	if err != nil {
		return err
	}

	buf := new(bytes.Buffer)
	buf.Write(snapshotMagic[:])
	buf.WriteByte(snapshotVersion)
	buf.WriteByte(byte(opts.Compression))

	var header [16]byte
	binary.LittleEndian.PutUint32(header[0:4], uint32(len(entries)))
	binary.LittleEndian.PutUint64(header[4:12], uint64(len(payload)))
	binary.LittleEndian.PutUint32(header[12:16], crc32.Checksum(payload, crcTable))
	buf.Write(header[:])
	buf.Write(payload)

	if err := bs.Put(ctx, name, buf.Bytes()); err != nil {
		return fmt.Errorf("write snapshot %q: %w", name, err)
	}
	return nil
}

// LoadSnapshot reads a snapshot from the blob store and reconstructs a
// Store. ID assignment resumes above the highest snapshotted ID.
func LoadSnapshot(ctx context.Context, bs blobstore.Store, name string) (*Store, error) {
	data, err := bs.Get(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("read snapshot %q: %w", name, err)
	}

	if len(data) < 6+16 {
		return nil, fmt.Errorf("snapshot %q: truncated header", name)
	}
	if !bytes.Equal(data[:4], snapshotMagic[:]) {
		return nil, fmt.Errorf("snapshot %q: bad magic", name)
	}
	if v := data[4]; v != snapshotVersion {
		return nil, fmt.Errorf("snapshot %q: unsupported version %d", name, v)
	}
	compression := Compression(data[5])

	count := binary.LittleEndian.Uint32(data[6:10])
	payloadLen := binary.LittleEndian.Uint64(data[10:18])
	sum := binary.LittleEndian.Uint32(data[18:22])

	payload := data[22:]
	if uint64(len(payload)) != payloadLen {
		return nil, fmt.Errorf("snapshot %q: payload length mismatch: header %d, got %d", name, payloadLen, len(payload))
	}
	if got := crc32.Checksum(payload, crcTable); got != sum {
		return nil, fmt.Errorf("snapshot %q: checksum mismatch: header %08x, got %08x", name, sum, got)
	}

	raw, err := decompress(payload, compression)
	if err != nil {
		return nil, fmt.Errorf("snapshot %q: %w", name, err)
	}

	var entries []snapshotEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("snapshot %q: unmarshal entries: %w", name, err)
	}
	if uint32(len(entries)) != count {
		return nil, fmt.Errorf("snapshot %q: entry count mismatch: header %d, got %d", name, count, len(entries))
	}

	s := New()
	for _, e := range entries {
		id := EntryID(e.ID)
		s.entries[id] = Entry{ID: id, SMILES: e.SMILES, Vector: e.Vector}
		s.byKey[e.SMILES] = id
		if id >= s.nextID {
			s.nextID = id + 1
		}
	}
	return s, nil
}

func compress(raw []byte, c Compression) ([]byte, error) {
	switch c {
	case CompressionNone:
		return raw, nil
	case CompressionZstd:
		buf := new(bytes.Buffer)
		w, err := zstd.NewWriter(buf)
		if err != nil {
			return nil, fmt.Errorf("zstd writer: %w", err)
		}
		if _, err := w.Write(raw); err != nil {
			return nil, fmt.Errorf("zstd compress: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("zstd close: %w", err)
		}
		return buf.Bytes(), nil
	case CompressionLZ4:
		buf := new(bytes.Buffer)
		w := lz4.NewWriter(buf)
		if _, err := w.Write(raw); err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("lz4 close: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unknown compression %d", c)
	}
}

func decompress(payload []byte, c Compression) ([]byte, error) {
	switch c {
	case CompressionNone:
		return payload, nil
	case CompressionZstd:
		r, err := zstd.NewReader(bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("zstd reader: %w", err)
		}
		defer r.Close()
		raw, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		return raw, nil
	case CompressionLZ4:
		raw, err := io.ReadAll(lz4.NewReader(bytes.NewReader(payload)))
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		return raw, nil
	default:
		return nil, fmt.Errorf("unknown compression %d", c)
	}
}
