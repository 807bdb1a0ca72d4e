// Package journal persists detection events to an append-only file.
// Each record is an independently decodable unit: a 4-byte big-endian
// length prefix followed by a zstd frame wrapping the msgpack-encoded
// event, so a truncated tail never poisons earlier records.
package journal

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/visiona/crowdsense/internal/event"
)

// ErrRecordTooLarge rejects records above the framing limit.
var ErrRecordTooLarge = errors.New("journal: record exceeds size limit")

const maxRecordSize = 16 << 20

// Writer appends records to one journal file.
type Writer struct {
	f   *os.File
	enc *zstd.Encoder
}

// OpenWriter opens (creating if needed) an append-only journal file in
// dir.
func OpenWriter(dir, name string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("journal: create dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("journal: open: %w", err)
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("journal: zstd: %w", err)
	}
	return &Writer{f: f, enc: enc}, nil
}

// Append writes one detection event record.
func (w *Writer) Append(ev *event.DetectionEvent) error {
	raw, err := msgpack.Marshal(ev)
	if err != nil {
		return fmt.Errorf("journal: encode: %w", err)
	}
	frame := w.enc.EncodeAll(raw, nil)
	if len(frame) > maxRecordSize {
		return ErrRecordTooLarge
	}

	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(frame)))
	if _, err := w.f.Write(prefix[:]); err != nil {
		return fmt.Errorf("journal: write: %w", err)
	}
	if _, err := w.f.Write(frame); err != nil {
		return fmt.Errorf("journal: write: %w", err)
	}
	return nil
}

// Close releases the encoder and closes the journal file.
func (w *Writer) Close() error {
	w.enc.Close()
	return w.f.Close()
}

// Reader iterates the records of a journal file.
type Reader struct {
	f   *os.File
	dec *zstd.Decoder
}

// OpenReader opens a journal file for iteration.
func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("journal: open: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("journal: zstd: %w", err)
	}
	return &Reader{f: f, dec: dec}, nil
}

// Next returns the next record, or io.EOF after the last complete one. A
// truncated trailing record also reports io.EOF.
func (r *Reader) Next() (*event.DetectionEvent, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(r.f, prefix[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		return nil, err
	}
	n := binary.BigEndian.Uint32(prefix[:])
	if n > maxRecordSize {
		return nil, ErrRecordTooLarge
	}
	frame := make([]byte, n)
	if _, err := io.ReadFull(r.f, frame); err != nil {
		if err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		return nil, err
	}
	raw, err := r.dec.DecodeAll(frame, nil)
	if err != nil {
		return nil, fmt.Errorf("journal: decompress: %w", err)
	}
	var ev event.DetectionEvent
	if err := msgpack.Unmarshal(raw, &ev); err != nil {
		return nil, fmt.Errorf("journal: decode: %w", err)
	}
	return &ev, nil
}

// Close releases the reader.
func (r *Reader) Close() error {
	r.dec.Close()
	return r.f.Close()
}
