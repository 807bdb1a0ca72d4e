// Package stream turns a raw MJPEG byte source into discrete JPEG frames
// for the detector. Distribution follows the latest-wins mailbox rule:
// a slow consumer drops frames, it never queues them.
package stream

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Frame is one complete SOI..EOI JPEG blob with intake metadata.
type Frame struct {
	Data      []byte
	TraceID   string
	Seq       uint64
	Timestamp time.Time
}

// Splitter accumulates raw chunks and extracts complete JPEG frames by
// scanning for the SOI/EOI marker pair.
type Splitter struct {
	buf []byte
	seq uint64
}

// Feed appends a chunk and returns every complete frame it closed. Each
// returned frame owns its bytes; the internal buffer is reused.
func (s *Splitter) Feed(chunk []byte) []Frame {
	s.buf = append(s.buf, chunk...)

	var frames []Frame
	for {
		start := indexMarker(s.buf, 0xD8)
		if start < 0 {
			// No frame start in sight; drop garbage but keep a possible
			// trailing 0xFF that may begin an SOI.
			if n := len(s.buf); n > 0 && s.buf[n-1] == 0xFF {
				s.buf = s.buf[:1]
				s.buf[0] = 0xFF
			} else {
				s.buf = s.buf[:0]
			}
			return frames
		}
		end := indexMarkerFrom(s.buf, start+2, 0xD9)
		if end < 0 {
			// Incomplete frame; compact leading garbage away.
			if start > 0 {
				s.buf = append(s.buf[:0], s.buf[start:]...)
			}
			return frames
		}

		data := make([]byte, end+2-start)
		copy(data, s.buf[start:end+2])
		s.seq++
		frames = append(frames, Frame{
			Data:      data,
			TraceID:   uuid.New().String(),
			Seq:       s.seq,
			Timestamp: time.Now(),
		})
		s.buf = append(s.buf[:0], s.buf[end+2:]...)
	}
}

func indexMarker(b []byte, code byte) int {
	return indexMarkerFrom(b, 0, code)
}

func indexMarkerFrom(b []byte, from int, code byte) int {
	for i := from; i+1 < len(b); i++ {
		if b[i] == 0xFF && b[i+1] == code {
			return i
		}
	}
	return -1
}

// Mailbox is a single-slot latest-wins frame holder.
type Mailbox struct {
	mu     sync.Mutex
	cond   *sync.Cond
	frame  *Frame
	drops  uint64
	closed bool
}

func NewMailbox() *Mailbox {
	m := &Mailbox{}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Set replaces the pending frame, counting a drop if one was unconsumed.
func (m *Mailbox) Set(f Frame) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	if m.frame != nil {
		m.drops++
	}
	m.frame = &f
	m.cond.Signal()
}

// Receive blocks until a frame is available or the mailbox is closed; ok
// is false on close.
func (m *Mailbox) Receive() (Frame, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for m.frame == nil && !m.closed {
		m.cond.Wait()
	}
	if m.frame == nil {
		return Frame{}, false
	}
	f := *m.frame
	m.frame = nil
	return f, true
}

// Drops returns the number of frames overwritten before consumption.
func (m *Mailbox) Drops() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.drops
}

// Close wakes any blocked receiver.
func (m *Mailbox) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.cond.Broadcast()
}

// Pump reads r in chunks, splits frames and posts them to the mailbox
// until EOF, a read error or context cancellation. It closes the mailbox
// on exit and returns the number of frames posted.
func Pump(ctx context.Context, r io.Reader, mb *Mailbox) uint64 {
	defer mb.Close()

	var sp Splitter
	var posted uint64
	chunk := make([]byte, 64*1024)
	for {
		if ctx.Err() != nil {
			return posted
		}
		n, err := r.Read(chunk)
		if n > 0 {
			for _, f := range sp.Feed(chunk[:n]) {
				mb.Set(f)
				posted++
			}
		}
		if err != nil {
			if err != io.EOF {
				slog.Error("stream read failed", "error", err)
			}
			return posted
		}
	}
}
