// Package detect implements the coefficient-domain motion detector: a
// two-slot frame store, the interframe block difference engine, the
// auto-sensitivity calibrator and the facade that binds them to listener
// callbacks. Everything here is single-threaded by contract; a detector
// instance is owned by exactly one processing loop.
package detect

import (
	"github.com/visiona/crowdsense/internal/jpeg"
)

type frameSlot struct {
	frame jpeg.Frame
	valid bool
}

// FrameStore holds the two most recent decoded frames in ping-pong slots
// plus the shared change-map buffer. Coefficient arrays live as long as
// the store and are rewritten in place; the change map is allocated once,
// when the first frame establishes the image geometry, and never resized.
type FrameStore struct {
	scanner *jpeg.Scanner
	slots   [2]frameSlot
	cur     int

	changeMap   []int
	sizeChecked bool
	blockNumX   int
	blockNumY   int
}

func NewFrameStore() *FrameStore {
	return &FrameStore{scanner: jpeg.NewScanner()}
}

// Write toggles the current slot and decodes data into it. Returns false
// on parse failure, leaving the slot invalid; the previous slot is
// untouched either way.
func (fs *FrameStore) Write(data []byte) bool {
	fs.cur ^= 1
	slot := &fs.slots[fs.cur]

	frame, err := fs.scanner.Decode(data, slot.frame.LumaCoeffs)
	if err != nil {
		slot.valid = false
		return false
	}
	slot.frame = frame
	slot.valid = true

	if !fs.sizeChecked {
		fs.blockNumX = frame.BlockNumX
		fs.blockNumY = frame.BlockNumY
		fs.changeMap = make([]int, frame.BlockCount())
		fs.sizeChecked = true
	}
	return true
}

// Current returns the most recently written frame.
func (fs *FrameStore) Current() (*jpeg.Frame, bool) {
	s := &fs.slots[fs.cur]
	return &s.frame, s.valid
}

// Previous returns the frame written before the current one.
func (fs *FrameStore) Previous() (*jpeg.Frame, bool) {
	s := &fs.slots[fs.cur^1]
	return &s.frame, s.valid
}

// ChangeMap exposes the shared per-block difference buffer; nil until the
// first successful parse.
func (fs *FrameStore) ChangeMap() []int {
	return fs.changeMap
}
