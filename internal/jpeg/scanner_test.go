package jpeg

import (
	"bytes"
	"testing"

	"github.com/visiona/crowdsense/internal/jpeg/jpegtest"
)

// patternCoeffs fills a coefficient plane with a deterministic,
// block-dependent pattern small enough to stay inside AC categories.
func patternCoeffs(bx, by int) []int16 {
	coeffs := make([]int16, bx*by*64)
	for b := 0; b < bx*by; b++ {
		blk := coeffs[b*64 : b*64+64]
		blk[0] = int16(b%400 - 200) // DC
		blk[1] = int16(b % 7)
		blk[5] = int16(-(b % 11))
		blk[17] = int16(b%3 + 1)
		blk[63] = int16(b % 2)
	}
	return coeffs
}

func decodeOrFatal(t *testing.T, data []byte) Frame {
	t.Helper()
	frame, err := NewScanner().Decode(data, nil)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	return frame
}

// TestDecodeRoundTrip verifies the scanner recovers the exact coefficient
// plane the builder coded, across all supported samplings and both
// component layouts.
func TestDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		opts jpegtest.Options
	}{
		{"gray 1:1", jpegtest.Options{Width: 32, Height: 32, Quality: 50, Components: 1, SamplingY: 0x11}},
		{"ycbcr 4:4:4", jpegtest.Options{Width: 32, Height: 32, Quality: 50, Components: 3, SamplingY: 0x11}},
		{"ycbcr 4:2:2", jpegtest.Options{Width: 32, Height: 32, Quality: 75, Components: 3, SamplingY: 0x21}},
		{"ycbcr 4:4:0", jpegtest.Options{Width: 32, Height: 32, Quality: 75, Components: 3, SamplingY: 0x12}},
		{"ycbcr 4:2:0", jpegtest.Options{Width: 48, Height: 32, Quality: 90, Components: 3, SamplingY: 0x22}},
		{"non-multiple of 16", jpegtest.Options{Width: 40, Height: 24, Quality: 50, Components: 3, SamplingY: 0x22}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			bx, by := tc.opts.BlockDims()
			coeffs := patternCoeffs(bx, by)
			data := jpegtest.Build(tc.opts, coeffs)

			frame := decodeOrFatal(t, data)

			if frame.Width != tc.opts.Width || frame.Height != tc.opts.Height {
				t.Errorf("dimensions: expected %dx%d, got %dx%d",
					tc.opts.Width, tc.opts.Height, frame.Width, frame.Height)
			}
			if frame.BlockNumX != bx || frame.BlockNumY != by {
				t.Errorf("blocks: expected %dx%d, got %dx%d",
					bx, by, frame.BlockNumX, frame.BlockNumY)
			}
			if len(frame.LumaCoeffs) != bx*by*64 {
				t.Fatalf("coefficient count: expected %d, got %d", bx*by*64, len(frame.LumaCoeffs))
			}
			for i := range coeffs {
				if frame.LumaCoeffs[i] != coeffs[i] {
					t.Fatalf("coefficient %d (block %d, pos %d): expected %d, got %d",
						i, i/64, i%64, coeffs[i], frame.LumaCoeffs[i])
				}
			}
		})
	}
}

// TestDecodeQuality verifies the quality factor travels from the DQT to
// the frame.
func TestDecodeQuality(t *testing.T) {
	for _, q := range []int{50, 80, 97} {
		opts := jpegtest.Options{Width: 16, Height: 16, Quality: q}
		bx, by := opts.BlockDims()
		frame := decodeOrFatal(t, jpegtest.Build(opts, make([]int16, bx*by*64)))
		if frame.QFactor != q {
			t.Errorf("quality %d: frame reports %d", q, frame.QFactor)
		}
	}
}

// TestDecodeIdempotent verifies parsing the same JPEG twice yields
// identical coefficients and quality.
func TestDecodeIdempotent(t *testing.T) {
	opts := jpegtest.Options{Width: 32, Height: 32, Quality: 80, Components: 3, SamplingY: 0x22}
	bx, by := opts.BlockDims()
	data := jpegtest.Build(opts, patternCoeffs(bx, by))

	s := NewScanner()
	f1, err := s.Decode(data, nil)
	if err != nil {
		t.Fatalf("first decode failed: %v", err)
	}
	c1 := append([]int16(nil), f1.LumaCoeffs...)

	f2, err := s.Decode(data, nil)
	if err != nil {
		t.Fatalf("second decode failed: %v", err)
	}
	if f1.QFactor != f2.QFactor {
		t.Errorf("q factor changed: %d then %d", f1.QFactor, f2.QFactor)
	}
	for i := range c1 {
		if f2.LumaCoeffs[i] != c1[i] {
			t.Fatalf("coefficient %d changed: %d then %d", i, c1[i], f2.LumaCoeffs[i])
		}
	}
}

// TestDecodeReusesBuffer verifies a sufficiently large reuse slice backs
// the result.
func TestDecodeReusesBuffer(t *testing.T) {
	opts := jpegtest.Options{Width: 16, Height: 16, Quality: 50}
	bx, by := opts.BlockDims()
	data := jpegtest.Build(opts, patternCoeffs(bx, by))

	reuse := make([]int16, bx*by*64)
	frame, err := NewScanner().Decode(data, reuse)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if &frame.LumaCoeffs[0] != &reuse[0] {
		t.Error("reuse buffer was not used")
	}
}

// TestStuffedStreamEquivalence verifies 0xFF00 stuffing in the entropy
// segment is transparent by coding a plane whose bitstream contains
// stuffed bytes.
func TestStuffedStreamEquivalence(t *testing.T) {
	opts := jpegtest.Options{Width: 32, Height: 32, Quality: 50}
	bx, by := opts.BlockDims()
	// Large alternating DC steps produce long all-ones magnitude runs,
	// which is what makes 0xFF bytes (and therefore stuffing) appear.
	coeffs := make([]int16, bx*by*64)
	for b := 0; b < bx*by; b++ {
		if b%2 == 0 {
			coeffs[b*64] = 1023
		} else {
			coeffs[b*64] = -1024
		}
	}
	data := jpegtest.Build(opts, coeffs)
	if !bytes.Contains(data[2:], []byte{0xFF, 0x00}) {
		t.Fatal("test stream contains no stuffing; pattern needs adjusting")
	}

	frame := decodeOrFatal(t, data)
	for b := 0; b < bx*by; b++ {
		want := int16(1023)
		if b%2 == 1 {
			want = -1024
		}
		if frame.LumaCoeffs[b*64] != want {
			t.Fatalf("block %d DC: expected %d, got %d", b, want, frame.LumaCoeffs[b*64])
		}
	}
}

// TestDecodeRejections covers the marker-level failure matrix.
func TestDecodeRejections(t *testing.T) {
	opts := jpegtest.Options{Width: 16, Height: 16, Quality: 50}
	bx, by := opts.BlockDims()
	good := jpegtest.Build(opts, make([]int16, bx*by*64))

	segStart := func(marker byte) int {
		i := bytes.Index(good, []byte{0xFF, marker})
		if i < 0 {
			t.Fatalf("marker 0x%02X not found in fixture", marker)
		}
		return i
	}

	t.Run("no SOI", func(t *testing.T) {
		bad := append([]byte{0x00}, good...)
		assertKind(t, bad, KindNoSOIMarker)
	})

	t.Run("truncated", func(t *testing.T) {
		assertKind(t, good[:len(good)-20], KindShortOfData)
	})

	t.Run("missing EOI", func(t *testing.T) {
		bad := append([]byte(nil), good[:len(good)-2]...)
		bad = append(bad, 0x12, 0x34)
		assertKind(t, bad, KindNoEOIMarker)
	})

	t.Run("nonzero restart interval", func(t *testing.T) {
		bad := append([]byte{0xFF, 0xD8, 0xFF, 0xDD, 0x00, 0x04, 0x00, 0x08}, good[2:]...)
		assertKind(t, bad, KindUnsupported)
	})

	t.Run("zero restart interval tolerated", func(t *testing.T) {
		ok := append([]byte{0xFF, 0xD8, 0xFF, 0xDD, 0x00, 0x04, 0x00, 0x00}, good[2:]...)
		if _, err := NewScanner().Decode(ok, nil); err != nil {
			t.Errorf("expected success, got %v", err)
		}
	})

	t.Run("progressive frame", func(t *testing.T) {
		bad := append([]byte(nil), good...)
		bad[segStart(0xC0)+1] = 0xC2
		assertKind(t, bad, KindUnsupported)
	})

	t.Run("EOI before SOS", func(t *testing.T) {
		bad := append([]byte{0xFF, 0xD8, 0xFF, 0xD9}, good[2:]...)
		assertKind(t, bad, KindUnexpectedMarker)
	})

	t.Run("fill bytes before marker tolerated", func(t *testing.T) {
		ok := append([]byte{0xFF, 0xD8, 0xFF, 0xFF, 0xFF}, good[3:]...)
		if _, err := NewScanner().Decode(ok, nil); err != nil {
			t.Errorf("expected success, got %v", err)
		}
	})

	t.Run("bad chroma sampling", func(t *testing.T) {
		copts := jpegtest.Options{Width: 16, Height: 16, Quality: 50, Components: 3}
		cbx, cby := copts.BlockDims()
		data := jpegtest.Build(copts, make([]int16, cbx*cby*64))
		bad := append([]byte(nil), data...)
		// Second component's sampling byte inside SOF0: marker(2) +
		// length(2) + precision(1) + dims(4) + count(1) + comp1(3) +
		// comp2 id(1) puts it at offset 14.
		sof := bytes.Index(bad, []byte{0xFF, 0xC0})
		bad[sof+14] = 0x22
		assertKind(t, bad, KindUnsupported)
	})

	t.Run("missing huffman tables", func(t *testing.T) {
		bad := stripSegment(good, 0xC4)
		assertKind(t, bad, KindLackOfMarker)
	})

	t.Run("missing DQT", func(t *testing.T) {
		bad := stripSegment(good, 0xDB)
		assertKind(t, bad, KindLackOfMarker)
	})
}

func assertKind(t *testing.T, data []byte, kind Kind) {
	t.Helper()
	_, err := NewScanner().Decode(data, nil)
	if err == nil {
		t.Fatal("expected decode error")
	}
	pe, ok := AsParseError(err)
	if !ok {
		t.Fatalf("expected ParseError, got %v", err)
	}
	if pe.Kind != kind {
		t.Errorf("expected %v, got %v (%s)", kind, pe.Kind, pe.Msg)
	}
}

// stripSegment removes one length-prefixed marker segment from a stream.
func stripSegment(data []byte, marker byte) []byte {
	i := bytes.Index(data, []byte{0xFF, marker})
	if i < 0 {
		return data
	}
	l := int(data[i+2])<<8 | int(data[i+3])
	out := append([]byte(nil), data[:i]...)
	return append(out, data[i+2+l:]...)
}
