// Package jpegtest synthesizes minimal baseline JPEG streams from
// coefficient data so the scanner and the detector can be exercised
// end-to-end without binary fixtures. The emitted streams use the Annex K
// Huffman tables and libjpeg-style quality scaling of the Annex K
// luminance quantization table.
package jpegtest

// Annex K reference tables, zig-zag order.
var stdLuminanceQuantTbl = [64]int{
	16, 11, 12, 14, 12, 10, 16, 14,
	13, 14, 18, 17, 16, 19, 24, 40,
	26, 24, 22, 22, 24, 49, 35, 37,
	29, 40, 58, 51, 61, 60, 57, 51,
	56, 55, 64, 72, 92, 78, 64, 68,
	87, 69, 55, 56, 80, 109, 81, 87,
	95, 98, 103, 104, 103, 62, 77, 113,
	121, 112, 100, 120, 92, 101, 103, 99,
}

var stdChrominanceQuantTbl = [64]int{
	17, 18, 18, 24, 21, 24, 47, 26,
	26, 47, 99, 66, 56, 66, 99, 99,
	99, 99, 99, 99, 99, 99, 99, 99,
	99, 99, 99, 99, 99, 99, 99, 99,
	99, 99, 99, 99, 99, 99, 99, 99,
	99, 99, 99, 99, 99, 99, 99, 99,
	99, 99, 99, 99, 99, 99, 99, 99,
	99, 99, 99, 99, 99, 99, 99, 99,
}

var dcLumaCounts = [16]int{0, 1, 5, 1, 1, 1, 1, 1, 1, 0, 0, 0, 0, 0, 0, 0}

var dcLumaSymbols = []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}

var acLumaCounts = [16]int{0, 2, 1, 3, 3, 2, 4, 3, 5, 5, 4, 4, 0, 0, 1, 125}

var acLumaSymbols = []byte{
	0x01, 0x02, 0x03, 0x00, 0x04, 0x11, 0x05, 0x12,
	0x21, 0x31, 0x41, 0x06, 0x13, 0x51, 0x61, 0x07,
	0x22, 0x71, 0x14, 0x32, 0x81, 0x91, 0xa1, 0x08,
	0x23, 0x42, 0xb1, 0xc1, 0x15, 0x52, 0xd1, 0xf0,
	0x24, 0x33, 0x62, 0x72, 0x82, 0x09, 0x0a, 0x16,
	0x17, 0x18, 0x19, 0x1a, 0x25, 0x26, 0x27, 0x28,
	0x29, 0x2a, 0x34, 0x35, 0x36, 0x37, 0x38, 0x39,
	0x3a, 0x43, 0x44, 0x45, 0x46, 0x47, 0x48, 0x49,
	0x4a, 0x53, 0x54, 0x55, 0x56, 0x57, 0x58, 0x59,
	0x5a, 0x63, 0x64, 0x65, 0x66, 0x67, 0x68, 0x69,
	0x6a, 0x73, 0x74, 0x75, 0x76, 0x77, 0x78, 0x79,
	0x7a, 0x83, 0x84, 0x85, 0x86, 0x87, 0x88, 0x89,
	0x8a, 0x92, 0x93, 0x94, 0x95, 0x96, 0x97, 0x98,
	0x99, 0x9a, 0xa2, 0xa3, 0xa4, 0xa5, 0xa6, 0xa7,
	0xa8, 0xa9, 0xaa, 0xb2, 0xb3, 0xb4, 0xb5, 0xb6,
	0xb7, 0xb8, 0xb9, 0xba, 0xc2, 0xc3, 0xc4, 0xc5,
	0xc6, 0xc7, 0xc8, 0xc9, 0xca, 0xd2, 0xd3, 0xd4,
	0xd5, 0xd6, 0xd7, 0xd8, 0xd9, 0xda, 0xe1, 0xe2,
	0xe3, 0xe4, 0xe5, 0xe6, 0xe7, 0xe8, 0xe9, 0xea,
	0xf1, 0xf2, 0xf3, 0xf4, 0xf5, 0xf6, 0xf7, 0xf8,
	0xf9, 0xfa,
}

// Options parameterizes a synthesized stream.
type Options struct {
	Width, Height int
	Quality       int  // 1..100, libjpeg scaling of the Annex K tables
	Components    int  // 1 (grayscale) or 3 (YCbCr); 0 means 1
	SamplingY     byte // luminance H<<4|V: 0x11 (default), 0x12, 0x21, 0x22
}

func (o *Options) normalize() {
	if o.Components == 0 {
		o.Components = 1
	}
	if o.SamplingY == 0 {
		o.SamplingY = 0x11
	}
	if o.Quality == 0 {
		o.Quality = 50
	}
}

// BlockDims returns the luminance block-plane dimensions the scanner will
// report for these options.
func (o Options) BlockDims() (bx, by int) {
	o.normalize()
	hi := int(o.SamplingY >> 4)
	vi := int(o.SamplingY & 0x0F)
	bx = (o.Width + 7) / 8
	if hi == 2 {
		bx = 2 * ((o.Width + 15) / 16)
	}
	by = (o.Height + 7) / 8
	if vi == 2 {
		by = 2 * ((o.Height + 15) / 16)
	}
	return bx, by
}

// Build emits a complete SOI..EOI baseline JPEG whose luminance plane
// codes luma: zig-zag order within each 8x8 block, raster order across
// blocks (the same layout the scanner reports). Chroma blocks, when
// present, are coded as all-zero. Panics on inconsistent input; this is
// test support.
func Build(opts Options, luma []int16) []byte {
	opts.normalize()
	bx, by := opts.BlockDims()
	if len(luma) != bx*by*64 {
		panic("jpegtest: luma length does not match geometry")
	}

	out := []byte{0xFF, 0xD8}
	out = appendDQT(out, opts)
	out = appendDHT(out)
	out = appendSOF0(out, opts)
	out = appendSOS(out, opts)
	out = appendScan(out, opts, luma, bx)
	out = append(out, 0xFF, 0xD9)
	return out
}

// QuantTable returns the libjpeg-scaled Annex K luminance table for a
// quality factor, zig-zag order.
func QuantTable(quality int) [64]byte {
	return scaleQuantTable(stdLuminanceQuantTbl, quality)
}

func scaleQuantTable(ref [64]int, quality int) [64]byte {
	if quality < 1 {
		quality = 1
	}
	if quality > 100 {
		quality = 100
	}
	scale := 200 - 2*quality
	if quality < 50 {
		scale = 5000 / quality
	}
	var t [64]byte
	for i, s := range ref {
		v := (s*scale + 50) / 100
		if v < 1 {
			v = 1
		}
		if v > 255 {
			v = 255
		}
		t[i] = byte(v)
	}
	return t
}

func appendSegment(out []byte, marker byte, body []byte) []byte {
	out = append(out, 0xFF, marker)
	l := len(body) + 2
	out = append(out, byte(l>>8), byte(l))
	return append(out, body...)
}

func appendDQT(out []byte, opts Options) []byte {
	luma := scaleQuantTable(stdLuminanceQuantTbl, opts.Quality)
	body := append([]byte{0x00}, luma[:]...)
	if opts.Components == 3 {
		chroma := scaleQuantTable(stdChrominanceQuantTbl, opts.Quality)
		body = append(body, 0x01)
		body = append(body, chroma[:]...)
	}
	return appendSegment(out, 0xDB, body)
}

func appendDHT(out []byte) []byte {
	body := []byte{0x00}
	for _, c := range dcLumaCounts {
		body = append(body, byte(c))
	}
	body = append(body, dcLumaSymbols...)
	body = append(body, 0x10)
	for _, c := range acLumaCounts {
		body = append(body, byte(c))
	}
	body = append(body, acLumaSymbols...)
	return appendSegment(out, 0xC4, body)
}

func appendSOF0(out []byte, opts Options) []byte {
	body := []byte{
		8,
		byte(opts.Height >> 8), byte(opts.Height),
		byte(opts.Width >> 8), byte(opts.Width),
		byte(opts.Components),
	}
	body = append(body, 1, opts.SamplingY, 0)
	if opts.Components == 3 {
		body = append(body, 2, 0x11, 1, 3, 0x11, 1)
	}
	return appendSegment(out, 0xC0, body)
}

func appendSOS(out []byte, opts Options) []byte {
	// All components select table pair 0; the emitted DHT defines only
	// that pair.
	body := []byte{byte(opts.Components), 1, 0x00}
	if opts.Components == 3 {
		body = append(body, 2, 0x00, 3, 0x00)
	}
	body = append(body, 0x00, 0x3F, 0x00)
	return appendSegment(out, 0xDA, body)
}

// hcode is one assigned canonical Huffman code.
type hcode struct {
	code uint32
	bits uint
}

func buildEncodeTable(counts [16]int, symbols []byte) map[byte]hcode {
	m := make(map[byte]hcode, len(symbols))
	code := uint32(0)
	idx := 0
	for l := 1; l <= 16; l++ {
		for i := 0; i < counts[l-1]; i++ {
			m[symbols[idx]] = hcode{code: code, bits: uint(l)}
			code++
			idx++
		}
		code <<= 1
	}
	return m
}

type bitWriter struct {
	out []byte
	acc uint32
	n   uint
}

func (w *bitWriter) write(bits uint32, n uint) {
	w.acc = w.acc<<n | (bits & (1<<n - 1))
	w.n += n
	for w.n >= 8 {
		b := byte(w.acc >> (w.n - 8))
		w.out = append(w.out, b)
		if b == 0xFF {
			w.out = append(w.out, 0x00)
		}
		w.n -= 8
	}
}

// flush pads the final partial byte with one-fill bits.
func (w *bitWriter) flush() {
	if w.n > 0 {
		pad := 8 - w.n
		w.write(1<<pad-1, pad)
	}
}

func category(v int16) uint8 {
	m := v
	if m < 0 {
		m = -m
	}
	var s uint8
	for m > 0 {
		m >>= 1
		s++
	}
	return s
}

func magnitudeBits(v int16, s uint8) uint32 {
	if v < 0 {
		return uint32(int32(v) + int32(1<<s) - 1)
	}
	return uint32(v)
}

func encodeBlock(w *bitWriter, dc, ac map[byte]hcode, blk []int16, pred *int16) {
	diff := blk[0] - *pred
	*pred = blk[0]
	s := category(diff)
	c := dc[s]
	w.write(c.code, c.bits)
	if s > 0 {
		w.write(magnitudeBits(diff, s), uint(s))
	}

	run := 0
	for k := 1; k < 64; k++ {
		if blk[k] == 0 {
			run++
			continue
		}
		for run >= 16 {
			zrl := ac[0xF0]
			w.write(zrl.code, zrl.bits)
			run -= 16
		}
		s := category(blk[k])
		c := ac[byte(run<<4)|s]
		w.write(c.code, c.bits)
		w.write(magnitudeBits(blk[k], s), uint(s))
		run = 0
	}
	if run > 0 {
		eob := ac[0x00]
		w.write(eob.code, eob.bits)
	}
}

var zeroBlock [64]int16

func appendScan(out []byte, opts Options, luma []int16, bx int) []byte {
	dc := buildEncodeTable(dcLumaCounts, dcLumaSymbols)
	ac := buildEncodeTable(acLumaCounts, acLumaSymbols)

	hi := int(opts.SamplingY >> 4)
	vi := int(opts.SamplingY & 0x0F)
	_, by := opts.BlockDims()
	rowStride := bx * 64

	var offs []int
	switch {
	case hi == 1 && vi == 1:
		offs = []int{0}
	case hi == 2 && vi == 1:
		offs = []int{0, 64}
	case hi == 1 && vi == 2:
		offs = []int{0, rowStride}
	default:
		offs = []int{0, 64, rowStride, rowStride + 64}
	}

	w := &bitWriter{out: out}
	var pred [3]int16
	mcuW := bx / hi
	mcuH := by / vi
	for my := 0; my < mcuH; my++ {
		for mx := 0; mx < mcuW; mx++ {
			for _, off := range offs {
				encodeBlock(w, dc, ac, luma[off:off+64], &pred[0])
			}
			for c := 1; c < opts.Components; c++ {
				encodeBlock(w, dc, ac, zeroBlock[:], &pred[c])
			}
			for i := range offs {
				offs[i] += hi * 64
			}
		}
		if vi == 2 {
			for i := range offs {
				offs[i] += rowStride
			}
		}
	}
	w.flush()
	return w.out
}
