package jpeg

// JPEG marker codes.
const (
	markerTEM  = 0x01
	markerSOF0 = 0xC0 // Baseline DCT
	markerDHT  = 0xC4 // Define Huffman Table
	markerRST0 = 0xD0
	markerRST7 = 0xD7
	markerSOI  = 0xD8 // Start Of Image
	markerEOI  = 0xD9 // End Of Image
	markerSOS  = 0xDA // Start Of Scan
	markerDQT  = 0xDB // Define Quantization Table
	markerDRI  = 0xDD // Define Restart Interval
)

type component struct {
	id       uint8
	sampling uint8 // H in the upper nibble, V in the lower
	td, ta   uint8 // DC/AC table selectors from SOS
}

// Scanner extracts the quantized luminance DCT coefficients from baseline
// Huffman JPEG streams. One Scanner is reused transactionally: Decode
// takes a complete SOI..EOI blob and returns a value-typed Frame; no
// state survives between calls.
//
// Accepted wire format: baseline DCT, a single interleaved scan, YCbCr
// 4:4:4/4:2:2/4:4:0/4:2:0 or grayscale, no restart markers. 0xFF fill
// bytes before markers are tolerated; 0xFF00 stuffing in the entropy
// segment is honored.
type Scanner struct {
	dcTables [2]*huffTable
	acTables [2]*huffTable

	comps   [3]component
	ncomp   int
	width   int
	height  int
	qFactor int
}

func NewScanner() *Scanner {
	return &Scanner{}
}

func (s *Scanner) reset() {
	*s = Scanner{}
}

// Decode parses one JPEG and returns its luminance coefficient plane.
// When reuse has sufficient capacity it backs the returned frame's
// coefficient slice, so long-lived callers avoid per-frame allocation.
func (s *Scanner) Decode(data []byte, reuse []int16) (Frame, error) {
	s.reset()

	if len(data) < 2 || data[0] != 0xFF || data[1] != markerSOI {
		return Frame{}, errKind(KindNoSOIMarker, "stream does not start with SOI")
	}
	pos := 2

	for {
		code, next, err := s.nextMarker(data, pos)
		if err != nil {
			return Frame{}, err
		}
		pos = next

		// SOS carries no post-segment markers; everything else is a
		// length-prefixed segment.
		switch {
		case code == markerSOS:
			seg, next, err := segmentBody(data, pos)
			if err != nil {
				return Frame{}, err
			}
			if err := s.parseSOS(seg); err != nil {
				return Frame{}, err
			}
			return s.decodeScan(data[next:], reuse)

		case code == markerDHT:
			seg, next, err := segmentBody(data, pos)
			if err != nil {
				return Frame{}, err
			}
			if err := s.parseDHT(seg); err != nil {
				return Frame{}, err
			}
			pos = next

		case code == markerDQT:
			seg, next, err := segmentBody(data, pos)
			if err != nil {
				return Frame{}, err
			}
			if err := s.parseDQT(seg); err != nil {
				return Frame{}, err
			}
			pos = next

		case code == markerSOF0:
			seg, next, err := segmentBody(data, pos)
			if err != nil {
				return Frame{}, err
			}
			if err := s.parseSOF0(seg); err != nil {
				return Frame{}, err
			}
			pos = next

		case code == markerDRI:
			seg, next, err := segmentBody(data, pos)
			if err != nil {
				return Frame{}, err
			}
			if len(seg) != 2 {
				return Frame{}, errKind(KindBadMarkerSegment, "DRI segment length must be 4")
			}
			if interval := int(seg[0])<<8 | int(seg[1]); interval != 0 {
				return Frame{}, errKindf(KindUnsupported, "restart interval %d", interval)
			}
			pos = next

		case code == markerSOI, code == markerEOI, code == markerTEM,
			code >= markerRST0 && code <= markerRST7:
			return Frame{}, errKindf(KindUnexpectedMarker, "marker 0x%02X before SOS", code)

		case code >= markerSOF0 && code <= 0xCF && code != markerDHT:
			// Any non-baseline frame type (progressive, arithmetic, ...).
			return Frame{}, errKindf(KindUnsupported, "frame type marker 0x%02X", code)

		default:
			// APPn, COM and friends: skip by the embedded length.
			_, next, err := segmentBody(data, pos)
			if err != nil {
				return Frame{}, err
			}
			pos = next
		}
	}
}

// nextMarker expects a 0xFF at pos, tolerates a run of 0xFF fill bytes
// and returns the marker code plus the cursor after it.
func (s *Scanner) nextMarker(data []byte, pos int) (byte, int, error) {
	if pos >= len(data) {
		return 0, 0, errKind(KindShortOfData, "stream ends before next marker")
	}
	if data[pos] != 0xFF {
		return 0, 0, errKindf(KindLackOfMarker, "expected marker prefix, found 0x%02X", data[pos])
	}
	for pos < len(data) && data[pos] == 0xFF {
		pos++
	}
	if pos >= len(data) {
		return 0, 0, errKind(KindShortOfData, "stream ends inside marker")
	}
	code := data[pos]
	if code == 0x00 {
		return 0, 0, errKind(KindUnexpectedMarker, "stuffed byte outside entropy segment")
	}
	return code, pos + 1, nil
}

// segmentBody reads a 2-byte big-endian segment length at pos and returns
// the segment payload (length bytes excluded) and the cursor past it.
func segmentBody(data []byte, pos int) ([]byte, int, error) {
	if pos+2 > len(data) {
		return nil, 0, errKind(KindShortOfData, "stream ends inside segment length")
	}
	l := int(data[pos])<<8 | int(data[pos+1])
	if l < 2 {
		return nil, 0, errKindf(KindBadMarkerSegment, "segment length %d", l)
	}
	end := pos + l
	if end > len(data) {
		return nil, 0, errKind(KindShortOfData, "stream ends inside segment body")
	}
	return data[pos+2 : end], end, nil
}

func (s *Scanner) parseDHT(seg []byte) error {
	for len(seg) > 0 {
		if len(seg) < 17 {
			return errKind(KindBadMarkerSegment, "DHT tuple truncated")
		}
		tc := int(seg[0] >> 4)
		th := int(seg[0] & 0x0F)
		var counts [16]int
		total := 0
		for i := 0; i < 16; i++ {
			counts[i] = int(seg[1+i])
			total += counts[i]
		}
		if len(seg) < 17+total {
			return errKind(KindBadMarkerSegment, "DHT symbols truncated")
		}
		t, err := buildHuffTable(tc, th, counts, seg[17:17+total])
		if err != nil {
			return err
		}
		if tc == 0 {
			s.dcTables[th] = t
		} else {
			s.acTables[th] = t
		}
		seg = seg[17+total:]
	}
	return nil
}

func (s *Scanner) parseDQT(seg []byte) error {
	for len(seg) > 0 {
		pq := int(seg[0] >> 4)
		tq := int(seg[0] & 0x0F)
		if pq > 1 {
			return errKindf(KindBadMarkerSegment, "DQT precision %d", pq)
		}
		if tq > 3 {
			return errKindf(KindBadMarkerSegment, "DQT table id %d", tq)
		}
		n := 64
		if pq == 1 {
			n = 128
		}
		if len(seg) < 1+n {
			return errKind(KindBadMarkerSegment, "DQT table truncated")
		}
		if tq == 0 {
			var table [64]uint16
			for i := 0; i < 64; i++ {
				if pq == 1 {
					table[i] = uint16(seg[1+2*i])<<8 | uint16(seg[2+2*i])
				} else {
					table[i] = uint16(seg[1+i])
				}
			}
			s.qFactor = estimateQuality(table)
		}
		seg = seg[1+n:]
	}
	return nil
}

func (s *Scanner) parseSOF0(seg []byte) error {
	if len(seg) < 6 {
		return errKind(KindBadMarkerSegment, "SOF0 segment truncated")
	}
	if prec := seg[0]; prec != 8 {
		return errKindf(KindUnsupported, "%d bit sample precision", prec)
	}
	s.height = int(seg[1])<<8 | int(seg[2])
	s.width = int(seg[3])<<8 | int(seg[4])
	if s.height == 0 {
		return errKind(KindUnsupported, "zero image height")
	}
	if s.width == 0 || s.width > 32767 || s.height > 32767 {
		return errKindf(KindUnexpectedData, "image dimensions %dx%d", s.width, s.height)
	}
	s.ncomp = int(seg[5])
	if s.ncomp != 1 && s.ncomp != 3 {
		return errKindf(KindUnsupported, "%d components", s.ncomp)
	}
	if len(seg) != 6+3*s.ncomp {
		return errKind(KindBadMarkerSegment, "SOF0 component list truncated")
	}
	for c := 0; c < s.ncomp; c++ {
		s.comps[c].id = seg[6+3*c]
		s.comps[c].sampling = seg[7+3*c]
		for j := 0; j < c; j++ {
			if s.comps[j].id == s.comps[c].id {
				return errKindf(KindUnexpectedData, "duplicate component id %d", s.comps[c].id)
			}
		}
	}
	return nil
}

func (s *Scanner) parseSOS(seg []byte) error {
	if s.ncomp == 0 {
		return errKind(KindLackOfMarker, "SOS before SOF0")
	}
	if s.qFactor == 0 {
		return errKind(KindLackOfMarker, "SOS before DQT")
	}
	if len(seg) < 1 {
		return errKind(KindBadMarkerSegment, "SOS segment truncated")
	}
	ns := int(seg[0])
	if ns != s.ncomp {
		return errKindf(KindUnsupported, "scan codes %d of %d components", ns, s.ncomp)
	}
	if len(seg) != 1+2*ns+3 {
		return errKind(KindBadMarkerSegment, "SOS length inconsistent with component count")
	}
	for i := 0; i < ns; i++ {
		id := seg[1+2*i]
		sel := seg[2+2*i]
		ci := -1
		for j := 0; j < s.ncomp; j++ {
			if s.comps[j].id == id {
				ci = j
				break
			}
		}
		if ci < 0 {
			return errKindf(KindUnexpectedData, "scan component id %d not declared in SOF0", id)
		}
		td := sel >> 4
		ta := sel & 0x0F
		if td > 1 || ta > 1 {
			return errKindf(KindUnexpectedData, "huffman selectors %d/%d", td, ta)
		}
		s.comps[ci].td = td
		s.comps[ci].ta = ta
	}
	// Luminance sampling drives the MCU geometry; chroma must be 1x1.
	switch s.comps[0].sampling {
	case 0x11, 0x12, 0x21, 0x22:
	default:
		return errKindf(KindUnsupported, "luminance sampling 0x%02X", s.comps[0].sampling)
	}
	for c := 1; c < s.ncomp; c++ {
		if s.comps[c].sampling != 0x11 {
			return errKindf(KindUnsupported, "chroma sampling 0x%02X", s.comps[c].sampling)
		}
	}
	// Trailing Ss, Se, AhAl bytes were length-checked above; baseline
	// ignores their values.
	return nil
}

// decodeScan runs the entropy decoder over the scan data (which extends
// to the end of the input; the EOI marker is located behind the last
// coded bit).
func (s *Scanner) decodeScan(scan []byte, reuse []int16) (Frame, error) {
	hi := int(s.comps[0].sampling >> 4)
	vi := int(s.comps[0].sampling & 0x0F)

	blockNumX := ceilDiv(s.width, 8)
	if hi == 2 {
		blockNumX = 2 * ceilDiv(s.width, 16)
	}
	blockNumY := ceilDiv(s.height, 8)
	if vi == 2 {
		blockNumY = 2 * ceilDiv(s.height, 16)
	}

	n := blockNumX * blockNumY * 64
	var coeffs []int16
	if cap(reuse) >= n {
		coeffs = reuse[:n]
		for i := range coeffs {
			coeffs[i] = 0
		}
	} else {
		coeffs = make([]int16, n)
	}

	rowStride := blockNumX * 64
	var offs []int
	switch {
	case hi == 1 && vi == 1:
		offs = []int{0}
	case hi == 2 && vi == 1:
		offs = []int{0, 64}
	case hi == 1 && vi == 2:
		offs = []int{0, rowStride}
	default: // hi == 2 && vi == 2
		offs = []int{0, 64, rowStride, rowStride + 64}
	}

	br := newBitReader(scan)
	mcuW := blockNumX / hi
	mcuH := blockNumY / vi
	var pred [3]int16

	for my := 0; my < mcuH; my++ {
		for mx := 0; mx < mcuW; mx++ {
			for c := 0; c < s.ncomp; c++ {
				dc := s.dcTables[s.comps[c].td]
				ac := s.acTables[s.comps[c].ta]
				if dc == nil || ac == nil {
					return Frame{}, errKindf(KindLackOfMarker, "component %d selects an undefined huffman table", c)
				}
				if c == 0 {
					for _, off := range offs {
						if err := decodeBlock(br, dc, ac, coeffs[off:off+64], &pred[0]); err != nil {
							return Frame{}, err
						}
					}
				} else {
					if err := decodeBlock(br, dc, ac, nil, &pred[c]); err != nil {
						return Frame{}, err
					}
				}
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

	// Trailing fill bits of a partial byte are accepted unconditionally;
	// the stream must then close with EOI.
	br.AlignToByte()
	rest := br.Rest()
	i := 0
	for i < len(rest) && rest[i] == 0xFF {
		i++
	}
	if i == 0 || i >= len(rest) || rest[i] != markerEOI {
		return Frame{}, errKind(KindNoEOIMarker, "stream does not close with EOI")
	}

	return Frame{
		Width:      s.width,
		Height:     s.height,
		BlockNumX:  blockNumX,
		BlockNumY:  blockNumY,
		QFactor:    s.qFactor,
		LumaCoeffs: coeffs,
	}, nil
}

// decodeBlock decodes one 8x8 block. dst receives the coefficients in
// zig-zag order, or is nil for chroma blocks whose bits are consumed and
// discarded. pred is the running DC predictor for the component.
func decodeBlock(br *bitReader, dc, ac *huffTable, dst []int16, pred *int16) error {
	sdc, err := dc.decode(br)
	if err != nil {
		return err
	}
	if sdc > 11 {
		return errKindf(KindUnexpectedData, "DC category %d", sdc)
	}
	if sdc > 0 {
		bits, err := br.Read(uint(sdc))
		if err != nil {
			return err
		}
		*pred += extend(bits, sdc)
	}
	if dst != nil {
		dst[0] = *pred
	}

	k := 1
	for k < 64 {
		sac, err := ac.decode(br)
		if err != nil {
			return err
		}
		zeroRun := int(sac >> 4)
		acBits := sac & 0x0F
		if acBits != 0 {
			if acBits > 10 {
				return errKindf(KindUnexpectedData, "AC category %d", acBits)
			}
			k += zeroRun
			if k > 63 {
				return errKind(KindUnexpectedData, "AC run exceeds block boundary")
			}
			bits, err := br.Read(uint(acBits))
			if err != nil {
				return err
			}
			if dst != nil {
				dst[k] = extend(bits, acBits)
			}
			k++
		} else if zeroRun == 15 {
			k += 16
		} else {
			break // EOB
		}
	}
	return nil
}

// extend sign-extends a JPEG category-coded magnitude: values below the
// midpoint of an s-bit category are negative. Widened arithmetic: v is
// unsigned, so the subtraction is done in int.
func extend(v uint16, s uint8) int16 {
	if v < 1<<(s-1) {
		return int16(int(v) - (1 << s) + 1)
	}
	return int16(v)
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
