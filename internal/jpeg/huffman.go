package jpeg

// huffTable is a canonical Huffman decode table built from one DHT tuple.
// Decoding peeks bitLengthMax bits and resolves the symbol through a flat
// lookup; the lookup size is bounded by 1<<16 entries.
type huffTable struct {
	bitLengthMax uint
	indexMax     int
	codeToIndex  []uint8 // 1<<bitLengthMax entries, unmappedIndex where no code lands
	bitLength    [256]uint8
	symbol       [256]uint8
}

const unmappedIndex = 0xFF

// buildHuffTable derives the decode table from a (Tc, Th, Li[16], Vij)
// tuple. Tc and Th are validated here even though the caller routes on
// them; a stream may declare tables it never selects.
func buildHuffTable(tc, th int, counts [16]int, symbols []byte) (*huffTable, error) {
	if tc > 1 {
		return nil, errKindf(KindInvalidParam, "huffman table class %d", tc)
	}
	if th > 1 {
		return nil, errKindf(KindInvalidParam, "huffman table id %d", th)
	}
	total := 0
	for _, c := range counts {
		total += c
	}
	if total == 0 || total > 256 {
		return nil, errKindf(KindInvalidParam, "huffman table with %d symbols", total)
	}
	if len(symbols) < total {
		return nil, errKind(KindShortOfData, "huffman symbol list truncated")
	}

	t := &huffTable{indexMax: total - 1}

	// Canonical code assignment: codes increase within a length and double
	// across length boundaries.
	codes := make([]uint32, 0, total)
	code := uint32(0)
	for l := 1; l <= 16; l++ {
		for i := 0; i < counts[l-1]; i++ {
			idx := len(codes)
			t.bitLength[idx] = uint8(l)
			codes = append(codes, code)
			code++
		}
		code <<= 1
		if counts[l-1] > 0 {
			t.bitLengthMax = uint(l)
		}
	}
	if t.bitLengthMax == 0 {
		return nil, errKind(KindUnexpectedData, "huffman table without code lengths")
	}

	t.codeToIndex = make([]uint8, 1<<t.bitLengthMax)
	for i := range t.codeToIndex {
		t.codeToIndex[i] = unmappedIndex
	}
	for i := 0; i < total; i++ {
		l := uint(t.bitLength[i])
		if codes[i] >= 1<<l {
			return nil, errKind(KindUnexpectedData, "huffman code overflows its length")
		}
		base := codes[i] << (t.bitLengthMax - l)
		span := uint32(1) << (t.bitLengthMax - l)
		for j := uint32(0); j < span; j++ {
			t.codeToIndex[base+j] = uint8(i)
		}
	}
	copy(t.symbol[:], symbols[:total])
	return t, nil
}

// decode resolves one symbol from the bit stream.
func (t *huffTable) decode(br *bitReader) (uint8, error) {
	peek, err := br.Peek(t.bitLengthMax)
	if err != nil {
		return 0, err
	}
	idx := t.codeToIndex[peek]
	if int(idx) > t.indexMax {
		return 0, errKind(KindUnexpectedData, "bit pattern matches no huffman code")
	}
	if err := br.Skip(uint(t.bitLength[idx])); err != nil {
		return 0, err
	}
	return t.symbol[idx], nil
}
