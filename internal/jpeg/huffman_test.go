package jpeg

import "testing"

// TestCanonicalCodeAssignment verifies codes increase within a length and
// double across lengths, and the LUT resolves every prefix.
func TestCanonicalCodeAssignment(t *testing.T) {
	// One 1-bit code, two 2-bit codes: 0, 10, 11.
	counts := [16]int{1, 2}
	symbols := []byte{0x05, 0x03, 0x11}

	tab, err := buildHuffTable(0, 0, counts, symbols)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if tab.bitLengthMax != 2 {
		t.Errorf("expected bitLengthMax 2, got %d", tab.bitLengthMax)
	}
	if tab.indexMax != 2 {
		t.Errorf("expected indexMax 2, got %d", tab.indexMax)
	}

	wantLUT := []uint8{0, 0, 1, 2} // 00,01 -> sym0; 10 -> sym1; 11 -> sym2
	for i, w := range wantLUT {
		if tab.codeToIndex[i] != w {
			t.Errorf("codeToIndex[%d]: expected %d, got %d", i, w, tab.codeToIndex[i])
		}
	}
}

// TestDecodeConsumesCodeLength verifies decode skips exactly the code's
// bits, not the full peek width.
func TestDecodeConsumesCodeLength(t *testing.T) {
	counts := [16]int{1, 2}
	symbols := []byte{0x05, 0x03, 0x11}
	tab, err := buildHuffTable(0, 0, counts, symbols)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	// Bit stream: 0 | 10 | 11 | 0 padded.
	br := newBitReader([]byte{0b01011000})
	want := []uint8{0x05, 0x03, 0x11, 0x05}
	for i, w := range want {
		sym, err := tab.decode(br)
		if err != nil {
			t.Fatalf("decode %d failed: %v", i, err)
		}
		if sym != w {
			t.Errorf("decode %d: expected 0x%02X, got 0x%02X", i, w, sym)
		}
	}
}

// TestUnmappedPattern verifies a bit pattern outside the code set fails.
func TestUnmappedPattern(t *testing.T) {
	// Single 2-bit code 00; patterns 01,10,11 are unmapped.
	counts := [16]int{0, 1}
	symbols := []byte{0x07}
	tab, err := buildHuffTable(0, 0, counts, symbols)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	br := newBitReader([]byte{0b11000000})
	_, err = tab.decode(br)
	if err == nil {
		t.Fatal("expected decode error")
	}
	pe, ok := AsParseError(err)
	if !ok || pe.Kind != KindUnexpectedData {
		t.Errorf("expected UnexpectedData, got %v", err)
	}
}

// TestBuildRejections covers the parameter validation matrix.
func TestBuildRejections(t *testing.T) {
	valid := [16]int{1}
	cases := []struct {
		name    string
		tc, th  int
		counts  [16]int
		symbols []byte
		kind    Kind
	}{
		{"class too big", 2, 0, valid, []byte{1}, KindInvalidParam},
		{"id too big", 0, 2, valid, []byte{1}, KindInvalidParam},
		{"empty", 0, 0, [16]int{}, nil, KindInvalidParam},
		{"oversized", 0, 0, [16]int{0, 0, 0, 0, 0, 0, 0, 257}, make([]byte, 257), KindInvalidParam},
	}
	for _, tc := range cases {
		_, err := buildHuffTable(tc.tc, tc.th, tc.counts, tc.symbols)
		if err == nil {
			t.Errorf("%s: expected error", tc.name)
			continue
		}
		pe, ok := AsParseError(err)
		if !ok || pe.Kind != tc.kind {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.kind, err)
		}
	}
}
