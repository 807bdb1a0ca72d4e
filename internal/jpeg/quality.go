package jpeg

// Sample quantization tables from JPEG Annex K, in zig-zag order. Only
// needed to estimate the quality factor a table was scaled from.
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

// estimateQuality recovers the 1..100 quality factor from a luminance
// quantization table by comparing it against the Annex K reference: the
// mean scaling factor in percent inverts the libjpeg scaling formula
// (Q>=50 maps to 200-2Q percent, Q<50 to 5000/Q percent). The estimate is
// deterministic, so two frames produced by the same encoder always report
// the same value.
func estimateQuality(table [64]uint16) int {
	allOnes := true
	var cumsf float64
	for i := 0; i < 64; i++ {
		v := int(table[i])
		if v != 1 {
			allOnes = false
		}
		cumsf += 100.0 * float64(v) / float64(stdLuminanceQuantTbl[i])
	}
	cumsf /= 64.0

	var qual float64
	switch {
	case allOnes:
		qual = 100.0
	case cumsf <= 100.0:
		qual = (200.0 - cumsf) / 2.0
	default:
		qual = 5000.0 / cumsf
	}

	q := int(qual + 0.5)
	if q < 1 {
		q = 1
	}
	if q > 100 {
		q = 100
	}
	return q
}
