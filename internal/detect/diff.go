package detect

import "github.com/visiona/crowdsense/internal/jpeg"

// qCorrection maps a quality factor to the shift/multiplier pair applied
// to raw block difference sums. Higher quality means smaller quantizers,
// so equal scene change produces larger coefficient deltas; the
// correction renormalizes them onto one 0..255 scale.
func qCorrection(q int) (shift uint, adjust int) {
	switch {
	case q <= 68:
		return 0, 1
	case q < 97:
		return 5, 100 - q
	default:
		return 7, 112 - q
	}
}

// Diff computes the per-block absolute coefficient difference between cur
// and prev into changeMap and counts blocks at or above the sensitivity
// threshold. It refuses (ok=false) unless both frames are valid, share
// geometry and quality factor, the change map matches the geometry, and
// the threshold is positive. The change map is cleared in every case.
func Diff(cur, prev *jpeg.Frame, curValid, prevValid bool, changeMap []int, sensitivity int) (count, max int, ok bool) {
	for i := range changeMap {
		changeMap[i] = 0
	}
	max = -1

	if !curValid || !prevValid {
		return 0, max, false
	}
	if cur.BlockNumX == 0 || cur.BlockNumY == 0 ||
		cur.BlockNumX != prev.BlockNumX || cur.BlockNumY != prev.BlockNumY {
		return 0, max, false
	}
	if cur.QFactor != prev.QFactor {
		return 0, max, false
	}
	if changeMap == nil || len(changeMap) != cur.BlockCount() {
		return 0, max, false
	}
	if sensitivity <= 0 {
		return 0, max, false
	}

	shift, adjust := qCorrection(cur.QFactor)
	blocks := cur.BlockCount()
	for b := 0; b < blocks; b++ {
		cc := cur.LumaCoeffs[b*64 : b*64+64]
		pc := prev.LumaCoeffs[b*64 : b*64+64]
		diff := 0
		for k := 0; k < 64; k++ {
			d := int(cc[k]) - int(pc[k])
			if d < 0 {
				d = -d
			}
			diff += d
		}
		diff = (diff * adjust) >> shift
		if diff > 255 {
			diff = 255
		}
		changeMap[b] = diff
		if diff >= sensitivity {
			count++
		}
		if diff >= max {
			max = diff
		}
	}
	return count, max, true
}
