// Package crowdsense provides motion/crowd detection directly on the
// compressed representation of successive JPEG frames.
//
// # Overview
//
// Instead of decoding frames to pixels, the detector extracts the
// quantized luminance DCT coefficients from each baseline JPEG and
// measures the interframe difference of those coefficients block by
// block. The per-block magnitudes, after a quality-factor-dependent
// correction, form a change map; blocks above the sensitivity threshold
// count as detected. The key design principle is:
//
//	"Never touch pixel space. The entropy decoder is the whole decoder."
//
// # Basic Usage
//
// Create a detector, register listeners, feed it JPEG frames:
//
//	det := crowdsense.New()
//	det.SetSensitivity(10)
//	det.SetListeners(crowdsense.Listeners{
//	    OnArea: func(pct float64) {
//	        if pct >= det.DetectedAreaThreshold() {
//	            // motion
//	        }
//	    },
//	})
//
//	for frame := range frames {
//	    det.ProcessFrame(frame, nil)
//	}
//
// # Sensitivity
//
// The user-facing sensitivity runs 1 (least sensitive) to 256 (most);
// internally it is the inverted per-block threshold. An auto-calibration
// window learns a recommendation from the first seconds of a stream:
//
//	det.StartAutoSensitivity()
//	// ... keep feeding frames; the OnAutoSensitivity listener fires
//	// with a recommendation, or 0 if the window could not fill.
//
// # Threading
//
// A detector instance is single-threaded: ProcessFrame runs to
// completion and fires listeners synchronously in fixed order
// (full image, change info, area percentage, auto-sensitivity).
// Listeners must not re-enter the detector. To parallelize across
// streams, give each stream its own instance; instances share no state.
//
// # Wire format
//
// Accepted input: baseline Huffman JPEG, single interleaved scan, YCbCr
// 4:4:4/4:2:2/4:4:0/4:2:0 or grayscale, unique component IDs, no restart
// markers. 0xFF fill bytes before markers are tolerated and 0xFF00
// stuffing is honored. Parse failures are reported to listeners as nil
// image and zero area; no error escapes the detector.
package crowdsense
