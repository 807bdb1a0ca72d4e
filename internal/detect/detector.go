package detect

import "errors"

// Public API errors.
var (
	ErrSensitivityRange   = errors.New("crowdsense: sensitivity out of range")
	ErrAreaThresholdRange = errors.New("crowdsense: detected-area threshold out of range")
)

// Sensitivity bounds and defaults. The user-facing scale is inverted from
// the internal threshold: user 1 (least sensitive) is internal 256.
const (
	SensitivityMin = 1
	SensitivityMax = 256

	DefaultInternalSensitivity   = 256
	DefaultDetectedAreaThreshold = 10.0
)

// Listeners are the detector's outbound contract. Any callback may be
// nil. Callbacks fire synchronously from ProcessFrame, in declaration
// order, and must not re-enter the detector; a listener that offloads
// work copies the byte slices and the change map first.
type Listeners struct {
	// OnImage receives the processed JPEG and the opaque original blob,
	// both nil when the frame failed to parse.
	OnImage func(img, org []byte)

	// OnDetectInfo receives the frame, the per-block change map (length
	// blockNumX*blockNumY) and the internal threshold in force.
	OnDetectInfo func(img []byte, changeMap []int, threshold int, org []byte)

	// OnArea receives the detected-area percentage, 0 on any failure.
	OnArea func(pct float64)

	// OnAutoSensitivity receives a calibration outcome on the user scale:
	// 0 for failure, 1..256 for a recommendation. Silent while the window
	// is still open.
	OnAutoSensitivity func(userSensitivity int)
}

// Result summarizes one processed frame for callers that poll instead of
// listening.
type Result struct {
	ParseOK        bool
	DiffOK         bool
	DetectedBlocks int
	MaxMagnitude   int
	AreaPct        float64

	// Frame geometry, populated when ParseOK.
	Width     int
	Height    int
	BlockNumX int
	BlockNumY int
	QFactor   int
}

// Detector is the facade binding the frame store, the diff engine and the
// auto-sensitivity calibrator. One instance per stream; instances share
// no state. Not safe for concurrent use.
type Detector struct {
	store     *FrameStore
	auto      *AutoSensitivity
	listeners Listeners

	threshold     int // internal scale
	areaThreshold float64
}

func NewDetector() *Detector {
	return &Detector{
		store:         NewFrameStore(),
		auto:          NewAutoSensitivity(),
		threshold:     DefaultInternalSensitivity,
		areaThreshold: DefaultDetectedAreaThreshold,
	}
}

// SetListeners replaces the listener set.
func (d *Detector) SetListeners(l Listeners) {
	d.listeners = l
}

// Sensitivity returns the user-facing sensitivity, 1..256.
func (d *Detector) Sensitivity() int {
	return SensitivityMax + 1 - d.threshold
}

// SetSensitivity sets the user-facing sensitivity, 1..256.
func (d *Detector) SetSensitivity(v int) error {
	if v < SensitivityMin || v > SensitivityMax {
		return ErrSensitivityRange
	}
	d.threshold = SensitivityMax + 1 - v
	return nil
}

// DetectedAreaThreshold returns the reporting threshold in percent.
func (d *Detector) DetectedAreaThreshold() float64 {
	return d.areaThreshold
}

// SetDetectedAreaThreshold stores the reporting threshold verbatim; the
// detector itself does not act on it.
func (d *Detector) SetDetectedAreaThreshold(v float64) error {
	if v < 0.0 || v > 100.0 {
		return ErrAreaThresholdRange
	}
	d.areaThreshold = v
	return nil
}

// StartAutoSensitivity opens a calibration window. Returns false if one
// is already open.
func (d *Detector) StartAutoSensitivity() bool {
	return d.auto.Start()
}

// ChangeMap exposes the live per-block difference buffer of the last
// processed frame pair; nil before the first successful parse. Callers
// that hold onto it across frames must copy.
func (d *Detector) ChangeMap() []int {
	return d.store.ChangeMap()
}

// ProcessFrame runs one JPEG through the pipeline and fires the listener
// callbacks in fixed order: full image, change info, area percentage,
// auto-sensitivity outcome. org is an opaque blob carried to listeners.
func (d *Detector) ProcessFrame(img, org []byte) Result {
	var res Result

	res.ParseOK = d.store.Write(img)

	changeMap := d.store.ChangeMap()
	if res.ParseOK {
		cur, curOK := d.store.Current()
		prev, prevOK := d.store.Previous()
		res.Width, res.Height = cur.Width, cur.Height
		res.BlockNumX, res.BlockNumY = cur.BlockNumX, cur.BlockNumY
		res.QFactor = cur.QFactor
		res.DetectedBlocks, res.MaxMagnitude, res.DiffOK =
			Diff(cur, prev, curOK, prevOK, changeMap, d.threshold)
	} else if changeMap != nil {
		for i := range changeMap {
			changeMap[i] = 0
		}
	}
	if res.DiffOK && len(changeMap) > 0 {
		res.AreaPct = 100.0 * float64(res.DetectedBlocks) / float64(len(changeMap))
	}

	if d.listeners.OnImage != nil {
		if res.ParseOK {
			d.listeners.OnImage(img, org)
		} else {
			d.listeners.OnImage(nil, nil)
		}
	}
	if d.listeners.OnDetectInfo != nil {
		if res.ParseOK {
			d.listeners.OnDetectInfo(img, changeMap, d.threshold, org)
		} else {
			d.listeners.OnDetectInfo(nil, changeMap, d.threshold, nil)
		}
	}
	if d.listeners.OnArea != nil {
		d.listeners.OnArea(res.AreaPct)
	}

	if res.DiffOK {
		d.auto.SetMax(res.MaxMagnitude)
		status, v := d.auto.Auto()
		if d.listeners.OnAutoSensitivity != nil {
			switch status {
			case AutoSuccess:
				d.listeners.OnAutoSensitivity(SensitivityMax + 1 - v)
			case AutoError:
				d.listeners.OnAutoSensitivity(0)
			}
		}
	}

	return res
}
