package detect

import "time"

// Auto-sensitivity calibration constants.
const (
	topKSize          = 5
	autoWaitFirst     = 2000 * time.Millisecond
	autoWaitLimit     = 10000 * time.Millisecond
	sensitivityOffset = 5
)

// AutoStatus is the per-frame outcome of the calibration window.
type AutoStatus int

const (
	AutoNoStart AutoStatus = iota
	AutoContinue
	AutoError
	AutoSuccess
)

func (s AutoStatus) String() string {
	switch s {
	case AutoNoStart:
		return "no-start"
	case AutoContinue:
		return "continue"
	case AutoError:
		return "error"
	case AutoSuccess:
		return "success"
	default:
		return "unknown"
	}
}

// AutoSensitivity learns a detection threshold from an observation
// window: it tracks the top per-frame block-difference maxima seen since
// Start and, once the window has filled and the minimum observation time
// has passed, recommends a threshold just above the typical maximum.
type AutoSensitivity struct {
	running  bool
	maxCount int
	topK     [topKSize]int
	start    time.Time

	now func() time.Time
}

func NewAutoSensitivity() *AutoSensitivity {
	return &AutoSensitivity{now: time.Now}
}

// Start begins a calibration window. Returns false if one is already
// running; the running window is unaffected.
func (a *AutoSensitivity) Start() bool {
	if a.running {
		return false
	}
	a.reset()
	a.start = a.now()
	a.running = true
	return true
}

func (a *AutoSensitivity) reset() {
	a.running = false
	a.maxCount = 0
	for i := range a.topK {
		a.topK[i] = -1
	}
}

func (a *AutoSensitivity) elapsed() time.Duration {
	return a.now().Sub(a.start)
}

// SetMax offers one frame's maximum block difference to the window. The
// sample is recorded when the calibrator is running, m is non-negative
// and m exceeds the smallest retained entry. While the window is filling
// the sample is inserted in descending order; once the window holds
// topKSize entries an accepted sample displaces the current head, so a
// single early spike cannot pin the statistic. The return value is true
// only when the window is full and the minimum observation time has
// passed, i.e. when a subsequent Auto call can succeed.
func (a *AutoSensitivity) SetMax(m int) bool {
	if !a.running || m < 0 {
		return false
	}
	if m <= a.topK[topKSize-1] {
		return false
	}

	j := 0
	for j < topKSize && m <= a.topK[j] {
		j++
	}
	if a.maxCount < topKSize {
		a.maxCount++
		for i := topKSize - 1; i > j; i-- {
			a.topK[i] = a.topK[i-1]
		}
		a.topK[j] = m
	} else {
		for i := 0; i+1 < j; i++ {
			a.topK[i] = a.topK[i+1]
		}
		if j > 0 {
			a.topK[j-1] = m
		} else {
			a.topK[0] = m
		}
	}

	return a.maxCount >= topKSize && a.elapsed() > autoWaitFirst
}

// Auto reports the calibration outcome for the current frame. AutoSuccess
// carries the recommended internal sensitivity in 1..256 and ends the
// window; AutoError ends the window with no recommendation; AutoContinue
// and AutoNoStart carry nothing.
func (a *AutoSensitivity) Auto() (AutoStatus, int) {
	if !a.running {
		return AutoNoStart, 0
	}
	el := a.elapsed()
	if el < autoWaitFirst {
		return AutoContinue, 0
	}
	if a.maxCount < topKSize {
		if el >= autoWaitLimit {
			a.reset()
			return AutoError, 0
		}
		return AutoContinue, 0
	}

	// Drop the window maximum to reject outliers, average the rest.
	sum := 0
	for i := 1; i < topKSize; i++ {
		sum += a.topK[i]
	}
	s := sum/(topKSize-1) + sensitivityOffset
	if s < 1 {
		s = 1
	}
	if s > 256 {
		s = 256
	}
	a.reset()
	return AutoSuccess, s
}

// Running reports whether a calibration window is open.
func (a *AutoSensitivity) Running() bool {
	return a.running
}
