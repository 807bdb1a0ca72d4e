package detect

import (
	"testing"
	"time"
)

// fakeClock drives AutoSensitivity deterministically.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newCalibrator() (*AutoSensitivity, *fakeClock) {
	clk := &fakeClock{t: time.Unix(1000, 0)}
	a := NewAutoSensitivity()
	a.now = clk.now
	return a, clk
}

// TestAutoHappyPath replays the calibration scenario: six maxima over
// more than two seconds recommend avg-of-window-minus-max plus offset.
func TestAutoHappyPath(t *testing.T) {
	a, clk := newCalibrator()
	if !a.Start() {
		t.Fatal("start failed")
	}

	// Five samples inside the first two seconds, the sixth after.
	samples := []int{5, 40, 20, 30, 10, 25}
	for i, m := range samples {
		if i < 5 {
			clk.advance(300 * time.Millisecond)
		} else {
			clk.advance(600 * time.Millisecond)
		}
		accepted := a.SetMax(m)
		if i < len(samples)-1 {
			if accepted {
				t.Errorf("sample %d (%d): accepted before the wait window", i, m)
			}
			if status, _ := a.Auto(); status != AutoContinue {
				t.Fatalf("sample %d: expected continue, got %v", i, status)
			}
		} else if !accepted {
			t.Errorf("final sample (%d): expected acceptance", m)
		}
	}

	status, v := a.Auto()
	if status != AutoSuccess {
		t.Fatalf("expected success, got %v", status)
	}
	// Window is [30,25,20,10,5]; drop the max, avg(25,20,10,5)=15, +5.
	if v != 20 {
		t.Errorf("expected recommendation 20, got %d", v)
	}
	if a.Running() {
		t.Error("expected calibrator to stop after success")
	}
}

// TestAutoTimeout verifies the error path: too few samples inside the
// window limit.
func TestAutoTimeout(t *testing.T) {
	a, clk := newCalibrator()
	a.Start()

	a.SetMax(12)
	clk.advance(5 * time.Second)
	a.SetMax(7)

	if status, _ := a.Auto(); status != AutoContinue {
		t.Fatalf("expected continue before limit, got %v", status)
	}

	clk.advance(5100 * time.Millisecond)
	status, v := a.Auto()
	if status != AutoError {
		t.Fatalf("expected error, got %v", status)
	}
	if v != 0 {
		t.Errorf("expected no recommendation, got %d", v)
	}
	if a.Running() {
		t.Error("expected calibrator to stop after error")
	}
}

// TestAutoNotStarted verifies NoStart and the rejection of samples.
func TestAutoNotStarted(t *testing.T) {
	a, _ := newCalibrator()
	if a.SetMax(10) {
		t.Error("expected SetMax to reject when not running")
	}
	if status, _ := a.Auto(); status != AutoNoStart {
		t.Errorf("expected no-start, got %v", status)
	}
}

// TestAutoDoubleStart verifies a second start is refused and leaves the
// running window intact.
func TestAutoDoubleStart(t *testing.T) {
	a, _ := newCalibrator()
	if !a.Start() {
		t.Fatal("first start failed")
	}
	a.SetMax(17)
	if a.Start() {
		t.Error("expected second start to fail")
	}
	if a.maxCount != 1 || a.topK[0] != 17 {
		t.Errorf("second start disturbed the window: count=%d topK=%v", a.maxCount, a.topK)
	}
}

// TestAutoRejectsDuplicatesAndNegatives verifies the acceptance filter.
func TestAutoRejectsDuplicatesAndNegatives(t *testing.T) {
	a, _ := newCalibrator()
	a.Start()

	if a.SetMax(-1) {
		t.Error("expected negative sample rejection")
	}

	// Fill the window.
	for _, m := range []int{50, 40, 30, 20, 10} {
		a.SetMax(m)
	}
	if a.maxCount != topKSize {
		t.Fatalf("expected full window, got %d", a.maxCount)
	}
	// Equal to the smallest retained entry: rejected.
	before := a.topK
	a.SetMax(10)
	if a.topK != before {
		t.Errorf("tie sample mutated window: %v -> %v", before, a.topK)
	}
	// Zero is a valid sample while the floor is -1.
	b, _ := newCalibrator()
	b.Start()
	b.SetMax(0)
	if b.maxCount != 1 || b.topK[0] != 0 {
		t.Errorf("zero sample not recorded: count=%d topK=%v", b.maxCount, b.topK)
	}
}

// TestAutoFullWindowDisplacesHead verifies that once the window is full,
// an accepted sample evicts the current maximum, so a single startup
// spike cannot dominate the recommendation.
func TestAutoFullWindowDisplacesHead(t *testing.T) {
	a, clk := newCalibrator()
	a.Start()

	for _, m := range []int{200, 40, 30, 20, 10} {
		a.SetMax(m)
	}
	clk.advance(2500 * time.Millisecond)
	a.SetMax(25)

	want := [topKSize]int{40, 30, 25, 20, 10}
	if a.topK != want {
		t.Fatalf("expected window %v, got %v", want, a.topK)
	}

	status, v := a.Auto()
	if status != AutoSuccess {
		t.Fatalf("expected success, got %v", status)
	}
	// avg(30,25,20,10) = 21, +5.
	if v != 26 {
		t.Errorf("expected 26, got %d", v)
	}
}

// TestAutoRecommendationClamped verifies the 1..256 clamp.
func TestAutoRecommendationClamped(t *testing.T) {
	a, clk := newCalibrator()
	a.Start()
	for _, m := range []int{300, 299, 298, 297, 296} {
		a.SetMax(m)
	}
	clk.advance(2500 * time.Millisecond)
	a.SetMax(295)

	status, v := a.Auto()
	if status != AutoSuccess {
		t.Fatalf("expected success, got %v", status)
	}
	if v != 256 {
		t.Errorf("expected clamp to 256, got %d", v)
	}
}

// TestAutoRestartAfterCompletion verifies the calibrator can run again.
func TestAutoRestartAfterCompletion(t *testing.T) {
	a, clk := newCalibrator()
	a.Start()
	for _, m := range []int{9, 8, 7, 6, 5} {
		a.SetMax(m)
	}
	clk.advance(2500 * time.Millisecond)
	a.SetMax(4) // rejected (<= floor), window already full
	if status, _ := a.Auto(); status != AutoSuccess {
		t.Fatalf("expected success, got %v", status)
	}

	if !a.Start() {
		t.Error("expected restart to succeed")
	}
	if a.maxCount != 0 {
		t.Errorf("expected fresh window, got count %d", a.maxCount)
	}
}
