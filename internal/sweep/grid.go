package sweep

import "math"

// FrequencyPoint is one entry of the sweep grid. Only the raw Hz value is
// stored; the canonical key is always derived from it.
type FrequencyPoint struct {
	Hz float64
}

// KeyGHz returns the point's canonical key: the GHz value rounded to 3
// decimal places. Grid deduplication and calibration matching both compare
// on this key, never on the raw Hz value.
func (p FrequencyPoint) KeyGHz() float64 {
	return KeyFromHz(p.Hz)
}

// KeyFromHz derives the canonical frequency key from a raw Hz value.
// Rounding is idempotent: a key run through KeyFromHz(key*1e9) is unchanged.
func KeyFromHz(hz float64) float64 {
	return math.Round(hz/1e9*1e3) / 1e3
}

// Grid derives the frequency grid: an arithmetic sequence from StartHz to
// StopHz inclusive with StepHz spacing. StopHz is included exactly when it
// is reachable by the step. The result is strictly ascending. The step
// count tolerates float64 drift in the span/step ratio: Hz values computed
// from GHz/MHz inputs can land a few ulps below the next integer, which
// must not drop an exactly-reachable stop frequency.
func (c Config) Grid() []FrequencyPoint {
	if c.StepHz <= 0 || c.StopHz < c.StartHz {
		return nil
	}
	n := int(math.Floor((c.StopHz-c.StartHz)/c.StepHz+1e-9)) + 1
	points := make([]FrequencyPoint, n)
	for i := range points {
		points[i] = FrequencyPoint{Hz: c.StartHz + float64(i)*c.StepHz}
	}
	return points
}
