package adlib

import "math"

// lowPass is a first-order RC low-pass filter with state per output
// channel, modelling the analog output stage of an AdLib card.
type lowPass struct {
	alpha float64
	prev  [2]float64
}

// newLowPass derives alpha = dt / (RC + dt) with RC = 1/(2*pi*fc).
func newLowPass(rate int, cutoffHz float64) *lowPass {
	return &lowPass{alpha: 1.0 / (float64(rate)/(2*math.Pi*cutoffHz) + 1)}
}

func (f *lowPass) apply(buf []int16, chans int) {
	for i := 0; i+chans <= len(buf); i += chans {
		for c := 0; c < chans; c++ {
			f.prev[c] = f.alpha*float64(buf[i+c]) + (1-f.alpha)*f.prev[c]
			buf[i+c] = int16(math.Round(f.prev[c]))
		}
	}
}
