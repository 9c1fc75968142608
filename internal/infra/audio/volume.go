package audio

import "math"

// applyVolume scales samples in place, saturating at the int16 range.
func applyVolume(samples []int16, volume float64) {
	if volume == 1 {
		return
	}
	for i, s := range samples {
		v := math.Round(float64(s) * volume)
		switch {
		case v > math.MaxInt16:
			samples[i] = math.MaxInt16
		case v < math.MinInt16:
			samples[i] = math.MinInt16
		default:
			samples[i] = int16(v)
		}
	}
}
