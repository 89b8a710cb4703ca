package core

import "math"

// SilenceDB is the level reported for blocks whose peak is zero.
const SilenceDB = -120.0

// Clamp limits value to the inclusive range [min, max].
func Clamp(value, min, max float64) float64 {
	if min > max {
		min, max = max, min
	}

	if value < min {
		return min
	}

	if value > max {
		return max
	}

	return value
}

// DBToLinear converts dB to linear amplitude (20*log10 convention).
func DBToLinear(db float64) float64 {
	return math.Pow(10, db/20)
}

// LinearToDB converts linear amplitude to dB, floored at SilenceDB so that
// silence never yields -Inf. Negative and NaN input also map to SilenceDB.
func LinearToDB(linear float64) float64 {
	if !(linear > 0) {
		return SilenceDB
	}

	db := 20 * math.Log10(linear)
	if db < SilenceDB {
		return SilenceDB
	}

	return db
}

// MsToFrames converts a duration in milliseconds to whole frames.
func MsToFrames(ms, sampleRate float64) int {
	if ms <= 0 || sampleRate <= 0 {
		return 0
	}

	return int(math.Round(ms * sampleRate / 1000))
}
