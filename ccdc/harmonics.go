package ccdc

import (
	"math"
	"time"
)

// DateFormat selects the time unit the CCDC coefficients were fitted against.
type DateFormat int

const (
	// DateFormatJulianDays - time expressed in days
	DateFormatJulianDays DateFormat = 0
	// DateFormatFractionalYears - time expressed as fractional calendar years (the CCDC v3 default)
	DateFormatFractionalYears DateFormat = 1
	// DateFormatUnixMillis - time expressed in unix epoch milliseconds
	DateFormatUnixMillis DateFormat = 2
)

// HarmonicTags are the coefficient names of the CCDC harmonic model, in storage order:
// intercept, slope, and three cosine/sine pairs.
var HarmonicTags = []string{"INTP", "SLP", "COS", "SIN", "COS2", "SIN2", "COS3", "SIN3"}

// NumHarmonics is the number of coefficients per band per segment.
const NumHarmonics = 8

// angular frequencies per DateFormat
var omegas = [3]float64{
	2.0 * math.Pi / 365.25,
	2.0 * math.Pi,
	2.0 * math.Pi / (1000 * 60 * 60 * 24 * 365.25),
}

// ToYearFraction converts a date to a fractional year (e.g. 2023-06-15 -> 2023.4520...).
// The fraction is the elapsed share of the calendar year, computed in UTC.
func ToYearFraction(t time.Time) float64 {
	t = t.UTC()
	startOfYear := time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	startOfNext := time.Date(t.Year()+1, time.January, 1, 0, 0, 0, 0, time.UTC)

	elapsed := t.Sub(startOfYear).Seconds()
	duration := startOfNext.Sub(startOfYear).Seconds()

	return float64(t.Year()) + elapsed/duration
}

// HarmonicBasis evaluates the harmonic design vector for time t:
// [1, t, cos(wt), sin(wt), cos(2wt), sin(2wt), cos(3wt), sin(3wt)].
// Multiplying it element-wise with a segment's coefficients and summing gives the
// model-predicted reflectance at t.
func HarmonicBasis(t float64, format DateFormat) [NumHarmonics]float64 {
	omega := omegas[DateFormatFractionalYears]
	if format >= 0 && int(format) < len(omegas) {
		omega = omegas[format]
	}

	return [NumHarmonics]float64{
		1,
		t,
		math.Cos(t * omega),
		math.Sin(t * omega),
		math.Cos(t * omega * 2),
		math.Sin(t * omega * 2),
		math.Cos(t * omega * 3),
		math.Sin(t * omega * 3),
	}
}
