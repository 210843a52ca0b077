package ccdc

import (
	"math"
	"testing"
	"time"
)

func TestToYearFraction(t *testing.T) {
	tests := []struct {
		name string
		date time.Time
		want float64
	}{
		{
			name: "mid june common year",
			date: time.Date(2023, 6, 15, 0, 0, 0, 0, time.UTC),
			want: 2023.4520547945205,
		},
		{
			name: "start of year",
			date: time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC),
			want: 2001.0,
		},
		{
			name: "leap year july",
			date: time.Date(2020, 7, 1, 0, 0, 0, 0, time.UTC),
			want: 2020.4972677595628,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToYearFraction(tt.date)
			if math.Abs(got-tt.want) > 1e-7 {
				t.Errorf("ToYearFraction(%v) = %.10f, want %.10f", tt.date, got, tt.want)
			}
		})
	}
}

func TestHarmonicBasis(t *testing.T) {
	// At a whole fractional year the annual harmonic completes full cycles:
	// cos terms ~1, sin terms ~0.
	basis := HarmonicBasis(2000, DateFormatFractionalYears)

	if basis[0] != 1 {
		t.Errorf("basis[0] = %v, want 1", basis[0])
	}
	if basis[1] != 2000 {
		t.Errorf("basis[1] = %v, want 2000", basis[1])
	}
	for _, i := range []int{2, 4, 6} {
		if math.Abs(basis[i]-1) > 1e-6 {
			t.Errorf("cos term basis[%d] = %v, want ~1", i, basis[i])
		}
	}
	for _, i := range []int{3, 5, 7} {
		if math.Abs(basis[i]) > 1e-6 {
			t.Errorf("sin term basis[%d] = %v, want ~0", i, basis[i])
		}
	}
}

func TestHarmonicBasisQuarterYear(t *testing.T) {
	// A quarter past a whole year: annual cos ~0, annual sin ~1, semiannual cos ~-1.
	basis := HarmonicBasis(2000.25, DateFormatFractionalYears)

	if math.Abs(basis[2]) > 1e-6 {
		t.Errorf("annual cos = %v, want ~0", basis[2])
	}
	if math.Abs(basis[3]-1) > 1e-6 {
		t.Errorf("annual sin = %v, want ~1", basis[3])
	}
	if math.Abs(basis[4]+1) > 1e-6 {
		t.Errorf("semiannual cos = %v, want ~-1", basis[4])
	}
}
