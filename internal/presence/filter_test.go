package presence

import (
	"testing"
	"time"
)

func sampleAt(mm int, valid bool) Sample {
	return Sample{Time: time.Unix(0, 0), Millimeters: mm, Valid: valid}
}

func TestFilterMedianOfValidSamples(t *testing.T) {
	f := NewFilter(5)

	f.Push(sampleAt(1000, true))
	f.Push(sampleAt(1200, true))
	mm, ok := f.Push(sampleAt(5000, true)) // outlier glint
	if !ok {
		t.Fatal("expected known output")
	}
	if mm != 1200 {
		t.Errorf("median = %v, want 1200 (outlier must not dominate)", mm)
	}
}

func TestFilterExcludesInvalidSamples(t *testing.T) {
	f := NewFilter(5)

	f.Push(sampleAt(900, true))
	f.Push(sampleAt(0, false))
	mm, ok := f.Push(sampleAt(0, false))
	if !ok {
		t.Fatal("expected known output while one valid sample remains in window")
	}
	if mm != 900 {
		t.Errorf("median = %v, want 900 (invalid samples are not zeros)", mm)
	}
}

func TestFilterAllInvalidIsUnknown(t *testing.T) {
	f := NewFilter(3)

	for i := 0; i < 3; i++ {
		if _, ok := f.Push(sampleAt(0, false)); ok {
			t.Fatal("expected unknown output for all-invalid window")
		}
	}
}

func TestFilterWindowIsBounded(t *testing.T) {
	f := NewFilter(3)

	// The first reading must age out after three more pushes.
	f.Push(sampleAt(100, true))
	f.Push(sampleAt(2000, true))
	f.Push(sampleAt(2000, true))
	mm, ok := f.Push(sampleAt(2000, true))
	if !ok {
		t.Fatal("expected known output")
	}
	if mm != 2000 {
		t.Errorf("median = %v, want 2000 after old sample aged out", mm)
	}
}

func TestFilterReset(t *testing.T) {
	f := NewFilter(3)
	f.Push(sampleAt(1000, true))
	f.Reset()
	if _, ok := f.Value(); ok {
		t.Error("expected unknown output after Reset")
	}
}
