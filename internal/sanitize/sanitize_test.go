package sanitize

import (
	"math"
	"testing"
)

func TestNumericOrZeroNeverReturnsNaN(t *testing.T) {
	var nilString *string
	junk := "abc"
	inputs := []any{nil, "", "   ", "abc", "12abc", math.NaN(), math.Inf(1), math.Inf(-1), nilString, &junk, struct{}{}}
	for _, in := range inputs {
		got := NumericOrZero(in)
		if got != 0 {
			t.Fatalf("NumericOrZero(%#v) = %v, want 0", in, got)
		}
	}
}

func TestNumericOrZeroPassesNumbers(t *testing.T) {
	price := " 45.99 "
	cases := map[any]float64{
		"12.5":   12.5,
		7:        7,
		int64(3): 3,
		2.25:     2.25,
	}
	for in, want := range cases {
		if got := NumericOrZero(in); got != want {
			t.Fatalf("NumericOrZero(%#v) = %v, want %v", in, got, want)
		}
	}
	if got := NumericOrZero(&price); got != 45.99 {
		t.Fatalf("expected 45.99 from pointer, got %v", got)
	}
}

func TestNullableString(t *testing.T) {
	if NullableString("   ") != nil {
		t.Fatal("blank string must become nil")
	}
	got := NullableString("  Caracas ")
	if got == nil || *got != "Caracas" {
		t.Fatalf("expected trimmed value, got %v", got)
	}
}

func TestIsNumeric(t *testing.T) {
	if IsNumeric("") || IsNumeric("NaN") || IsNumeric("x1") {
		t.Fatal("expected non-numeric inputs to be rejected")
	}
	if !IsNumeric(" 100.50 ") {
		t.Fatal("expected 100.50 to be numeric")
	}
}
