package core

import "testing"

func TestErrorCategory_String(t *testing.T) {
	tests := []struct {
		category ErrorCategory
		expected string
	}{
		{ErrCategoryNone, "none"},
		{ErrCategoryValidation, "validation"},
		{ErrCategoryIO, "io"},
		{ErrCategoryImageData, "image_data"},
		{ErrCategoryComparison, "comparison"},
		{ErrCategoryCapture, "capture"},
		{ErrCategoryReport, "report"},
		{ErrorCategory(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.category.String(); got != tt.expected {
			t.Errorf("ErrorCategory(%d).String() = %q, want %q", tt.category, got, tt.expected)
		}
	}
}

func TestErrorCategory_IsFatal(t *testing.T) {
	if !ErrCategoryValidation.IsFatal() {
		t.Error("validation errors should be fatal")
	}
	for _, c := range []ErrorCategory{ErrCategoryIO, ErrCategoryImageData, ErrCategoryComparison, ErrCategoryCapture} {
		if c.IsFatal() {
			t.Errorf("%s errors should not be fatal", c)
		}
	}
}
