package core

// ErrorCategory classifies the type of error for reporting
type ErrorCategory int

const (
	ErrCategoryNone       ErrorCategory = iota // No error
	ErrCategoryValidation                      // Bad configuration or screenshot name
	ErrCategoryIO                              // Directory or file operation failed
	ErrCategoryImageData                       // Unrecognized image source
	ErrCategoryComparison                      // Image could not be decoded or compared
	ErrCategoryCapture                         // Browser capture failed
	ErrCategoryReport                          // Report tree misuse
)

// String returns the string representation of ErrorCategory
func (c ErrorCategory) String() string {
	switch c {
	case ErrCategoryNone:
		return "none"
	case ErrCategoryValidation:
		return "validation"
	case ErrCategoryIO:
		return "io"
	case ErrCategoryImageData:
		return "image_data"
	case ErrCategoryComparison:
		return "comparison"
	case ErrCategoryCapture:
		return "capture"
	case ErrCategoryReport:
		return "report"
	default:
		return "unknown"
	}
}

// IsFatal returns true if errors of this category abort the run instead of failing a spec.
func (c ErrorCategory) IsFatal() bool {
	return c == ErrCategoryValidation
}
