package runtime

import "github.com/go-perl/plvm/values"

// ErrorState owns `$@`, the package-global exception scalar every
// `eval` clears on success and populates on failure (spec §4.4).
type ErrorState struct {
	scalar *values.Scalar
}

func NewErrorState() *ErrorState {
	return &ErrorState{scalar: values.NewUndef()}
}

func (e *ErrorState) Scalar() *values.Scalar { return e.scalar }

func (e *ErrorState) Clear() { e.scalar.Set(values.NewString("")) }

func (e *ErrorState) SetValue(v *values.Scalar) { e.scalar.Set(v) }
