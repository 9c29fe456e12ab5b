package values

// Code is a callable value: either a named sub or a closure created from
// an AnonSub. Unit is an interface{} deliberately — it holds a
// *compiler.CodeUnit, but values cannot import compiler without creating
// an import cycle (compiler already imports values for the constant
// pool), so the indirection is resolved by a type assertion at the call
// site in package vm, which imports both.
type Code struct {
	Name     string
	Unit     interface{}
	Captured []Value // closure-captured slots, in declaration order; a slot holds whatever sigil the free variable had (*Scalar, *Array, *Hash)
}

func NewCode(name string, unit interface{}, captured []Value) *Code {
	return &Code{Name: name, Unit: unit, Captured: captured}
}

func (*Code) Kind() Kind { return KindCode }

func (c *Code) ToScalar() *Scalar { return NewRef(c) }

func (c *Code) ToList() []*Scalar { return []*Scalar{NewRef(c)} }

func (c *Code) IsDefined() bool { return true }

func (c *Code) ToBool() bool { return true }
