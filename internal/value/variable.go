package value

import "fmt"

// Variable is an lvalue reference: a name, an instance-qualified name,
// or an indexed path rooted at one of those. Variables only ever live
// on the operand stack, wrapped in a Var.
type Variable interface {
	variable()
	String() string
}

// DirectVar names a variable to be resolved against the scope stack,
// instance stack, older frames, object names, and internal functions,
// in that order.
type DirectVar struct {
	Name string
}

func (DirectVar) variable()        {}
func (v DirectVar) String() string { return v.Name }

// IndirectVar names a variable on a specific instance (x.y).
type IndirectVar struct {
	InstID int64
	Name   string
}

func (IndirectVar) variable()        {}
func (v IndirectVar) String() string { return fmt.Sprintf("%d.%s", v.InstID, v.Name) }

// ArrayVar is an indexed path: a base location plus the chain of index
// values to drill through.
type ArrayVar struct {
	Location IndexableBase
	Indexes  []Value
}

func (ArrayVar) variable() {}
func (v ArrayVar) String() string {
	return fmt.Sprintf("%s[%d indexes]", v.Location.String(), len(v.Indexes))
}

// WithIndex returns a copy of v with one more index appended.
func (v ArrayVar) WithIndex(idx Value) ArrayVar {
	indexes := make([]Value, len(v.Indexes)+1)
	copy(indexes, v.Indexes)
	indexes[len(v.Indexes)] = idx
	return ArrayVar{Location: v.Location, Indexes: indexes}
}

// IndexableBase is what an ArrayVar can be rooted at: a direct name, an
// instance variable, or a temporary array, dict or text value (e.g.
// f()[0]).
type IndexableBase interface {
	indexableBase()
	String() string
}

func (DirectVar) indexableBase()   {}
func (IndirectVar) indexableBase() {}

// TempValue roots an index chain at an already-evaluated container.
// Reading through it works; assigning through it is a trap, since the
// container is a temporary with no storage location.
type TempValue struct {
	Val Value
}

func (TempValue) indexableBase()   {}
func (t TempValue) String() string { return "<temporary>" }
