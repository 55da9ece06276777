package vm

import "github.com/vexlang/vex/internal/value"

// Instance and object ids live in disjoint numeric ranges so a with()
// target can be classified by value alone.
const (
	FirstInstanceID int64 = 100000000
	FirstObjectID   int64 = 300000000
)

// Instance is a live runtime object: named variables plus the id of
// the object spec it was created from.
type Instance struct {
	ObjType   int64
	Ident     int64
	Variables map[string]value.Value
}

// ObjSpec is an object template: a set of named member functions.
// Immutable after OBJDEF registers it.
type ObjSpec struct {
	Ident     int64
	Name      string
	Functions map[string]*value.FuncSpec
}

// Global is the interpreter-owned mutable world state: all instances
// and objects, plus the id counters.
type Global struct {
	NextInstanceID  int64
	NextObjectID    int64
	Instances       map[int64]*Instance
	InstancesByType map[int64][]int64
	ObjectNames     map[string]int64
	Objects         map[int64]*ObjSpec
}

func newGlobal() *Global {
	return &Global{
		NextInstanceID:  FirstInstanceID,
		NextObjectID:    FirstObjectID,
		Instances:       map[int64]*Instance{},
		InstancesByType: map[int64][]int64{},
		ObjectNames:     map[string]int64{},
		Objects:         map[int64]*ObjSpec{},
	}
}
