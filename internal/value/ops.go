package value

import (
	"math"
	"strings"

	"github.com/vexlang/vex/internal/diagnostics"
)

// Binary operator subcodes as embedded in BINOP and BINSTATE
// instructions.
const (
	OpAnd          = 0x10
	OpOr           = 0x11
	OpEqual        = 0x20
	OpNotEqual     = 0x21
	OpGreaterEqual = 0x22
	OpLessEqual    = 0x23
	OpGreater      = 0x24
	OpLess         = 0x25
	OpAdd          = 0x30
	OpSubtract     = 0x31
	OpMultiply     = 0x40
	OpDivide       = 0x41
	OpModulo       = 0x42
)

// Unary operator subcodes for UNOP.
const (
	OpNegate   = 0x10
	OpPositive = 0x11
	OpNot      = 0x20
)

// BinOpText maps a source operator to its subcode. Used by the compiler
// for both BINOP and compound BINSTATE.
var BinOpText = map[string]byte{
	"&&": OpAnd, "and": OpAnd,
	"||": OpOr, "or": OpOr,
	"==": OpEqual,
	"!=": OpNotEqual,
	">=": OpGreaterEqual,
	"<=": OpLessEqual,
	">":  OpGreater,
	"<":  OpLess,
	"+":  OpAdd,
	"-":  OpSubtract,
	"*":  OpMultiply,
	"/":  OpDivide,
	"%":  OpModulo,
}

// UnOpText maps a source unary operator to its subcode.
var UnOpText = map[string]byte{
	"-": OpNegate,
	"+": OpPositive,
	"!": OpNot,
}

func typeErr(msg string) error {
	return diagnostics.New(diagnostics.PhaseRuntime, diagnostics.ErrR006, 0, 0, msg)
}

func boolNum(b bool) Number {
	if b {
		return 1
	}
	return 0
}

// BinaryOp applies the binary operator identified by subcode op.
func BinaryOp(op byte, left, right Value) (Value, error) {
	switch op {
	case OpAnd:
		l, lok := left.(Number)
		r, rok := right.(Number)
		if !lok || !rok {
			return nil, typeErr("types incompatible with logical and")
		}
		return boolNum(Truthy(l) && Truthy(r)), nil
	case OpOr:
		l, lok := left.(Number)
		r, rok := right.(Number)
		if !lok || !rok {
			return nil, typeErr("types incompatible with logical or")
		}
		return boolNum(Truthy(l) || Truthy(r)), nil
	case OpEqual:
		return boolNum(Equal(left, right)), nil
	case OpNotEqual:
		return boolNum(!Equal(left, right)), nil
	case OpGreaterEqual, OpLessEqual, OpGreater, OpLess:
		return compare(op, left, right)
	case OpAdd:
		if l, ok := left.(Number); ok {
			if r, ok := right.(Number); ok {
				return l + r, nil
			}
		}
		if l, ok := left.(Text); ok {
			if r, ok := right.(Text); ok {
				return l + r, nil
			}
		}
		return nil, typeErr("types incompatible with addition")
	case OpSubtract:
		l, r, err := numberPair(left, right, "subtraction")
		if err != nil {
			return nil, err
		}
		return l - r, nil
	case OpMultiply:
		if l, ok := left.(Number); ok {
			if r, ok := right.(Number); ok {
				return l * r, nil
			}
		}
		if l, ok := left.(Text); ok {
			if r, ok := right.(Number); ok {
				n := int(math.Floor(float64(r)))
				if n < 0 {
					n = 0
				}
				return Text(strings.Repeat(string(l), n)), nil
			}
		}
		return nil, typeErr("types incompatible with multiplication")
	case OpDivide:
		l, r, err := numberPair(left, right, "division")
		if err != nil {
			return nil, err
		}
		return l / r, nil
	case OpModulo:
		l, r, err := numberPair(left, right, "modulo")
		if err != nil {
			return nil, err
		}
		return Number(modulo(float64(l), float64(r))), nil
	default:
		return nil, typeErr("unknown binary operation")
	}
}

func numberPair(left, right Value, opName string) (Number, Number, error) {
	l, lok := left.(Number)
	r, rok := right.(Number)
	if !lok || !rok {
		return 0, 0, typeErr("types incompatible with " + opName)
	}
	return l, r, nil
}

// modulo: a negative divisor negates both operands first, then
// ((a%b)+b)%b, so the result is non-negative for a positive effective
// divisor.
func modulo(a, b float64) float64 {
	if b < 0 {
		a, b = -a, -b
	}
	return math.Mod(math.Mod(a, b)+b, b)
}

// compare handles the ordering operators. Ordering exists for Number
// and Text pairs only; on unordered pairs < and > yield 0 while <= and
// >= fall back to equality.
func compare(op byte, left, right Value) (Value, error) {
	if l, ok := left.(Number); ok {
		if r, ok := right.(Number); ok {
			switch op {
			case OpGreaterEqual:
				return boolNum(l >= r), nil
			case OpLessEqual:
				return boolNum(l <= r), nil
			case OpGreater:
				return boolNum(l > r), nil
			case OpLess:
				return boolNum(l < r), nil
			}
		}
	}
	if l, ok := left.(Text); ok {
		if r, ok := right.(Text); ok {
			switch op {
			case OpGreaterEqual:
				return boolNum(l >= r), nil
			case OpLessEqual:
				return boolNum(l <= r), nil
			case OpGreater:
				return boolNum(l > r), nil
			case OpLess:
				return boolNum(l < r), nil
			}
		}
	}
	switch op {
	case OpGreater, OpLess:
		return Number(0), nil
	default:
		return boolNum(Equal(left, right)), nil
	}
}

// Equal implements ==: numeric and textual equality, structural
// equality for Array and Dict, FuncSpec identity for Func. Values of
// different kinds are never equal.
func Equal(left, right Value) bool {
	switch l := left.(type) {
	case Number:
		r, ok := right.(Number)
		return ok && l == r
	case Text:
		r, ok := right.(Text)
		return ok && l == r
	case *Array:
		r, ok := right.(*Array)
		if !ok || len(l.Elems) != len(r.Elems) {
			return false
		}
		for i := range l.Elems {
			if !Equal(l.Elems[i], r.Elems[i]) {
				return false
			}
		}
		return true
	case *Dict:
		r, ok := right.(*Dict)
		if !ok || l.Len() != r.Len() {
			return false
		}
		same := true
		l.ForEach(func(k HashableKey, v Value) bool {
			other, found := r.Get(k)
			if !found || !Equal(v, other) {
				same = false
				return false
			}
			return true
		})
		return same
	case *Func:
		r, ok := right.(*Func)
		if !ok {
			return false
		}
		if l.Internal || r.Internal {
			return l.Internal && r.Internal && l.InternalName == r.InternalName
		}
		return l.UserDef == r.UserDef && l.BoundInstID == r.BoundInstID
	default:
		return false
	}
}

// UnaryOp applies the unary operator identified by subcode op.
func UnaryOp(op byte, v Value) (Value, error) {
	n, ok := v.(Number)
	if !ok {
		return nil, typeErr("type incompatible with unary operator")
	}
	switch op {
	case OpNegate:
		return -n, nil
	case OpPositive:
		return n, nil
	case OpNot:
		return boolNum(!Truthy(n)), nil
	default:
		return nil, typeErr("unknown unary operation")
	}
}
