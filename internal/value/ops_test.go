package value

import (
	"math"
	"testing"
)

func TestBinaryOpArithmetic(t *testing.T) {
	testCases := []struct {
		name  string
		op    byte
		left  Value
		right Value
		want  Value
	}{
		{"add", OpAdd, Number(2), Number(3), Number(5)},
		{"add_text", OpAdd, Text("foo"), Text("bar"), Text("foobar")},
		{"sub", OpSubtract, Number(10), Number(3), Number(7)},
		{"mul", OpMultiply, Number(4), Number(2.5), Number(10)},
		{"mul_text", OpMultiply, Text("ab"), Number(3), Text("ababab")},
		{"mul_text_floor", OpMultiply, Text("ab"), Number(2.9), Text("abab")},
		{"div", OpDivide, Number(9), Number(2), Number(4.5)},
		{"mod", OpModulo, Number(7), Number(3), Number(1)},
		{"mod_negative_dividend", OpModulo, Number(-7), Number(3), Number(2)},
		{"eq", OpEqual, Number(1), Number(1), Number(1)},
		{"eq_mixed_kinds", OpEqual, Number(1), Text("1"), Number(0)},
		{"neq_text", OpNotEqual, Text("a"), Text("b"), Number(1)},
		{"lt", OpLess, Number(1), Number(2), Number(1)},
		{"lt_text", OpLess, Text("a"), Text("b"), Number(1)},
		{"and", OpAnd, Number(1), Number(0), Number(0)},
		{"or", OpOr, Number(0.6), Number(0), Number(1)},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := BinaryOp(tc.op, tc.left, tc.right)
			if err != nil {
				t.Fatalf("BinaryOp: %v", err)
			}
			if !Equal(got, tc.want) {
				t.Errorf("got %s, want %s", got.Inspect(), tc.want.Inspect())
			}
		})
	}
}

func TestBinaryOpTypeMismatch(t *testing.T) {
	testCases := []struct {
		name  string
		op    byte
		left  Value
		right Value
	}{
		{"add_number_text", OpAdd, Number(1), Text("a")},
		{"sub_text", OpSubtract, Text("a"), Text("b")},
		{"and_text", OpAnd, Text("a"), Number(1)},
		{"mod_text", OpModulo, Number(1), Text("b")},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := BinaryOp(tc.op, tc.left, tc.right); err == nil {
				t.Error("expected a type mismatch error")
			}
		})
	}
}

// The modulo result is never negative: non-negative for b > 0, and
// likewise after the negate-both rule for b < 0.
func TestModuloSign(t *testing.T) {
	for _, a := range []float64{-7, -3.5, -1, 0, 1, 3.5, 7, 10} {
		for _, b := range []float64{-4, -2.5, -1, 1, 2.5, 4} {
			got, err := BinaryOp(OpModulo, Number(a), Number(b))
			if err != nil {
				t.Fatalf("mod(%v, %v): %v", a, b, err)
			}
			r := float64(got.(Number))
			if b > 0 && r < 0 {
				t.Errorf("mod(%v, %v) = %v, want non-negative", a, b, r)
			}
			if b < 0 && r < 0 {
				t.Errorf("mod(%v, %v) = %v, want non-negative", a, b, r)
			}
		}
	}
}

func TestUnaryOp(t *testing.T) {
	testCases := []struct {
		name string
		op   byte
		in   Value
		want Value
	}{
		{"negate", OpNegate, Number(5), Number(-5)},
		{"positive", OpPositive, Number(-5), Number(-5)},
		{"not_truthy", OpNot, Number(1), Number(0)},
		{"not_falsy", OpNot, Number(0.4), Number(1)},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := UnaryOp(tc.op, tc.in)
			if err != nil {
				t.Fatalf("UnaryOp: %v", err)
			}
			if !Equal(got, tc.want) {
				t.Errorf("got %s, want %s", got.Inspect(), tc.want.Inspect())
			}
		})
	}
	if _, err := UnaryOp(OpNegate, Text("a")); err == nil {
		t.Error("expected a type mismatch error for -\"a\"")
	}
}

// Numbers are truthy from 0.5 upward; 0.4 is falsy by design.
func TestTruthy(t *testing.T) {
	testCases := []struct {
		name string
		in   Value
		want bool
	}{
		{"zero", Number(0), false},
		{"almost", Number(0.4), false},
		{"half", Number(0.5), true},
		{"one", Number(1), true},
		{"negative", Number(-1), false},
		{"empty_text", Text(""), false},
		{"text", Text("x"), true},
		{"empty_array", NewArray(), false},
		{"array", NewArray(Number(1)), true},
		{"func", &Func{Internal: true, InternalName: "print"}, true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Truthy(tc.in); got != tc.want {
				t.Errorf("Truthy(%s) = %v, want %v", tc.in.Inspect(), got, tc.want)
			}
		})
	}
}

func TestEqualStructural(t *testing.T) {
	a := NewArray(Number(1), Text("x"))
	b := NewArray(Number(1), Text("x"))
	if !Equal(a, b) {
		t.Error("equal arrays compared unequal")
	}
	b.Elems[1] = Text("y")
	if Equal(a, b) {
		t.Error("different arrays compared equal")
	}

	d1 := NewDict()
	d1.Set(TextKey("k"), Number(1))
	d2 := NewDict()
	d2.Set(TextKey("k"), Number(1))
	if !Equal(d1, d2) {
		t.Error("equal dicts compared unequal")
	}

	spec := &FuncSpec{}
	f1 := &Func{UserDef: spec}
	f2 := &Func{UserDef: spec}
	f3 := &Func{UserDef: &FuncSpec{}}
	if !Equal(f1, f2) {
		t.Error("same funcspec compared unequal")
	}
	if Equal(f1, f3) {
		t.Error("distinct funcspecs compared equal")
	}
}

func TestCopyIsDeep(t *testing.T) {
	inner := NewArray(Number(1))
	outer := NewArray(inner, Number(2))
	copied := Copy(outer).(*Array)
	copied.Elems[0].(*Array).Elems[0] = Number(9)
	if float64(inner.Elems[0].(Number)) != 1 {
		t.Error("mutating a copy changed the original")
	}
}

func TestFormat(t *testing.T) {
	d := NewDict()
	d.Set(TextKey("k"), Text("v"))
	testCases := []struct {
		name string
		in   Value
		want string
	}{
		{"integer", Number(7), "7"},
		{"trimmed", Number(2.5), "2.5"},
		{"negative", Number(-0.25), "-0.25"},
		{"text_raw", Text("hi"), "hi"},
		{"array", NewArray(Number(1), Text("a")), `[1, "a"]`},
		{"dict", d, `{k: "v"}`},
		{"nested", NewArray(NewArray(Number(1))), "[[1]]"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Format(tc.in)
			if err != nil {
				t.Fatalf("Format: %v", err)
			}
			if got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
	if _, err := Format(&Func{Internal: true, InternalName: "print"}); err == nil {
		t.Error("expected an error formatting a function")
	}
}

func TestDictNaNKey(t *testing.T) {
	d := NewDict()
	nan := math.NaN()
	d.Set(NumberKey(nan), Text("here"))
	got, ok := d.Get(NumberKey(nan))
	if !ok {
		t.Fatal("NaN key did not find itself")
	}
	if got.(Text) != "here" {
		t.Errorf("got %s", got.Inspect())
	}

	// a different NaN bit pattern is a different key
	other := math.Float64frombits(math.Float64bits(nan) ^ 1)
	if _, ok := d.Get(NumberKey(other)); ok {
		t.Error("distinct NaN encodings should be distinct keys")
	}
}

func TestDictBasics(t *testing.T) {
	d := NewDict()
	d.Set(TextKey("a"), Number(1))
	d.Set(NumberKey(2), Number(2))
	d.Set(TextKey("a"), Number(3)) // overwrite
	if d.Len() != 2 {
		t.Fatalf("Len = %d, want 2", d.Len())
	}
	v, ok := d.Get(TextKey("a"))
	if !ok || float64(v.(Number)) != 3 {
		t.Errorf("Get(a) = %v, %v", v, ok)
	}
	keys := d.Keys()
	if len(keys) != 2 {
		t.Fatalf("Keys() returned %d keys", len(keys))
	}
}
