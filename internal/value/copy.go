package value

// Copy returns a deep copy of v. Arrays and dicts have value
// semantics in the language: every evaluation and every store moves a
// private copy, never an alias. Numbers, texts, and funcs are
// immutable, so they pass through unchanged; the code buffer inside a
// FuncSpec stays shared.
func Copy(v Value) Value {
	switch val := v.(type) {
	case *Array:
		elems := make([]Value, len(val.Elems))
		for i, elem := range val.Elems {
			elems[i] = Copy(elem)
		}
		return &Array{Elems: elems}
	case *Dict:
		out := NewDict()
		val.ForEach(func(k HashableKey, elem Value) bool {
			out.Set(k, Copy(elem))
			return true
		})
		return out
	default:
		return v
	}
}
