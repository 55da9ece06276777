package value

import (
	"encoding/binary"
	"math"
	"strings"

	art "github.com/plar/go-adaptive-radix-tree"
)

// HashableKey is a value usable as a Dict key: a Number or a Text.
// Numbers key by their raw 64-bit encoding, so distinct NaN bit
// patterns are distinct keys and a single NaN equals itself.
type HashableKey interface {
	// Value converts the key back to an ordinary runtime value.
	Value() Value
	encode() art.Key
}

// NumberKey is a numeric dict key.
type NumberKey float64

func (k NumberKey) Value() Value { return Number(k) }

func (k NumberKey) encode() art.Key {
	buf := make([]byte, 9)
	buf[0] = keyTagNumber
	binary.BigEndian.PutUint64(buf[1:], math.Float64bits(float64(k)))
	return buf
}

// TextKey is a string dict key.
type TextKey string

func (k TextKey) Value() Value { return Text(k) }

func (k TextKey) encode() art.Key {
	buf := make([]byte, 1+len(k))
	buf[0] = keyTagText
	copy(buf[1:], k)
	return buf
}

const (
	keyTagNumber = 0x01
	keyTagText   = 0x02
)

// KeyOf converts a runtime value to a dict key, or reports that the
// value's type cannot key a dict.
func KeyOf(v Value) (HashableKey, bool) {
	switch val := v.(type) {
	case Number:
		return NumberKey(val), true
	case Text:
		return TextKey(val), true
	default:
		return nil, false
	}
}

func decodeKey(raw art.Key) HashableKey {
	if len(raw) == 0 {
		return TextKey("")
	}
	if raw[0] == keyTagNumber && len(raw) == 9 {
		return NumberKey(math.Float64frombits(binary.BigEndian.Uint64(raw[1:])))
	}
	return TextKey(raw[1:])
}

// Dict is the runtime mapping type, backed by an adaptive radix tree
// keyed on the encoded form of each HashableKey. The tree gives a
// stable (byte-ordered) enumeration; scripts must still treat key
// order as unspecified.
type Dict struct {
	tree art.Tree
}

func NewDict() *Dict {
	return &Dict{tree: art.New()}
}

func (*Dict) Kind() Kind { return KindDict }

func (d *Dict) Inspect() string {
	var b strings.Builder
	b.WriteString("{")
	first := true
	d.ForEach(func(k HashableKey, v Value) bool {
		if !first {
			b.WriteString(", ")
		}
		first = false
		b.WriteString(inspectElement(k.Value()))
		b.WriteString(": ")
		b.WriteString(inspectElement(v))
		return true
	})
	b.WriteString("}")
	return b.String()
}

func (d *Dict) Set(k HashableKey, v Value) {
	d.tree.Insert(k.encode(), v)
}

func (d *Dict) Get(k HashableKey) (Value, bool) {
	v, ok := d.tree.Search(k.encode())
	if !ok {
		return nil, false
	}
	return v.(Value), true
}

func (d *Dict) Len() int {
	return d.tree.Size()
}

// ForEach visits every entry; the callback returns false to stop.
func (d *Dict) ForEach(fn func(HashableKey, Value) bool) {
	d.tree.ForEach(func(node art.Node) bool {
		return fn(decodeKey(node.Key()), node.Value().(Value))
	})
}

// Keys returns every key in enumeration order.
func (d *Dict) Keys() []HashableKey {
	out := make([]HashableKey, 0, d.Len())
	d.ForEach(func(k HashableKey, _ Value) bool {
		out = append(out, k)
		return true
	})
	return out
}
