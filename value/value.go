// Package value defines the closed union of shapes a cache entry can hold:
// null, booleans, integers, floats, text, raw bytes, ordered sequences,
// tuples, sets and string-keyed maps, nested to any depth.
//
// Values are immutable once constructed. Sets are kept deduplicated in a
// canonical internal order, so Equal and serialization are insensitive to
// the order elements were supplied in.
package value

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Kind discriminates the variants of Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindText
	KindBytes
	KindSeq
	KindTuple
	KindSet
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindText:
		return "text"
	case KindBytes:
		return "bytes"
	case KindSeq:
		return "seq"
	case KindTuple:
		return "tuple"
	case KindSet:
		return "set"
	case KindMap:
		return "map"
	default:
		return "unknown"
	}
}

// Value is a tagged union. The zero value is Null.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	raw  []byte
	list []Value // Seq, Tuple and Set (canonical order for Set)
	m    map[string]Value
}

// Null returns the null value.
func Null() Value { return Value{} }

func Bool(b bool) Value   { return Value{kind: KindBool, b: b} }
func Int(i int64) Value   { return Value{kind: KindInt, i: i} }
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }
func Text(s string) Value { return Value{kind: KindText, s: s} }

// Bytes copies b into a new bytes value.
func Bytes(b []byte) Value {
	cp := make([]byte, len(b))
	copy(cp, b)
	return Value{kind: KindBytes, raw: cp}
}

// SeqOf builds an ordered sequence from items.
func SeqOf(items ...Value) Value {
	return Value{kind: KindSeq, list: cloneList(items)}
}

// TupleOf builds a tuple. Tuples round-trip as a kind distinct from Seq.
func TupleOf(items ...Value) Value {
	return Value{kind: KindTuple, list: cloneList(items)}
}

// SetOf builds an unordered set. Duplicates (by Equal) are dropped and the
// elements are stored in a canonical order.
func SetOf(items ...Value) Value {
	canon := make([]Value, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		k := canonKey(it)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		canon = append(canon, it)
	}
	sort.Slice(canon, func(i, j int) bool {
		return canonKey(canon[i]) < canonKey(canon[j])
	})
	return Value{kind: KindSet, list: canon}
}

// MapOf builds a string-keyed map value. The input map is copied.
func MapOf(m map[string]Value) Value {
	cp := make(map[string]Value, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return Value{kind: KindMap, m: cp}
}

func cloneList(items []Value) []Value {
	cp := make([]Value, len(items))
	copy(cp, items)
	return cp
}

// Kind reports which variant v holds.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is the null value.
func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) AsBool() (bool, bool) {
	return v.b, v.kind == KindBool
}

func (v Value) AsInt() (int64, bool) {
	return v.i, v.kind == KindInt
}

func (v Value) AsFloat() (float64, bool) {
	return v.f, v.kind == KindFloat
}

func (v Value) AsText() (string, bool) {
	return v.s, v.kind == KindText
}

// AsBytes returns a copy of the byte content.
func (v Value) AsBytes() ([]byte, bool) {
	if v.kind != KindBytes {
		return nil, false
	}
	cp := make([]byte, len(v.raw))
	copy(cp, v.raw)
	return cp, true
}

// Items returns a copy of the elements of a Seq, Tuple or Set.
func (v Value) Items() ([]Value, bool) {
	switch v.kind {
	case KindSeq, KindTuple, KindSet:
		return cloneList(v.list), true
	}
	return nil, false
}

// AsMap returns a copy of the entries of a Map.
func (v Value) AsMap() (map[string]Value, bool) {
	if v.kind != KindMap {
		return nil, false
	}
	cp := make(map[string]Value, len(v.m))
	for k, e := range v.m {
		cp[k] = e
	}
	return cp, true
}

// Len returns the element count for container kinds and the byte/rune-less
// lengths for Bytes and Text; -1 for scalar kinds.
func (v Value) Len() int {
	switch v.kind {
	case KindSeq, KindTuple, KindSet:
		return len(v.list)
	case KindMap:
		return len(v.m)
	case KindBytes:
		return len(v.raw)
	case KindText:
		return len(v.s)
	}
	return -1
}

// Equal reports deep equality. Int and Float never compare equal to each
// other; Seq and Tuple of the same elements never compare equal to each
// other. Set comparison ignores element order by construction.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindInt:
		return v.i == o.i
	case KindFloat:
		return v.f == o.f
	case KindText:
		return v.s == o.s
	case KindBytes:
		return bytes.Equal(v.raw, o.raw)
	case KindSeq, KindTuple, KindSet:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(o.list[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.m) != len(o.m) {
			return false
		}
		for k, e := range v.m {
			oe, ok := o.m[k]
			if !ok || !e.Equal(oe) {
				return false
			}
		}
		return true
	}
	return false
}

// String renders a debug representation; not a serialization format.
func (v Value) String() string {
	var sb strings.Builder
	writeCanon(&sb, v)
	return sb.String()
}

// canonKey renders a stable, injective textual key for v. Used to order and
// deduplicate set members.
func canonKey(v Value) string {
	var sb strings.Builder
	writeCanon(&sb, v)
	return sb.String()
}

func writeCanon(sb *strings.Builder, v Value) {
	switch v.kind {
	case KindNull:
		sb.WriteString("~")
	case KindBool:
		if v.b {
			sb.WriteString("b:1")
		} else {
			sb.WriteString("b:0")
		}
	case KindInt:
		sb.WriteString("i:")
		sb.WriteString(strconv.FormatInt(v.i, 10))
	case KindFloat:
		sb.WriteString("f:")
		sb.WriteString(strconv.FormatFloat(v.f, 'g', -1, 64))
	case KindText:
		fmt.Fprintf(sb, "t:%q", v.s)
	case KindBytes:
		fmt.Fprintf(sb, "x:%x", v.raw)
	case KindSeq, KindTuple, KindSet:
		switch v.kind {
		case KindSeq:
			sb.WriteString("l[")
		case KindTuple:
			sb.WriteString("u[")
		default:
			sb.WriteString("s[")
		}
		for i, it := range v.list {
			if i > 0 {
				sb.WriteByte(',')
			}
			writeCanon(sb, it)
		}
		sb.WriteByte(']')
	case KindMap:
		keys := make([]string, 0, len(v.m))
		for k := range v.m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteString("m{")
		for i, k := range keys {
			if i > 0 {
				sb.WriteByte(',')
			}
			fmt.Fprintf(sb, "%q:", k)
			writeCanon(sb, v.m[k])
		}
		sb.WriteByte('}')
	}
}
