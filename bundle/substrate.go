package bundle

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/unkn0wn-root/stagcache/value"
)

// The substrate tree is the same across all formats: plain JSON-native
// shapes, with containers JSON has no native spelling for tagged as
//
//	{"_t": "bytes"|"tuple"|"set", "v": ...}
//
// Byte payloads are base64 text in every substrate so the tree is
// format-independent. A user map that itself contains the tag key is
// escaped as {"_t": "map", "v": {...}}.
const tagKey = "_t"

func toTree(v value.Value) any {
	switch v.Kind() {
	case value.KindNull:
		return nil
	case value.KindBool:
		b, _ := v.AsBool()
		return b
	case value.KindInt:
		i, _ := v.AsInt()
		return i
	case value.KindFloat:
		f, _ := v.AsFloat()
		return jsonFloat(f)
	case value.KindText:
		s, _ := v.AsText()
		return s
	case value.KindBytes:
		b, _ := v.AsBytes()
		return map[string]any{tagKey: "bytes", "v": base64.StdEncoding.EncodeToString(b)}
	case value.KindSeq:
		items, _ := v.Items()
		return listTree(items)
	case value.KindTuple:
		items, _ := v.Items()
		return map[string]any{tagKey: "tuple", "v": listTree(items)}
	case value.KindSet:
		items, _ := v.Items()
		return map[string]any{tagKey: "set", "v": listTree(items)}
	case value.KindMap:
		m, _ := v.AsMap()
		out := make(map[string]any, len(m))
		for k, e := range m {
			out[k] = toTree(e)
		}
		if _, collides := m[tagKey]; collides {
			return map[string]any{tagKey: "map", "v": out}
		}
		return out
	}
	return nil
}

// jsonFloat renders with a forced decimal point so an integral float
// stays a float on decode ("2" reads back as an int, "2.0" does not).
// CBOR and msgpack encode the named type as a plain float64.
type jsonFloat float64

func (f jsonFloat) MarshalJSON() ([]byte, error) {
	s := strconv.FormatFloat(float64(f), 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return []byte(s), nil
}

func listTree(items []value.Value) []any {
	out := make([]any, len(items))
	for i, it := range items {
		out[i] = toTree(it)
	}
	return out
}

func fromTree(t any) (value.Value, error) {
	switch x := t.(type) {
	case nil:
		return value.Null(), nil
	case bool:
		return value.Bool(x), nil
	case string:
		return value.Text(x), nil
	case int:
		return value.Int(int64(x)), nil
	case int8:
		return value.Int(int64(x)), nil
	case int16:
		return value.Int(int64(x)), nil
	case int32:
		return value.Int(int64(x)), nil
	case int64:
		return value.Int(x), nil
	case uint:
		return fromUint(uint64(x))
	case uint8:
		return value.Int(int64(x)), nil
	case uint16:
		return value.Int(int64(x)), nil
	case uint32:
		return value.Int(int64(x)), nil
	case uint64:
		return fromUint(x)
	case float32:
		return value.Float(float64(x)), nil
	case float64:
		return value.Float(x), nil
	case json.Number:
		return numberToValue(x.String())
	case []any:
		items, err := fromList(x)
		if err != nil {
			return value.Null(), err
		}
		return value.SeqOf(items...), nil
	case map[string]any:
		return fromMapTree(x)
	}
	return value.Null(), fmt.Errorf("bundle: unsupported payload node %T", t)
}

func fromUint(x uint64) (value.Value, error) {
	if x > math.MaxInt64 {
		return value.Null(), fmt.Errorf("bundle: integer %d overflows", x)
	}
	return value.Int(int64(x)), nil
}

func fromList(xs []any) ([]value.Value, error) {
	items := make([]value.Value, len(xs))
	for i, e := range xs {
		v, err := fromTree(e)
		if err != nil {
			return nil, err
		}
		items[i] = v
	}
	return items, nil
}

func fromMapTree(m map[string]any) (value.Value, error) {
	if tag, ok := m[tagKey].(string); ok && len(m) == 2 {
		inner, hasV := m["v"]
		if hasV {
			switch tag {
			case "bytes":
				s, ok := inner.(string)
				if !ok {
					return value.Null(), fmt.Errorf("bundle: bytes payload is not text")
				}
				raw, err := base64.StdEncoding.DecodeString(s)
				if err != nil {
					return value.Null(), fmt.Errorf("bundle: bad bytes payload: %w", err)
				}
				return value.Bytes(raw), nil
			case "tuple", "set":
				xs, ok := inner.([]any)
				if !ok {
					return value.Null(), fmt.Errorf("bundle: %s payload is not a list", tag)
				}
				items, err := fromList(xs)
				if err != nil {
					return value.Null(), err
				}
				if tag == "tuple" {
					return value.TupleOf(items...), nil
				}
				return value.SetOf(items...), nil
			case "map":
				mm, ok := inner.(map[string]any)
				if !ok {
					return value.Null(), fmt.Errorf("bundle: map payload is not a map")
				}
				return plainMap(mm)
			}
		}
	}
	return plainMap(m)
}

func plainMap(m map[string]any) (value.Value, error) {
	out := make(map[string]value.Value, len(m))
	for k, e := range m {
		v, err := fromTree(e)
		if err != nil {
			return value.Null(), err
		}
		out[k] = v
	}
	return value.MapOf(out), nil
}

func numberToValue(s string) (value.Value, error) {
	if strings.ContainsAny(s, ".eE") {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return value.Null(), fmt.Errorf("bundle: bad number %q: %w", s, err)
		}
		return value.Float(f), nil
	}
	i, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return value.Null(), fmt.Errorf("bundle: bad number %q: %w", s, err)
	}
	return value.Int(i), nil
}

// CBOR substrate. The decode mode pins maps to map[string]any so the
// normalizer sees the same shapes as the JSON path.
var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode
)

func init() {
	var err error
	cborEnc, err = cbor.PreferredUnsortedEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	cborDec, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

func encodeCBORTree(tree any) ([]byte, error) {
	return cborEnc.Marshal(tree)
}

func decodeCBORTree(raw []byte) (any, error) {
	var t any
	if err := cborDec.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("bundle: invalid cbor payload: %w", err)
	}
	return t, nil
}

// Msgpack substrate.
func encodeMsgpackTree(tree any) ([]byte, error) {
	return msgpack.Marshal(tree)
}

func decodeMsgpackTree(raw []byte) (any, error) {
	var t any
	if err := msgpack.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("bundle: invalid msgpack payload: %w", err)
	}
	return t, nil
}
