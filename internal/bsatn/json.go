package bsatn

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/cuemby/spacetime/internal/catalog"
)

// ToJSON renders a value as JSON mirroring the structure BSATN encodes, for the JSON wire format
// spec.md §4.9 requires alongside the binary one. Sum values render as a
// single-key object keyed by variant name (falling back to the tag index
// when the type carries no variant names); products render as a JSON array
// of field values in column order, matching how the teacher's FSM commands
// serialize positional tuples rather than named structs.
func ToJSON(ty catalog.AlgebraicType, v catalog.AlgebraicValue) (json.RawMessage, error) {
	val, err := toJSONValue(ty, v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(val)
}

func toJSONValue(ty catalog.AlgebraicType, v catalog.AlgebraicValue) (interface{}, error) {
	switch ty.Kind {
	case catalog.KindBool:
		return v.Bool, nil
	case catalog.KindI8, catalog.KindI16, catalog.KindI32, catalog.KindI64:
		return v.I64, nil
	case catalog.KindU8, catalog.KindU16, catalog.KindU32, catalog.KindU64:
		return v.U64, nil
	case catalog.KindI128, catalog.KindU128, catalog.KindI256, catalog.KindU256:
		return base64.StdEncoding.EncodeToString(v.Big), nil
	case catalog.KindF32:
		return v.F32, nil
	case catalog.KindF64:
		return v.F64, nil
	case catalog.KindString:
		return v.Str, nil
	case catalog.KindSum:
		if int(v.Tag) >= len(ty.Elements) {
			return nil, &TypeError{Detail: fmt.Sprintf("sum tag %d out of range", v.Tag)}
		}
		variant := ty.Elements[v.Tag]
		payload := catalog.AlgebraicValue{}
		if v.Payload != nil {
			payload = *v.Payload
		}
		inner, err := toJSONValue(variant.Type, payload)
		if err != nil {
			return nil, err
		}
		key := variant.Name
		if key == "" {
			key = fmt.Sprintf("%d", v.Tag)
		}
		return map[string]interface{}{key: inner}, nil
	case catalog.KindProduct:
		out := make([]interface{}, len(ty.Elements))
		for i, f := range ty.Elements {
			val, err := toJSONValue(f.Type, v.Elements[i])
			if err != nil {
				return nil, err
			}
			out[i] = val
		}
		return out, nil
	case catalog.KindArray:
		out := make([]interface{}, len(v.Elements))
		for i, e := range v.Elements {
			val, err := toJSONValue(ty.Elem, e)
			if err != nil {
				return nil, err
			}
			out[i] = val
		}
		return out, nil
	case catalog.KindMap:
		out := make([]interface{}, len(v.Entries))
		for i, entry := range v.Entries {
			key, err := toJSONValue(ty.Key, entry.Key)
			if err != nil {
				return nil, err
			}
			val, err := toJSONValue(ty.Elem, entry.Value)
			if err != nil {
				return nil, err
			}
			out[i] = []interface{}{key, val}
		}
		return out, nil
	default:
		return nil, &TypeError{Detail: fmt.Sprintf("unsupported type kind %s", ty.Kind)}
	}
}

// FromJSON is the inverse of ToJSON, used when decoding OneOffQuery results
// and CallReducer arguments submitted over the JSON wire variant.
func FromJSON(ty catalog.AlgebraicType, raw json.RawMessage) (catalog.AlgebraicValue, error) {
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return catalog.AlgebraicValue{}, err
	}
	return fromJSONValue(ty, generic)
}

func fromJSONValue(ty catalog.AlgebraicType, generic interface{}) (catalog.AlgebraicValue, error) {
	switch ty.Kind {
	case catalog.KindBool:
		b, ok := generic.(bool)
		if !ok {
			return catalog.AlgebraicValue{}, &TypeError{Detail: "expected bool"}
		}
		return catalog.BoolValue(b), nil
	case catalog.KindI8, catalog.KindI16, catalog.KindI32, catalog.KindI64:
		n, ok := generic.(float64)
		if !ok {
			return catalog.AlgebraicValue{}, &TypeError{Detail: "expected number"}
		}
		return catalog.I64Value(int64(n)), nil
	case catalog.KindU8, catalog.KindU16, catalog.KindU32, catalog.KindU64:
		n, ok := generic.(float64)
		if !ok {
			return catalog.AlgebraicValue{}, &TypeError{Detail: "expected number"}
		}
		return catalog.U64Value(uint64(n)), nil
	case catalog.KindI128, catalog.KindU128, catalog.KindI256, catalog.KindU256:
		s, ok := generic.(string)
		if !ok {
			return catalog.AlgebraicValue{}, &TypeError{Detail: "expected base64 string"}
		}
		big, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return catalog.AlgebraicValue{}, &TypeError{Detail: "invalid base64: " + err.Error()}
		}
		return catalog.AlgebraicValue{Kind: ty.Kind, Big: big}, nil
	case catalog.KindF32:
		n, ok := generic.(float64)
		if !ok {
			return catalog.AlgebraicValue{}, &TypeError{Detail: "expected number"}
		}
		return catalog.AlgebraicValue{Kind: catalog.KindF32, F32: float32(n)}, nil
	case catalog.KindF64:
		n, ok := generic.(float64)
		if !ok {
			return catalog.AlgebraicValue{}, &TypeError{Detail: "expected number"}
		}
		return catalog.AlgebraicValue{Kind: catalog.KindF64, F64: n}, nil
	case catalog.KindString:
		s, ok := generic.(string)
		if !ok {
			return catalog.AlgebraicValue{}, &TypeError{Detail: "expected string"}
		}
		return catalog.StringValue(s), nil
	case catalog.KindSum:
		obj, ok := generic.(map[string]interface{})
		if !ok || len(obj) != 1 {
			return catalog.AlgebraicValue{}, &TypeError{Detail: "expected single-key object for sum value"}
		}
		var key string
		var inner interface{}
		for k, v := range obj {
			key, inner = k, v
		}
		for tag, variant := range ty.Elements {
			if variant.Name == key || fmt.Sprintf("%d", tag) == key {
				payload, err := fromJSONValue(variant.Type, inner)
				if err != nil {
					return catalog.AlgebraicValue{}, err
				}
				return catalog.AlgebraicValue{Kind: catalog.KindSum, Tag: uint8(tag), Payload: &payload}, nil
			}
		}
		return catalog.AlgebraicValue{}, &TypeError{Detail: "unknown sum variant " + key}
	case catalog.KindProduct:
		arr, ok := generic.([]interface{})
		if !ok || len(arr) != len(ty.Elements) {
			return catalog.AlgebraicValue{}, &TypeError{Detail: fmt.Sprintf("expected %d-element array", len(ty.Elements))}
		}
		elems := make([]catalog.AlgebraicValue, len(ty.Elements))
		for i, f := range ty.Elements {
			v, err := fromJSONValue(f.Type, arr[i])
			if err != nil {
				return catalog.AlgebraicValue{}, err
			}
			elems[i] = v
		}
		return catalog.AlgebraicValue{Kind: catalog.KindProduct, Elements: elems}, nil
	case catalog.KindArray:
		arr, ok := generic.([]interface{})
		if !ok {
			return catalog.AlgebraicValue{}, &TypeError{Detail: "expected array"}
		}
		elems := make([]catalog.AlgebraicValue, len(arr))
		for i, e := range arr {
			v, err := fromJSONValue(ty.Elem, e)
			if err != nil {
				return catalog.AlgebraicValue{}, err
			}
			elems[i] = v
		}
		return catalog.AlgebraicValue{Kind: catalog.KindArray, Elements: elems}, nil
	case catalog.KindMap:
		arr, ok := generic.([]interface{})
		if !ok {
			return catalog.AlgebraicValue{}, &TypeError{Detail: "expected array of [key, value] pairs"}
		}
		entries := make([]catalog.MapEntry, len(arr))
		for i, e := range arr {
			pair, ok := e.([]interface{})
			if !ok || len(pair) != 2 {
				return catalog.AlgebraicValue{}, &TypeError{Detail: "expected [key, value] pair"}
			}
			key, err := fromJSONValue(ty.Key, pair[0])
			if err != nil {
				return catalog.AlgebraicValue{}, err
			}
			val, err := fromJSONValue(ty.Elem, pair[1])
			if err != nil {
				return catalog.AlgebraicValue{}, err
			}
			entries[i] = catalog.MapEntry{Key: key, Value: val}
		}
		return catalog.AlgebraicValue{Kind: catalog.KindMap, Entries: entries}, nil
	default:
		return catalog.AlgebraicValue{}, &TypeError{Detail: fmt.Sprintf("unsupported type kind %s", ty.Kind)}
	}
}
