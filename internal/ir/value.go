package ir

import (
	"fmt"
	"slices"
	"unicode/utf16"
)

// IRValue is a sealed interface over the payload value types.
// Only IRString, IRInt, IRBool, IRArray and IRObject implement it.
// There is no float and no null: payloads must hash identically everywhere.
type IRValue interface {
	irValue()
}

// IRString is a string payload value.
type IRString string

func (IRString) irValue() {}

// IRInt is an integer payload value. Always int64.
type IRInt int64

func (IRInt) irValue() {}

// IRBool is a boolean payload value.
type IRBool bool

func (IRBool) irValue() {}

// IRArray is an ordered list of values.
type IRArray []IRValue

func (IRArray) irValue() {}

// IRObject maps string keys to values.
// Use SortedKeys() for deterministic iteration.
type IRObject map[string]IRValue

func (IRObject) irValue() {}

// IRPair is a key/value pair for typed IRObject construction.
type IRPair struct {
	Key   string
	Value IRValue
}

// O is shorthand for IRPair.
// Example: Object(O("profiles", Strings("a2dp", "hfp")), O("timeout_ms", IRInt(500)))
func O(key string, value IRValue) IRPair {
	return IRPair{Key: key, Value: value}
}

// Object builds an IRObject from pairs.
func Object(pairs ...IRPair) IRObject {
	obj := make(IRObject, len(pairs))
	for _, p := range pairs {
		obj[p.Key] = p.Value
	}
	return obj
}

// Strings builds an IRArray of IRString.
func Strings(ss ...string) IRArray {
	arr := make(IRArray, len(ss))
	for i, s := range ss {
		arr[i] = IRString(s)
	}
	return arr
}

// SortedKeys returns keys in RFC 8785 order (UTF-16 code units).
func (obj IRObject) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

// String returns the string at key, or "" when absent or not a string.
func (obj IRObject) String(key string) string {
	if s, ok := obj[key].(IRString); ok {
		return string(s)
	}
	return ""
}

// Int returns the integer at key and whether it was present.
func (obj IRObject) Int(key string) (int64, bool) {
	n, ok := obj[key].(IRInt)
	return int64(n), ok
}

// Bool returns the boolean at key, false when absent.
func (obj IRObject) Bool(key string) bool {
	b, _ := obj[key].(IRBool)
	return bool(b)
}

// StringList returns the string elements of the array at key.
// Non-string elements are skipped.
func (obj IRObject) StringList(key string) []string {
	arr, _ := obj[key].(IRArray)
	out := make([]string, 0, len(arr))
	for _, v := range arr {
		if s, ok := v.(IRString); ok {
			out = append(out, string(s))
		}
	}
	return out
}

// compareKeysRFC8785 orders strings by UTF-16 code units.
// Go's native string comparison is by UTF-8 bytes, which differs for
// characters outside the BMP.
func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	return slices.Compare(a16, b16)
}

// Clone deep-copies v. Rules hand payloads to the engine through Clone so a
// predicate may reuse its own storage on the next evaluation.
func Clone(v IRValue) IRValue {
	switch val := v.(type) {
	case IRArray:
		out := make(IRArray, len(val))
		for i, e := range val {
			out[i] = Clone(e)
		}
		return out
	case IRObject:
		return CloneObject(val)
	default:
		return v
	}
}

// CloneObject deep-copies obj. A nil object stays nil.
func CloneObject(obj IRObject) IRObject {
	if obj == nil {
		return nil
	}
	out := make(IRObject, len(obj))
	for k, e := range obj {
		out[k] = Clone(e)
	}
	return out
}

// FromAny converts decoded YAML/JSON data into an IRValue.
// Floats with an integral value are accepted as IRInt; others are rejected.
func FromAny(v any) (IRValue, error) {
	switch val := v.(type) {
	case nil:
		return nil, fmt.Errorf("null is forbidden")
	case IRValue:
		return val, nil
	case string:
		return IRString(val), nil
	case int:
		return IRInt(val), nil
	case int64:
		return IRInt(val), nil
	case uint64:
		return IRInt(int64(val)), nil
	case float64:
		if val != float64(int64(val)) {
			return nil, fmt.Errorf("floats are forbidden: %v", val)
		}
		return IRInt(int64(val)), nil
	case bool:
		return IRBool(val), nil
	case []string:
		return Strings(val...), nil
	case []any:
		arr := make(IRArray, len(val))
		for i, elem := range val {
			e, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr[i] = e
		}
		return arr, nil
	case map[string]any:
		obj := make(IRObject, len(val))
		for k, elem := range val {
			e, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			obj[k] = e
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}
