// Package serializer encodes and decodes the self-describing binary
// record format stored in a partition's cold log. It is pure and
// stateless: given a logical Value it produces bytes, and given bytes it
// reconstructs the tagged Value, with no knowledge of partitions, hot
// storage, or the network.
package serializer

import (
	"encoding/json"
	"fmt"
)

// Kind tags which schema version a Value was built from or decodes to.
type Kind int

const (
	// KindString is schema V1: a plain UTF-8 string.
	KindString Kind = iota
	// KindTimestamped is schema V2: a {data, timestamp} record.
	KindTimestamped
	// KindStructured is schema V3: an arbitrary JSON-shaped container.
	KindStructured
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindTimestamped:
		return "timestamped"
	case KindStructured:
		return "structured"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Value is the logical value stored for a key, independent of its wire
// encoding. Exactly one of the fields below is meaningful, selected by
// Kind.
type Value struct {
	Kind Kind

	Str string // valid when Kind == KindString

	Data      string // valid when Kind == KindTimestamped
	Timestamp uint64 // valid when Kind == KindTimestamped

	Structured any // valid when Kind == KindStructured; JSON-decoded tree
}

// NewString builds a V1 string value.
func NewString(s string) Value {
	return Value{Kind: KindString, Str: s}
}

// NewTimestamped builds a V2 {data, timestamp} value.
func NewTimestamped(data string, timestamp uint64) Value {
	return Value{Kind: KindTimestamped, Data: data, Timestamp: timestamp}
}

// NewStructured builds a V3 arbitrary-structure value. v must be a
// JSON-marshalable tree (typically the result of json.Unmarshal into
// `any`, i.e. map[string]any, []any, or a scalar).
func NewStructured(v any) Value {
	return Value{Kind: KindStructured, Structured: v}
}

// FromJSONAny classifies an arbitrary JSON-decoded value (as produced by
// json.Unmarshal into `any`) into the Value it would be encoded as. This
// is the "encoder selection priority" from the wire protocol: strings
// become V1, objects with exactly {data: string, timestamp: uint} become
// V2, every other object or array becomes V3, and anything else
// (numbers, booleans, null) is rejected.
func FromJSONAny(v any) (Value, error) {
	switch t := v.(type) {
	case string:
		return NewString(t), nil
	case map[string]any:
		if data, ts, ok := asTimestamped(t); ok {
			return NewTimestamped(data, ts), nil
		}
		return NewStructured(t), nil
	case []any:
		return NewStructured(t), nil
	default:
		return Value{}, fmt.Errorf("%w: %T", ErrUnsupportedValueType, v)
	}
}

// asTimestamped reports whether obj is exactly a {"data": string,
// "timestamp": non-negative integer} record, per the V2 selection rule.
func asTimestamped(obj map[string]any) (data string, timestamp uint64, ok bool) {
	if len(obj) != 2 {
		return "", 0, false
	}
	rawData, hasData := obj["data"]
	rawTS, hasTS := obj["timestamp"]
	if !hasData || !hasTS {
		return "", 0, false
	}
	s, isStr := rawData.(string)
	if !isStr {
		return "", 0, false
	}
	n, isNum := rawTS.(float64)
	if !isNum || n < 0 || n != float64(uint64(n)) {
		return "", 0, false
	}
	return s, uint64(n), true
}

// ToJSON renders the logical value as the JSON text sent back over the
// wire for GET replies: a V1 string value is a quoted JSON string, a V2
// value is a {"data":...,"timestamp":...} object, and a V3 value is its
// structured tree re-marshaled directly.
func (v Value) ToJSON() ([]byte, error) {
	switch v.Kind {
	case KindString:
		return json.Marshal(v.Str)
	case KindTimestamped:
		return json.Marshal(map[string]any{
			"data":      v.Data,
			"timestamp": v.Timestamp,
		})
	case KindStructured:
		return json.Marshal(v.Structured)
	default:
		return nil, fmt.Errorf("serializer: %w: %s", ErrUnsupportedValueType, v.Kind)
	}
}
