package serializer

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
)

// Schema version tags. These are the first byte of every encoded value
// and the discriminant the decoder branches on.
const (
	versionString      uint8 = 1
	versionTimestamped uint8 = 2
	versionStructured  uint8 = 3
)

// Encode renders v into its self-describing byte form: a one-byte
// schema version followed by the version's payload. New schema
// versions only ever append a new branch here; existing branches never
// change shape (schema evolution is additive).
func Encode(v Value) ([]byte, error) {
	switch v.Kind {
	case KindString:
		return encodeString(v.Str), nil
	case KindTimestamped:
		return encodeTimestamped(v.Data, v.Timestamp), nil
	case KindStructured:
		return encodeStructured(v.Structured)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedValueType, v.Kind)
	}
}

func encodeString(s string) []byte {
	b := []byte(s)
	out := make([]byte, 0, 1+4+len(b))
	out = append(out, versionString)
	out = appendU32(out, uint32(len(b)))
	out = append(out, b...)
	return out
}

func encodeTimestamped(data string, ts uint64) []byte {
	b := []byte(data)
	out := make([]byte, 0, 1+4+len(b)+8)
	out = append(out, versionTimestamped)
	out = appendU32(out, uint32(len(b)))
	out = append(out, b...)
	out = appendU64(out, ts)
	return out
}

func encodeStructured(v any) ([]byte, error) {
	j, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("serializer: encode structured value: %w", err)
	}
	out := make([]byte, 0, 1+4+len(j))
	out = append(out, versionStructured)
	out = appendU32(out, uint32(len(j)))
	out = append(out, j...)
	return out, nil
}

// Decode parses the self-describing byte form produced by Encode back
// into a tagged Value. It is backward-compatible by construction: any
// version branch ever added stays readable forever. A future (unknown)
// version byte fails with ErrUnknownSchemaVersion rather than guessing.
func Decode(b []byte) (Value, error) {
	if len(b) < 1 {
		return Value{}, fmt.Errorf("%w: empty input", ErrCorruptRecord)
	}
	version := b[0]
	rest := b[1:]
	switch version {
	case versionString:
		return decodeString(rest)
	case versionTimestamped:
		return decodeTimestamped(rest)
	case versionStructured:
		return decodeStructured(rest)
	default:
		return Value{}, fmt.Errorf("%w: %d", ErrUnknownSchemaVersion, version)
	}
}

func decodeString(b []byte) (Value, error) {
	n, rest, err := readU32(b)
	if err != nil {
		return Value{}, err
	}
	if uint32(len(rest)) < n {
		return Value{}, fmt.Errorf("%w: truncated string payload", ErrCorruptRecord)
	}
	return NewString(string(rest[:n])), nil
}

func decodeTimestamped(b []byte) (Value, error) {
	n, rest, err := readU32(b)
	if err != nil {
		return Value{}, err
	}
	if uint32(len(rest)) < n+8 {
		return Value{}, fmt.Errorf("%w: truncated timestamped payload", ErrCorruptRecord)
	}
	data := string(rest[:n])
	ts := binary.BigEndian.Uint64(rest[n : n+8])
	return NewTimestamped(data, ts), nil
}

func decodeStructured(b []byte) (Value, error) {
	n, rest, err := readU32(b)
	if err != nil {
		return Value{}, err
	}
	if uint32(len(rest)) < n {
		return Value{}, fmt.Errorf("%w: truncated structured payload", ErrCorruptRecord)
	}
	var v any
	if err := json.Unmarshal(rest[:n], &v); err != nil {
		return Value{}, fmt.Errorf("%w: invalid json payload: %v", ErrCorruptRecord, err)
	}
	return NewStructured(v), nil
}

func appendU32(out []byte, n uint32) []byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], n)
	return append(out, buf[:]...)
}

func appendU64(out []byte, n uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], n)
	return append(out, buf[:]...)
}

func readU32(b []byte) (uint32, []byte, error) {
	if len(b) < 4 {
		return 0, nil, fmt.Errorf("%w: truncated length prefix", ErrCorruptRecord)
	}
	return binary.BigEndian.Uint32(b[:4]), b[4:], nil
}
