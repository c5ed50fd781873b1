package serializer

import "errors"

// Error kinds surfaced by Encode/Decode. Callers compare with errors.Is;
// Decode wraps ErrUnknownSchemaVersion and ErrCorruptRecord with extra
// context via fmt.Errorf("...: %w", ...).
var (
	// ErrUnsupportedValueType is returned by Encode/FromJSONAny when the
	// input is neither a string nor a structured container (e.g. a bare
	// number, bool, or null).
	ErrUnsupportedValueType = errors.New("serializer: unsupported value type")

	// ErrUnknownSchemaVersion is returned by Decode when the leading
	// version byte does not match any known schema.
	ErrUnknownSchemaVersion = errors.New("serializer: unknown schema version")

	// ErrCorruptRecord is returned by Decode when the byte slice is
	// truncated partway through a field.
	ErrCorruptRecord = errors.New("serializer: corrupt record")
)
