package partition

import "github.com/mrfiwd/tieredkv/internal/serializer"

// keyValue pairs a key with its value, used when snapshotting the hot
// buffer for a flush.
type keyValue struct {
	key   string
	value serializer.Value
}

// orderedValues is a key->Value map that remembers first-insertion
// order: putting an existing key updates its value in place without
// moving its position. Flush batches are written to the log in this
// order.
type orderedValues struct {
	order []string
	vals  map[string]serializer.Value
}

func newOrderedValues() *orderedValues {
	return &orderedValues{vals: make(map[string]serializer.Value)}
}

func (o *orderedValues) put(key string, v serializer.Value) {
	if _, exists := o.vals[key]; !exists {
		o.order = append(o.order, key)
	}
	o.vals[key] = v
}

func (o *orderedValues) get(key string) (serializer.Value, bool) {
	v, ok := o.vals[key]
	return v, ok
}

func (o *orderedValues) len() int {
	return len(o.vals)
}

func (o *orderedValues) clear() {
	o.order = nil
	o.vals = make(map[string]serializer.Value)
}

// snapshot returns the buffer's contents as an ordered slice, safe to
// read after the caller releases the partition lock.
func (o *orderedValues) snapshot() []keyValue {
	out := make([]keyValue, 0, len(o.order))
	for _, k := range o.order {
		out = append(out, keyValue{key: k, value: o.vals[k]})
	}
	return out
}

func (o *orderedValues) keysSnapshot() []string {
	out := make([]string, len(o.order))
	copy(out, o.order)
	return out
}
