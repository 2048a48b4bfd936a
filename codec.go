package recache

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// KeyCodec converts between a cache key and the string keyspace a remote
// backend addresses, per spec.md §6 ("Key conversion is via a
// caller-supplied string-to-key converter").
type KeyCodec[K comparable] interface {
	Encode(k K) (string, error)
	Decode(s string) (K, error)
}

// ValueCodec serializes cache values for a remote backend. The default is
// JSON, matching spec.md §6 ("JSON in the reference").
type ValueCodec[V any] interface {
	Encode(v V) ([]byte, error)
	Decode(b []byte) (V, error)
}

// JSONValueCodec is the default ValueCodec, via encoding/json.
type JSONValueCodec[V any] struct{}

// Encode marshals v to JSON.
func (JSONValueCodec[V]) Encode(v V) ([]byte, error) {
	return json.Marshal(v)
}

// Decode unmarshals JSON into a V.
func (JSONValueCodec[V]) Decode(b []byte) (V, error) {
	var v V

	err := json.Unmarshal(b, &v)

	return v, err
}

// StringKeyCodec is the identity KeyCodec for string keys.
type StringKeyCodec struct{}

// Encode returns k unchanged.
func (StringKeyCodec) Encode(k string) (string, error) { return k, nil }

// Decode returns s unchanged.
func (StringKeyCodec) Decode(s string) (string, error) { return s, nil }

// signedInt is the set of fixed-width signed integer key types spec.md §6
// names as supported remote-store keys.
type signedInt interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64
}

// unsignedInt is the unsigned counterpart.
type unsignedInt interface {
	~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

// IntKeyCodec converts a fixed-width signed integer key to/from its decimal
// string form.
type IntKeyCodec[K signedInt] struct{}

// Encode formats k in base 10.
func (IntKeyCodec[K]) Encode(k K) (string, error) {
	return strconv.FormatInt(int64(k), 10), nil
}

// Decode parses s as a base-10 signed integer.
func (IntKeyCodec[K]) Decode(s string) (K, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return K(0), fmt.Errorf("recache: decode int key %q: %w", s, err)
	}

	return K(n), nil
}

// UintKeyCodec converts a fixed-width unsigned integer key to/from its
// decimal string form.
type UintKeyCodec[K unsignedInt] struct{}

// Encode formats k in base 10.
func (UintKeyCodec[K]) Encode(k K) (string, error) {
	return strconv.FormatUint(uint64(k), 10), nil
}

// Decode parses s as a base-10 unsigned integer.
func (UintKeyCodec[K]) Decode(s string) (K, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return K(0), fmt.Errorf("recache: decode uint key %q: %w", s, err)
	}

	return K(n), nil
}

// Float64KeyCodec converts a float64 key to/from its shortest round-trip
// decimal string form.
type Float64KeyCodec struct{}

// Encode formats k with the minimal digits that round-trip.
func (Float64KeyCodec) Encode(k float64) (string, error) {
	return strconv.FormatFloat(k, 'g', -1, 64), nil
}

// Decode parses s as a float64.
func (Float64KeyCodec) Decode(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}

// Float32KeyCodec converts a float32 key to/from its shortest round-trip
// decimal string form.
type Float32KeyCodec struct{}

// Encode formats k with the minimal digits that round-trip.
func (Float32KeyCodec) Encode(k float32) (string, error) {
	return strconv.FormatFloat(float64(k), 'g', -1, 32), nil
}

// Decode parses s as a float32.
func (Float32KeyCodec) Decode(s string) (float32, error) {
	v, err := strconv.ParseFloat(s, 32)
	return float32(v), err
}

// TimeKeyCodec converts a time.Time key to/from RFC3339Nano.
type TimeKeyCodec struct{}

// Encode formats k as RFC3339Nano.
func (TimeKeyCodec) Encode(k time.Time) (string, error) {
	return k.Format(time.RFC3339Nano), nil
}

// Decode parses s as RFC3339Nano.
func (TimeKeyCodec) Decode(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// DurationKeyCodec converts a time.Duration key to/from its string form.
type DurationKeyCodec struct{}

// Encode formats k via time.Duration.String.
func (DurationKeyCodec) Encode(k time.Duration) (string, error) {
	return k.String(), nil
}

// Decode parses s via time.ParseDuration.
func (DurationKeyCodec) Decode(s string) (time.Duration, error) {
	return time.ParseDuration(s)
}
