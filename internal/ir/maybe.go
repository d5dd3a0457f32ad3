package ir

import (
	"bytes"
	"encoding/json"
)

type maybeState uint8

const (
	undefined maybeState = iota
	null
	some
)

// Maybe is a tri-state optional for request fields:
// omitted (leave unchanged), explicit null (clear) or a value (set).
//
// The zero value is omitted. Use the `omitzero` JSON option so omitted
// fields stay omitted on output.
type Maybe[T any] struct {
	state maybeState
	value T
}

// Some wraps a present value.
func Some[T any](v T) Maybe[T] { return Maybe[T]{state: some, value: v} }

// Null returns an explicit null.
func Null[T any]() Maybe[T] { return Maybe[T]{state: null} }

// Undefined returns an omitted value.
func Undefined[T any]() Maybe[T] { return Maybe[T]{} }

func (m Maybe[T]) IsUndefined() bool { return m.state == undefined }
func (m Maybe[T]) IsNull() bool      { return m.state == null }
func (m Maybe[T]) IsSome() bool      { return m.state == some }

// IsZero reports omitted; used by encoding/json's omitzero.
func (m Maybe[T]) IsZero() bool { return m.state == undefined }

// Get returns the value and whether one is present.
func (m Maybe[T]) Get() (T, bool) {
	return m.value, m.state == some
}

// Ptr returns the value for create semantics: omitted and null both mean nil.
func (m Maybe[T]) Ptr() *T {
	if m.state != some {
		return nil
	}
	v := m.value
	return &v
}

// Apply returns the field value after an update: omitted keeps prev,
// null clears it, a value replaces it.
func (m Maybe[T]) Apply(prev *T) *T {
	switch m.state {
	case null:
		return nil
	case some:
		v := m.value
		return &v
	default:
		return prev
	}
}

func (m Maybe[T]) MarshalJSON() ([]byte, error) {
	if m.state != some {
		return []byte("null"), nil
	}
	return json.Marshal(m.value)
}

// UnmarshalJSON is only invoked for fields present in the input, so a missing
// field remains omitted.
func (m *Maybe[T]) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		var zero T
		m.state, m.value = null, zero
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	m.state, m.value = some, v
	return nil
}
