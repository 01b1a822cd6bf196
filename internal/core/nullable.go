package core

import (
	"bytes"
	"encoding/json"
)

// Nullable distinguishes an absent patch field from one explicitly set to
// null. Set is true whenever the field appeared; Value is nil for null.
type Nullable[T any] struct {
	Set   bool
	Value *T
}

// Set returns a present field holding v.
func Set[T any](v T) Nullable[T] {
	return Nullable[T]{Set: true, Value: &v}
}

// Clear returns a present field holding null.
func Clear[T any]() Nullable[T] {
	return Nullable[T]{Set: true}
}

// UnmarshalJSON records presence; a JSON null clears the value.
func (n *Nullable[T]) UnmarshalJSON(data []byte) error {
	n.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		n.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	n.Value = &v
	return nil
}

// MarshalJSON writes the value or null.
func (n Nullable[T]) MarshalJSON() ([]byte, error) {
	if n.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*n.Value)
}

// orZero returns the held value or the zero value when cleared.
func (n Nullable[T]) orZero() T {
	var zero T
	if n.Value == nil {
		return zero
	}
	return *n.Value
}

// apply writes the field into dst when present.
func (n Nullable[T]) apply(dst *T) {
	if n.Set {
		*dst = n.orZero()
	}
}
