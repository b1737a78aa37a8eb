package graph

import (
	"reflect"
	"slices"
)

// Field declares how one field of the state S is combined when a partial
// update is merged into it.
type Field[S any] interface {
	// Name identifies the field in logs and diagrams.
	Name() string
	merge(dst, partial *S)
	clip(s *S)
}

// Schema is the set of merge rules for a state type.
// Fields of S that are not declared are never merged.
type Schema[S any] struct {
	fields []Field[S]
}

// NewSchema declares the merge rules of S.
func NewSchema[S any](fields ...Field[S]) *Schema[S] {
	return &Schema[S]{fields: fields}
}

// Fields returns the declared field names in declaration order.
func (s *Schema[S]) Fields() []string {
	names := make([]string, 0, len(s.fields))
	for _, f := range s.fields {
		names = append(names, f.Name())
	}
	return names
}

// Merge folds partial into dst using each field's rule.
func (s *Schema[S]) Merge(dst *S, partial S) {
	for _, f := range s.fields {
		f.merge(dst, &partial)
	}
}

// prepare drops spare capacity of sequence fields so a node appending to the
// state it received never writes into memory shared with a sibling node.
func (s *Schema[S]) prepare(state *S) {
	for _, f := range s.fields {
		f.clip(state)
	}
}

type appendField[S any, E any] struct {
	name string
	get  func(*S) *[]E
}

// Append declares an ordered sequence combined by concatenation.
// A partial with an empty sequence leaves the field untouched.
func Append[S any, E any](name string, get func(*S) *[]E) Field[S] {
	return &appendField[S, E]{name: name, get: get}
}

func (f *appendField[S, E]) Name() string { return f.name }

func (f *appendField[S, E]) merge(dst, partial *S) {
	src := *f.get(partial)
	if len(src) == 0 {
		return
	}
	d := f.get(dst)
	*d = slices.Clip(append(*d, src...))
}

func (f *appendField[S, E]) clip(s *S) {
	d := f.get(s)
	*d = slices.Clip(*d)
}

type replaceField[S any, V any] struct {
	name string
	get  func(*S) *V
}

// Replace declares a last-write-wins field. The zero value of V means
// "not written" and leaves the current value in place; a non-nil empty
// slice or map counts as a write.
func Replace[S any, V any](name string, get func(*S) *V) Field[S] {
	return &replaceField[S, V]{name: name, get: get}
}

func (f *replaceField[S, V]) Name() string { return f.name }

func (f *replaceField[S, V]) merge(dst, partial *S) {
	src := f.get(partial)
	if reflect.ValueOf(src).Elem().IsZero() {
		return
	}
	*f.get(dst) = *src
}

func (f *replaceField[S, V]) clip(*S) {}

