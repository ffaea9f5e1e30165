package models

import (
	"bytes"
	"encoding/json"
)

// Shape tells which variant a Result holds.
type Shape int

const (
	// ShapeList is a flat ordered sequence.
	ShapeList Shape = iota
	// ShapeGrouped maps one dimension's keys to sequences.
	ShapeGrouped
	// ShapeMatrix maps outer keys to inner keys to sequences.
	ShapeMatrix
)

func (s Shape) String() string {
	switch s {
	case ShapeList:
		return "list"
	case ShapeGrouped:
		return "grouped"
	case ShapeMatrix:
		return "matrix"
	}
	return "unknown"
}

// Result is a query answer in one of three shapes. Keys keep the canonical taxonomy order so
// the JSON form is stable.
type Result[T any] struct {
	Shape     Shape
	Items     []T
	Keys      []string
	InnerKeys []string
	Groups    map[string][]T
	Cells     map[string]map[string][]T
}

// NewList wraps a flat sequence.
func NewList[T any](items []T) Result[T] {
	if items == nil {
		items = []T{}
	}
	return Result[T]{Shape: ShapeList, Items: items}
}

// NewGrouped wraps a one-level mapping; keys fixes the iteration order.
func NewGrouped[T any](keys []string, groups map[string][]T) Result[T] {
	return Result[T]{Shape: ShapeGrouped, Keys: keys, Groups: groups}
}

// NewMatrix wraps a two-level mapping.
func NewMatrix[T any](outer, inner []string, cells map[string]map[string][]T) Result[T] {
	return Result[T]{Shape: ShapeMatrix, Keys: outer, InnerKeys: inner, Cells: cells}
}

// Group returns the sequence stored under key in a grouped result.
func (r Result[T]) Group(key string) []T { return r.Groups[key] }

// Cell returns one cell of a matrix result.
func (r Result[T]) Cell(outer, inner string) []T { return r.Cells[outer][inner] }

// MarshalJSON emits a JSON array, a one-level object or a two-level object.
func (r Result[T]) MarshalJSON() ([]byte, error) {
	switch r.Shape {
	case ShapeGrouped:
		var buf bytes.Buffer
		if err := writeObject(&buf, r.Keys, func(k string) (any, error) { return nonNil(r.Groups[k]), nil }); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case ShapeMatrix:
		var buf bytes.Buffer
		err := writeObject(&buf, r.Keys, func(outer string) (any, error) {
			var inner bytes.Buffer
			if err := writeObject(&inner, r.InnerKeys, func(k string) (any, error) {
				return nonNil(r.Cells[outer][k]), nil
			}); err != nil {
				return nil, err
			}
			return json.RawMessage(inner.Bytes()), nil
		})
		if err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return json.Marshal(nonNil(r.Items))
	}
}

func writeObject(buf *bytes.Buffer, keys []string, value func(string) (any, error)) error {
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		v, err := value(k)
		if err != nil {
			return err
		}
		vb, err := json.Marshal(v)
		if err != nil {
			return err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return nil
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
