package storage

import "bytes"

// ValueType represents the Redis data type
type ValueType int

const (
	ValueTypeNone ValueType = iota
	ValueTypeString
	ValueTypeList
)

// String returns the Redis-compatible type name
func (vt ValueType) String() string {
	switch vt {
	case ValueTypeString:
		return "string"
	case ValueTypeList:
		return "list"
	default:
		return "none"
	}
}

// Data is the payload of a Value. It is implemented only by *StringValue
// and *ListValue.
type Data interface {
	valueType() ValueType
	size() int64
}

// Value represents a stored value with metadata
type Value struct {
	Type ValueType
	Data Data
}

func newStringValue(data []byte) *Value {
	return &Value{
		Type: ValueTypeString,
		Data: &StringValue{Data: data},
	}
}

func newListValue() *Value {
	return &Value{
		Type: ValueTypeList,
		Data: &ListValue{},
	}
}

// AsString returns the string payload if the value is a string
func (v *Value) AsString() (*StringValue, bool) {
	if v.Type != ValueTypeString {
		return nil, false
	}
	s, ok := v.Data.(*StringValue)
	return s, ok
}

// AsList returns the list payload if the value is a list
func (v *Value) AsList() (*ListValue, bool) {
	if v.Type != ValueTypeList {
		return nil, false
	}
	l, ok := v.Data.(*ListValue)
	return l, ok
}

// StringValue represents a string value
type StringValue struct {
	Data []byte
}

func (s *StringValue) valueType() ValueType { return ValueTypeString }
func (s *StringValue) size() int64          { return int64(len(s.Data)) }

// ListValue represents a list value.
//
// Elements are kept tail first so that pushing at the head is an append.
// Index 0 of every exported accessor is the head of the list.
type ListValue struct {
	elems [][]byte
}

// NewListValue builds a list from elements given head first
func NewListValue(elements ...[]byte) *ListValue {
	l := &ListValue{elems: make([][]byte, len(elements))}
	for i, e := range elements {
		l.elems[len(elements)-1-i] = append([]byte(nil), e...)
	}
	return l
}

func (l *ListValue) valueType() ValueType { return ValueTypeList }

func (l *ListValue) size() int64 {
	size := int64(0)
	for _, e := range l.elems {
		size += int64(len(e)) + 24 // slice header
	}
	return size
}

// Len returns the number of elements
func (l *ListValue) Len() int64 {
	return int64(len(l.elems))
}

// Index returns the element at head-relative position i
func (l *ListValue) Index(i int64) []byte {
	return l.elems[int64(len(l.elems))-1-i]
}

// PushHead prepends an element
func (l *ListValue) PushHead(element []byte) {
	l.elems = append(l.elems, element)
}

// Elements returns a head-first copy of all elements
func (l *ListValue) Elements() [][]byte {
	return l.Slice(0, l.Len()-1)
}

// Slice returns copies of the elements between the head-relative positions
// start and stop, both inclusive. Callers pass already resolved indices.
func (l *ListValue) Slice(start, stop int64) [][]byte {
	if l.Len() == 0 || start > stop {
		return [][]byte{}
	}
	result := make([][]byte, 0, stop-start+1)
	for i := start; i <= stop; i++ {
		result = append(result, append([]byte(nil), l.Index(i)...))
	}
	return result
}

// Remove deletes elements equal to value following LREM rules: count > 0
// removes up to count matches from the head, count < 0 up to -count matches
// from the tail, and count == 0 every match. It returns the number removed.
func (l *ListValue) Remove(count int64, value []byte) int64 {
	limit := count
	if limit < 0 {
		limit = -limit
	}

	n := len(l.elems)
	drop := make([]bool, n)
	removed := int64(0)

	for step := 0; step < n; step++ {
		// Head is at the end of elems.
		i := n - 1 - step
		if count < 0 {
			i = step
		}
		if limit != 0 && removed == limit {
			break
		}
		if bytes.Equal(l.elems[i], value) {
			drop[i] = true
			removed++
		}
	}

	if removed == 0 {
		return 0
	}

	kept := l.elems[:0]
	for i, e := range l.elems {
		if !drop[i] {
			kept = append(kept, e)
		}
	}
	for i := len(kept); i < n; i++ {
		l.elems[i] = nil
	}
	l.elems = kept
	return removed
}

// KeyInfo provides metadata about a key
type KeyInfo struct {
	Key  string
	Type ValueType
	Size int64 // Size in bytes
}
