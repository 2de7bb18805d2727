package types

import (
	"strings"

	"github.com/dolthub/swiss"
)

// ObjMap is the heap map object: an insertion-ordered string→Value map
// (spec.md §3). The hot lookup path is backed by a swiss-table hash map
// (github.com/dolthub/swiss, as pinned by mna-nenuphar's go.mod via the
// github.com/mna/swiss replace) rather than a Go builtin map, so that
// property/global lookups in the hot VM loop avoid Go's map-growth
// amortization hiccups; insertion order is tracked separately in a key
// slice so Keys()/iteration see insertion order.
type ObjMap struct {
	table *swiss.Map[string, Value]
	order []string
}

func NewEmptyMap() *ObjMap {
	return &ObjMap{table: swiss.NewMap[string, Value](8)}
}

func NewMap(keys []string, vals []Value) *ObjMap {
	m := NewEmptyMap()
	for i, k := range keys {
		m.Set(k, vals[i])
	}
	return m
}

func (m *ObjMap) Type() ValueType { return TMap }

func (m *ObjMap) String() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, k := range m.order {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('"')
		b.WriteString(k)
		b.WriteString("\": ")
		v, _ := m.table.Get(k)
		b.WriteString(v.String())
	}
	b.WriteByte('}')
	return b.String()
}

func (m *ObjMap) Truthy() bool { return m.Len() > 0 }

func (m *ObjMap) Equal(v Value) bool {
	o, ok := v.(*ObjMap)
	return ok && o == m
}

func (m *ObjMap) Len() int { return len(m.order) }

// Get returns the value for key and whether it was present.
func (m *ObjMap) Get(key string) (Value, bool) {
	return m.table.Get(key)
}

// Set inserts or updates key. New keys are appended to the order slice.
func (m *ObjMap) Set(key string, val Value) {
	if _, existed := m.table.Get(key); !existed {
		m.order = append(m.order, key)
	}
	m.table.Put(key, val)
}

// Delete removes key, preserving the order of remaining keys.
func (m *ObjMap) Delete(key string) bool {
	if _, ok := m.table.Get(key); !ok {
		return false
	}
	m.table.Delete(key)
	for i, k := range m.order {
		if k == key {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return true
}

// Keys returns keys in insertion order.
func (m *ObjMap) Keys() []string {
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// DeepCopy returns a new map with each value deep-copied, preserving
// insertion order. Used by the scheduler's send() data discipline.
func (m *ObjMap) DeepCopy() *ObjMap {
	out := NewEmptyMap()
	for _, k := range m.order {
		v, _ := m.table.Get(k)
		out.Set(k, DeepCopyValue(v))
	}
	return out
}
