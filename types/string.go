package types

import (
	"sync"
	"unicode/utf8"
)

// ObjString is the heap string object. Two interned strings with equal
// bytes share the same *ObjString, so equality is pointer/identity
// equality after interning (spec.md §3). The FNV-1a hash is cached at
// creation for use as a map key by callers that want string-keyed
// identity maps without rehashing.
type ObjString struct {
	bytes []byte
	hash  uint64
}

func (s *ObjString) Type() ValueType { return TString }
func (s *ObjString) String() string  { return string(s.bytes) }
func (s *ObjString) Truthy() bool    { return len(s.bytes) > 0 }

// Equal compares by identity after interning: two ObjStrings with equal
// content are always the same pointer, so pointer comparison suffices.
// An ObjString built without Intern still compares correctly by byte
// content as a fallback.
func (s *ObjString) Equal(v Value) bool {
	o, ok := v.(*ObjString)
	if !ok {
		return false
	}
	if o == s {
		return true
	}
	return s.hash == o.hash && string(s.bytes) == string(o.bytes)
}

// Bytes returns the raw UTF-8 bytes.
func (s *ObjString) Bytes() []byte { return s.bytes }

// ByteLen is the length in bytes (what spec.md §9 calls the "byte-length").
func (s *ObjString) ByteLen() int { return len(s.bytes) }

// CharLen is the length in Unicode code points (the "char-length").
func (s *ObjString) CharLen() int { return utf8.RuneCount(s.bytes) }

// Hash returns the cached FNV-1a hash.
func (s *ObjString) Hash() uint64 { return s.hash }

func fnv1a(b []byte) uint64 {
	const offset64 = 14695981039346656037
	const prime64 = 1099511628211
	h := uint64(offset64)
	for _, c := range b {
		h ^= uint64(c)
		h *= prime64
	}
	return h
}

// internTable is the process-wide string intern table keyed by content.
// Resolves the Open Question in spec.md §9: unify on interned ObjString.
var internTable = struct {
	mu sync.RWMutex
	m  map[string]*ObjString
}{m: make(map[string]*ObjString, 256)}

// Intern returns the canonical *ObjString for the given bytes, creating
// and caching one the first time a given content is seen.
func Intern(s string) *ObjString {
	internTable.mu.RLock()
	if existing, ok := internTable.m[s]; ok {
		internTable.mu.RUnlock()
		return existing
	}
	internTable.mu.RUnlock()

	internTable.mu.Lock()
	defer internTable.mu.Unlock()
	if existing, ok := internTable.m[s]; ok {
		return existing
	}
	obj := &ObjString{bytes: []byte(s), hash: fnv1a([]byte(s))}
	internTable.m[s] = obj
	return obj
}

// NewString interns s and returns it as a Value. All string literals
// emitted by the compiler and all runtime string construction goes
// through this constructor.
func NewString(s string) Value { return Intern(s) }

// InternTableSize reports the number of distinct strings interned, used
// by the gc/metrics builtins.
func InternTableSize() int {
	internTable.mu.RLock()
	defer internTable.mu.RUnlock()
	return len(internTable.m)
}
