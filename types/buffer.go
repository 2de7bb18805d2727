package types

import (
	"encoding/hex"
	"fmt"
)

// ObjBuffer is a mutable byte buffer, the value kind produced by the
// crypto and encoding builtins (hashing, checkpoint payload staging) that
// need raw bytes without UTF-8 interpretation, distinct from ObjString.
type ObjBuffer struct {
	Bytes []byte
}

func NewBuffer(b []byte) *ObjBuffer { return &ObjBuffer{Bytes: b} }

func (b *ObjBuffer) Type() ValueType { return TBuffer }
func (b *ObjBuffer) String() string  { return fmt.Sprintf("<buffer %s>", hex.EncodeToString(b.Bytes)) }
func (b *ObjBuffer) Truthy() bool    { return len(b.Bytes) > 0 }
func (b *ObjBuffer) Equal(v Value) bool {
	o, ok := v.(*ObjBuffer)
	return ok && o == b
}

func (b *ObjBuffer) Len() int { return len(b.Bytes) }

// DeepCopy returns a buffer with its own backing array.
func (b *ObjBuffer) DeepCopy() *ObjBuffer {
	out := make([]byte, len(b.Bytes))
	copy(out, b.Bytes)
	return NewBuffer(out)
}
