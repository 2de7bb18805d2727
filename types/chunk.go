package types

import (
	"fmt"

	"golang.org/x/exp/slices"
)

// Chunk is a compiled function body: a flat byte-code stream, its constant
// pool, and a line table kept parallel to Code for runtime error reporting.
type Chunk struct {
	Code      []byte
	Constants []Value
	Lines     []int
}

func NewChunk() *Chunk {
	return &Chunk{}
}

// Write appends a byte with its source line and returns the offset it was
// written at.
func (c *Chunk) Write(b byte, line int) int {
	c.Code = append(c.Code, b)
	c.Lines = append(c.Lines, line)
	return len(c.Code) - 1
}

func (c *Chunk) WriteOp(op OpCode, line int) int {
	return c.Write(byte(op), line)
}

// WriteShort writes a 16-bit big-endian operand.
func (c *Chunk) WriteShort(v uint16, line int) {
	c.Write(byte(v>>8), line)
	c.Write(byte(v), line)
}

// PatchShort overwrites the 16-bit operand starting at offset, used for
// forward-jump backpatching once the jump target is known.
func (c *Chunk) PatchShort(offset int, v uint16) {
	c.Code[offset] = byte(v >> 8)
	c.Code[offset+1] = byte(v)
}

// AddConstant interns v into the constant pool and returns its index,
// reusing an existing slot when an equal constant was already emitted
// (spec.md §4.1's compiler promotes to wide-constant opcodes rather than
// fail on overflow, so keeping the pool small matters more here than in
// a fixed 256-slot scheme).
func (c *Chunk) AddConstant(v Value) int {
	if i := slices.IndexFunc(c.Constants, func(existing Value) bool { return existing.Equal(v) }); i != -1 {
		return i
	}
	c.Constants = append(c.Constants, v)
	return len(c.Constants) - 1
}

// ReadShort reads a 16-bit big-endian operand at offset.
func (c *Chunk) ReadShort(offset int) uint16 {
	return uint16(c.Code[offset])<<8 | uint16(c.Code[offset+1])
}

func (c *Chunk) Len() int { return len(c.Code) }

// Disassemble renders a human-readable instruction listing.
func (c *Chunk) Disassemble(name string) string {
	out := fmt.Sprintf("== %s ==\n", name)
	offset := 0
	for offset < len(c.Code) {
		out += c.disassembleInstruction(offset)
		offset = c.nextOffset(offset)
	}
	return out
}

func (c *Chunk) nextOffset(offset int) int {
	op := OpCode(c.Code[offset])
	switch op {
	case OP_CONSTANT, OP_GET_LOCAL, OP_SET_LOCAL, OP_GET_GLOBAL, OP_DEFINE_GLOBAL,
		OP_SET_GLOBAL, OP_GET_PROPERTY, OP_SET_PROPERTY, OP_CALL, OP_ARRAY, OP_OBJECT,
		OP_GET_UPVALUE, OP_SET_UPVALUE, OP_VALIDATE_SAFE, OP_IMPORT, OP_CLASS, OP_METHOD:
		return offset + 2
	case OP_CONSTANT_LONG, OP_JUMP, OP_JUMP_IF_FALSE, OP_LOOP, OP_TRY,
		OP_SET_LOCAL_TYPED, OP_SET_GLOBAL_TYPED, OP_DEFINE_TYPED_GLOBAL:
		return offset + 3
	case OP_CLOSURE:
		// 1 byte function constant index, then 2 bytes per upvalue the
		// function declares (is-local flag, index).
		fnIdx := int(c.Code[offset+1])
		n := 0
		if fnIdx < len(c.Constants) {
			if fn, ok := c.Constants[fnIdx].(*Function); ok {
				n = len(fn.UpvalueInfo)
			}
		}
		return offset + 2 + n*2
	default:
		return offset + 1
	}
}

func (c *Chunk) disassembleInstruction(offset int) string {
	op := OpCode(c.Code[offset])
	line := c.Lines[offset]
	return fmt.Sprintf("%04d %4d %s\n", offset, line, op)
}
