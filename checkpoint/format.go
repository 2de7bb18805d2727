// Package checkpoint implements the NTRN_CKPT binary serialization
// format (spec.md §6): a full snapshot of a process's reachable object
// graph plus its globals/stack/frames, written as a header, an object
// table, an environment table, per-object and per-environment payload
// sections, and finally the root tables. The write and read passes share
// a two-pass structure: object/environment headers first, then payloads,
// then the root tables.
package checkpoint

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"neutron/types"
)

func doubleBits(v float64) uint64 { return math.Float64bits(v) }
func bitsDouble(b uint64) float64 { return math.Float64frombits(b) }

// Magic is the fixed 9-byte file signature every checkpoint starts with.
const Magic = "NTRN_CKPT"

// Version is the format revision written to and checked against every
// checkpoint file.
const Version uint32 = 1

// Kind tags one row of the object table. Only the four kinds spec.md §6
// names are supported; anything else reachable from the roots (classes,
// instances, modules, native functions, bound methods) fails the save
// with a CheckpointError rather than being silently dropped.
type Kind uint8

const (
	KindString Kind = iota + 1
	KindArray
	KindMap
	KindCallable
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "OBJ_STRING"
	case KindArray:
		return "ARRAY"
	case KindMap:
		return "OBJECT"
	case KindCallable:
		return "CALLABLE"
	default:
		return "UNKNOWN"
	}
}

// valueTag marks how a tagged value is encoded inline: as an immediate
// (nil/bool/number) or as a reference into the object table.
type valueTag uint8

const (
	tagNil valueTag = iota
	tagFalse
	tagTrue
	tagNumber
	tagRef
)

func writeU32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func writeU64(w io.Writer, v uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func writeF64(w io.Writer, v float64) error {
	return writeU64(w, doubleBits(v))
}

func writeString(w io.Writer, s string) error {
	if err := writeU32(w, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func writeBytes(w io.Writer, b []byte) error {
	if err := writeU32(w, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readU32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

func readU64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

func readF64(r io.Reader) (float64, error) {
	bits, err := readU64(r)
	if err != nil {
		return 0, err
	}
	return bitsDouble(bits), nil
}

func readString(r io.Reader) (string, error) {
	n, err := readU32(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func readBytes(r io.Reader) ([]byte, error) {
	n, err := readU32(r)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// taggedValueSize is the fixed on-disk width of one encoded value: a tag
// byte plus 8 payload bytes (unused for nil/bool, a float64 for numbers,
// an object-table id for refs). The reader decodes payloads in one
// sequential pass; forward and cyclic references resolve through the
// shells it pre-allocates from the object table, not through a fixup pass.
const taggedValueSize = 9

func writeTagged(w io.Writer, tag valueTag, payload uint64) error {
	buf := make([]byte, taggedValueSize)
	buf[0] = byte(tag)
	binary.LittleEndian.PutUint64(buf[1:], payload)
	_, err := w.Write(buf)
	return err
}

func readTagged(b []byte) (tag valueTag, payload uint64) {
	tag = valueTag(b[0])
	payload = binary.LittleEndian.Uint64(b[1:9])
	return tag, payload
}

func kindError(stage string, v types.Value) error {
	return &types.CheckpointError{Stage: stage, Message: fmt.Sprintf("unsupported value kind %s in checkpoint graph", v.Type())}
}
