package binding

import (
	"encoding/binary"

	"github.com/wippyai/ffi-bridge/abi"
	"github.com/wippyai/ffi-bridge/errors"
)

// Buffer is a chunk of scratch native memory holding one flat aggregate.
// All supported targets are little-endian; accessors follow suit.
type Buffer struct {
	bs   []byte
	addr uintptr
}

// NewBuffer wraps raw bytes with their simulated base address. An address of
// zero marks memory that is not reachable from the native side.
func NewBuffer(bs []byte, addr uintptr) *Buffer {
	return &Buffer{bs: bs, addr: addr}
}

// Addr returns the buffer's base address as seen by native code.
func (b *Buffer) Addr() uintptr { return b.addr }

// Size returns the buffer length in bytes.
func (b *Buffer) Size() uint64 { return uint64(len(b.bs)) }

// Bytes exposes the backing storage.
func (b *Buffer) Bytes() []byte { return b.bs }

// Slice returns a view of [off, off+size).
func (b *Buffer) Slice(off, size uint64) (*Buffer, error) {
	if off+size > uint64(len(b.bs)) {
		return nil, errors.OutOfBounds(errors.PhaseInterp, nil, int(off+size), len(b.bs))
	}
	return &Buffer{bs: b.bs[off : off+size], addr: b.addr + uintptr(off)}, nil
}

// Load reads the scalar of type t at off and returns its raw bits.
func (b *Buffer) Load(t abi.NativeType, off uint64) (uint64, error) {
	w := t.ByteSize()
	if off+w > uint64(len(b.bs)) {
		return 0, errors.OutOfBounds(errors.PhaseInterp, nil, int(off+w), len(b.bs))
	}
	switch w {
	case 1:
		return uint64(b.bs[off]), nil
	case 2:
		return uint64(binary.LittleEndian.Uint16(b.bs[off:])), nil
	case 4:
		return uint64(binary.LittleEndian.Uint32(b.bs[off:])), nil
	default:
		return binary.LittleEndian.Uint64(b.bs[off:]), nil
	}
}

// Store writes the raw bits of a scalar of type t at off.
func (b *Buffer) Store(t abi.NativeType, off uint64, bits uint64) error {
	w := t.ByteSize()
	if off+w > uint64(len(b.bs)) {
		return errors.OutOfBounds(errors.PhaseInterp, nil, int(off+w), len(b.bs))
	}
	switch w {
	case 1:
		b.bs[off] = byte(bits)
	case 2:
		binary.LittleEndian.PutUint16(b.bs[off:], uint16(bits))
	case 4:
		binary.LittleEndian.PutUint32(b.bs[off:], uint32(bits))
	default:
		binary.LittleEndian.PutUint64(b.bs[off:], bits)
	}
	return nil
}

// StoreOverSized writes bits zero-extended over a full storage slot of
// slotSize bytes. Return-buffer components always occupy whole slots.
func (b *Buffer) StoreOverSized(off, slotSize, bits uint64) error {
	if off+slotSize > uint64(len(b.bs)) {
		return errors.OutOfBounds(errors.PhaseInterp, nil, int(off+slotSize), len(b.bs))
	}
	for i := uint64(0); i < slotSize; i++ {
		b.bs[off+i] = byte(bits >> (8 * i))
	}
	return nil
}

// CopyFrom copies min(len) bytes from src.
func (b *Buffer) CopyFrom(src *Buffer) {
	copy(b.bs, src.bs)
}
