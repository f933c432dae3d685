package binding

import (
	"fmt"

	"github.com/wippyai/ffi-bridge/abi"
)

// Tag identifies a binding variant. The variant set is closed: the
// interpreter and the specializer both dispatch over it exhaustively, and an
// unknown tag fails sequence construction.
type Tag uint8

const (
	TagVMLoad Tag = iota
	TagVMStore
	TagBufferLoad
	TagBufferStore
	TagCopy
	TagAllocate
	TagBoxAddress
	TagUnboxAddress
	TagDup
	TagCast
)

func (t Tag) String() string {
	switch t {
	case TagVMLoad:
		return "vm-load"
	case TagVMStore:
		return "vm-store"
	case TagBufferLoad:
		return "buffer-load"
	case TagBufferStore:
		return "buffer-store"
	case TagCopy:
		return "copy"
	case TagAllocate:
		return "allocate"
	case TagBoxAddress:
		return "box-address"
	case TagUnboxAddress:
		return "unbox-address"
	case TagDup:
		return "dup"
	case TagCast:
		return "cast"
	default:
		return fmt.Sprintf("tag(%d)", t)
	}
}

// Binding is one primitive move or conversion in a calling sequence. Each
// variant has a fixed arity on the synthetic operand stack, so sequences
// compose deterministically and are verified once at construction.
type Binding interface {
	Tag() Tag
	String() string

	binding() // closed set
}

// VMLoad reads a value of the given type from native storage and pushes it.
type VMLoad struct {
	Storage abi.VMStorage
	Type    abi.NativeType
}

// VMStore pops a value of the given type and writes it to native storage.
type VMStore struct {
	Storage abi.VMStorage
	Type    abi.NativeType
}

// BufferLoad pops a buffer and pushes the scalar read at Offset.
type BufferLoad struct {
	Offset uint64
	Type   abi.NativeType
}

// BufferStore pops a value, then a buffer, and writes the value at Offset.
type BufferStore struct {
	Offset uint64
	Type   abi.NativeType
}

// Copy pops a buffer, copies Size bytes into fresh scratch memory from the
// allocation context, and pushes the copy.
type Copy struct {
	Size  uint64
	Align uint64
}

// Allocate pushes a fresh scratch buffer of Size bytes.
type Allocate struct {
	Size  uint64
	Align uint64
}

// BoxAddress pops a native address and pushes a buffer view of Size bytes at
// that address.
type BoxAddress struct {
	Size uint64
}

// UnboxAddress pops a buffer and pushes its native base address.
type UnboxAddress struct{}

// Dup duplicates the top of the operand stack.
type Dup struct{}

// Cast pops a scalar of type From and pushes its numeric conversion to To.
type Cast struct {
	From abi.NativeType
	To   abi.NativeType
}

func (VMLoad) Tag() Tag       { return TagVMLoad }
func (VMStore) Tag() Tag      { return TagVMStore }
func (BufferLoad) Tag() Tag   { return TagBufferLoad }
func (BufferStore) Tag() Tag  { return TagBufferStore }
func (Copy) Tag() Tag         { return TagCopy }
func (Allocate) Tag() Tag     { return TagAllocate }
func (BoxAddress) Tag() Tag   { return TagBoxAddress }
func (UnboxAddress) Tag() Tag { return TagUnboxAddress }
func (Dup) Tag() Tag          { return TagDup }
func (Cast) Tag() Tag         { return TagCast }

func (b VMLoad) String() string {
	return fmt.Sprintf("vm-load %s %s", b.Storage, b.Type)
}

func (b VMStore) String() string {
	return fmt.Sprintf("vm-store %s %s", b.Storage, b.Type)
}

func (b BufferLoad) String() string {
	return fmt.Sprintf("buffer-load +%d %s", b.Offset, b.Type)
}

func (b BufferStore) String() string {
	return fmt.Sprintf("buffer-store +%d %s", b.Offset, b.Type)
}

func (b Copy) String() string {
	return fmt.Sprintf("copy %d/%d", b.Size, b.Align)
}

func (b Allocate) String() string {
	return fmt.Sprintf("allocate %d/%d", b.Size, b.Align)
}

func (b BoxAddress) String() string {
	return fmt.Sprintf("box-address %d", b.Size)
}

func (UnboxAddress) String() string { return "unbox-address" }

func (Dup) String() string { return "dup" }

func (b Cast) String() string {
	return fmt.Sprintf("cast %s->%s", b.From, b.To)
}

func (VMLoad) binding()       {}
func (VMStore) binding()      {}
func (BufferLoad) binding()   {}
func (BufferStore) binding()  {}
func (Copy) binding()         {}
func (Allocate) binding()     {}
func (BoxAddress) binding()   {}
func (UnboxAddress) binding() {}
func (Dup) binding()          {}
func (Cast) binding()         {}
