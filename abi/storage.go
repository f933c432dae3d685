package abi

import "strconv"

// StorageClass partitions physical locations by how the calling convention
// addresses them.
type StorageClass uint8

const (
	StorageInteger StorageClass = iota // general-purpose registers
	StorageFloat                       // floating-point / vector registers
	StorageStack                       // stack slots, offset from the shadow space
)

func (c StorageClass) String() string {
	switch c {
	case StorageInteger:
		return "int"
	case StorageFloat:
		return "float"
	case StorageStack:
		return "stack"
	default:
		return "class(" + strconv.Itoa(int(c)) + ")"
	}
}

// VMStorage identifies one physical location on the native side: a register
// class plus index, or a stack slot index. Compared by value and used as a
// map key.
type VMStorage struct {
	Class StorageClass
	Index uint16
}

// IntReg returns the integer register with the given index.
func IntReg(index int) VMStorage {
	return VMStorage{Class: StorageInteger, Index: uint16(index)}
}

// FloatReg returns the floating-point register with the given index.
func FloatReg(index int) VMStorage {
	return VMStorage{Class: StorageFloat, Index: uint16(index)}
}

// StackSlot returns the stack slot with the given index.
func StackSlot(index int) VMStorage {
	return VMStorage{Class: StorageStack, Index: uint16(index)}
}

func (s VMStorage) String() string {
	return s.Class.String() + "[" + strconv.Itoa(int(s.Index)) + "]"
}

// Encode packs the storage into the compact register identifier handed to
// stub generators.
func (s VMStorage) Encode() uint32 {
	return uint32(s.Class)<<16 | uint32(s.Index)
}

// NativeType is a fixed-width primitive type as seen by the native calling
// convention. Low-level call shapes are built exclusively from these.
type NativeType uint8

const (
	Void NativeType = iota
	I8
	I16
	I32
	I64
	F32
	F64
	Address
)

// ByteSize returns the width of the type in bytes. Void has size zero;
// Address is pointer-width on all supported targets.
func (t NativeType) ByteSize() uint64 {
	switch t {
	case I8:
		return 1
	case I16:
		return 2
	case I32, F32:
		return 4
	case I64, F64, Address:
		return 8
	default:
		return 0
	}
}

// IsFloat reports whether the type travels in floating-point storage.
func (t NativeType) IsFloat() bool {
	return t == F32 || t == F64
}

func (t NativeType) String() string {
	switch t {
	case Void:
		return "void"
	case I8:
		return "i8"
	case I16:
		return "i16"
	case I32:
		return "i32"
	case I64:
		return "i64"
	case F32:
		return "f32"
	case F64:
		return "f64"
	case Address:
		return "address"
	default:
		return "type(" + strconv.Itoa(int(t)) + ")"
	}
}
