package abi

// Architecture carries the storage widths of a target. TypeSize drives
// return-buffer offset computation: each return component occupies one full
// slot of its storage class, regardless of the value's width.
type Architecture struct {
	IntRegSize    uint64
	FloatRegSize  uint64
	StackSlotSize uint64
	PointerSize   uint64
}

// TypeSize returns the slot width in bytes for a storage class.
func (a Architecture) TypeSize(c StorageClass) uint64 {
	switch c {
	case StorageInteger:
		return a.IntRegSize
	case StorageFloat:
		return a.FloatRegSize
	default:
		return a.StackSlotSize
	}
}

// Descriptor is the static description of one calling convention: which
// registers carry arguments and returns, how much shadow space a call frame
// reserves, and the storage widths. One immutable instance exists per
// supported architecture/OS pair.
type Descriptor struct {
	Name string
	Arch Architecture

	// IntArgRegs and FloatArgRegs list argument registers in allocation order.
	IntArgRegs   []VMStorage
	FloatArgRegs []VMStorage

	// IntRetRegs and FloatRetRegs list return registers in allocation order.
	IntRetRegs   []VMStorage
	FloatRetRegs []VMStorage

	ShadowSpaceBytes int
	StackAlignment   uint64

	intRegNames   []string
	floatRegNames []string
}

// ArgRegs returns the argument registers for a storage class, or nil for
// stack storage.
func (d *Descriptor) ArgRegs(c StorageClass) []VMStorage {
	switch c {
	case StorageInteger:
		return d.IntArgRegs
	case StorageFloat:
		return d.FloatArgRegs
	default:
		return nil
	}
}

// RetRegs returns the return registers for a storage class, or nil for
// stack storage.
func (d *Descriptor) RetRegs(c StorageClass) []VMStorage {
	switch c {
	case StorageInteger:
		return d.IntRetRegs
	case StorageFloat:
		return d.FloatRetRegs
	default:
		return nil
	}
}

// RegisterName returns the conventional name of a storage location, falling
// back to the class[index] form for stack slots and out-of-range indices.
func (d *Descriptor) RegisterName(s VMStorage) string {
	var names []string
	switch s.Class {
	case StorageInteger:
		names = d.intRegNames
	case StorageFloat:
		names = d.floatRegNames
	}
	if int(s.Index) < len(names) {
		return names[s.Index]
	}
	return s.String()
}

func regs(c StorageClass, n int) []VMStorage {
	out := make([]VMStorage, n)
	for i := range out {
		out[i] = VMStorage{Class: c, Index: uint16(i)}
	}
	return out
}
