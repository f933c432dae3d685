package arrange

import (
	"github.com/wippyai/ffi-bridge/abi"
	"github.com/wippyai/ffi-bridge/binding"
	"github.com/wippyai/ffi-bridge/errors"
)

// chunkSize is the width aggregates are split into when they travel through
// registers or stack slots.
const chunkSize = 8

// allocator hands out argument storage in convention order: registers per
// class while they last, then stack slots.
type allocator struct {
	desc      *abi.Descriptor
	nextInt   int
	nextFloat int
	nextStack int
}

func (a *allocator) next(c abi.StorageClass) abi.VMStorage {
	switch c {
	case abi.StorageInteger:
		if regs := a.desc.IntArgRegs; a.nextInt < len(regs) {
			s := regs[a.nextInt]
			a.nextInt++
			return s
		}
	case abi.StorageFloat:
		if regs := a.desc.FloatArgRegs; a.nextFloat < len(regs) {
			s := regs[a.nextFloat]
			a.nextFloat++
			return s
		}
	}
	s := abi.StackSlot(a.nextStack)
	a.nextStack++
	return s
}

// retStorage returns the i-th return slot for a class. Indices past the
// descriptor's return registers are virtual: they only occur together with
// a return buffer, where the storage contributes its slot width and never
// holds a live register value.
func (a *allocator) retStorage(c abi.StorageClass, i int) abi.VMStorage {
	return abi.VMStorage{Class: c, Index: uint16(i)}
}

func storageClassOf(t abi.NativeType) abi.StorageClass {
	if t.IsFloat() {
		return abi.StorageFloat
	}
	return abi.StorageInteger
}

// moveType normalizes a scalar for transport: sub-32-bit integers travel as
// i32, everything else at its own width.
func moveType(t abi.NativeType) abi.NativeType {
	switch t {
	case abi.I8, abi.I16:
		return abi.I32
	default:
		return t
	}
}

// chunks splits an aggregate size into power-of-two move widths.
func chunks(size uint64) ([]abi.NativeType, []uint64, error) {
	var types []abi.NativeType
	var offs []uint64
	var off uint64
	for rem := size; rem > 0; {
		var t abi.NativeType
		switch {
		case rem >= 8:
			t = abi.I64
		case rem >= 4:
			t = abi.I32
		case rem >= 2:
			t = abi.I16
		default:
			t = abi.I8
		}
		types = append(types, t)
		offs = append(offs, off)
		off += t.ByteSize()
		rem -= t.ByteSize()
	}
	if len(types) == 0 {
		return nil, nil, errors.InvalidInput(errors.PhaseArrange, "zero-sized aggregate")
	}
	return types, offs, nil
}

// regSlotsFor returns how many return slots an aggregate return occupies.
func regSlotsFor(size uint64) int {
	return int((size + chunkSize - 1) / chunkSize)
}

// Upcall arranges a signature for the native-to-managed direction: argument
// bindings box native storage into managed values, return bindings unbox
// the managed result into return storage. When the return needs more slots
// than one register, a hidden leading parameter boxes the caller-supplied
// return buffer.
func Upcall(desc *abi.Descriptor, sig binding.FuncType) (*binding.CallingSequence, error) {
	b := binding.NewBuilder(desc, true)
	alloc := &allocator{desc: desc}

	retSlots := 0
	if sig.HasRet && sig.Ret.Aggregate {
		retSlots = regSlotsFor(sig.Ret.Size)
	}

	if retSlots > 1 {
		// hidden return-buffer pointer, first integer argument register
		size := uint64(retSlots) * desc.Arch.TypeSize(abi.StorageInteger)
		b.AddArgument(binding.AggregateOf(size, chunkSize),
			binding.VMLoad{Storage: alloc.next(abi.StorageInteger), Type: abi.Address},
			binding.BoxAddress{Size: size},
		)
	}

	for _, p := range sig.Params {
		bs, err := boxArgBindings(alloc, p)
		if err != nil {
			return nil, err
		}
		b.AddArgument(p, bs...)
	}

	if sig.HasRet {
		bs, err := unboxRetBindings(alloc, sig.Ret)
		if err != nil {
			return nil, err
		}
		b.SetReturn(sig.Ret, bs...)
	}

	return b.Build()
}

// Downcall arranges a signature for the managed-to-native direction:
// argument bindings unbox managed values into argument storage, return
// bindings box return storage into a managed value.
func Downcall(desc *abi.Descriptor, sig binding.FuncType) (*binding.CallingSequence, error) {
	b := binding.NewBuilder(desc, false)
	alloc := &allocator{desc: desc}

	for _, p := range sig.Params {
		bs, err := unboxArgBindings(alloc, p)
		if err != nil {
			return nil, err
		}
		b.AddArgument(p, bs...)
	}

	if sig.HasRet {
		bs, err := boxRetBindings(alloc, sig.Ret)
		if err != nil {
			return nil, err
		}
		b.SetReturn(sig.Ret, bs...)
	}

	return b.Build()
}

func boxArgBindings(alloc *allocator, p binding.Type) ([]binding.Binding, error) {
	if !p.Aggregate {
		mt := moveType(p.Native)
		load := binding.VMLoad{Storage: alloc.next(storageClassOf(mt)), Type: mt}
		if mt != p.Native {
			return []binding.Binding{load, binding.Cast{From: mt, To: p.Native}}, nil
		}
		return []binding.Binding{load}, nil
	}

	types, offs, err := chunks(p.Size)
	if err != nil {
		return nil, err
	}
	bs := []binding.Binding{binding.Allocate{Size: alignUp(p.Size, chunkSize), Align: p.Align}}
	for i, t := range types {
		bs = append(bs,
			binding.Dup{},
			binding.VMLoad{Storage: alloc.next(abi.StorageInteger), Type: t},
			binding.BufferStore{Offset: offs[i], Type: t},
		)
	}
	return bs, nil
}

func unboxArgBindings(alloc *allocator, p binding.Type) ([]binding.Binding, error) {
	if !p.Aggregate {
		mt := moveType(p.Native)
		store := binding.VMStore{Storage: alloc.next(storageClassOf(mt)), Type: mt}
		if mt != p.Native {
			return []binding.Binding{binding.Cast{From: p.Native, To: mt}, store}, nil
		}
		return []binding.Binding{store}, nil
	}

	types, offs, err := chunks(p.Size)
	if err != nil {
		return nil, err
	}
	var bs []binding.Binding
	for i, t := range types {
		last := i == len(types)-1
		if !last {
			bs = append(bs, binding.Dup{})
		}
		bs = append(bs,
			binding.BufferLoad{Offset: offs[i], Type: t},
			binding.VMStore{Storage: alloc.next(abi.StorageInteger), Type: t},
		)
	}
	return bs, nil
}

func unboxRetBindings(alloc *allocator, ret binding.Type) ([]binding.Binding, error) {
	if !ret.Aggregate {
		mt := moveType(ret.Native)
		store := binding.VMStore{Storage: alloc.retStorage(storageClassOf(mt), 0), Type: mt}
		if mt != ret.Native {
			return []binding.Binding{binding.Cast{From: ret.Native, To: mt}, store}, nil
		}
		return []binding.Binding{store}, nil
	}

	types, offs, err := chunks(ret.Size)
	if err != nil {
		return nil, err
	}
	var bs []binding.Binding
	for i, t := range types {
		last := i == len(types)-1
		if !last {
			bs = append(bs, binding.Dup{})
		}
		bs = append(bs,
			binding.BufferLoad{Offset: offs[i], Type: t},
			binding.VMStore{Storage: alloc.retStorage(abi.StorageInteger, i), Type: t},
		)
	}
	return bs, nil
}

func boxRetBindings(alloc *allocator, ret binding.Type) ([]binding.Binding, error) {
	if !ret.Aggregate {
		mt := moveType(ret.Native)
		load := binding.VMLoad{Storage: alloc.retStorage(storageClassOf(mt), 0), Type: mt}
		if mt != ret.Native {
			return []binding.Binding{load, binding.Cast{From: mt, To: ret.Native}}, nil
		}
		return []binding.Binding{load}, nil
	}

	types, offs, err := chunks(ret.Size)
	if err != nil {
		return nil, err
	}
	bs := []binding.Binding{binding.Allocate{Size: alignUp(ret.Size, chunkSize), Align: ret.Align}}
	for i, t := range types {
		bs = append(bs,
			binding.Dup{},
			binding.VMLoad{Storage: alloc.retStorage(abi.StorageInteger, i), Type: t},
			binding.BufferStore{Offset: offs[i], Type: t},
		)
	}
	return bs, nil
}

func alignUp(v, align uint64) uint64 {
	if align == 0 {
		return v
	}
	return (v + align - 1) &^ (align - 1)
}
