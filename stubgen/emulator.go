package stubgen

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/ffi-bridge/abi"
	"github.com/wippyai/ffi-bridge/binding"
	"github.com/wippyai/ffi-bridge/errors"
)

// Address ranges are disjoint so a heap pointer can never alias a function
// or stub address.
const (
	heapBase = uintptr(0x0001_0000)
	funcBase = uintptr(0x7f) << 40
	stubBase = uintptr(0x5f) << 40
)

// NativeFunc is a simulated native function: it reads its arguments from the
// frame's registers and stack slots, may touch emulator memory, and writes
// its results back into the frame.
type NativeFunc func(e *Emulator, fr *Frame) error

type stubEntry struct {
	handle *binding.Handle
	conv   CallRegs
	gen    uint16
	active bool
}

// Emulator is an in-process stand-in for a machine-code stub generator. It
// keeps a symbol table of registered native functions at generated
// addresses, simulates each call through a register-file Frame, and backs
// native memory with plain byte blocks.
//
// Upcall stub addresses carry a generation so a revoked stub is detected
// even after its table slot is reused.
type Emulator struct {
	mu sync.Mutex

	nextHeap uintptr
	blocks   map[uintptr][]byte

	nextFunc int
	funcs    map[uintptr]NativeFunc
	symbols  map[string]uintptr

	stubs    []stubEntry
	freeList []int
}

// NewEmulator creates an empty emulator.
func NewEmulator() *Emulator {
	return &Emulator{
		nextHeap: heapBase,
		blocks:   make(map[uintptr][]byte),
		funcs:    make(map[uintptr]NativeFunc),
		symbols:  make(map[string]uintptr),
		stubs:    make([]stubEntry, 0, 16),
		freeList: make([]int, 0, 4),
	}
}

// RegisterFunc installs a simulated native function under a fresh address
// and records it in the symbol table.
func (e *Emulator) RegisterFunc(name string, fn NativeFunc) uintptr {
	e.mu.Lock()
	defer e.mu.Unlock()

	addr := funcBase + uintptr(e.nextFunc)*16
	e.nextFunc++
	e.funcs[addr] = fn
	e.symbols[name] = addr

	Logger().Debug("registered native function",
		zap.String("name", name),
		zap.Uint64("addr", uint64(addr)))
	return addr
}

// Resolve looks a symbol up in the emulator's table.
func (e *Emulator) Resolve(name string) (uintptr, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	addr, ok := e.symbols[name]
	if !ok {
		return 0, errors.UnresolvedSymbol(name, nil)
	}
	return addr, nil
}

// Space returns the emulator itself: its heap is the shared address space.
func (e *Emulator) Space() binding.AddressSpace { return e }

// Allocate reserves a block of simulated native memory.
func (e *Emulator) Allocate(size, align uint64) (*binding.Buffer, error) {
	if align == 0 {
		align = 1
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	addr := alignUpPtr(e.nextHeap, uintptr(align))
	bs := make([]byte, size)
	e.blocks[addr] = bs
	e.nextHeap = addr + uintptr(size)
	return binding.NewBuffer(bs, addr), nil
}

// Free releases a block previously returned by Allocate. Views into a block
// are not individually freeable and are ignored here.
func (e *Emulator) Free(b *binding.Buffer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.blocks, b.Addr())
}

// View resolves an address range into the block containing it.
func (e *Emulator) View(addr uintptr, size uint64) (*binding.Buffer, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for base, bs := range e.blocks {
		if addr >= base && uint64(addr-base)+size <= uint64(len(bs)) {
			off := addr - base
			return binding.NewBuffer(bs[off:off+uintptr(size)], addr), nil
		}
	}
	return nil, errors.NotFound(errors.PhaseStubgen, "memory block",
		fmt.Sprintf("0x%x+%d", addr, size))
}

// MakeInvoker builds a downcall trampoline: lift the low-level arguments
// into a fresh frame per the storage assignment, run the target at the
// address in slot zero, and collect the return from the frame (or spill the
// return components into the caller's return buffer).
func (e *Emulator) MakeInvoker(desc *abi.Descriptor, lt binding.LowType, conv CallRegs, needsReturnBuffer bool) (Invoker, error) {
	want := 1 + len(conv.Args)
	if needsReturnBuffer {
		want++
	}
	if len(lt.Params) != want {
		return nil, errors.SignatureMismatch(errors.PhaseStubgen, nil,
			lt.String(), fmt.Sprintf("%d low-level parameters", want))
	}

	var retBufSize uint64
	if needsReturnBuffer {
		for _, st := range conv.Rets {
			retBufSize += desc.Arch.TypeSize(st.Class)
		}
	}
	shadow := desc.ShadowSpaceBytes

	return func(ll []uint64) (uint64, error) {
		if len(ll) != len(lt.Params) {
			return 0, errors.SignatureMismatch(errors.PhaseStubgen, nil,
				fmt.Sprintf("%d arguments", len(ll)), lt.String())
		}

		e.mu.Lock()
		fn, ok := e.funcs[uintptr(ll[0])]
		e.mu.Unlock()
		if !ok {
			return 0, errors.NotFound(errors.PhaseStubgen, "native function",
				fmt.Sprintf("0x%x", ll[0]))
		}

		fr := NewFrame()
		fr.shadowBytes = shadow
		rest := ll[1:]
		var retBufAddr uint64
		if needsReturnBuffer {
			retBufAddr = rest[0]
			rest = rest[1:]
		}
		for i, st := range conv.Args {
			fr.Set(st, rest[i])
		}

		if err := fn(e, fr); err != nil {
			return 0, err
		}

		if needsReturnBuffer {
			buf, err := e.View(uintptr(retBufAddr), retBufSize)
			if err != nil {
				return 0, err
			}
			var off uint64
			for _, st := range conv.Rets {
				slot := desc.Arch.TypeSize(st.Class)
				if err := buf.StoreOverSized(off, slot, fr.Get(st)); err != nil {
					return 0, err
				}
				off += slot
			}
			return 0, nil
		}
		if len(conv.Rets) == 1 {
			return fr.Get(conv.Rets[0]), nil
		}
		return 0, nil
	}, nil
}

// AllocateUpcallStub installs the handle in the stub table and returns its
// generated address.
func (e *Emulator) AllocateUpcallStub(desc *abi.Descriptor, h *binding.Handle, conv CallRegs, needsReturnBuffer bool, returnBufferSize uint64) (uintptr, error) {
	if len(h.Type().Params) != len(conv.Args) {
		return 0, errors.SignatureMismatch(errors.PhaseStubgen, nil,
			h.Type().String(), fmt.Sprintf("%d argument moves", len(conv.Args)))
	}
	if !needsReturnBuffer && h.Type().Ret != abi.Void && len(conv.Rets) != 1 {
		return 0, errors.ReturnBufferMismatch(errors.PhaseStubgen, len(conv.Rets), needsReturnBuffer)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var idx int
	var gen uint16
	if n := len(e.freeList); n > 0 {
		idx = e.freeList[n-1]
		e.freeList = e.freeList[:n-1]
		gen = e.stubs[idx].gen + 1
		e.stubs[idx] = stubEntry{handle: h, conv: conv, gen: gen, active: true}
	} else {
		idx = len(e.stubs)
		e.stubs = append(e.stubs, stubEntry{handle: h, conv: conv, active: true})
	}

	addr := stubAddr(idx, gen)
	Logger().Debug("allocated upcall stub",
		zap.Uint64("addr", uint64(addr)),
		zap.String("type", h.Type().String()))
	return addr, nil
}

// FreeUpcallStub revokes a stub. The slot becomes reusable under a new
// generation; the old address stays dead.
func (e *Emulator) FreeUpcallStub(addr uintptr) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx, gen, err := e.decodeStub(addr)
	if err != nil {
		return err
	}
	entry := &e.stubs[idx]
	if entry.gen != gen || !entry.active {
		return errors.ScopeClosed(errors.PhaseStubgen, "upcall stub")
	}
	entry.active = false
	entry.handle = nil
	e.freeList = append(e.freeList, idx)
	return nil
}

// CallUpcall simulates native code jumping to a stub address: argument
// storage is read out of the caller's frame, the handle runs, and a
// single-register result lands back in the frame. A stub whose scope has
// been torn down rejects the call.
func (e *Emulator) CallUpcall(addr uintptr, fr *Frame) error {
	e.mu.Lock()
	idx, gen, err := e.decodeStub(addr)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	entry := e.stubs[idx]
	e.mu.Unlock()

	if entry.gen != gen || !entry.active {
		return errors.ScopeClosed(errors.PhaseStubgen, "upcall stub")
	}

	ll := make([]uint64, len(entry.conv.Args))
	for i, st := range entry.conv.Args {
		ll[i] = fr.Get(st)
	}

	bits, err := entry.handle.Invoke(ll)
	if err != nil {
		return err
	}
	if entry.handle.Type().Ret != abi.Void && len(entry.conv.Rets) > 0 {
		fr.Set(entry.conv.Rets[0], bits)
	}
	return nil
}

func stubAddr(idx int, gen uint16) uintptr {
	return stubBase | uintptr(gen)<<20 | uintptr(idx)<<4
}

func (e *Emulator) decodeStub(addr uintptr) (idx int, gen uint16, err error) {
	if addr>>40 != 0x5f {
		return 0, 0, errors.NotFound(errors.PhaseStubgen, "upcall stub",
			fmt.Sprintf("0x%x", addr))
	}
	idx = int((addr >> 4) & 0xffff)
	gen = uint16(addr >> 20)
	if idx >= len(e.stubs) {
		return 0, 0, errors.NotFound(errors.PhaseStubgen, "upcall stub",
			fmt.Sprintf("0x%x", addr))
	}
	return idx, gen, nil
}

func alignUpPtr(v, align uintptr) uintptr {
	return (v + align - 1) &^ (align - 1)
}
