package stubgen

import (
	"context"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/ffi-bridge/abi"
	"github.com/wippyai/ffi-bridge/binding"
	"github.com/wippyai/ffi-bridge/errors"
)

// Wazero realizes the stub-generation boundary with a WebAssembly module as
// the native side: downcall invokers bind wasm exports, upcall stubs are
// exposed to the module as imported host functions under the "bridge"
// module.
//
// Host modules instantiate once, so every upcall stub must be allocated
// before Instantiate. The wasm32 convention is register-only: stack storage
// and return buffers are rejected.
type Wazero struct {
	ctx context.Context
	rt  wazero.Runtime

	mu  sync.Mutex
	mod api.Module

	stubs []wazeroStub

	nextFunc int
	funcs    map[uintptr]api.Function
	symbols  map[string]uintptr

	heapNext uint32
	heapEnd  uint32
}

type wazeroStub struct {
	handle  *binding.Handle
	revoked bool
}

// NewWazero creates a backend over a fresh wazero runtime.
func NewWazero(ctx context.Context) *Wazero {
	return &Wazero{
		ctx:     ctx,
		rt:      wazero.NewRuntime(ctx),
		funcs:   make(map[uintptr]api.Function),
		symbols: make(map[string]uintptr),
	}
}

// Instantiate compiles and instantiates the guest module, exporting every
// allocated upcall stub to it first.
func (w *Wazero) Instantiate(wasm []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.mod != nil {
		return errors.Unsupported(errors.PhaseStubgen, "module already instantiated")
	}

	if len(w.stubs) > 0 {
		builder := w.rt.NewHostModuleBuilder("bridge")
		for i := range w.stubs {
			idx := i
			h := w.stubs[i].handle
			params, results, err := wasmShape(h.Type())
			if err != nil {
				return err
			}
			nParams := len(h.Type().Params)
			hasRet := h.Type().Ret != abi.Void

			handler := api.GoModuleFunc(func(_ context.Context, _ api.Module, stack []uint64) {
				w.mu.Lock()
				revoked := w.stubs[idx].revoked
				w.mu.Unlock()
				if revoked {
					panic(errors.ScopeClosed(errors.PhaseStubgen, "upcall stub"))
				}
				ll := make([]uint64, nParams)
				copy(ll, stack)
				bits, err := h.Invoke(ll)
				if err != nil {
					panic(err)
				}
				if hasRet {
					stack[0] = bits
				}
			})

			builder.NewFunctionBuilder().
				WithGoModuleFunction(handler, params, results).
				Export(fmt.Sprintf("stub%d", idx))
		}
		if _, err := builder.Instantiate(w.ctx); err != nil {
			return errors.Wrap(errors.PhaseStubgen, errors.KindInvalidInput, err,
				"host module instantiation failed")
		}
	}

	mod, err := w.rt.Instantiate(w.ctx, wasm)
	if err != nil {
		return errors.Wrap(errors.PhaseStubgen, errors.KindInvalidInput, err,
			"guest module instantiation failed")
	}
	w.mod = mod

	Logger().Debug("guest module instantiated",
		zap.Int("upcall_stubs", len(w.stubs)))
	return nil
}

// SetHeap designates [base, base+size) of the guest's linear memory as the
// bridge's scratch heap. The region must not overlap guest data.
func (w *Wazero) SetHeap(base, size uint32) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.heapNext = base
	w.heapEnd = base + size
}

// Close tears the runtime down.
func (w *Wazero) Close() error {
	return w.rt.Close(w.ctx)
}

// Resolve binds a guest export to a generated address on first use.
func (w *Wazero) Resolve(name string) (uintptr, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if addr, ok := w.symbols[name]; ok {
		return addr, nil
	}
	if w.mod == nil {
		return 0, errors.UnresolvedSymbol(name,
			errors.Unsupported(errors.PhaseStubgen, "module not instantiated"))
	}
	fn := w.mod.ExportedFunction(name)
	if fn == nil {
		return 0, errors.UnresolvedSymbol(name, nil)
	}
	addr := funcBase + uintptr(w.nextFunc)*16
	w.nextFunc++
	w.funcs[addr] = fn
	w.symbols[name] = addr
	return addr, nil
}

// Space returns the backend itself: the guest's linear memory is the shared
// address space.
func (w *Wazero) Space() binding.AddressSpace { return w }

// Allocate bump-allocates from the designated heap region.
func (w *Wazero) Allocate(size, align uint64) (*binding.Buffer, error) {
	if align == 0 {
		align = 1
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.mod == nil || w.heapEnd == 0 {
		return nil, errors.Unsupported(errors.PhaseStubgen, "no heap region designated")
	}
	addr := uint32(alignUpPtr(uintptr(w.heapNext), uintptr(align)))
	if uint64(addr)+size > uint64(w.heapEnd) {
		return nil, errors.Exhausted(errors.PhaseStubgen, size, uint64(w.heapEnd-addr))
	}
	bs, ok := w.mod.Memory().Read(addr, uint32(size))
	if !ok {
		return nil, errors.OutOfBounds(errors.PhaseStubgen, nil,
			int(uint64(addr)+size), int(w.mod.Memory().Size()))
	}
	w.heapNext = addr + uint32(size)
	return binding.NewBuffer(bs, uintptr(addr)), nil
}

// Free is a no-op; the heap is a per-backend bump region.
func (w *Wazero) Free(*binding.Buffer) {}

// View resolves a linear-memory address into a buffer sharing the guest's
// memory.
func (w *Wazero) View(addr uintptr, size uint64) (*binding.Buffer, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.mod == nil {
		return nil, errors.Unsupported(errors.PhaseStubgen, "module not instantiated")
	}
	bs, ok := w.mod.Memory().Read(uint32(addr), uint32(size))
	if !ok {
		return nil, errors.OutOfBounds(errors.PhaseStubgen, nil,
			int(uint64(addr)+size), int(w.mod.Memory().Size()))
	}
	return binding.NewBuffer(bs, addr), nil
}

// MakeInvoker builds a downcall trampoline over api.Function.Call. Slot zero
// selects the resolved export; the rest travel on the flat uint64 stack
// unchanged.
func (w *Wazero) MakeInvoker(desc *abi.Descriptor, lt binding.LowType, conv CallRegs, needsReturnBuffer bool) (Invoker, error) {
	if needsReturnBuffer {
		return nil, errors.Unsupported(errors.PhaseStubgen, "return buffers on the wasm32 convention")
	}
	for _, st := range conv.Args {
		if st.Class == abi.StorageStack {
			return nil, errors.Unsupported(errors.PhaseStubgen, "stack storage on the wasm32 convention")
		}
	}
	if len(lt.Params) != 1+len(conv.Args) {
		return nil, errors.SignatureMismatch(errors.PhaseStubgen, nil,
			lt.String(), fmt.Sprintf("%d low-level parameters", 1+len(conv.Args)))
	}

	return func(ll []uint64) (uint64, error) {
		if len(ll) != len(lt.Params) {
			return 0, errors.SignatureMismatch(errors.PhaseStubgen, nil,
				fmt.Sprintf("%d arguments", len(ll)), lt.String())
		}
		w.mu.Lock()
		fn, ok := w.funcs[uintptr(ll[0])]
		w.mu.Unlock()
		if !ok {
			return 0, errors.NotFound(errors.PhaseStubgen, "guest function",
				fmt.Sprintf("0x%x", ll[0]))
		}
		results, err := fn.Call(w.ctx, ll[1:]...)
		if err != nil {
			return 0, errors.Wrap(errors.PhaseStubgen, errors.KindTargetAbort, err,
				"guest call trapped")
		}
		if len(results) > 0 {
			return results[0], nil
		}
		return 0, nil
	}, nil
}

// AllocateUpcallStub records the handle for export at Instantiate time.
func (w *Wazero) AllocateUpcallStub(desc *abi.Descriptor, h *binding.Handle, conv CallRegs, needsReturnBuffer bool, returnBufferSize uint64) (uintptr, error) {
	if needsReturnBuffer {
		return 0, errors.Unsupported(errors.PhaseStubgen, "return buffers on the wasm32 convention")
	}
	if len(h.Type().Params) != len(conv.Args) {
		return 0, errors.SignatureMismatch(errors.PhaseStubgen, nil,
			h.Type().String(), fmt.Sprintf("%d argument moves", len(conv.Args)))
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.mod != nil {
		return 0, errors.Unsupported(errors.PhaseStubgen, "stub allocation after module instantiation")
	}
	idx := len(w.stubs)
	w.stubs = append(w.stubs, wazeroStub{handle: h})
	return stubAddr(idx, 0), nil
}

// FreeUpcallStub revokes a stub. The host export stays registered but every
// call through it traps.
func (w *Wazero) FreeUpcallStub(addr uintptr) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	idx, _, err := w.decodeStub(addr)
	if err != nil {
		return err
	}
	if w.stubs[idx].revoked {
		return errors.ScopeClosed(errors.PhaseStubgen, "upcall stub")
	}
	w.stubs[idx].revoked = true
	return nil
}

func (w *Wazero) decodeStub(addr uintptr) (idx int, gen uint16, err error) {
	if addr>>40 != 0x5f {
		return 0, 0, errors.NotFound(errors.PhaseStubgen, "upcall stub",
			fmt.Sprintf("0x%x", addr))
	}
	idx = int((addr >> 4) & 0xffff)
	gen = uint16(addr >> 20)
	if idx >= len(w.stubs) {
		return 0, 0, errors.NotFound(errors.PhaseStubgen, "upcall stub",
			fmt.Sprintf("0x%x", addr))
	}
	return idx, gen, nil
}

// wasmShape maps a low-level type onto core wasm value types. Sub-32-bit
// integers and addresses widen to i32.
func wasmShape(lt binding.LowType) (params, results []api.ValueType, err error) {
	for _, p := range lt.Params {
		vt, err := wasmValueType(p)
		if err != nil {
			return nil, nil, err
		}
		params = append(params, vt)
	}
	if lt.Ret != abi.Void {
		vt, err := wasmValueType(lt.Ret)
		if err != nil {
			return nil, nil, err
		}
		results = append(results, vt)
	}
	return params, results, nil
}

func wasmValueType(t abi.NativeType) (api.ValueType, error) {
	switch t {
	case abi.I8, abi.I16, abi.I32, abi.Address:
		return api.ValueTypeI32, nil
	case abi.I64:
		return api.ValueTypeI64, nil
	case abi.F32:
		return api.ValueTypeF32, nil
	case abi.F64:
		return api.ValueTypeF64, nil
	default:
		return 0, errors.NonPrimitive(errors.PhaseStubgen, nil, t.String())
	}
}
