package stubgen

import (
	"context"
	"testing"

	"github.com/wippyai/ffi-bridge/abi"
	"github.com/wippyai/ffi-bridge/binding"
	"github.com/wippyai/ffi-bridge/errors"
)

// (module
//   (func (export "add") (param i32 i32) (result i32)
//     local.get 0 local.get 1 i32.add)
//   (memory (export "memory") 1))
var addWasm = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	0x01, 0x07, 0x01, 0x60, 0x02, 0x7f, 0x7f, 0x01, 0x7f,
	0x03, 0x02, 0x01, 0x00,
	0x05, 0x03, 0x01, 0x00, 0x01,
	0x07, 0x10, 0x02,
	0x03, 0x61, 0x64, 0x64, 0x00, 0x00,
	0x06, 0x6d, 0x65, 0x6d, 0x6f, 0x72, 0x79, 0x02, 0x00,
	0x0a, 0x09, 0x01, 0x07, 0x00, 0x20, 0x00, 0x20, 0x01, 0x6a, 0x0b,
}

// (module
//   (import "bridge" "stub0" (func (param i32 i32) (result i32)))
//   (func (export "call_out") (param i32 i32) (result i32)
//     local.get 0 local.get 1 call 0))
var callOutWasm = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	0x01, 0x07, 0x01, 0x60, 0x02, 0x7f, 0x7f, 0x01, 0x7f,
	0x02, 0x10, 0x01,
	0x06, 0x62, 0x72, 0x69, 0x64, 0x67, 0x65,
	0x05, 0x73, 0x74, 0x75, 0x62, 0x30,
	0x00, 0x00,
	0x03, 0x02, 0x01, 0x00,
	0x07, 0x0c, 0x01,
	0x08, 0x63, 0x61, 0x6c, 0x6c, 0x5f, 0x6f, 0x75, 0x74, 0x00, 0x01,
	0x0a, 0x0a, 0x01, 0x08, 0x00, 0x20, 0x00, 0x20, 0x01, 0x10, 0x00, 0x0b,
}

func TestWazero_DowncallExport(t *testing.T) {
	w := NewWazero(context.Background())
	defer w.Close()

	if err := w.Instantiate(addWasm); err != nil {
		t.Fatalf("Instantiate failed: %v", err)
	}

	addr, err := w.Resolve("add")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	lt := binding.LowType{
		Params: []abi.NativeType{abi.Address, abi.I32, abi.I32},
		Ret:    abi.I32,
	}
	conv := CallRegs{
		Args: []abi.VMStorage{abi.IntReg(0), abi.IntReg(1)},
		Rets: []abi.VMStorage{abi.IntReg(0)},
	}

	invoke, err := w.MakeInvoker(abi.Wasm32(), lt, conv, false)
	if err != nil {
		t.Fatalf("MakeInvoker failed: %v", err)
	}

	got, err := invoke([]uint64{uint64(addr), 3, 4})
	if err != nil {
		t.Fatalf("invoke failed: %v", err)
	}
	if got != 7 {
		t.Fatalf("3+4 = %d, want 7", got)
	}
}

func TestWazero_ResolveMiss(t *testing.T) {
	w := NewWazero(context.Background())
	defer w.Close()

	if err := w.Instantiate(addWasm); err != nil {
		t.Fatalf("Instantiate failed: %v", err)
	}

	_, err := w.Resolve("nope")
	if e, ok := err.(*errors.Error); !ok || e.Kind != errors.KindUnresolvedSymbol {
		t.Fatalf("expected unresolved_symbol, got %v", err)
	}
}

func TestWazero_HeapAllocateAndView(t *testing.T) {
	w := NewWazero(context.Background())
	defer w.Close()

	if err := w.Instantiate(addWasm); err != nil {
		t.Fatalf("Instantiate failed: %v", err)
	}
	w.SetHeap(1024, 4096)

	buf, err := w.Allocate(16, 8)
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	if err := buf.Store(abi.I64, 0, 0xfeed); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	// a view of the same linear memory sees the write
	view, err := w.View(buf.Addr(), 8)
	if err != nil {
		t.Fatalf("View failed: %v", err)
	}
	got, _ := view.Load(abi.I64, 0)
	if got != 0xfeed {
		t.Fatalf("view read %#x, want 0xfeed", got)
	}
}

func TestWazero_UpcallHostFunction(t *testing.T) {
	w := NewWazero(context.Background())
	defer w.Close()

	h := binding.NewHandle(
		binding.LowType{Params: []abi.NativeType{abi.I32, abi.I32}, Ret: abi.I32},
		func(ll []uint64) (uint64, error) {
			sum := uint32(ll[0]) + uint32(ll[1])
			return uint64(sum * 2), nil
		},
	)
	conv := CallRegs{
		Args: []abi.VMStorage{abi.IntReg(0), abi.IntReg(1)},
		Rets: []abi.VMStorage{abi.IntReg(0)},
	}

	stub, err := w.AllocateUpcallStub(abi.Wasm32(), h, conv, false, 0)
	if err != nil {
		t.Fatalf("AllocateUpcallStub failed: %v", err)
	}

	if err := w.Instantiate(callOutWasm); err != nil {
		t.Fatalf("Instantiate failed: %v", err)
	}

	addr, err := w.Resolve("call_out")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	lt := binding.LowType{
		Params: []abi.NativeType{abi.Address, abi.I32, abi.I32},
		Ret:    abi.I32,
	}
	invoke, err := w.MakeInvoker(abi.Wasm32(), lt, conv, false)
	if err != nil {
		t.Fatalf("MakeInvoker failed: %v", err)
	}

	got, err := invoke([]uint64{uint64(addr), 3, 4})
	if err != nil {
		t.Fatalf("invoke failed: %v", err)
	}
	if got != 14 {
		t.Fatalf("(3+4)*2 = %d, want 14", got)
	}

	// revoked stub traps the guest call
	if err := w.FreeUpcallStub(stub); err != nil {
		t.Fatalf("FreeUpcallStub failed: %v", err)
	}
	if _, err := invoke([]uint64{uint64(addr), 3, 4}); err == nil {
		t.Fatal("expected call through revoked stub to fail")
	}
}

func TestWazero_RejectsUnsupportedShapes(t *testing.T) {
	w := NewWazero(context.Background())
	defer w.Close()

	lt := binding.LowType{Params: []abi.NativeType{abi.Address, abi.Address}, Ret: abi.Void}

	_, err := w.MakeInvoker(abi.Wasm32(), lt, CallRegs{}, true)
	if e, ok := err.(*errors.Error); !ok || e.Kind != errors.KindUnsupported {
		t.Fatalf("expected unsupported for return buffer, got %v", err)
	}

	conv := CallRegs{Args: []abi.VMStorage{abi.StackSlot(0)}}
	lt2 := binding.LowType{Params: []abi.NativeType{abi.Address, abi.I32}, Ret: abi.Void}
	_, err = w.MakeInvoker(abi.Wasm32(), lt2, conv, false)
	if e, ok := err.(*errors.Error); !ok || e.Kind != errors.KindUnsupported {
		t.Fatalf("expected unsupported for stack storage, got %v", err)
	}
}
