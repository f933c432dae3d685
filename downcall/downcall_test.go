package downcall

import (
	"sync"
	"testing"

	"github.com/wippyai/ffi-bridge/abi"
	"github.com/wippyai/ffi-bridge/binding"
	"github.com/wippyai/ffi-bridge/errors"
	"github.com/wippyai/ffi-bridge/stubgen"
)

func addLowType() binding.LowType {
	return binding.LowType{
		Params: []abi.NativeType{abi.Address, abi.I64, abi.I64},
		Ret:    abi.I64,
	}
}

func addStorages() ([]abi.VMStorage, []abi.VMStorage) {
	return []abi.VMStorage{abi.IntReg(0), abi.IntReg(1)},
		[]abi.VMStorage{abi.IntReg(0)}
}

func TestMakeEntryPoint_Validation(t *testing.T) {
	em := stubgen.NewEmulator()
	desc := abi.SysVAMD64()
	args, rets := addStorages()

	tests := []struct {
		name     string
		lt       binding.LowType
		rets     []abi.VMStorage
		needsRet bool
		kind     errors.Kind
	}{
		{
			name:     "multiple returns without buffer flag",
			lt:       addLowType(),
			rets:     []abi.VMStorage{abi.IntReg(0), abi.IntReg(1)},
			needsRet: false,
			kind:     errors.KindReturnBuffer,
		},
		{
			name:     "buffer flag without multiple returns",
			lt:       addLowType(),
			rets:     rets,
			needsRet: true,
			kind:     errors.KindReturnBuffer,
		},
		{
			name: "missing leading address",
			lt: binding.LowType{
				Params: []abi.NativeType{abi.I64, abi.I64},
				Ret:    abi.I64,
			},
			rets: rets,
			kind: errors.KindSignatureMismatch,
		},
		{
			name: "return buffer needs second address",
			lt: binding.LowType{
				Params: []abi.NativeType{abi.Address, abi.I64},
				Ret:    abi.Void,
			},
			rets:     []abi.VMStorage{abi.IntReg(0), abi.IntReg(1)},
			needsRet: true,
			kind:     errors.KindSignatureMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := MakeEntryPoint("f", desc, args, tt.rets, false, tt.lt, tt.needsRet, em)
			if err == nil {
				t.Fatal("expected validation to fail")
			}
			if e, ok := err.(*errors.Error); !ok || e.Kind != tt.kind {
				t.Fatalf("expected kind %s, got %v", tt.kind, err)
			}
		})
	}
}

func TestMakeEntryPoint_CacheIdempotent(t *testing.T) {
	em := stubgen.NewEmulator()
	desc := abi.SysVAMD64()
	args, rets := addStorages()

	first, err := MakeEntryPoint("add", desc, args, rets, false, addLowType(), false, em)
	if err != nil {
		t.Fatalf("MakeEntryPoint failed: %v", err)
	}
	second, err := MakeEntryPoint("add", desc, args, rets, false, addLowType(), false, em)
	if err != nil {
		t.Fatalf("MakeEntryPoint failed: %v", err)
	}

	if first != second {
		t.Fatal("same shape must yield the same entry point")
	}
}

func TestMakeEntryPoint_NameDoesNotSplitCache(t *testing.T) {
	em := stubgen.NewEmulator()
	desc := abi.SysVAMD64()
	args, rets := addStorages()

	a, err := MakeEntryPoint("add", desc, args, rets, false, addLowType(), false, em)
	if err != nil {
		t.Fatalf("MakeEntryPoint failed: %v", err)
	}
	b, err := MakeEntryPoint("sub", desc, args, rets, false, addLowType(), false, em)
	if err != nil {
		t.Fatalf("MakeEntryPoint failed: %v", err)
	}

	if a != b {
		t.Fatal("two symbols with one shape must share a trampoline")
	}
}

func TestMakeEntryPoint_DistinctBackends(t *testing.T) {
	desc := abi.SysVAMD64()
	args, rets := addStorages()

	a, err := MakeEntryPoint("add", desc, args, rets, false, addLowType(), false, stubgen.NewEmulator())
	if err != nil {
		t.Fatalf("MakeEntryPoint failed: %v", err)
	}
	b, err := MakeEntryPoint("add", desc, args, rets, false, addLowType(), false, stubgen.NewEmulator())
	if err != nil {
		t.Fatalf("MakeEntryPoint failed: %v", err)
	}

	if a == b {
		t.Fatal("different backends must not share entry points")
	}
}

func TestMakeEntryPoint_ConcurrentFirstUse(t *testing.T) {
	em := stubgen.NewEmulator()
	desc := abi.SysVAMD64()
	args, rets := addStorages()

	const n = 16
	eps := make([]*NativeEntryPoint, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			defer wg.Done()
			ep, err := MakeEntryPoint("add", desc, args, rets, false, addLowType(), false, em)
			if err != nil {
				t.Errorf("MakeEntryPoint failed: %v", err)
				return
			}
			eps[i] = ep
		}()
	}
	wg.Wait()

	// one winner; everyone holds the same instance
	for i := 1; i < n; i++ {
		if eps[i] != eps[0] {
			t.Fatal("concurrent first use must converge on one entry point")
		}
	}
}

func TestNativeEntryPoint_CallThroughEmulator(t *testing.T) {
	em := stubgen.NewEmulator()
	desc := abi.SysVAMD64()
	args, rets := addStorages()

	addr := em.RegisterFunc("add", func(e *stubgen.Emulator, fr *stubgen.Frame) error {
		sum := fr.Get(abi.IntReg(0)) + fr.Get(abi.IntReg(1))
		fr.Set(abi.IntReg(0), sum)
		return nil
	})

	ep, err := MakeEntryPoint("add", desc, args, rets, false, addLowType(), false, em)
	if err != nil {
		t.Fatalf("MakeEntryPoint failed: %v", err)
	}

	got, err := ep.Call(uint64(addr), 3, 4)
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if got != 7 {
		t.Fatalf("3+4 = %d, want 7", got)
	}

	if ep.Name() != "add" || ep.NeedsTransition() {
		t.Fatalf("unexpected entry point metadata: %q %v", ep.Name(), ep.NeedsTransition())
	}
}

func TestNativeEntryPoint_Bind(t *testing.T) {
	em := stubgen.NewEmulator()
	desc := abi.SysVAMD64()
	args, rets := addStorages()

	em.RegisterFunc("add", func(e *stubgen.Emulator, fr *stubgen.Frame) error {
		sum := fr.Get(abi.IntReg(0)) + fr.Get(abi.IntReg(1))
		fr.Set(abi.IntReg(0), sum)
		return nil
	})

	ep, err := MakeEntryPoint("add", desc, args, rets, false, addLowType(), false, em)
	if err != nil {
		t.Fatalf("MakeEntryPoint failed: %v", err)
	}

	bound, err := ep.Bind(em, "add")
	if err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	got, err := bound.Call(3, 4)
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if got != 7 {
		t.Fatalf("3+4 = %d, want 7", got)
	}

	if _, err := ep.Bind(em, "missing"); err == nil {
		t.Fatal("binding an unknown symbol must fail")
	} else if e, ok := err.(*errors.Error); !ok || e.Kind != errors.KindUnresolvedSymbol {
		t.Fatalf("expected unresolved symbol, got %v", err)
	}
}
