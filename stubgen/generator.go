package stubgen

import (
	"github.com/wippyai/ffi-bridge/abi"
	"github.com/wippyai/ffi-bridge/binding"
)

// CallRegs is the storage assignment registered together with a stub: which
// locations feed the low-level parameters and which receive the return
// components.
type CallRegs struct {
	Args []abi.VMStorage
	Rets []abi.VMStorage
}

// Invoker performs one downcall of a fixed low-level shape. Slot zero of the
// argument array is always the target address; slot one is the return-buffer
// address when the shape requires one.
type Invoker func(ll []uint64) (uint64, error)

// Generator is the stub-generation backend boundary. The bridge registers
// call shapes and executable transformations here and gets back invokers and
// entry addresses; how those are realized (simulated register file, wasm
// host functions, machine code) is entirely the backend's business.
type Generator interface {
	// MakeInvoker builds the downcall trampoline for one call shape.
	MakeInvoker(desc *abi.Descriptor, lt binding.LowType, conv CallRegs, needsReturnBuffer bool) (Invoker, error)

	// AllocateUpcallStub installs the handle as a native-callable entry
	// point and returns its address.
	AllocateUpcallStub(desc *abi.Descriptor, h *binding.Handle, conv CallRegs, needsReturnBuffer bool, returnBufferSize uint64) (uintptr, error)

	// FreeUpcallStub revokes an entry point. The address stays invalid
	// forever; a revoked stub is never resurrected.
	FreeUpcallStub(addr uintptr) error

	// Space returns the address space native code and the bridge share.
	Space() binding.AddressSpace
}
