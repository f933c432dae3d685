package abi

// The wasm "convention" is virtual: parameters travel as ordered stack
// values, not registers. The descriptor models parameter ordinals as an
// unbounded bank of virtual registers so the same arrangement and stub
// machinery applies. Stack storage never occurs.

const wasmVirtualRegs = 32

var wasm32 = &Descriptor{
	Name: "wasm32",
	Arch: Architecture{
		IntRegSize:    8,
		FloatRegSize:  8,
		StackSlotSize: 8,
		PointerSize:   4,
	},
	IntArgRegs:       regs(StorageInteger, wasmVirtualRegs),
	FloatArgRegs:     regs(StorageFloat, wasmVirtualRegs),
	IntRetRegs:       regs(StorageInteger, 1),
	FloatRetRegs:     regs(StorageFloat, 1),
	ShadowSpaceBytes: 0,
	StackAlignment:   8,
}

// Wasm32 returns the virtual descriptor used by the wazero stub backend.
func Wasm32() *Descriptor { return wasm32 }
