package abi

var aarch64 = &Descriptor{
	Name: "aarch64",
	Arch: Architecture{
		IntRegSize:    8,
		FloatRegSize:  8,
		StackSlotSize: 8,
		PointerSize:   8,
	},
	IntArgRegs:       regs(StorageInteger, 8),
	FloatArgRegs:     regs(StorageFloat, 8),
	IntRetRegs:       regs(StorageInteger, 2),
	FloatRetRegs:     regs(StorageFloat, 4),
	ShadowSpaceBytes: 0,
	StackAlignment:   16,
	intRegNames:      []string{"x0", "x1", "x2", "x3", "x4", "x5", "x6", "x7"},
	floatRegNames:    []string{"v0", "v1", "v2", "v3", "v4", "v5", "v6", "v7"},
}

// AArch64 returns the AAPCS64 descriptor (Linux and macOS arm64).
func AArch64() *Descriptor { return aarch64 }
