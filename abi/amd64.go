package abi

// Register indices are descriptor-relative ordinals: integer register 0 is
// the first integer argument register of that convention, not a fixed
// hardware encoding. The name tables recover the conventional names.

var sysVAMD64 = &Descriptor{
	Name: "sysv-amd64",
	Arch: Architecture{
		IntRegSize:    8,
		FloatRegSize:  8,
		StackSlotSize: 8,
		PointerSize:   8,
	},
	IntArgRegs:       regs(StorageInteger, 6),
	FloatArgRegs:     regs(StorageFloat, 8),
	IntRetRegs:       regs(StorageInteger, 2),
	FloatRetRegs:     regs(StorageFloat, 2),
	ShadowSpaceBytes: 0,
	StackAlignment:   16,
	intRegNames:      []string{"rdi", "rsi", "rdx", "rcx", "r8", "r9"},
	floatRegNames:    []string{"xmm0", "xmm1", "xmm2", "xmm3", "xmm4", "xmm5", "xmm6", "xmm7"},
}

// SysVAMD64 returns the System V AMD64 descriptor (Linux, macOS, BSD).
func SysVAMD64() *Descriptor { return sysVAMD64 }

var win64 = &Descriptor{
	Name: "win64",
	Arch: Architecture{
		IntRegSize:    8,
		FloatRegSize:  8,
		StackSlotSize: 8,
		PointerSize:   8,
	},
	IntArgRegs:       regs(StorageInteger, 4),
	FloatArgRegs:     regs(StorageFloat, 4),
	IntRetRegs:       regs(StorageInteger, 1),
	FloatRetRegs:     regs(StorageFloat, 1),
	ShadowSpaceBytes: 32,
	StackAlignment:   16,
	intRegNames:      []string{"rcx", "rdx", "r8", "r9"},
	floatRegNames:    []string{"xmm0", "xmm1", "xmm2", "xmm3"},
}

// Win64 returns the Microsoft x64 descriptor. Callers reserve 32 bytes of
// shadow space; argument registers share ordinals between the integer and
// float banks.
func Win64() *Descriptor { return win64 }
