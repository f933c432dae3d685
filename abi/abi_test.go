package abi

import "testing"

func TestVMStorage_Encode(t *testing.T) {
	tests := []struct {
		s    VMStorage
		want uint32
	}{
		{IntReg(0), 0x00000000},
		{IntReg(5), 0x00000005},
		{FloatReg(3), 0x00010003},
		{StackSlot(2), 0x00020002},
	}
	for _, tt := range tests {
		if got := tt.s.Encode(); got != tt.want {
			t.Fatalf("%s: Encode() = %#x, want %#x", tt.s, got, tt.want)
		}
	}
}

func TestDescriptor_RegisterSets(t *testing.T) {
	tests := []struct {
		desc    *Descriptor
		intArgs int
		fltArgs int
		intRets int
		shadow  int
	}{
		{SysVAMD64(), 6, 8, 2, 0},
		{Win64(), 4, 4, 1, 32},
		{AArch64(), 8, 8, 2, 0},
	}
	for _, tt := range tests {
		t.Run(tt.desc.Name, func(t *testing.T) {
			if got := len(tt.desc.ArgRegs(StorageInteger)); got != tt.intArgs {
				t.Fatalf("int arg regs: got %d, want %d", got, tt.intArgs)
			}
			if got := len(tt.desc.ArgRegs(StorageFloat)); got != tt.fltArgs {
				t.Fatalf("float arg regs: got %d, want %d", got, tt.fltArgs)
			}
			if got := len(tt.desc.RetRegs(StorageInteger)); got != tt.intRets {
				t.Fatalf("int ret regs: got %d, want %d", got, tt.intRets)
			}
			if tt.desc.ShadowSpaceBytes != tt.shadow {
				t.Fatalf("shadow space: got %d, want %d", tt.desc.ShadowSpaceBytes, tt.shadow)
			}
		})
	}
}

func TestDescriptor_RegisterNames(t *testing.T) {
	desc := SysVAMD64()
	if got := desc.RegisterName(IntReg(0)); got != "rdi" {
		t.Fatalf("expected rdi, got %s", got)
	}
	if got := desc.RegisterName(FloatReg(0)); got != "xmm0" {
		t.Fatalf("expected xmm0, got %s", got)
	}
	// stack slots fall back to the class[index] form
	if got := desc.RegisterName(StackSlot(3)); got != "stack[3]" {
		t.Fatalf("expected stack[3], got %s", got)
	}
}

func TestNativeType_Widths(t *testing.T) {
	tests := []struct {
		typ  NativeType
		size uint64
	}{
		{Void, 0}, {I8, 1}, {I16, 2}, {I32, 4}, {I64, 8},
		{F32, 4}, {F64, 8}, {Address, 8},
	}
	for _, tt := range tests {
		if got := tt.typ.ByteSize(); got != tt.size {
			t.Fatalf("%s: ByteSize() = %d, want %d", tt.typ, got, tt.size)
		}
	}
	if !F32.IsFloat() || !F64.IsFloat() || I64.IsFloat() {
		t.Fatal("float classification wrong")
	}
}

func TestArchitecture_TypeSize(t *testing.T) {
	arch := SysVAMD64().Arch
	if arch.TypeSize(StorageInteger) != 8 || arch.TypeSize(StorageFloat) != 8 || arch.TypeSize(StorageStack) != 8 {
		t.Fatal("expected 8-byte slots on amd64")
	}
}
