package stubgen

import "github.com/wippyai/ffi-bridge/abi"

// Frame is the register file and stack of one simulated native call. Values
// are raw 64-bit storage contents; interpretation is up to the call shape.
type Frame struct {
	regs        map[abi.VMStorage]uint64
	shadowBytes int
}

// NewFrame creates an empty frame. Unset storage reads as zero.
func NewFrame() *Frame {
	return &Frame{regs: make(map[abi.VMStorage]uint64, 8)}
}

// Get reads the raw contents of a storage location.
func (f *Frame) Get(s abi.VMStorage) uint64 {
	return f.regs[s]
}

// Set writes the raw contents of a storage location.
func (f *Frame) Set(s abi.VMStorage, bits uint64) {
	f.regs[s] = bits
}

// ShadowBytes returns the shadow space the caller reserved for this frame.
func (f *Frame) ShadowBytes() int {
	return f.shadowBytes
}
