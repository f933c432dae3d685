// Package stubgen is the boundary between the bridge and whatever realizes
// calls on the native side.
//
// The bridge never emits machine code. It hands a Generator the executable
// transformation (a binding.Handle), the call shape, and the storage
// assignment, and gets back an opaque entry address or a downcall Invoker.
//
// Two backends are provided. Emulator simulates the native side in-process:
// registered Go functions stand in for native code, each call runs through a
// register-file Frame, and native memory is plain byte blocks at generated
// addresses. Wazero puts a WebAssembly module on the native side: downcalls
// bind wasm exports, upcalls become imported host functions, and the guest's
// linear memory is the shared address space.
package stubgen
