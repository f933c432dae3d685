// Package ffibridge builds, at runtime, the transition glue that lets Go
// call frames invoke native code (downcalls) and lets native code invoke Go
// callables (upcalls), driven by a calling-sequence description instead of
// precompiled stubs per signature.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct
// responsibilities:
//
//	ffibridge/          Root package with the Resolver interface
//	├── abi/            Storage classes, native types, calling-convention descriptors
//	├── binding/        Binding primitives, calling sequences, interpreter, specializer
//	├── arrange/        Classifies function types into calling sequences per ABI
//	├── upcall/         Native-callable stubs around Go targets
//	├── downcall/       Shared native entry points with a trampoline cache
//	├── stubgen/        Stub-generation backends (register-file emulator, wazero)
//	├── scope/          Lifetime scopes bounding upcall stub validity
//	└── errors/         Structured error types for debugging
//
// # Quick Start
//
// Arrange a signature, build an upcall stub, and hand its address to native
// code:
//
//	desc := abi.SysVAMD64()
//	seq, err := arrange.Upcall(desc, binding.Signature(
//	    binding.ScalarOf(abi.I32), binding.ScalarOf(abi.I32),
//	).Returning(binding.ScalarOf(abi.F64)))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	sc := scope.New()
//	defer sc.Close()
//
//	addr, err := upcall.Make(desc, target, seq, sc, gen)
//
// The returned address is valid until sc is closed. Downcalls mirror the
// construction: downcall.MakeEntryPoint caches one generated trampoline per
// distinct (type, shadow space, storage assignment) shape.
//
// # Boundaries
//
// Machine-code emission is an external collaborator behind the
// stubgen.Generator interface; the in-tree backends realize that boundary
// in-process (a simulated register file, and WebAssembly modules under
// wazero as the "native" side). Only flat scalar and fixed-size aggregate
// data crosses the boundary; Go objects never do.
package ffibridge
