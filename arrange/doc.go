// Package arrange classifies high-level signatures into calling sequences.
//
// Given a descriptor and a function type, it assigns each parameter to the
// next free register of its class (stack slots once registers run out),
// splits aggregates into power-of-two chunks, normalizes sub-32-bit
// integers to i32 transport, and decides when a return needs the hidden
// buffer pointer. The output is a verified, immutable
// binding.CallingSequence ready for the upcall or downcall machinery.
//
// Classification is deliberately simpler than the full System V rules:
// aggregates always travel in integer storage, never split across register
// classes.
package arrange
