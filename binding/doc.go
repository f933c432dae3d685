// Package binding models how managed values map onto native storage.
//
// A Binding is one primitive move or conversion (load a native slot, store
// into a buffer, copy an aggregate, box an address); a CallingSequence is
// the ordered binding lists for a whole signature, verified once at
// construction against a synthetic operand stack and immutable afterwards.
//
// Two execution engines share the model. The interpreter (Box/Unbox) walks
// bindings one at a time with a uniform tag dispatch; it is the slow,
// simple, debuggable path. The Specializer compiles a sequence into
// composed closure stages whose slot indices and widths were resolved ahead
// of time, yielding a Handle with the exact low-level primitive shape and
// no per-call interpretive branching.
//
// Per-invocation scratch memory comes from a Context: a bounded arena when
// the sequence's allocation needs are statically known, a tracked scope
// otherwise, released exactly once per call on every exit path.
package binding
