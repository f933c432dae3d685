package upcall

import (
	"github.com/xyproto/env/v2"

	"github.com/wippyai/ffi-bridge/abi"
	"github.com/wippyai/ffi-bridge/binding"
	"github.com/wippyai/ffi-bridge/errors"
	"github.com/wippyai/ffi-bridge/scope"
	"github.com/wippyai/ffi-bridge/stubgen"
)

// Process-wide switches, read once at startup. FFIBRIDGE_NO_SPEC falls back
// to the interpreted binding path; FFIBRIDGE_UPCALL_DEBUG traces boxed
// arguments and results on that path.
var (
	useSpec     = !env.Bool("FFIBRIDGE_NO_SPEC")
	debugUpcall = env.Bool("FFIBRIDGE_UPCALL_DEBUG")
)

// Make builds an upcall stub: a native-callable entry address that lifts raw
// storage into managed values, runs target, and lowers the result back. The
// address stays valid until sc closes; afterwards invocation is rejected by
// the backend.
//
// The executable transformation is specialized by default. With
// specialization disabled the interpreted path is used instead; both expose
// the identical low-level shape.
func Make(desc *abi.Descriptor, target binding.Target, seq *binding.CallingSequence, sc *scope.Scope, gen stubgen.Generator) (uintptr, error) {
	if !seq.ForUpcall() {
		return 0, errors.Unsupported(errors.PhaseUpcall, "downcall sequence in upcall builder")
	}

	lt, err := binding.LowTypeOf(seq)
	if err != nil {
		return 0, err
	}

	var h *binding.Handle
	if useSpec {
		h, err = binding.NewSpecializer(desc, gen.Space()).Specialize(target, seq)
	} else {
		h, err = interpHandle(desc, target, seq, lt, gen.Space())
	}
	if err != nil {
		return 0, err
	}

	// both paths must land on the computed shape exactly
	if !h.Type().Equal(lt) {
		return 0, errors.SignatureMismatch(errors.PhaseUpcall, nil,
			h.Type().String(), lt.String())
	}

	conv := stubgen.CallRegs{
		Args: argStorages(seq.ArgMoves()),
		Rets: retStorages(seq.RetMoves()),
	}

	addr, err := gen.AllocateUpcallStub(desc, guard(h), conv,
		seq.NeedsReturnBuffer(), seq.ReturnBufferSize())
	if err != nil {
		return 0, err
	}

	if err := sc.Register(func() { _ = gen.FreeUpcallStub(addr) }); err != nil {
		_ = gen.FreeUpcallStub(addr)
		return 0, err
	}
	return addr, nil
}

// guard converts a panic escaping the transformation into a defined abort.
// Nothing propagates into the native frame and no partial return is written.
func guard(h *binding.Handle) *binding.Handle {
	return binding.NewHandle(h.Type(), func(ll []uint64) (bits uint64, err error) {
		defer func() {
			if r := recover(); r != nil {
				bits = 0
				err = errors.TargetAbort(r)
			}
		}()
		return h.Invoke(ll)
	})
}

func argStorages(moves []binding.VMLoad) []abi.VMStorage {
	out := make([]abi.VMStorage, len(moves))
	for i, m := range moves {
		out[i] = m.Storage
	}
	return out
}

func retStorages(moves []binding.VMStore) []abi.VMStorage {
	out := make([]abi.VMStorage, len(moves))
	for i, m := range moves {
		out[i] = m.Storage
	}
	return out
}
