package upcall

import (
	"go.uber.org/zap"

	"github.com/wippyai/ffi-bridge/abi"
	"github.com/wippyai/ffi-bridge/binding"
	"github.com/wippyai/ffi-bridge/errors"
)

// interpHandle builds the unspecialized transformation: every call boxes and
// unboxes through the binding interpreter. Slower than the specialized form
// but trivially traceable, which is the point.
func interpHandle(desc *abi.Descriptor, target binding.Target, seq *binding.CallingSequence, lt binding.LowType, space binding.AddressSpace) (*binding.Handle, error) {
	argMoves := seq.ArgMoves()
	slot := make(map[abi.VMStorage]int, len(argMoves))
	for i, m := range argMoves {
		slot[m.Storage] = i
	}

	// return-buffer offsets are computed in reverse declaration order
	retMoves := seq.RetMoves()
	needsRetBuf := seq.NeedsReturnBuffer()
	offsets := make(map[abi.VMStorage]uint64, len(retMoves))
	if needsRetBuf {
		off := seq.ReturnBufferSize()
		for j := len(retMoves) - 1; j >= 0; j-- {
			off -= desc.Arch.TypeSize(retMoves[j].Storage.Class)
			offsets[retMoves[j].Storage] = off
		}
	}

	argCount := seq.ArgCount()
	allocSize := seq.AllocationSize()
	hasRet := len(seq.ReturnBindings()) > 0

	fn := func(ll []uint64) (uint64, error) {
		var ctx *binding.Context
		var err error
		if allocSize > 0 {
			ctx, err = binding.NewBoundedContext(allocSize, space)
			if err != nil {
				return 0, err
			}
		} else {
			ctx = binding.NewScopedContext(space)
		}
		defer ctx.Close()

		read := func(s abi.VMStorage, t abi.NativeType) uint64 {
			return ll[slot[s]]
		}

		hlArgs := make([]any, argCount)
		for i := 0; i < argCount; i++ {
			v, err := binding.Box(seq.ArgBindings(i), read, ctx)
			if err != nil {
				return 0, err
			}
			hlArgs[i] = v
		}

		var retBuf *binding.Buffer
		targetArgs := hlArgs
		if needsRetBuf {
			buf, ok := hlArgs[0].(*binding.Buffer)
			if !ok {
				return 0, errors.New(errors.PhaseUpcall, errors.KindReturnBuffer).
					Detail("leading parameter did not box a return buffer").
					Build()
			}
			retBuf = buf
			targetArgs = hlArgs[1:]
		}

		if debugUpcall {
			Logger().Debug("upcall",
				zap.String("type", lt.String()),
				zap.Any("args", targetArgs))
		}

		res, err := target(targetArgs)
		if err != nil {
			return 0, err
		}

		var retBits uint64
		if hasRet {
			var werr error
			write := func(s abi.VMStorage, t abi.NativeType, bits uint64) {
				if needsRetBuf {
					slotSize := desc.Arch.TypeSize(s.Class)
					if err := retBuf.StoreOverSized(offsets[s], slotSize, bits); err != nil && werr == nil {
						werr = err
					}
					return
				}
				retBits = bits
			}
			if err := binding.Unbox(res, seq.ReturnBindings(), write, ctx); err != nil {
				return 0, err
			}
			if werr != nil {
				return 0, werr
			}
		}

		if debugUpcall {
			Logger().Debug("upcall return",
				zap.String("type", lt.String()),
				zap.Any("result", res))
		}
		return retBits, nil
	}

	return binding.NewHandle(lt, fn), nil
}
