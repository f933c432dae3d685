package binding

import (
	"fmt"
	"math"

	"github.com/wippyai/ffi-bridge/abi"
	"github.com/wippyai/ffi-bridge/errors"
)

// StorageReader abstracts which physical slot holds a value: typically an
// index into a raw argument array captured by the stub backend.
type StorageReader func(s abi.VMStorage, t abi.NativeType) uint64

// StorageWriter is the mirror for return moves.
type StorageWriter func(s abi.VMStorage, t abi.NativeType, bits uint64)

// Box executes a verified binding list in order against an explicit operand
// stack, reading native storage through read, and returns the resulting
// managed value. Aggregate conversions may allocate from ctx.
//
// Box is the unspecialized path: simple, per-call dispatch over binding
// tags, used when specialization is disabled and as the debugging fallback.
func Box(bindings []Binding, read StorageReader, ctx *Context) (any, error) {
	st, err := run(bindings, read, nil, nil, ctx)
	if err != nil {
		return nil, err
	}
	if len(st) != 1 {
		return nil, errors.StackImbalance(errors.PhaseInterp, nil, len(st), 1)
	}
	return st[0], nil
}

// Unbox executes a verified binding list against the managed value v,
// writing native storage through write.
func Unbox(v any, bindings []Binding, write StorageWriter, ctx *Context) error {
	st, err := run(bindings, nil, write, []any{v}, ctx)
	if err != nil {
		return err
	}
	if len(st) != 0 {
		return errors.StackImbalance(errors.PhaseInterp, nil, len(st), 0)
	}
	return nil
}

func run(bindings []Binding, read StorageReader, write StorageWriter, stack []any, ctx *Context) ([]any, error) {
	pop := func() any {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return top
	}

	for _, bind := range bindings {
		switch v := bind.(type) {
		case VMLoad:
			if read == nil {
				return nil, errors.Unsupported(errors.PhaseInterp, "vm-load without a storage reader")
			}
			stack = append(stack, BitsToValue(v.Type, read(v.Storage, v.Type)))
		case VMStore:
			if write == nil {
				return nil, errors.Unsupported(errors.PhaseInterp, "vm-store without a storage writer")
			}
			bits, err := ValueToBits(v.Type, pop())
			if err != nil {
				return nil, err
			}
			write(v.Storage, v.Type, bits)
		case BufferLoad:
			buf, err := popBuffer(pop())
			if err != nil {
				return nil, err
			}
			bits, err := buf.Load(v.Type, v.Offset)
			if err != nil {
				return nil, err
			}
			stack = append(stack, BitsToValue(v.Type, bits))
		case BufferStore:
			bits, err := ValueToBits(v.Type, pop())
			if err != nil {
				return nil, err
			}
			buf, err := popBuffer(pop())
			if err != nil {
				return nil, err
			}
			if err := buf.Store(v.Type, v.Offset, bits); err != nil {
				return nil, err
			}
		case Copy:
			src, err := popBuffer(pop())
			if err != nil {
				return nil, err
			}
			dst, err := ctx.Allocate(v.Size, v.Align)
			if err != nil {
				return nil, err
			}
			dst.CopyFrom(src)
			stack = append(stack, dst)
		case Allocate:
			buf, err := ctx.Allocate(v.Size, v.Align)
			if err != nil {
				return nil, err
			}
			stack = append(stack, buf)
		case BoxAddress:
			addr, err := popAddress(pop())
			if err != nil {
				return nil, err
			}
			buf, err := ctx.View(addr, v.Size)
			if err != nil {
				return nil, err
			}
			stack = append(stack, buf)
		case UnboxAddress:
			buf, err := popBuffer(pop())
			if err != nil {
				return nil, err
			}
			stack = append(stack, buf.Addr())
		case Dup:
			stack = append(stack, stack[len(stack)-1])
		case Cast:
			converted, err := Convert(v.From, v.To, pop())
			if err != nil {
				return nil, err
			}
			stack = append(stack, converted)
		default:
			return nil, errors.Unsupported(errors.PhaseInterp, "unknown binding tag "+bind.Tag().String())
		}
	}
	return stack, nil
}

func popBuffer(v any) (*Buffer, error) {
	buf, ok := v.(*Buffer)
	if !ok {
		return nil, errors.New(errors.PhaseInterp, errors.KindSignatureMismatch).
			Type(fmt.Sprintf("%T", v)).
			Detail("expected buffer operand").
			Build()
	}
	return buf, nil
}

func popAddress(v any) (uintptr, error) {
	addr, ok := v.(uintptr)
	if !ok {
		return 0, errors.New(errors.PhaseInterp, errors.KindSignatureMismatch).
			Type(fmt.Sprintf("%T", v)).
			Detail("expected address operand").
			Build()
	}
	return addr, nil
}

// BitsToValue converts raw storage bits into the managed representation of
// a native scalar.
func BitsToValue(t abi.NativeType, bits uint64) any {
	switch t {
	case abi.I8:
		return int8(bits)
	case abi.I16:
		return int16(bits)
	case abi.I32:
		return int32(bits)
	case abi.I64:
		return int64(bits)
	case abi.F32:
		return math.Float32frombits(uint32(bits))
	case abi.F64:
		return math.Float64frombits(bits)
	case abi.Address:
		return uintptr(bits)
	default:
		return nil
	}
}

// ValueToBits converts a managed scalar back into raw storage bits. The
// value's dynamic type must match t exactly.
func ValueToBits(t abi.NativeType, v any) (uint64, error) {
	switch t {
	case abi.I8:
		if x, ok := v.(int8); ok {
			return uint64(uint8(x)), nil
		}
	case abi.I16:
		if x, ok := v.(int16); ok {
			return uint64(uint16(x)), nil
		}
	case abi.I32:
		if x, ok := v.(int32); ok {
			return uint64(uint32(x)), nil
		}
	case abi.I64:
		if x, ok := v.(int64); ok {
			return uint64(x), nil
		}
	case abi.F32:
		if x, ok := v.(float32); ok {
			return uint64(math.Float32bits(x)), nil
		}
	case abi.F64:
		if x, ok := v.(float64); ok {
			return math.Float64bits(x), nil
		}
	case abi.Address:
		if x, ok := v.(uintptr); ok {
			return uint64(x), nil
		}
		if buf, ok := v.(*Buffer); ok {
			return uint64(buf.Addr()), nil
		}
	}
	return 0, errors.New(errors.PhaseInterp, errors.KindSignatureMismatch).
		Type(fmt.Sprintf("%T", v)).
		Detail("value does not carry native type %s", t).
		Build()
}

// Convert applies the numeric conversion a Cast binding describes.
func Convert(from, to abi.NativeType, v any) (any, error) {
	if from.IsFloat() {
		var d float64
		switch x := v.(type) {
		case float32:
			d = float64(x)
		case float64:
			d = x
		default:
			return nil, errors.SignatureMismatch(errors.PhaseInterp, nil, fmt.Sprintf("%T", v), from.String())
		}
		switch to {
		case abi.F32:
			return float32(d), nil
		case abi.F64:
			return d, nil
		case abi.I8:
			return int8(d), nil
		case abi.I16:
			return int16(d), nil
		case abi.I32:
			return int32(d), nil
		case abi.I64:
			return int64(d), nil
		}
		return nil, errors.Unsupported(errors.PhaseInterp, "cast to "+to.String())
	}

	var i int64
	switch x := v.(type) {
	case int8:
		i = int64(x)
	case int16:
		i = int64(x)
	case int32:
		i = int64(x)
	case int64:
		i = x
	case uintptr:
		i = int64(x)
	default:
		return nil, errors.SignatureMismatch(errors.PhaseInterp, nil, fmt.Sprintf("%T", v), from.String())
	}
	switch to {
	case abi.I8:
		return int8(i), nil
	case abi.I16:
		return int16(i), nil
	case abi.I32:
		return int32(i), nil
	case abi.I64:
		return i, nil
	case abi.Address:
		return uintptr(i), nil
	case abi.F32:
		return float32(i), nil
	case abi.F64:
		return float64(i), nil
	}
	return nil, errors.Unsupported(errors.PhaseInterp, "cast to "+to.String())
}
