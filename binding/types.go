package binding

import (
	"strconv"
	"strings"

	"github.com/wippyai/ffi-bridge/abi"
)

// Type is the managed-side carrier of one high-level parameter or return
// value: either a scalar with a fixed native width, or a flat aggregate
// passed by buffer handle.
type Type struct {
	Native    abi.NativeType // scalar carrier; Address for aggregates
	Size      uint64         // aggregate byte size
	Align     uint64         // aggregate alignment
	Aggregate bool
}

// ScalarOf returns the managed type carrying one native scalar.
func ScalarOf(t abi.NativeType) Type {
	return Type{Native: t, Size: t.ByteSize(), Align: t.ByteSize()}
}

// AggregateOf returns the managed type for a fixed-size flat aggregate.
func AggregateOf(size, align uint64) Type {
	return Type{Native: abi.Address, Size: size, Align: align, Aggregate: true}
}

func (t Type) String() string {
	if t.Aggregate {
		return "aggregate(" + strconv.FormatUint(t.Size, 10) + ")"
	}
	return t.Native.String()
}

// FuncType is the high-level shape of a bridged function.
// A zero Ret means the function returns nothing.
type FuncType struct {
	Params []Type
	Ret    Type
	HasRet bool
}

// Signature builds a FuncType with the given parameters and no return.
func Signature(params ...Type) FuncType {
	return FuncType{Params: params}
}

// Returning sets the return type.
func (f FuncType) Returning(ret Type) FuncType {
	f.Ret = ret
	f.HasRet = true
	return f
}

// PrependParam returns a copy with an extra leading parameter. Used when an
// implicit return buffer joins the argument list.
func (f FuncType) PrependParam(t Type) FuncType {
	params := make([]Type, 0, len(f.Params)+1)
	params = append(params, t)
	params = append(params, f.Params...)
	f.Params = params
	return f
}

func (f FuncType) String() string {
	var b strings.Builder
	b.WriteByte('(')
	for i, p := range f.Params {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(p.String())
	}
	b.WriteString(")->")
	if f.HasRet {
		b.WriteString(f.Ret.String())
	} else {
		b.WriteString("void")
	}
	return b.String()
}

// LowType is the flat, primitive-only call shape produced by specialization.
// Every parameter corresponds to one argument move; the return is a single
// move or Void.
type LowType struct {
	Params []abi.NativeType
	Ret    abi.NativeType
}

func (t LowType) String() string {
	var b strings.Builder
	b.WriteByte('(')
	for i, p := range t.Params {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(p.String())
	}
	b.WriteString(")->")
	b.WriteString(t.Ret.String())
	return b.String()
}

// Equal reports exact shape equality.
func (t LowType) Equal(o LowType) bool {
	if t.Ret != o.Ret || len(t.Params) != len(o.Params) {
		return false
	}
	for i, p := range t.Params {
		if o.Params[i] != p {
			return false
		}
	}
	return true
}
