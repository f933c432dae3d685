package binding

import (
	"strconv"

	"github.com/wippyai/ffi-bridge/abi"
	"github.com/wippyai/ffi-bridge/errors"
)

// CallingSequence owns the ordered binding lists for every high-level
// parameter and for the return value, plus the derived facts the stub layers
// need: whether an implicit return buffer is required, how large it is, and
// how much scratch memory one invocation can allocate. Built once per
// signature shape, immutable thereafter, shareable across calls.
type CallingSequence struct {
	funcType FuncType
	args     [][]Binding
	ret      []Binding

	forUpcall         bool
	needsReturnBuffer bool
	returnBufferSize  uint64
	allocationSize    uint64
}

// FuncType returns the high-level shape, including the implicit leading
// return-buffer parameter when one is required.
func (cs *CallingSequence) FuncType() FuncType { return cs.funcType }

// ArgCount returns the number of high-level parameters.
func (cs *CallingSequence) ArgCount() int { return len(cs.args) }

// ArgBindings returns the binding list for parameter i.
func (cs *CallingSequence) ArgBindings(i int) []Binding { return cs.args[i] }

// ReturnBindings returns the binding list for the return value.
func (cs *CallingSequence) ReturnBindings() []Binding { return cs.ret }

// ForUpcall reports the direction this sequence was built for.
func (cs *CallingSequence) ForUpcall() bool { return cs.forUpcall }

// NeedsReturnBuffer reports whether the return occupies more storage than
// the convention's return registers provide.
func (cs *CallingSequence) NeedsReturnBuffer() bool { return cs.needsReturnBuffer }

// ReturnBufferSize returns the byte size of the implicit return buffer.
func (cs *CallingSequence) ReturnBufferSize() uint64 { return cs.returnBufferSize }

// AllocationSize returns the scratch arena size one invocation needs.
func (cs *CallingSequence) AllocationSize() uint64 { return cs.allocationSize }

// ArgMoves returns every VMLoad across all argument binding lists, in
// declaration order. For upcalls these are the argument move descriptors:
// which storage feeds each low-level parameter.
func (cs *CallingSequence) ArgMoves() []VMLoad {
	var moves []VMLoad
	for _, bs := range cs.args {
		for _, b := range bs {
			if m, ok := b.(VMLoad); ok {
				moves = append(moves, m)
			}
		}
	}
	return moves
}

// RetMoves returns every VMStore in the return binding list, in declaration
// order: which storage receives each low-level return component.
func (cs *CallingSequence) RetMoves() []VMStore {
	var moves []VMStore
	for _, b := range cs.ret {
		if m, ok := b.(VMStore); ok {
			moves = append(moves, m)
		}
	}
	return moves
}

// ArgStores returns every VMStore across argument binding lists, in order.
// For downcalls these describe where each managed argument lands.
func (cs *CallingSequence) ArgStores() []VMStore {
	var moves []VMStore
	for _, bs := range cs.args {
		for _, b := range bs {
			if m, ok := b.(VMStore); ok {
				moves = append(moves, m)
			}
		}
	}
	return moves
}

// RetLoads returns every VMLoad in the return binding list, in order.
func (cs *CallingSequence) RetLoads() []VMLoad {
	var moves []VMLoad
	for _, b := range cs.ret {
		if m, ok := b.(VMLoad); ok {
			moves = append(moves, m)
		}
	}
	return moves
}

// Builder assembles and verifies a CallingSequence. Verification simulates
// the operand stack per binding list once, so structurally inconsistent
// sequences are rejected here and never reach call time.
type Builder struct {
	desc      *abi.Descriptor
	forUpcall bool
	funcType  FuncType
	args      [][]Binding
	ret       []Binding
	err       error
}

// NewBuilder starts a sequence for the given descriptor and direction.
func NewBuilder(desc *abi.Descriptor, forUpcall bool) *Builder {
	return &Builder{desc: desc, forUpcall: forUpcall}
}

// AddArgument appends one high-level parameter and its bindings.
func (b *Builder) AddArgument(t Type, bs ...Binding) *Builder {
	if b.err != nil {
		return b
	}
	path := []string{"arg" + strconv.Itoa(len(b.args))}
	// upcall arguments box native storage into managed values
	if err := verifyBindings(bs, t, b.forUpcall, path); err != nil {
		b.err = err
		return b
	}
	b.funcType.Params = append(b.funcType.Params, t)
	b.args = append(b.args, bs)
	return b
}

// SetReturn sets the return type and its bindings.
func (b *Builder) SetReturn(t Type, bs ...Binding) *Builder {
	if b.err != nil {
		return b
	}
	// return direction is the inverse of the argument direction
	if err := verifyBindings(bs, t, !b.forUpcall, path("ret")); err != nil {
		b.err = err
		return b
	}
	b.funcType = b.funcType.Returning(t)
	b.ret = bs
	return b
}

func path(s string) []string { return []string{s} }

// Build finalizes the sequence, computing the return-buffer decision, its
// size, and the scratch allocation bound.
func (b *Builder) Build() (*CallingSequence, error) {
	if b.err != nil {
		return nil, b.err
	}

	cs := &CallingSequence{
		funcType:  b.funcType,
		args:      b.args,
		ret:       b.ret,
		forUpcall: b.forUpcall,
	}

	retMoves := 0
	for _, bind := range b.ret {
		switch m := bind.(type) {
		case VMStore:
			if b.forUpcall {
				retMoves++
				cs.returnBufferSize += b.desc.Arch.TypeSize(m.Storage.Class)
			}
		case VMLoad:
			if !b.forUpcall {
				retMoves++
				cs.returnBufferSize += b.desc.Arch.TypeSize(m.Storage.Class)
			}
		}
	}
	cs.needsReturnBuffer = retMoves > 1
	if !cs.needsReturnBuffer {
		cs.returnBufferSize = 0
	}

	cs.allocationSize = simulateScratch(b.args, b.ret)
	return cs, nil
}

// simulateScratch replays every Allocate and Copy against a virtual bump
// allocator to bound the per-call arena size.
func simulateScratch(args [][]Binding, ret []Binding) uint64 {
	var cur uint64
	bump := func(size, align uint64) {
		if align == 0 {
			align = 1
		}
		cur = alignUp(cur, align) + size
	}
	for _, bs := range args {
		for _, bind := range bs {
			switch v := bind.(type) {
			case Allocate:
				bump(v.Size, v.Align)
			case Copy:
				bump(v.Size, v.Align)
			}
		}
	}
	for _, bind := range ret {
		switch v := bind.(type) {
		case Allocate:
			bump(v.Size, v.Align)
		case Copy:
			bump(v.Size, v.Align)
		}
	}
	return cur
}

// verifyBindings simulates the operand stack for one binding list. In box
// direction the list starts empty and must end with exactly the declared
// managed value; in unbox direction it starts with the value and must end
// empty.
func verifyBindings(bs []Binding, t Type, box bool, path []string) error {
	var stack []Type
	if !box {
		stack = append(stack, t)
	}

	pop := func() (Type, bool) {
		if len(stack) == 0 {
			return Type{}, false
		}
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return top, true
	}

	for i, bind := range bs {
		bpath := append(append([]string{}, path...), bind.Tag().String()+"#"+strconv.Itoa(i))
		underflow := func() error {
			return errors.StackImbalance(errors.PhaseBind, bpath, len(stack), 1)
		}

		switch v := bind.(type) {
		case VMLoad:
			if v.Type == abi.Void {
				return errors.NonPrimitive(errors.PhaseBind, bpath, v.Type.String())
			}
			stack = append(stack, ScalarOf(v.Type))
		case VMStore:
			top, ok := pop()
			if !ok {
				return underflow()
			}
			if top.Aggregate || top.Native != v.Type {
				return errors.SignatureMismatch(errors.PhaseBind, bpath, top.String(), v.Type.String())
			}
		case BufferLoad:
			top, ok := pop()
			if !ok {
				return underflow()
			}
			if !top.Aggregate {
				return errors.SignatureMismatch(errors.PhaseBind, bpath, top.String(), "aggregate")
			}
			stack = append(stack, ScalarOf(v.Type))
		case BufferStore:
			top, ok := pop()
			if !ok {
				return underflow()
			}
			if top.Aggregate || top.Native != v.Type {
				return errors.SignatureMismatch(errors.PhaseBind, bpath, top.String(), v.Type.String())
			}
			buf, ok := pop()
			if !ok {
				return underflow()
			}
			if !buf.Aggregate {
				return errors.SignatureMismatch(errors.PhaseBind, bpath, buf.String(), "aggregate")
			}
		case Copy:
			top, ok := pop()
			if !ok {
				return underflow()
			}
			if !top.Aggregate {
				return errors.SignatureMismatch(errors.PhaseBind, bpath, top.String(), "aggregate")
			}
			stack = append(stack, AggregateOf(v.Size, v.Align))
		case Allocate:
			stack = append(stack, AggregateOf(v.Size, v.Align))
		case BoxAddress:
			top, ok := pop()
			if !ok {
				return underflow()
			}
			if top.Aggregate || top.Native != abi.Address {
				return errors.SignatureMismatch(errors.PhaseBind, bpath, top.String(), abi.Address.String())
			}
			stack = append(stack, AggregateOf(v.Size, 1))
		case UnboxAddress:
			top, ok := pop()
			if !ok {
				return underflow()
			}
			if !top.Aggregate {
				return errors.SignatureMismatch(errors.PhaseBind, bpath, top.String(), "aggregate")
			}
			stack = append(stack, ScalarOf(abi.Address))
		case Dup:
			if len(stack) == 0 {
				return underflow()
			}
			stack = append(stack, stack[len(stack)-1])
		case Cast:
			top, ok := pop()
			if !ok {
				return underflow()
			}
			if top.Aggregate || top.Native != v.From {
				return errors.SignatureMismatch(errors.PhaseBind, bpath, top.String(), v.From.String())
			}
			stack = append(stack, ScalarOf(v.To))
		default:
			return errors.Unsupported(errors.PhaseBind, "unknown binding tag "+bind.Tag().String())
		}
	}

	if box {
		if len(stack) != 1 {
			return errors.StackImbalance(errors.PhaseBind, path, len(stack), 1)
		}
		got := stack[0]
		if got.Aggregate != t.Aggregate || (!t.Aggregate && got.Native != t.Native) {
			return errors.SignatureMismatch(errors.PhaseBind, path, got.String(), t.String())
		}
		return nil
	}
	if len(stack) != 0 {
		return errors.StackImbalance(errors.PhaseBind, path, len(stack), 0)
	}
	return nil
}
