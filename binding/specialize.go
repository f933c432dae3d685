package binding

import (
	"github.com/wippyai/ffi-bridge/abi"
	"github.com/wippyai/ffi-bridge/errors"
)

// Target is the managed callable behind an upcall stub. It receives the
// boxed high-level arguments (the implicit return buffer, when present, is
// consumed by the bridge and never reaches the target).
type Target func(args []any) (any, error)

// Handle is an executable transformation with an exact low-level shape:
// every parameter and the return are primitive, one slot per argument move.
type Handle struct {
	typ LowType
	fn  func(ll []uint64) (uint64, error)
}

// NewHandle wraps fn with its declared low-level type. The upcall builder
// verifies the declared type against the computed one before registration.
func NewHandle(typ LowType, fn func(ll []uint64) (uint64, error)) *Handle {
	return &Handle{typ: typ, fn: fn}
}

// Type returns the low-level call shape.
func (h *Handle) Type() LowType { return h.typ }

// Invoke runs the transformation over raw low-level slots.
func (h *Handle) Invoke(ll []uint64) (uint64, error) {
	return h.fn(ll)
}

// machine is the per-call execution state threaded through compiled stages.
type machine struct {
	ll     []uint64
	ctx    *Context
	retBuf *Buffer
	stack  []any
}

func (m *machine) push(v any) {
	m.stack = append(m.stack, v)
}

func (m *machine) pop() any {
	top := m.stack[len(m.stack)-1]
	m.stack = m.stack[:len(m.stack)-1]
	return top
}

// specOp is one compiled binding stage. All constants (slot indices, types,
// offsets) are captured at specialization time; executing a stage performs
// no tag dispatch.
type specOp func(m *machine) error

// Specializer compiles calling sequences directly into composed executable
// transformations, eliminating per-call interpretation.
type Specializer struct {
	desc  *abi.Descriptor
	space AddressSpace
}

// NewSpecializer creates a specializer for one descriptor. The address
// space backs scratch allocation and boxed addresses; nil is accepted for
// sequences that never touch native memory.
func NewSpecializer(desc *abi.Descriptor, space AddressSpace) *Specializer {
	return &Specializer{desc: desc, space: space}
}

// LowTypeOf computes the low-level call shape a calling sequence exposes to
// native code: one parameter per argument move, and the single return move's
// type (Void when there is none or when a return buffer carries the result).
func LowTypeOf(seq *CallingSequence) (LowType, error) {
	argMoves := seq.ArgMoves()
	retMoves := seq.RetMoves()

	lt := LowType{Ret: abi.Void}
	for _, m := range argMoves {
		if m.Type == abi.Void {
			return LowType{}, errors.NonPrimitive(errors.PhaseSpecialize, nil, m.Type.String())
		}
		lt.Params = append(lt.Params, m.Type)
	}
	if !seq.NeedsReturnBuffer() && len(retMoves) == 1 {
		lt.Ret = retMoves[0].Type
	}
	return lt, nil
}

// slotIndex maps each argument move's storage to its low-level slot.
func slotIndex(moves []VMLoad) map[abi.VMStorage]int {
	idx := make(map[abi.VMStorage]int, len(moves))
	for i, m := range moves {
		idx[m.Storage] = i
	}
	return idx
}

// Specialize folds a calling sequence around the target into one pipeline.
// Return bindings are folded first, because an implicit return buffer adds a
// leading parameter that argument specialization must account for; each
// argument's bindings then become a filter stage sharing the single
// allocation context. The result's type matches the computed low-level
// shape exactly; all branching is resolved here, none remains per call.
func (s *Specializer) Specialize(target Target, seq *CallingSequence) (*Handle, error) {
	if !seq.ForUpcall() {
		return nil, errors.Unsupported(errors.PhaseSpecialize, "specializing a downcall sequence")
	}

	lt, err := LowTypeOf(seq)
	if err != nil {
		return nil, err
	}

	slots := slotIndex(seq.ArgMoves())

	retOps, err := s.compileReturn(seq)
	if err != nil {
		return nil, err
	}

	argCount := seq.ArgCount()
	argOps := make([][]specOp, argCount)
	for i := 0; i < argCount; i++ {
		ops, err := s.compileArgument(seq.ArgBindings(i), slots, i)
		if err != nil {
			return nil, err
		}
		argOps[i] = ops
	}

	needsRetBuf := seq.NeedsReturnBuffer()
	allocSize := seq.AllocationSize()
	space := s.space
	hasRet := len(seq.ReturnBindings()) > 0

	fn := func(ll []uint64) (retBits uint64, err error) {
		var ctx *Context
		if allocSize > 0 {
			ctx, err = NewBoundedContext(allocSize, space)
			if err != nil {
				return 0, err
			}
		} else {
			ctx = NewScopedContext(space)
		}
		defer ctx.Close()

		m := &machine{ll: ll, ctx: ctx, stack: make([]any, 0, 4)}

		hlArgs := make([]any, argCount)
		for i, ops := range argOps {
			m.stack = m.stack[:0]
			for _, op := range ops {
				if err := op(m); err != nil {
					return 0, err
				}
			}
			hlArgs[i] = m.pop()
		}

		targetArgs := hlArgs
		if needsRetBuf {
			buf, ok := hlArgs[0].(*Buffer)
			if !ok {
				return 0, errors.New(errors.PhaseSpecialize, errors.KindReturnBuffer).
					Detail("leading parameter did not box a return buffer").
					Build()
			}
			m.retBuf = buf
			targetArgs = hlArgs[1:]
		}

		res, err := target(targetArgs)
		if err != nil {
			return 0, err
		}

		if hasRet {
			m.stack = m.stack[:0]
			m.push(res)
			for _, op := range retOps {
				if err := op(m); err != nil {
					return 0, err
				}
			}
			retBits = m.retBits()
		}
		return retBits, nil
	}

	return &Handle{typ: lt, fn: fn}, nil
}

// retBits holds the single-register return value. The slot doubles as
// scratch so compiled VMStore stages stay closures over the machine only.
func (m *machine) retBits() uint64 {
	if len(m.stack) == 1 {
		if bits, ok := m.stack[0].(uint64); ok {
			return bits
		}
	}
	return 0
}

// compileArgument compiles one argument's bindings into box-direction
// stages: native slots in, one managed value out.
func (s *Specializer) compileArgument(bindings []Binding, slots map[abi.VMStorage]int, argIdx int) ([]specOp, error) {
	ops := make([]specOp, 0, len(bindings))
	for _, bind := range bindings {
		switch v := bind.(type) {
		case VMLoad:
			k, ok := slots[v.Storage]
			if !ok {
				return nil, errors.InvalidStorage(errors.PhaseSpecialize, v.Storage.String())
			}
			t := v.Type
			ops = append(ops, func(m *machine) error {
				m.push(BitsToValue(t, m.ll[k]))
				return nil
			})
		case VMStore:
			return nil, errors.Unsupported(errors.PhaseSpecialize, "vm-store in argument bindings")
		default:
			op, err := compileShared(bind)
			if err != nil {
				return nil, err
			}
			ops = append(ops, op)
		}
	}
	return ops, nil
}

// compileReturn compiles the return bindings into unbox-direction stages.
// Bindings are folded in reverse declaration order so the return-buffer
// write offset can be computed in reverse, mirroring how nested conversions
// must be undone; the resulting stages still execute forward.
func (s *Specializer) compileReturn(seq *CallingSequence) ([]specOp, error) {
	bindings := seq.ReturnBindings()
	if len(bindings) == 0 {
		return nil, nil
	}

	needsRetBuf := seq.NeedsReturnBuffer()
	offsets := make(map[int]uint64, len(bindings))
	if needsRetBuf {
		off := seq.ReturnBufferSize()
		for j := len(bindings) - 1; j >= 0; j-- {
			if st, ok := bindings[j].(VMStore); ok {
				off -= s.desc.Arch.TypeSize(st.Storage.Class)
				offsets[j] = off
			}
		}
	}

	ops := make([]specOp, 0, len(bindings))
	for j, bind := range bindings {
		switch v := bind.(type) {
		case VMStore:
			t := v.Type
			if needsRetBuf {
				off := offsets[j]
				slot := s.desc.Arch.TypeSize(v.Storage.Class)
				ops = append(ops, func(m *machine) error {
					bits, err := ValueToBits(t, m.pop())
					if err != nil {
						return err
					}
					return m.retBuf.StoreOverSized(off, slot, bits)
				})
			} else {
				ops = append(ops, func(m *machine) error {
					bits, err := ValueToBits(t, m.pop())
					if err != nil {
						return err
					}
					m.push(bits) // single-register return
					return nil
				})
			}
		case VMLoad:
			return nil, errors.Unsupported(errors.PhaseSpecialize, "vm-load in upcall return bindings")
		default:
			op, err := compileShared(bind)
			if err != nil {
				return nil, err
			}
			ops = append(ops, op)
		}
	}
	return ops, nil
}

// compileShared compiles the direction-neutral variants.
func compileShared(bind Binding) (specOp, error) {
	switch v := bind.(type) {
	case BufferLoad:
		off, t := v.Offset, v.Type
		return func(m *machine) error {
			buf, err := popBuffer(m.pop())
			if err != nil {
				return err
			}
			bits, err := buf.Load(t, off)
			if err != nil {
				return err
			}
			m.push(BitsToValue(t, bits))
			return nil
		}, nil
	case BufferStore:
		off, t := v.Offset, v.Type
		return func(m *machine) error {
			bits, err := ValueToBits(t, m.pop())
			if err != nil {
				return err
			}
			buf, err := popBuffer(m.pop())
			if err != nil {
				return err
			}
			return buf.Store(t, off, bits)
		}, nil
	case Copy:
		size, align := v.Size, v.Align
		return func(m *machine) error {
			src, err := popBuffer(m.pop())
			if err != nil {
				return err
			}
			dst, err := m.ctx.Allocate(size, align)
			if err != nil {
				return err
			}
			dst.CopyFrom(src)
			m.push(dst)
			return nil
		}, nil
	case Allocate:
		size, align := v.Size, v.Align
		return func(m *machine) error {
			buf, err := m.ctx.Allocate(size, align)
			if err != nil {
				return err
			}
			m.push(buf)
			return nil
		}, nil
	case BoxAddress:
		size := v.Size
		return func(m *machine) error {
			addr, err := popAddress(m.pop())
			if err != nil {
				return err
			}
			buf, err := m.ctx.View(addr, size)
			if err != nil {
				return err
			}
			m.push(buf)
			return nil
		}, nil
	case UnboxAddress:
		return func(m *machine) error {
			buf, err := popBuffer(m.pop())
			if err != nil {
				return err
			}
			m.push(buf.Addr())
			return nil
		}, nil
	case Dup:
		return func(m *machine) error {
			m.push(m.stack[len(m.stack)-1])
			return nil
		}, nil
	case Cast:
		from, to := v.From, v.To
		return func(m *machine) error {
			converted, err := Convert(from, to, m.pop())
			if err != nil {
				return err
			}
			m.push(converted)
			return nil
		}, nil
	default:
		return nil, errors.Unsupported(errors.PhaseSpecialize, "unknown binding tag "+bind.Tag().String())
	}
}
