package binding

import (
	"testing"

	"github.com/wippyai/ffi-bridge/abi"
	"github.com/wippyai/ffi-bridge/errors"
)

func TestBuilder_SingleRegisterReturn(t *testing.T) {
	desc := abi.SysVAMD64()
	seq, err := NewBuilder(desc, true).
		AddArgument(ScalarOf(abi.I64), VMLoad{Storage: abi.IntReg(0), Type: abi.I64}).
		SetReturn(ScalarOf(abi.I64), VMStore{Storage: abi.IntReg(0), Type: abi.I64}).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if seq.NeedsReturnBuffer() {
		t.Fatal("single return move must not need a return buffer")
	}
	if seq.ReturnBufferSize() != 0 {
		t.Fatalf("expected zero return buffer size, got %d", seq.ReturnBufferSize())
	}
}

func TestBuilder_MultiMoveReturnNeedsBuffer(t *testing.T) {
	desc := abi.SysVAMD64()
	ret := AggregateOf(24, 8)
	seq, err := NewBuilder(desc, true).
		SetReturn(ret,
			Dup{},
			BufferLoad{Offset: 0, Type: abi.I64},
			VMStore{Storage: abi.IntReg(0), Type: abi.I64},
			Dup{},
			BufferLoad{Offset: 8, Type: abi.I64},
			VMStore{Storage: abi.IntReg(1), Type: abi.I64},
			BufferLoad{Offset: 16, Type: abi.I64},
			VMStore{Storage: abi.IntReg(2), Type: abi.I64},
		).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if !seq.NeedsReturnBuffer() {
		t.Fatal("three return moves must need a return buffer")
	}
	if seq.ReturnBufferSize() != 24 {
		t.Fatalf("expected 24-byte return buffer, got %d", seq.ReturnBufferSize())
	}
	if got := len(seq.RetMoves()); got != 3 {
		t.Fatalf("expected 3 return moves, got %d", got)
	}
}

func TestBuilder_RejectsBadSequences(t *testing.T) {
	desc := abi.SysVAMD64()
	tests := []struct {
		name string
		kind errors.Kind
		bs   []Binding
		typ  Type
	}{
		{
			name: "empty box list",
			kind: errors.KindStackImbalance,
			bs:   nil,
			typ:  ScalarOf(abi.I32),
		},
		{
			name: "store underflow",
			kind: errors.KindStackImbalance,
			bs:   []Binding{VMStore{Storage: abi.IntReg(0), Type: abi.I32}},
			typ:  ScalarOf(abi.I32),
		},
		{
			name: "void load",
			kind: errors.KindNonPrimitive,
			bs:   []Binding{VMLoad{Storage: abi.IntReg(0), Type: abi.Void}},
			typ:  ScalarOf(abi.I32),
		},
		{
			name: "cast from wrong type",
			kind: errors.KindSignatureMismatch,
			bs: []Binding{
				VMLoad{Storage: abi.IntReg(0), Type: abi.I64},
				Cast{From: abi.I32, To: abi.I8},
			},
			typ: ScalarOf(abi.I8),
		},
		{
			name: "result type mismatch",
			kind: errors.KindSignatureMismatch,
			bs:   []Binding{VMLoad{Storage: abi.IntReg(0), Type: abi.I64}},
			typ:  ScalarOf(abi.I32),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewBuilder(desc, true).
				AddArgument(tt.typ, tt.bs...).
				Build()
			if err == nil {
				t.Fatal("expected construction to fail")
			}
			e, ok := err.(*errors.Error)
			if !ok {
				t.Fatalf("expected structured error, got %T", err)
			}
			if e.Kind != tt.kind {
				t.Fatalf("expected kind %s, got %s (%v)", tt.kind, e.Kind, err)
			}
		})
	}
}

func TestBuilder_AllocationSize(t *testing.T) {
	desc := abi.SysVAMD64()
	seq, err := NewBuilder(desc, true).
		AddArgument(AggregateOf(16, 8),
			Allocate{Size: 16, Align: 8},
			Dup{},
			VMLoad{Storage: abi.IntReg(0), Type: abi.I64},
			BufferStore{Offset: 0, Type: abi.I64},
			Dup{},
			VMLoad{Storage: abi.IntReg(1), Type: abi.I64},
			BufferStore{Offset: 8, Type: abi.I64},
		).
		AddArgument(AggregateOf(8, 8),
			Allocate{Size: 8, Align: 8},
			Dup{},
			VMLoad{Storage: abi.IntReg(2), Type: abi.I64},
			BufferStore{Offset: 0, Type: abi.I64},
		).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if got := seq.AllocationSize(); got != 24 {
		t.Fatalf("expected 24 bytes of scratch, got %d", got)
	}
}

func TestCallingSequence_MoveOrder(t *testing.T) {
	desc := abi.SysVAMD64()
	seq, err := NewBuilder(desc, true).
		AddArgument(ScalarOf(abi.I32), VMLoad{Storage: abi.IntReg(0), Type: abi.I32}).
		AddArgument(ScalarOf(abi.F64), VMLoad{Storage: abi.FloatReg(0), Type: abi.F64}).
		AddArgument(ScalarOf(abi.I64), VMLoad{Storage: abi.IntReg(1), Type: abi.I64}).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	moves := seq.ArgMoves()
	want := []abi.VMStorage{abi.IntReg(0), abi.FloatReg(0), abi.IntReg(1)}
	if len(moves) != len(want) {
		t.Fatalf("expected %d moves, got %d", len(want), len(moves))
	}
	for i, m := range moves {
		if m.Storage != want[i] {
			t.Fatalf("move %d: expected %s, got %s", i, want[i], m.Storage)
		}
	}
}
