package errors

import (
	stderrors "errors"
	"strings"
	"testing"
)

func TestError_Format(t *testing.T) {
	err := New(PhaseBind, KindSignatureMismatch).
		Path("arg1", "cast#2").
		Type("i32").
		Detail("want %s", "f64").
		Build()

	msg := err.Error()
	for _, part := range []string{"[bind]", "signature_mismatch", "arg1.cast#2", "i32", "want f64"} {
		if !strings.Contains(msg, part) {
			t.Fatalf("message %q missing %q", msg, part)
		}
	}
}

func TestError_IsMatchesPhaseAndKind(t *testing.T) {
	err := Unsupported(PhaseSpecialize, "whatever")

	if !stderrors.Is(err, &Error{Phase: PhaseSpecialize, Kind: KindUnsupported}) {
		t.Fatal("expected match on phase and kind")
	}
	if stderrors.Is(err, &Error{Phase: PhaseUpcall, Kind: KindUnsupported}) {
		t.Fatal("must not match a different phase")
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := stderrors.New("root cause")
	err := Wrap(PhaseStubgen, KindInvalidInput, cause, "wrapped")

	if !stderrors.Is(err, cause) {
		t.Fatal("expected cause to be reachable via Unwrap")
	}
	if !strings.Contains(err.Error(), "root cause") {
		t.Fatalf("message %q missing cause", err.Error())
	}
}

func TestConvenienceConstructors(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		kind Kind
	}{
		{"unresolved", UnresolvedSymbol("puts", nil), KindUnresolvedSymbol},
		{"exhausted", Exhausted(PhaseInterp, 64, 16), KindExhausted},
		{"scope closed", ScopeClosed(PhaseUpcall, "stub"), KindScopeClosed},
		{"double release", DoubleRelease(PhaseInterp), KindDoubleRelease},
		{"target abort", TargetAbort("boom"), KindTargetAbort},
		{"return buffer", ReturnBufferMismatch(PhaseDowncall, 3, false), KindReturnBuffer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Kind != tt.kind {
				t.Fatalf("expected kind %s, got %s", tt.kind, tt.err.Kind)
			}
			if tt.err.Error() == "" {
				t.Fatal("expected non-empty message")
			}
		})
	}
}
