package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/wippyai/ffi-bridge/abi"
	"github.com/wippyai/ffi-bridge/arrange"
	"github.com/wippyai/ffi-bridge/binding"
)

func main() {
	var (
		sig         = flag.String("sig", "", "Signature, e.g. (i32,f64)->f64 or (struct24)->void")
		abiName     = flag.String("abi", "sysv", "Calling convention: sysv, win64, aarch64, wasm32")
		down        = flag.Bool("down", false, "Arrange for the downcall direction")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Parse()

	if *interactive {
		if err := runInteractive(*sig, *abiName); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if *sig == "" {
		fmt.Fprintln(os.Stderr, "Usage: abidump -sig '(i32,f64)->f64' [-abi sysv|win64|aarch64|wasm32] [-down]")
		fmt.Fprintln(os.Stderr, "       abidump -i  (interactive mode)")
		os.Exit(1)
	}

	if err := dump(*sig, *abiName, *down); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func dump(sig, abiName string, down bool) error {
	desc, err := descriptorByName(abiName)
	if err != nil {
		return err
	}
	ft, err := parseSignature(sig)
	if err != nil {
		return err
	}

	var seq *binding.CallingSequence
	if down {
		seq, err = arrange.Downcall(desc, ft)
	} else {
		seq, err = arrange.Upcall(desc, ft)
	}
	if err != nil {
		return err
	}

	fmt.Print(renderSequence(desc, seq, down))
	return nil
}

func descriptorByName(name string) (*abi.Descriptor, error) {
	switch strings.ToLower(name) {
	case "sysv", "amd64":
		return abi.SysVAMD64(), nil
	case "win64", "windows":
		return abi.Win64(), nil
	case "aarch64", "arm64":
		return abi.AArch64(), nil
	case "wasm32", "wasm":
		return abi.Wasm32(), nil
	default:
		return nil, fmt.Errorf("unknown calling convention %q", name)
	}
}

// parseSignature reads the compact form "(t1,t2,...)->ret" where each type is
// one of i8 i16 i32 i64 f32 f64 ptr, or structN for an N-byte aggregate.
func parseSignature(s string) (binding.FuncType, error) {
	s = strings.TrimSpace(s)
	open := strings.IndexByte(s, '(')
	closeIdx := strings.IndexByte(s, ')')
	if open != 0 || closeIdx < 0 {
		return binding.FuncType{}, fmt.Errorf("signature %q: want (params)->ret", s)
	}

	var params []binding.Type
	inner := strings.TrimSpace(s[1:closeIdx])
	if inner != "" {
		for _, tok := range strings.Split(inner, ",") {
			t, err := parseType(strings.TrimSpace(tok))
			if err != nil {
				return binding.FuncType{}, err
			}
			params = append(params, t)
		}
	}
	ft := binding.Signature(params...)

	rest := strings.TrimSpace(s[closeIdx+1:])
	rest = strings.TrimPrefix(rest, "->")
	rest = strings.TrimSpace(rest)
	if rest == "" || rest == "void" {
		return ft, nil
	}
	ret, err := parseType(rest)
	if err != nil {
		return binding.FuncType{}, err
	}
	return ft.Returning(ret), nil
}

func parseType(tok string) (binding.Type, error) {
	switch tok {
	case "i8":
		return binding.ScalarOf(abi.I8), nil
	case "i16":
		return binding.ScalarOf(abi.I16), nil
	case "i32":
		return binding.ScalarOf(abi.I32), nil
	case "i64":
		return binding.ScalarOf(abi.I64), nil
	case "f32":
		return binding.ScalarOf(abi.F32), nil
	case "f64":
		return binding.ScalarOf(abi.F64), nil
	case "ptr", "address":
		return binding.ScalarOf(abi.Address), nil
	}
	if n, ok := strings.CutPrefix(tok, "struct"); ok {
		size, err := strconv.ParseUint(n, 10, 32)
		if err != nil || size == 0 {
			return binding.Type{}, fmt.Errorf("bad aggregate size in %q", tok)
		}
		return binding.AggregateOf(size, 8), nil
	}
	return binding.Type{}, fmt.Errorf("unknown type %q", tok)
}

func renderSequence(desc *abi.Descriptor, seq *binding.CallingSequence, down bool) string {
	var b strings.Builder

	dir := "upcall"
	if down {
		dir = "downcall"
	}
	fmt.Fprintf(&b, "Convention: %s (%s)\n", desc.Name, dir)
	fmt.Fprintf(&b, "Signature:  %s\n", seq.FuncType().String())

	lt, err := binding.LowTypeOf(seq)
	if err == nil && seq.ForUpcall() {
		fmt.Fprintf(&b, "Low-level:  %s\n", lt.String())
	}

	fmt.Fprintf(&b, "\nReturn buffer: %v", seq.NeedsReturnBuffer())
	if seq.NeedsReturnBuffer() {
		fmt.Fprintf(&b, " (%d bytes)", seq.ReturnBufferSize())
	}
	fmt.Fprintf(&b, "\nScratch:       %d bytes\n", seq.AllocationSize())

	for i := 0; i < seq.ArgCount(); i++ {
		fmt.Fprintf(&b, "\narg%d:\n", i)
		writeBindings(&b, desc, seq.ArgBindings(i))
	}
	if ret := seq.ReturnBindings(); len(ret) > 0 {
		fmt.Fprintf(&b, "\nret:\n")
		writeBindings(&b, desc, ret)
	}
	return b.String()
}

func writeBindings(b *strings.Builder, desc *abi.Descriptor, bs []binding.Binding) {
	for _, bind := range bs {
		line := bind.String()
		switch v := bind.(type) {
		case binding.VMLoad:
			line += "  ; " + desc.RegisterName(v.Storage)
		case binding.VMStore:
			line += "  ; " + desc.RegisterName(v.Storage)
		}
		fmt.Fprintf(b, "  %s\n", line)
	}
}
