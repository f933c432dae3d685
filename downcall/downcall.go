package downcall

import (
	"strconv"
	"strings"
	"sync"

	ffibridge "github.com/wippyai/ffi-bridge"
	"github.com/wippyai/ffi-bridge/abi"
	"github.com/wippyai/ffi-bridge/binding"
	"github.com/wippyai/ffi-bridge/errors"
	"github.com/wippyai/ffi-bridge/stubgen"
)

// NativeEntryPoint is a reusable trampoline for one downcall shape. Entry
// points are interned: every request for the same shape against the same
// backend yields the same instance, so a hot call site never rebuilds its
// trampoline.
type NativeEntryPoint struct {
	name            string
	typ             binding.LowType
	invoker         stubgen.Invoker
	needsTransition bool
}

// Name returns the symbol name the entry point was built for. Informational
// only; the target address travels per call.
func (ep *NativeEntryPoint) Name() string { return ep.name }

// Type returns the low-level call shape.
func (ep *NativeEntryPoint) Type() binding.LowType { return ep.typ }

// NeedsTransition reports whether calls through this entry point perform a
// managed-to-native state transition.
func (ep *NativeEntryPoint) NeedsTransition() bool { return ep.needsTransition }

// Invoker returns the backend trampoline. Shared across all holders of this
// entry point.
func (ep *NativeEntryPoint) Invoker() stubgen.Invoker { return ep.invoker }

// Call runs the trampoline. Slot zero is the target address; slot one the
// return-buffer address when the shape carries one.
func (ep *NativeEntryPoint) Call(ll ...uint64) (uint64, error) {
	return ep.invoker(ll)
}

// cacheKey identifies one trampoline: the backend, the low-level shape, the
// shadow space, and the compact-encoded storage assignment. Name is
// deliberately absent; two symbols with the same shape share a trampoline.
type cacheKey struct {
	gen             stubgen.Generator
	typ             string
	shadow          int
	args            string
	rets            string
	needsTransition bool
}

var cache sync.Map // cacheKey -> *NativeEntryPoint

// MakeEntryPoint builds or reuses the entry point for a downcall shape.
// Concurrent first requests may each build a candidate; exactly one wins the
// cache and the rest are discarded, so all callers share one invoker.
func MakeEntryPoint(name string, desc *abi.Descriptor, argStorages, retStorages []abi.VMStorage, needsTransition bool, lt binding.LowType, needsReturnBuffer bool, gen stubgen.Generator) (*NativeEntryPoint, error) {
	if (len(retStorages) > 1) != needsReturnBuffer {
		return nil, errors.ReturnBufferMismatch(errors.PhaseDowncall, len(retStorages), needsReturnBuffer)
	}
	if len(lt.Params) == 0 || lt.Params[0] != abi.Address {
		return nil, errors.SignatureMismatch(errors.PhaseDowncall, path(name),
			lt.String(), "leading address parameter")
	}
	if needsReturnBuffer && (len(lt.Params) < 2 || lt.Params[1] != abi.Address) {
		return nil, errors.SignatureMismatch(errors.PhaseDowncall, path(name),
			lt.String(), "return-buffer address as second parameter")
	}

	key := cacheKey{
		gen:             gen,
		typ:             lt.String(),
		shadow:          desc.ShadowSpaceBytes,
		args:            encodeStorages(argStorages),
		rets:            encodeStorages(retStorages),
		needsTransition: needsTransition,
	}

	if cached, ok := cache.Load(key); ok {
		return cached.(*NativeEntryPoint), nil
	}

	conv := stubgen.CallRegs{Args: argStorages, Rets: retStorages}
	invoker, err := gen.MakeInvoker(desc, lt, conv, needsReturnBuffer)
	if err != nil {
		return nil, err
	}

	candidate := &NativeEntryPoint{
		name:            name,
		typ:             lt,
		invoker:         invoker,
		needsTransition: needsTransition,
	}
	actual, _ := cache.LoadOrStore(key, candidate)
	return actual.(*NativeEntryPoint), nil
}

// Bound couples an entry point with a resolved target address, so call
// sites pass only the live arguments.
type Bound struct {
	ep   *NativeEntryPoint
	addr uintptr
}

// Bind resolves name through r and fixes the entry point's target.
func (ep *NativeEntryPoint) Bind(r ffibridge.Resolver, name string) (*Bound, error) {
	addr, err := r.Resolve(name)
	if err != nil {
		return nil, err
	}
	return &Bound{ep: ep, addr: addr}, nil
}

// Call runs the trampoline against the bound target. When the shape carries
// a return buffer its address is the first argument.
func (b *Bound) Call(args ...uint64) (uint64, error) {
	ll := make([]uint64, 0, len(args)+1)
	ll = append(ll, uint64(b.addr))
	ll = append(ll, args...)
	return b.ep.invoker(ll)
}

// encodeStorages packs a storage list into its compact identifier form.
func encodeStorages(storages []abi.VMStorage) string {
	var b strings.Builder
	for i, s := range storages {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatUint(uint64(s.Encode()), 16))
	}
	return b.String()
}

func path(name string) []string { return []string{name} }
