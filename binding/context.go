package binding

import (
	"sync/atomic"

	"github.com/wippyai/ffi-bridge/errors"
)

// AddressSpace maps between simulated native addresses and buffers. Stub
// backends supply one so boxed addresses and scratch allocations are
// reachable from the native side. A nil space still supports marshaling that
// never dereferences addresses.
type AddressSpace interface {
	// Allocate reserves native memory and returns it as an addressed buffer.
	Allocate(size, align uint64) (*Buffer, error)

	// Free releases memory previously returned by Allocate.
	Free(b *Buffer)

	// View resolves an address seen in a register into a buffer of the given
	// size.
	View(addr uintptr, size uint64) (*Buffer, error)
}

// liveContexts counts open allocation contexts. Tests use it to verify
// exactly-once release.
var liveContexts atomic.Int64

// LiveContexts returns the number of allocation contexts not yet released.
func LiveContexts() int64 { return liveContexts.Load() }

// Context is the scoped arena for one invocation's temporary native memory.
// It is created fresh per call, never shared across concurrent invocations,
// and must be released exactly once.
type Context struct {
	space   AddressSpace
	block   *Buffer // bounded arena, nil when scope-backed
	off     uint64
	allocs  []*Buffer // individually freed allocations (scope-backed mode)
	bounded bool
	closed  bool
}

// NewBoundedContext creates a context backed by one preallocated block of
// the given size. Allocation beyond the block fails the call without
// affecting other calls.
func NewBoundedContext(size uint64, space AddressSpace) (*Context, error) {
	ctx := &Context{space: space, bounded: true}
	if size > 0 {
		var err error
		if space != nil {
			ctx.block, err = space.Allocate(size, 16)
		} else {
			ctx.block = NewBuffer(make([]byte, size), 0)
		}
		if err != nil {
			return nil, err
		}
	}
	liveContexts.Add(1)
	return ctx, nil
}

// NewScopedContext creates a context with no size bound; each allocation is
// tracked and released at Close.
func NewScopedContext(space AddressSpace) *Context {
	liveContexts.Add(1)
	return &Context{space: space}
}

// Allocate returns size bytes aligned to align, valid until Close.
func (c *Context) Allocate(size, align uint64) (*Buffer, error) {
	if c.closed {
		return nil, errors.DoubleRelease(errors.PhaseInterp)
	}
	if align == 0 {
		align = 1
	}
	if c.bounded {
		off := alignUp(c.off, align)
		if c.block == nil || off+size > c.block.Size() {
			var remaining uint64
			if c.block != nil && off < c.block.Size() {
				remaining = c.block.Size() - off
			}
			return nil, errors.Exhausted(errors.PhaseInterp, size, remaining)
		}
		c.off = off + size
		return c.block.Slice(off, size)
	}
	var b *Buffer
	var err error
	if c.space != nil {
		b, err = c.space.Allocate(size, align)
		if err != nil {
			return nil, err
		}
		c.allocs = append(c.allocs, b)
	} else {
		b = NewBuffer(make([]byte, size), 0)
	}
	return b, nil
}

// View resolves a native address through the backing address space.
func (c *Context) View(addr uintptr, size uint64) (*Buffer, error) {
	if c.space == nil {
		return nil, errors.Unsupported(errors.PhaseInterp, "no address space to resolve boxed address")
	}
	return c.space.View(addr, size)
}

// Close releases the context. A second Close is reported, not ignored:
// double release indicates a lifecycle bug in the caller.
func (c *Context) Close() error {
	if c.closed {
		return errors.DoubleRelease(errors.PhaseInterp)
	}
	c.closed = true
	if c.space != nil {
		if c.block != nil {
			c.space.Free(c.block)
		}
		for _, b := range c.allocs {
			c.space.Free(b)
		}
	}
	c.block = nil
	c.allocs = nil
	liveContexts.Add(-1)
	return nil
}

func alignUp(v, align uint64) uint64 {
	return (v + align - 1) &^ (align - 1)
}
