package hostmem

import (
	"sync"
	"sync/atomic"
	"unsafe"

	"golang.org/x/exp/slog"
)

// HostAllocator adapts an UpstreamAllocator to the host allocation callback
// contract of a Vulkan driver. It does no memory management of its own: it
// extends every request with a hidden tag header, delegates to the upstream,
// and keeps usage counters.
//
// The three callbacks may be invoked concurrently from any thread. The only
// mutable state shared between them is the pair of atomic counters, so no
// locking is performed- the upstream must itself be safe for concurrent use.
// Operations on a single outstanding pointer are serialized by the driver per
// the Vulkan spec, not by this package.
type HostAllocator struct {
	upstream UpstreamAllocator
	logger   *slog.Logger

	// Payload bytes currently allocated through the callbacks. Tag headers and
	// alignment padding are excluded.
	allocated atomic.Int64
	// Bytes the driver reports managing itself via the internal allocation
	// notifications. Never touched by the three allocation callbacks.
	driverAllocated atomic.Int64

	liveAllocations liveRegistry

	handleOnce sync.Once
	userData   unsafe.Pointer

	vulkanOnce      sync.Once
	vulkanCallbacks unsafe.Pointer
}

// New creates a HostAllocator delegating to the provided upstream. A nil
// upstream selects CMallocAllocator. A nil logger selects slog.Default.
func New(logger *slog.Logger, upstream UpstreamAllocator) *HostAllocator {
	if logger == nil {
		logger = slog.Default()
	}
	if upstream == nil {
		upstream = CMallocAllocator{}
	}

	return &HostAllocator{
		upstream: upstream,
		logger:   logger,
	}
}

// Allocate services PFN_vkAllocationFunction: it returns a pointer to at least
// size bytes aligned to alignment, or nil on any failure. Failure has no side
// effects.
func (a *HostAllocator) Allocate(size int, alignment uint, scope SystemAllocationScope) unsafe.Pointer {
	payload := Layout{
		Size:      size,
		Alignment: alignment,
	}

	combined, payloadOffset, err := extendForTag(payload)
	if err != nil {
		a.logger.Debug("hostmem: rejecting allocation request",
			slog.Int("Size", size),
			slog.Uint64("Alignment", uint64(alignment)),
			slog.Any("error", err),
		)
		return nil
	}

	base, err := a.upstream.Allocate(combined)
	if err != nil {
		a.logger.Debug("hostmem: upstream failed to allocate",
			slog.Int("Size", combined.Size),
			slog.Uint64("Alignment", uint64(combined.Alignment)),
			slog.Any("error", err),
		)
		return nil
	}

	payloadPtr := writeTag(base, payloadOffset, payload, scope)
	a.allocated.Add(int64(size))
	a.liveAllocations.insert(payloadPtr, payload)

	return payloadPtr
}

// Reallocate services PFN_vkReallocationFunction. On success the original
// pointer is invalidated and the first min(old, new) payload bytes are
// preserved at the returned pointer. On failure it returns nil and the
// original allocation remains fully intact- nothing about it is disturbed
// until the new allocation is known to have succeeded.
//
// Per the Vulkan contract, a nil original behaves as Allocate and a zero size
// behaves as Free (returning nil).
func (a *HostAllocator) Reallocate(original unsafe.Pointer, size int, alignment uint, scope SystemAllocationScope) unsafe.Pointer {
	if original == nil {
		return a.Allocate(size, alignment, scope)
	}
	if size == 0 {
		a.Free(original)
		return nil
	}

	debugValidateTag(original)

	payload := Layout{
		Size:      size,
		Alignment: alignment,
	}
	newCombined, newPayloadOffset, err := extendForTag(payload)
	if err != nil {
		a.logger.Debug("hostmem: rejecting reallocation request",
			slog.Int("Size", size),
			slog.Uint64("Alignment", uint64(alignment)),
			slog.Any("error", err),
		)
		return nil
	}

	// Snapshot the old tag before anything moves- the tag memory itself
	// relocates along with the block.
	oldTag := tagOf(original)
	oldSize := oldTag.size
	oldCombined, oldPayloadOffset := oldTag.combinedLayout()
	base := oldTag.base

	var newBase unsafe.Pointer
	if newPayloadOffset == oldPayloadOffset {
		// The payload keeps its offset within the combined block, so a
		// block-level grow or shrink preserves it in place.
		if newCombined.Size > oldCombined.Size {
			newBase, err = a.upstream.Grow(base, oldCombined, newCombined)
		} else {
			newBase, err = a.upstream.Shrink(base, oldCombined, newCombined)
		}
		if err != nil {
			a.logger.Debug("hostmem: upstream failed to reallocate",
				slog.Int("OldSize", oldCombined.Size),
				slog.Int("NewSize", newCombined.Size),
				slog.Any("error", err),
			)
			return nil
		}
	} else {
		// The alignment change moved the payload's offset. A block-level
		// grow or shrink only preserves bytes at their old offsets, which
		// can lose the payload entirely when the block shrinks, so allocate
		// fresh and copy the payload directly.
		newBase, err = a.upstream.Allocate(newCombined)
		if err != nil {
			a.logger.Debug("hostmem: upstream failed to reallocate",
				slog.Int("OldSize", oldCombined.Size),
				slog.Int("NewSize", newCombined.Size),
				slog.Any("error", err),
			)
			return nil
		}

		preserveBytes := oldSize
		if size < preserveBytes {
			preserveBytes = size
		}
		if preserveBytes > 0 {
			newPosition := unsafe.Slice((*byte)(unsafe.Add(newBase, newPayloadOffset)), preserveBytes)
			oldPosition := unsafe.Slice((*byte)(original), preserveBytes)
			copy(newPosition, oldPosition)
		}
		a.upstream.Deallocate(base, oldCombined)
	}

	a.liveAllocations.remove(original)
	payloadPtr := writeTag(newBase, newPayloadOffset, payload, scope)
	a.allocated.Add(int64(size - oldSize))
	a.liveAllocations.insert(payloadPtr, payload)

	return payloadPtr
}

// Free services PFN_vkFreeFunction. A nil original is a no-op. Freeing a
// pointer this allocator never issued is caller misuse: it panics under the
// debug_mem_utils build tag and is undefined otherwise.
func (a *HostAllocator) Free(original unsafe.Pointer) {
	if original == nil {
		return
	}

	debugValidateTag(original)
	a.liveAllocations.remove(original)

	tag := tagOf(original)
	size := tag.size
	base := tag.base
	combined, _ := tag.combinedLayout()

	a.upstream.Deallocate(base, combined)
	a.allocated.Add(-int64(size))
}

// NotifyInternalAllocation services PFN_vkInternalAllocationNotification: the
// driver is reporting memory it allocated itself, outside these callbacks.
// Only the driver-allocated counter changes.
func (a *HostAllocator) NotifyInternalAllocation(size int, allocationType InternalAllocationType, scope SystemAllocationScope) {
	a.driverAllocated.Add(int64(size))
}

// NotifyInternalFree services PFN_vkInternalFreeNotification, the counterpart
// of NotifyInternalAllocation.
func (a *HostAllocator) NotifyInternalFree(size int, allocationType InternalAllocationType, scope SystemAllocationScope) {
	a.driverAllocated.Add(-int64(size))
}

// AllocatedBytes returns the number of payload bytes currently live through
// this allocator.
func (a *HostAllocator) AllocatedBytes() int {
	return int(a.allocated.Load())
}

// DriverAllocatedBytes returns the number of bytes the driver has reported
// managing itself via the internal allocation notifications.
func (a *HostAllocator) DriverAllocatedBytes() int {
	return int(a.driverAllocated.Load())
}

// LiveAllocationCount returns the number of outstanding allocations when the
// debug_mem_utils build tag is present, and 0 otherwise.
func (a *HostAllocator) LiveAllocationCount() int {
	return a.liveAllocations.count()
}

// ReportLeaks logs every outstanding allocation at Error level. It only has
// effect when the debug_mem_utils build tag is present.
func (a *HostAllocator) ReportLeaks() {
	a.liveAllocations.report(a.logger)
}
