package hostmem_test

import (
	"io"
	"math"
	"sync"
	"testing"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/hostmem"
	"golang.org/x/exp/slog"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func fillBytes(p unsafe.Pointer, size int, value byte) {
	payload := unsafe.Slice((*byte)(p), size)
	for i := range payload {
		payload[i] = value
	}
}

func requireBytes(t *testing.T, p unsafe.Pointer, size int, value byte) {
	t.Helper()

	payload := unsafe.Slice((*byte)(p), size)
	for i := 0; i < size; i++ {
		require.Equalf(t, value, payload[i], "byte %d does not match", i)
	}
}

func TestAllocateAlignment(t *testing.T) {
	allocator := hostmem.New(testLogger(), nil)

	for alignment := uint(1); alignment <= 4096; alignment <<= 1 {
		ptr := allocator.Allocate(320, alignment, hostmem.SystemAllocationScopeObject)
		require.NotEqualf(t, unsafe.Pointer(nil), ptr, "allocation with alignment %d failed", alignment)
		require.Zerof(t, uintptr(ptr)%uintptr(alignment), "pointer %p is not aligned to %d", ptr, alignment)

		fillBytes(ptr, 320, 0xCD)
		allocator.Free(ptr)
	}

	require.Zero(t, allocator.AllocatedBytes())
}

func TestAllocateTracksPayloadBytes(t *testing.T) {
	allocator := hostmem.New(testLogger(), nil)

	sizes := []int{1, 16, 100, 320, 4096}
	pointers := make([]unsafe.Pointer, 0, len(sizes))
	expected := 0
	for _, size := range sizes {
		ptr := allocator.Allocate(size, 8, hostmem.SystemAllocationScopeDevice)
		require.NotEqual(t, unsafe.Pointer(nil), ptr)
		pointers = append(pointers, ptr)

		expected += size
		require.Equal(t, expected, allocator.AllocatedBytes())
	}

	for i, ptr := range pointers {
		allocator.Free(ptr)
		expected -= sizes[i]
		require.Equal(t, expected, allocator.AllocatedBytes())
	}

	require.Zero(t, allocator.AllocatedBytes())
}

func TestAllocateFailsGracefully(t *testing.T) {
	allocator := hostmem.New(testLogger(), nil)

	ptr := allocator.Allocate(math.MaxInt, 1, hostmem.SystemAllocationScopeInstance)
	require.Equal(t, unsafe.Pointer(nil), ptr)
	require.Zero(t, allocator.AllocatedBytes())

	ptr = allocator.Allocate(4, math.MaxUint, hostmem.SystemAllocationScopeInstance)
	require.Equal(t, unsafe.Pointer(nil), ptr)
	require.Zero(t, allocator.AllocatedBytes())

	ptr = allocator.Allocate(4, 3, hostmem.SystemAllocationScopeInstance)
	require.Equal(t, unsafe.Pointer(nil), ptr)
	require.Zero(t, allocator.AllocatedBytes())
}

func TestReallocatePreservesContents(t *testing.T) {
	allocator := hostmem.New(testLogger(), nil)

	ptr := allocator.Allocate(320, 128, hostmem.SystemAllocationScopeInstance)
	require.NotEqual(t, unsafe.Pointer(nil), ptr)
	fillBytes(ptr, 320, 37)

	grown := allocator.Reallocate(ptr, 640, 128, hostmem.SystemAllocationScopeInstance)
	require.NotEqual(t, unsafe.Pointer(nil), grown)
	require.Zero(t, uintptr(grown)%128)
	requireBytes(t, grown, 320, 37)
	require.Equal(t, 640, allocator.AllocatedBytes())

	shrunk := allocator.Reallocate(grown, 100, 128, hostmem.SystemAllocationScopeInstance)
	require.NotEqual(t, unsafe.Pointer(nil), shrunk)
	requireBytes(t, shrunk, 100, 37)
	require.Equal(t, 100, allocator.AllocatedBytes())

	allocator.Free(shrunk)
	require.Zero(t, allocator.AllocatedBytes())
}

func TestReallocateAcrossAlignmentChange(t *testing.T) {
	allocator := hostmem.New(testLogger(), nil)

	ptr := allocator.Allocate(64, 8, hostmem.SystemAllocationScopeObject)
	require.NotEqual(t, unsafe.Pointer(nil), ptr)
	fillBytes(ptr, 64, 0x5A)

	// Raising the alignment moves the payload's offset within the combined
	// block- the contents still have to come along
	moved := allocator.Reallocate(ptr, 64, 1024, hostmem.SystemAllocationScopeObject)
	require.NotEqual(t, unsafe.Pointer(nil), moved)
	require.Zero(t, uintptr(moved)%1024)
	requireBytes(t, moved, 64, 0x5A)

	lowered := allocator.Reallocate(moved, 32, 8, hostmem.SystemAllocationScopeObject)
	require.NotEqual(t, unsafe.Pointer(nil), lowered)
	requireBytes(t, lowered, 32, 0x5A)

	allocator.Free(lowered)
	require.Zero(t, allocator.AllocatedBytes())
}

func TestReallocateNilBehavesAsAllocate(t *testing.T) {
	allocator := hostmem.New(testLogger(), nil)

	ptr := allocator.Reallocate(nil, 256, 64, hostmem.SystemAllocationScopeCache)
	require.NotEqual(t, unsafe.Pointer(nil), ptr)
	require.Zero(t, uintptr(ptr)%64)
	require.Equal(t, 256, allocator.AllocatedBytes())

	allocator.Free(ptr)
	require.Zero(t, allocator.AllocatedBytes())
}

func TestReallocateZeroSizeBehavesAsFree(t *testing.T) {
	allocator := hostmem.New(testLogger(), nil)

	ptr := allocator.Allocate(128, 16, hostmem.SystemAllocationScopeCommand)
	require.NotEqual(t, unsafe.Pointer(nil), ptr)

	result := allocator.Reallocate(ptr, 0, 16, hostmem.SystemAllocationScopeCommand)
	require.Equal(t, unsafe.Pointer(nil), result)
	require.Zero(t, allocator.AllocatedBytes())
}

func TestFreeNilIsNoOp(t *testing.T) {
	allocator := hostmem.New(testLogger(), nil)
	allocator.Free(nil)
	require.Zero(t, allocator.AllocatedBytes())
}

type failingUpstream struct {
	hostmem.CMallocAllocator

	failAllocate bool
	failGrow     bool
	failShrink   bool
}

func (f *failingUpstream) Allocate(layout hostmem.Layout) (unsafe.Pointer, error) {
	if f.failAllocate {
		return nil, errors.New("out of host memory")
	}
	return f.CMallocAllocator.Allocate(layout)
}

func (f *failingUpstream) Grow(ptr unsafe.Pointer, oldLayout hostmem.Layout, newLayout hostmem.Layout) (unsafe.Pointer, error) {
	if f.failGrow {
		return nil, errors.New("out of host memory")
	}
	return f.CMallocAllocator.Grow(ptr, oldLayout, newLayout)
}

func (f *failingUpstream) Shrink(ptr unsafe.Pointer, oldLayout hostmem.Layout, newLayout hostmem.Layout) (unsafe.Pointer, error) {
	if f.failShrink {
		return nil, errors.New("out of host memory")
	}
	return f.CMallocAllocator.Shrink(ptr, oldLayout, newLayout)
}

func TestUpstreamAllocateFailure(t *testing.T) {
	upstream := &failingUpstream{failAllocate: true}
	allocator := hostmem.New(testLogger(), upstream)

	ptr := allocator.Allocate(64, 8, hostmem.SystemAllocationScopeObject)
	require.Equal(t, unsafe.Pointer(nil), ptr)
	require.Zero(t, allocator.AllocatedBytes())
}

func TestUpstreamReallocateFailureLeavesOriginalIntact(t *testing.T) {
	upstream := &failingUpstream{}
	allocator := hostmem.New(testLogger(), upstream)

	ptr := allocator.Allocate(64, 8, hostmem.SystemAllocationScopeObject)
	require.NotEqual(t, unsafe.Pointer(nil), ptr)
	fillBytes(ptr, 64, 0xA7)

	upstream.failGrow = true
	result := allocator.Reallocate(ptr, 128, 8, hostmem.SystemAllocationScopeObject)
	require.Equal(t, unsafe.Pointer(nil), result)

	// The original allocation is untouched and still accounted for
	requireBytes(t, ptr, 64, 0xA7)
	require.Equal(t, 64, allocator.AllocatedBytes())

	upstream.failShrink = true
	result = allocator.Reallocate(ptr, 16, 8, hostmem.SystemAllocationScopeObject)
	require.Equal(t, unsafe.Pointer(nil), result)
	requireBytes(t, ptr, 64, 0xA7)
	require.Equal(t, 64, allocator.AllocatedBytes())

	allocator.Free(ptr)
	require.Zero(t, allocator.AllocatedBytes())
}

func TestInternalNotifications(t *testing.T) {
	allocator := hostmem.New(testLogger(), nil)

	allocator.NotifyInternalAllocation(4096, hostmem.InternalAllocationTypeExecutable, hostmem.SystemAllocationScopeDevice)
	allocator.NotifyInternalAllocation(1024, hostmem.InternalAllocationTypeExecutable, hostmem.SystemAllocationScopeDevice)
	require.Equal(t, 5120, allocator.DriverAllocatedBytes())

	// The driver's own memory never touches the callback counter
	require.Zero(t, allocator.AllocatedBytes())

	allocator.NotifyInternalFree(4096, hostmem.InternalAllocationTypeExecutable, hostmem.SystemAllocationScopeDevice)
	require.Equal(t, 1024, allocator.DriverAllocatedBytes())
}

func TestConcurrentAllocateFree(t *testing.T) {
	allocator := hostmem.New(testLogger(), nil)

	var wg sync.WaitGroup
	for worker := 0; worker < 8; worker++ {
		wg.Add(1)
		size := (worker + 1) * 16

		go func() {
			defer wg.Done()

			for i := 0; i < 200; i++ {
				ptr := allocator.Allocate(size, 16, hostmem.SystemAllocationScopeCommand)
				if ptr == nil {
					continue
				}
				fillBytes(ptr, size, byte(i))

				ptr = allocator.Reallocate(ptr, size*2, 16, hostmem.SystemAllocationScopeCommand)
				if ptr != nil {
					allocator.Free(ptr)
				}
			}
		}()
	}

	wg.Wait()
	require.Zero(t, allocator.AllocatedBytes())
}
