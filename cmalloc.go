package hostmem

/*
#include <stdlib.h>
#include <string.h>
*/
import "C"

import (
	"unsafe"

	"github.com/cockroachdb/errors"
)

// CMallocAllocator serves allocations from the C heap via posix_memalign. It
// is the default upstream: C-heap memory is stable for the lifetime of the
// allocation, which is what a native driver retaining payload pointers
// requires.
//
// Grow and Shrink always relocate. C realloc cannot be used here because it
// only preserves malloc's default alignment, not the alignment the block was
// originally allocated with.
type CMallocAllocator struct{}

var _ UpstreamAllocator = CMallocAllocator{}

func (CMallocAllocator) Allocate(layout Layout) (unsafe.Pointer, error) {
	align := layout.Alignment
	// posix_memalign requires the alignment to be a multiple of the pointer size
	if align < uint(unsafe.Sizeof(uintptr(0))) {
		align = uint(unsafe.Sizeof(uintptr(0)))
	}

	size := layout.Size
	if size == 0 {
		size = 1
	}

	var ptr unsafe.Pointer
	res := C.posix_memalign(&ptr, C.size_t(align), C.size_t(size))
	if res != 0 {
		return nil, errors.Newf("posix_memalign failed for size %d and alignment %d: error %d", layout.Size, layout.Alignment, int(res))
	}

	return ptr, nil
}

func (a CMallocAllocator) Grow(ptr unsafe.Pointer, oldLayout Layout, newLayout Layout) (unsafe.Pointer, error) {
	return a.relocate(ptr, oldLayout, newLayout, oldLayout.Size)
}

func (a CMallocAllocator) Shrink(ptr unsafe.Pointer, oldLayout Layout, newLayout Layout) (unsafe.Pointer, error) {
	return a.relocate(ptr, oldLayout, newLayout, newLayout.Size)
}

func (a CMallocAllocator) relocate(ptr unsafe.Pointer, oldLayout Layout, newLayout Layout, preserveBytes int) (unsafe.Pointer, error) {
	newPtr, err := a.Allocate(newLayout)
	if err != nil {
		// Leave the original block untouched
		return nil, err
	}

	if preserveBytes > 0 {
		C.memcpy(newPtr, ptr, C.size_t(preserveBytes))
	}
	C.free(ptr)

	return newPtr, nil
}

func (CMallocAllocator) Deallocate(ptr unsafe.Pointer, layout Layout) {
	C.free(ptr)
}
