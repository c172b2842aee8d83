package hostmem

/*
#include "vk_callbacks.h"
*/
import "C"

import (
	"unsafe"
)

// The exported trampolines below are the function pointers installed into the
// VkAllocationCallbacks table built by hostmemNewCallbacks. They only convert
// between the C ABI and the Go-level callbacks.
//
// A size_t wider than Go's int wraps negative on conversion here; the layout
// composer rejects negative sizes, so such requests fail with a null return
// rather than a truncated allocation.

//export hostmemVkAllocate
func hostmemVkAllocate(pUserData unsafe.Pointer, size C.size_t, alignment C.size_t, allocationScope C.VkSystemAllocationScope) unsafe.Pointer {
	return allocationCallback(pUserData, int(size), uint(alignment), SystemAllocationScope(allocationScope))
}

//export hostmemVkReallocate
func hostmemVkReallocate(pUserData unsafe.Pointer, pOriginal unsafe.Pointer, size C.size_t, alignment C.size_t, allocationScope C.VkSystemAllocationScope) unsafe.Pointer {
	return reallocationCallback(pUserData, pOriginal, int(size), uint(alignment), SystemAllocationScope(allocationScope))
}

//export hostmemVkFree
func hostmemVkFree(pUserData unsafe.Pointer, pMemory unsafe.Pointer) {
	freeCallback(pUserData, pMemory)
}

//export hostmemVkInternalAllocation
func hostmemVkInternalAllocation(pUserData unsafe.Pointer, size C.size_t, allocationType C.VkInternalAllocationType, allocationScope C.VkSystemAllocationScope) {
	internalAllocationCallback(pUserData, int(size), InternalAllocationType(allocationType), SystemAllocationScope(allocationScope))
}

//export hostmemVkInternalFree
func hostmemVkInternalFree(pUserData unsafe.Pointer, size C.size_t, allocationType C.VkInternalAllocationType, allocationScope C.VkSystemAllocationScope) {
	internalFreeCallback(pUserData, int(size), InternalAllocationType(allocationType), SystemAllocationScope(allocationScope))
}
