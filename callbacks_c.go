package hostmem

/*
#include <stdlib.h>
#include "vk_callbacks.h"
*/
import "C"

import (
	"runtime/cgo"
	"unsafe"

	"github.com/cockroachdb/errors"
)

// The user data pointer handed to the driver must be a stable C pointer, but
// what it identifies is a Go object. A cgo handle bridges the two: the handle
// value is stored in a single C-heap word and the pointer to that word is the
// opaque user data. Neither is ever released- the driver may hold the table
// until process exit.

func newUserDataBox(handle cgo.Handle) unsafe.Pointer {
	box := C.malloc(C.size_t(unsafe.Sizeof(uintptr(0))))
	*(*uintptr)(box) = uintptr(handle)
	return box
}

func userDataHandle(userData unsafe.Pointer) cgo.Handle {
	return cgo.Handle(*(*uintptr)(userData))
}

// VulkanCallbacks returns a pointer to a C-heap VkAllocationCallbacks table
// for this allocator, suitable for passing to vkCreateInstance and every
// other entry point accepting host allocation callbacks. The table is built
// once and remains valid for the remainder of the process.
func (a *HostAllocator) VulkanCallbacks() (unsafe.Pointer, error) {
	a.vulkanOnce.Do(func() {
		callbacks := a.Callbacks()
		a.vulkanCallbacks = unsafe.Pointer(C.hostmemNewCallbacks(callbacks.UserData))
	})

	if a.vulkanCallbacks == nil {
		return nil, errors.New("hostmem: failed to allocate the callback table")
	}

	return a.vulkanCallbacks, nil
}
