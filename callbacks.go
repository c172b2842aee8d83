package hostmem

import (
	"runtime/cgo"
	"sync"
	"unsafe"

	"github.com/cockroachdb/errors"
	"golang.org/x/exp/slog"
)

// SystemAllocationScope classifies the lifetime of a host allocation. The
// values mirror VkSystemAllocationScope. This package stores the scope in the
// allocation's tag and passes it through- it attaches no meaning of its own.
type SystemAllocationScope int32

const (
	SystemAllocationScopeCommand SystemAllocationScope = iota
	SystemAllocationScopeObject
	SystemAllocationScopeCache
	SystemAllocationScopeDevice
	SystemAllocationScopeInstance
)

func (s SystemAllocationScope) String() string {
	switch s {
	case SystemAllocationScopeCommand:
		return "SystemAllocationScopeCommand"
	case SystemAllocationScopeObject:
		return "SystemAllocationScopeObject"
	case SystemAllocationScopeCache:
		return "SystemAllocationScopeCache"
	case SystemAllocationScopeDevice:
		return "SystemAllocationScopeDevice"
	case SystemAllocationScopeInstance:
		return "SystemAllocationScopeInstance"
	}

	return "unknown scope"
}

// InternalAllocationType mirrors VkInternalAllocationType, describing memory
// the driver reports through the internal allocation notifications.
type InternalAllocationType int32

const (
	InternalAllocationTypeExecutable InternalAllocationType = iota
)

func (t InternalAllocationType) String() string {
	if t == InternalAllocationTypeExecutable {
		return "InternalAllocationTypeExecutable"
	}

	return "unknown allocation type"
}

// AllocationFunction mirrors PFN_vkAllocationFunction.
type AllocationFunction func(userData unsafe.Pointer, size int, alignment uint, allocationScope SystemAllocationScope) unsafe.Pointer

// ReallocationFunction mirrors PFN_vkReallocationFunction.
type ReallocationFunction func(userData unsafe.Pointer, original unsafe.Pointer, size int, alignment uint, allocationScope SystemAllocationScope) unsafe.Pointer

// FreeFunction mirrors PFN_vkFreeFunction.
type FreeFunction func(userData unsafe.Pointer, memory unsafe.Pointer)

// InternalAllocationNotification mirrors PFN_vkInternalAllocationNotification.
type InternalAllocationNotification func(userData unsafe.Pointer, size int, allocationType InternalAllocationType, allocationScope SystemAllocationScope)

// InternalFreeNotification mirrors PFN_vkInternalFreeNotification.
type InternalFreeNotification func(userData unsafe.Pointer, size int, allocationType InternalAllocationType, allocationScope SystemAllocationScope)

// AllocationCallbacks is the Go-level image of VkAllocationCallbacks: an
// opaque user data handle plus the functions the driver may invoke with it.
// Every function resolves UserData back to the HostAllocator that issued the
// table. For the C ABI table handed to an actual driver, see VulkanCallbacks.
type AllocationCallbacks struct {
	UserData           unsafe.Pointer
	Allocation         AllocationFunction
	Reallocation       ReallocationFunction
	Free               FreeFunction
	InternalAllocation InternalAllocationNotification
	InternalFree       InternalFreeNotification
}

// allocatorFromUserData recovers the HostAllocator behind a user data pointer
// issued by Callbacks. The handle is trusted- a driver invoking a callback
// with someone else's user data is unrecoverable.
func allocatorFromUserData(userData unsafe.Pointer) *HostAllocator {
	if userData == nil {
		panic(errors.New("hostmem: callback invoked with nil user data- driver bug?"))
	}

	return userDataHandle(userData).Value().(*HostAllocator)
}

func allocationCallback(userData unsafe.Pointer, size int, alignment uint, allocationScope SystemAllocationScope) unsafe.Pointer {
	return allocatorFromUserData(userData).Allocate(size, alignment, allocationScope)
}

func reallocationCallback(userData unsafe.Pointer, original unsafe.Pointer, size int, alignment uint, allocationScope SystemAllocationScope) unsafe.Pointer {
	return allocatorFromUserData(userData).Reallocate(original, size, alignment, allocationScope)
}

func freeCallback(userData unsafe.Pointer, memory unsafe.Pointer) {
	allocatorFromUserData(userData).Free(memory)
}

func internalAllocationCallback(userData unsafe.Pointer, size int, allocationType InternalAllocationType, allocationScope SystemAllocationScope) {
	allocatorFromUserData(userData).NotifyInternalAllocation(size, allocationType, allocationScope)
}

func internalFreeCallback(userData unsafe.Pointer, size int, allocationType InternalAllocationType, allocationScope SystemAllocationScope) {
	allocatorFromUserData(userData).NotifyInternalFree(size, allocationType, allocationScope)
}

// Callbacks returns the allocation callback table for this allocator. The
// table and its user data pointer remain valid for the remainder of the
// process- a driver may hold them for as long as it likes.
func (a *HostAllocator) Callbacks() AllocationCallbacks {
	a.handleOnce.Do(func() {
		// The handle is never deleted: the driver may retain the table until
		// process exit.
		a.userData = newUserDataBox(cgo.NewHandle(a))
	})

	return AllocationCallbacks{
		UserData:           a.userData,
		Allocation:         allocationCallback,
		Reallocation:       reallocationCallback,
		Free:               freeCallback,
		InternalAllocation: internalAllocationCallback,
		InternalFree:       internalFreeCallback,
	}
}

var (
	defaultAllocatorOnce sync.Once
	defaultAllocator     *HostAllocator
)

// Default returns the process-wide HostAllocator, constructing it on first
// use. It delegates to the C heap and lives for the remainder of the process.
func Default() *HostAllocator {
	defaultAllocatorOnce.Do(func() {
		defaultAllocator = New(slog.Default(), CMallocAllocator{})
	})

	return defaultAllocator
}

// Callbacks returns the allocation callback table for the Default allocator.
func Callbacks() AllocationCallbacks {
	return Default().Callbacks()
}
