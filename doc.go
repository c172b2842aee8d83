// Package hostmem adapts an arbitrary host allocator to the allocation
// callback contract Vulkan uses for host memory (VkAllocationCallbacks). It
// tracks the volume of live allocations made through the callbacks and, when
// built with the debug_mem_utils tag, detects corrupted or foreign pointers
// handed back by the driver.
//
// Every allocation is extended with a hidden tag header placed immediately
// before the payload pointer the driver receives. The tag records the
// requested layout, the allocation scope, and the true base of the combined
// block, so that reallocation and free callbacks can recover everything they
// need from the bare payload pointer- the only thing the callback contract
// gives back.
//
// The package does not implement a general-purpose allocator: all memory
// comes from a pluggable UpstreamAllocator, by default the C heap.
package hostmem
