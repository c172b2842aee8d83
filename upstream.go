package hostmem

import "unsafe"

// UpstreamAllocator is the capability this package delegates all real memory
// acquisition to. HostAllocator is only an adapter: it sizes requests, places
// tags, and keeps counters, but every byte comes from an upstream.
//
// Implementations must be safe for concurrent use from multiple goroutines,
// and must hand out memory that is not managed by the Go garbage collector:
// payload pointers are retained indefinitely by a native driver, well outside
// the rules for passing Go pointers to C.
type UpstreamAllocator interface {
	// Allocate returns a block satisfying the provided layout, or an error if
	// the upstream cannot serve it. It must not panic on exhaustion.
	Allocate(layout Layout) (unsafe.Pointer, error)
	// Grow relocates or extends a block previously allocated with oldLayout so
	// that it satisfies newLayout, which is at least as large. The first
	// oldLayout.Size bytes of the block must be preserved. On failure the
	// original block must be left fully intact.
	Grow(ptr unsafe.Pointer, oldLayout Layout, newLayout Layout) (unsafe.Pointer, error)
	// Shrink is the counterpart of Grow for a newLayout no larger than
	// oldLayout. The first newLayout.Size bytes must be preserved, and the
	// original block must survive a failure untouched.
	Shrink(ptr unsafe.Pointer, oldLayout Layout, newLayout Layout) (unsafe.Pointer, error)
	// Deallocate releases a block previously returned by Allocate, Grow, or
	// Shrink, using the layout it was most recently allocated with.
	Deallocate(ptr unsafe.Pointer, layout Layout)
}
