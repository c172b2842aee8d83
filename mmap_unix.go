//go:build unix

package hostmem

import (
	"math"
	"sync"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/hostmem/memutils"
	"golang.org/x/sys/unix"
)

// MmapAllocator serves allocations as anonymous private mappings. Mapped pages
// live outside the Go heap, so like CMallocAllocator it is suitable for memory
// a native driver will retain. It is page-granular and so only a reasonable
// choice when allocations are large or must be isolated from the C heap.
//
// Alignments beyond the page size are honored by over-mapping and returning an
// aligned pointer into the mapping.
type MmapAllocator struct {
	mutex    sync.Mutex
	mappings map[uintptr][]byte
}

var _ UpstreamAllocator = (*MmapAllocator)(nil)

func (m *MmapAllocator) Allocate(layout Layout) (unsafe.Pointer, error) {
	size := layout.Size
	if size == 0 {
		size = 1
	}

	mapLength := size
	pageSize := unix.Getpagesize()
	if int(layout.Alignment) > pageSize {
		if mapLength > math.MaxInt-int(layout.Alignment) {
			return nil, errors.Wrapf(memutils.LayoutOverflowError, "mapping of size %d with alignment %d", layout.Size, layout.Alignment)
		}
		mapLength += int(layout.Alignment)
	}

	mapping, err := unix.Mmap(-1, 0, mapLength, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, errors.Wrapf(err, "anonymous mapping of %d bytes failed", mapLength)
	}

	base := uintptr(unsafe.Pointer(&mapping[0]))
	offset := memutils.AlignUp(int(base), layout.Alignment) - int(base)
	ptr := unsafe.Pointer(&mapping[offset])

	m.mutex.Lock()
	if m.mappings == nil {
		m.mappings = make(map[uintptr][]byte)
	}
	m.mappings[uintptr(ptr)] = mapping
	m.mutex.Unlock()

	return ptr, nil
}

func (m *MmapAllocator) Grow(ptr unsafe.Pointer, oldLayout Layout, newLayout Layout) (unsafe.Pointer, error) {
	return m.relocate(ptr, oldLayout, newLayout, oldLayout.Size)
}

func (m *MmapAllocator) Shrink(ptr unsafe.Pointer, oldLayout Layout, newLayout Layout) (unsafe.Pointer, error) {
	return m.relocate(ptr, oldLayout, newLayout, newLayout.Size)
}

func (m *MmapAllocator) relocate(ptr unsafe.Pointer, oldLayout Layout, newLayout Layout, preserveBytes int) (unsafe.Pointer, error) {
	newPtr, err := m.Allocate(newLayout)
	if err != nil {
		// Leave the original mapping untouched
		return nil, err
	}

	if preserveBytes > 0 {
		copy(unsafe.Slice((*byte)(newPtr), preserveBytes), unsafe.Slice((*byte)(ptr), preserveBytes))
	}
	m.Deallocate(ptr, oldLayout)

	return newPtr, nil
}

func (m *MmapAllocator) Deallocate(ptr unsafe.Pointer, layout Layout) {
	m.mutex.Lock()
	mapping, ok := m.mappings[uintptr(ptr)]
	if ok {
		delete(m.mappings, uintptr(ptr))
	}
	m.mutex.Unlock()

	if !ok {
		panic(errors.Newf("hostmem: pointer %p was not mapped by this allocator", ptr))
	}

	err := unix.Munmap(mapping)
	if err != nil {
		panic(errors.Wrapf(err, "failed to unmap %d bytes at %p", len(mapping), ptr))
	}
}
