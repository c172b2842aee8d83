package hostmem

import (
	"unsafe"
)

// allocTag is the hidden header written immediately before every payload
// pointer handed out by this package. The external callback contract only ever
// returns the bare payload pointer back to us, so the tag is the sole record of
// what was allocated: the payload layout as the caller requested it, the scope
// the caller supplied, and the true base of the combined block (which may sit
// below the tag when alignment padding was required).
//
// The magic slot is present in every build so the header has one ABI across
// build modes, but it is only written and checked when the debug_mem_utils
// build tag is set.
type allocTag struct {
	magic uint64
	size  int
	align uint
	scope SystemAllocationScope
	base  unsafe.Pointer
}

// tagLayout is the layout of the tag header itself, used when composing
// combined layouts.
var tagLayout = Layout{
	Size:      int(unsafe.Sizeof(allocTag{})),
	Alignment: uint(unsafe.Alignof(allocTag{})),
}

// writeTag constructs a fresh tag inside a combined block returned by the
// upstream allocator and returns the payload pointer. All offset arithmetic
// that places or locates tags lives in this file and nowhere else.
func writeTag(base unsafe.Pointer, payloadOffset int, payload Layout, scope SystemAllocationScope) unsafe.Pointer {
	payloadPtr := unsafe.Add(base, payloadOffset)

	tag := tagOf(payloadPtr)
	tag.size = payload.Size
	tag.align = payload.Alignment
	tag.scope = scope
	tag.base = base
	writeTagMagic(tag)

	return payloadPtr
}

// tagOf recovers the tag for a payload pointer previously returned by
// writeTag. The tag always sits immediately before the payload.
func tagOf(payload unsafe.Pointer) *allocTag {
	return (*allocTag)(unsafe.Add(payload, -tagLayout.Size))
}

func (t *allocTag) payloadLayout() Layout {
	return Layout{
		Size:      t.size,
		Alignment: t.align,
	}
}

// combinedLayout rebuilds the combined layout and payload offset that were used
// to allocate this tag's block. The payload layout was validated when the tag
// was written, so this cannot fail.
func (t *allocTag) combinedLayout() (Layout, int) {
	return composeTagLayout(t.payloadLayout())
}
