package hostmem

import (
	"math"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/hostmem/memutils"
)

// Layout describes the size and alignment of a single block of host memory.
// Alignment must always be a power of two.
type Layout struct {
	Size      int
	Alignment uint
}

// NewLayout builds a Layout from a requested size and alignment, failing if the
// pair cannot describe a real allocation.
func NewLayout(size int, alignment uint) (Layout, error) {
	layout := Layout{
		Size:      size,
		Alignment: alignment,
	}
	err := layout.Validate()
	if err != nil {
		return Layout{}, err
	}

	return layout, nil
}

func (l Layout) Validate() error {
	if l.Size < 0 {
		return errors.Wrapf(memutils.LayoutOverflowError, "layout size is %d", l.Size)
	}
	if l.Alignment > uint(math.MaxInt) {
		return errors.Wrapf(memutils.LayoutOverflowError, "layout alignment is %d", l.Alignment)
	}

	return memutils.CheckPow2(l.Alignment, "layout alignment")
}

// extendForTag composes the hidden tag header with a requested payload layout.
// It returns the combined layout that must be requested from the upstream
// allocator, along with the offset of the payload within that combined block.
//
// The combined alignment is the larger of the payload's alignment and the tag's
// natural alignment, so the tag can always sit immediately before the payload
// with both correctly aligned.
func extendForTag(payload Layout) (Layout, int, error) {
	err := payload.Validate()
	if err != nil {
		return Layout{}, 0, err
	}

	combined, payloadOffset := composeTagLayout(payload)
	if combined.Size < payload.Size {
		return Layout{}, 0, errors.Wrapf(memutils.LayoutOverflowError, "payload size is %d", payload.Size)
	}

	return combined, payloadOffset, nil
}

// composeTagLayout performs the arithmetic of extendForTag for a payload layout
// that is already known to be valid. It is shared with the tag-recovery path,
// which rebuilds the combined layout of a live allocation from its tag.
func composeTagLayout(payload Layout) (Layout, int) {
	align := payload.Alignment
	if tagLayout.Alignment > align {
		align = tagLayout.Alignment
	}

	payloadOffset := memutils.AlignUp(tagLayout.Size, align)
	return Layout{
		Size:      payloadOffset + payload.Size,
		Alignment: align,
	}, payloadOffset
}
