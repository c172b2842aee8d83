//go:build debug_mem_utils

package hostmem

import (
	"unsafe"

	"github.com/cockroachdb/errors"
)

// tagMagic is the sentinel written into every tag so that pointers handed back
// by the driver can be checked against pointers this package actually issued.
const tagMagic uint64 = 0x7EE7ABBACAFEB00B

// writeTagMagic stamps the sentinel into a freshly constructed tag. This
// method no-ops unless the debug_mem_utils build tag is present.
func writeTagMagic(tag *allocTag) {
	tag.magic = tagMagic
}

// debugValidateTag panics if the payload pointer does not carry a tag written
// by this package. A mismatch means the driver handed back a pointer we never
// issued, or the header was corrupted. This method no-ops unless the
// debug_mem_utils build tag is present.
func debugValidateTag(payload unsafe.Pointer) {
	tag := tagOf(payload)
	if tag.magic != tagMagic {
		panic(errors.Newf("hostmem: pointer %p does not point to a live allocation made by this allocator", payload))
	}
}
