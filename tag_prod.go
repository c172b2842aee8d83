//go:build !debug_mem_utils

package hostmem

import "unsafe"

// writeTagMagic stamps the sentinel into a freshly constructed tag. This
// method no-ops unless the debug_mem_utils build tag is present.
func writeTagMagic(tag *allocTag) {
}

// debugValidateTag panics if the payload pointer does not carry a tag written
// by this package. This method no-ops unless the debug_mem_utils build tag is
// present.
func debugValidateTag(payload unsafe.Pointer) {
}
