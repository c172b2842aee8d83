//go:build !debug_mem_utils

package hostmem

import (
	"unsafe"

	"golang.org/x/exp/slog"
)

// liveRegistry records every outstanding payload pointer while the
// debug_mem_utils build tag is present. Without the tag it has no state and
// every method no-ops.
type liveRegistry struct{}

func (r *liveRegistry) insert(payload unsafe.Pointer, layout Layout) {
}

func (r *liveRegistry) remove(payload unsafe.Pointer) {
}

func (r *liveRegistry) count() int {
	return 0
}

func (r *liveRegistry) report(logger *slog.Logger) {
}
