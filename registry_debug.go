//go:build debug_mem_utils

package hostmem

import (
	"sync"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"golang.org/x/exp/slog"
)

// liveRegistry records every outstanding payload pointer while the
// debug_mem_utils build tag is present. It catches misuse the tag magic alone
// cannot: a double free still carries a plausible-looking tag if the upstream
// has not yet reused the memory.
type liveRegistry struct {
	mutex    sync.Mutex
	payloads *swiss.Map[uintptr, Layout]
}

func (r *liveRegistry) insert(payload unsafe.Pointer, layout Layout) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.payloads == nil {
		r.payloads = swiss.NewMap[uintptr, Layout](42)
	}
	r.payloads.Put(uintptr(payload), layout)
}

func (r *liveRegistry) remove(payload unsafe.Pointer) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.payloads != nil {
		_, ok := r.payloads.Get(uintptr(payload))
		if ok {
			r.payloads.Delete(uintptr(payload))
			return
		}
	}

	panic(errors.Newf("hostmem: pointer %p is not a live allocation- it was either never allocated through this allocator or has already been freed", payload))
}

func (r *liveRegistry) count() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.payloads == nil {
		return 0
	}
	return r.payloads.Count()
}

func (r *liveRegistry) report(logger *slog.Logger) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.payloads == nil {
		return
	}

	r.payloads.Iter(func(payload uintptr, layout Layout) bool {
		logger.Error("hostmem: allocation still live",
			slog.Uint64("Payload", uint64(payload)),
			slog.Int("Size", layout.Size),
			slog.Uint64("Alignment", uint64(layout.Alignment)),
		)
		return false
	})
}
