package hostmem

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
)

// UsageReport is a point-in-time snapshot of an allocator's counters. The two
// byte counts are read independently with no cross-counter consistency- they
// are observability data, not a gate on allocator behavior.
type UsageReport struct {
	// AllocatedBytes is the payload bytes currently live through the callbacks.
	AllocatedBytes int
	// DriverAllocatedBytes is the bytes the driver reports managing itself.
	DriverAllocatedBytes int
	// LiveAllocationCount is the number of outstanding allocations. It is only
	// populated when the debug_mem_utils build tag is present.
	LiveAllocationCount int
}

func (a *HostAllocator) Usage() UsageReport {
	return UsageReport{
		AllocatedBytes:       a.AllocatedBytes(),
		DriverAllocatedBytes: a.DriverAllocatedBytes(),
		LiveAllocationCount:  a.LiveAllocationCount(),
	}
}

// BuildUsageJson writes the allocator's usage snapshot to the provided json
// stream.
func (a *HostAllocator) BuildUsageJson(writer *jwriter.Writer) {
	usage := a.Usage()

	obj := writer.Object()
	obj.Name("AllocatedBytes").Int(usage.AllocatedBytes)
	obj.Name("DriverAllocatedBytes").Int(usage.DriverAllocatedBytes)
	obj.Name("LiveAllocations").Int(usage.LiveAllocationCount)
	obj.End()
}
