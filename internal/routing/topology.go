// Package routing holds the pure routing logic of the engine: topology
// detection, step generation, the workflow state machine, and the read-side
// projections. Nothing in this package performs I/O; callers provide the
// snapshot, the recipients and the current time.
package routing

import "github.com/petrijr/envroute/pkg/api"

// DetectRoutingType classifies routing orders into a topology.
//
//   - exactly one distinct order: Parallel
//   - distinct orders with gaps: Mixed
//   - contiguous orders where some order is shared: Mixed
//   - contiguous orders, one recipient each: Sequential
//
// orders must not be empty.
func DetectRoutingType(orders []int) api.RoutingType {
	counts := make(map[int]int, len(orders))
	lo, hi := 0, 0
	for i, o := range orders {
		counts[o]++
		if i == 0 || o < lo {
			lo = o
		}
		if i == 0 || o > hi {
			hi = o
		}
	}

	if len(counts) == 1 {
		return api.RoutingParallel
	}
	if hi-lo+1 != len(counts) {
		return api.RoutingMixed
	}
	for _, n := range counts {
		if n > 1 {
			return api.RoutingMixed
		}
	}
	return api.RoutingSequential
}

// RoutingOrders extracts the routing orders of recipients.
func RoutingOrders(recipients []api.Recipient) []int {
	out := make([]int, len(recipients))
	for i, r := range recipients {
		out[i] = r.RoutingOrder
	}
	return out
}
