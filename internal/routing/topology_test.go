package routing

import (
	"testing"

	"github.com/petrijr/envroute/pkg/api"
)

func TestDetectRoutingType(t *testing.T) {
	cases := []struct {
		orders []int
		want   api.RoutingType
	}{
		{[]int{1}, api.RoutingParallel},
		{[]int{1, 1}, api.RoutingParallel},
		{[]int{2, 2, 2}, api.RoutingParallel},
		{[]int{1, 2, 3}, api.RoutingSequential},
		{[]int{3, 1, 2}, api.RoutingSequential},
		{[]int{2, 3}, api.RoutingSequential},
		{[]int{1, 1, 2}, api.RoutingMixed},
		{[]int{1, 2, 2, 3}, api.RoutingMixed},
		{[]int{1, 3}, api.RoutingMixed},
		{[]int{1, 2, 4}, api.RoutingMixed},
	}
	for _, tc := range cases {
		if got := DetectRoutingType(tc.orders); got != tc.want {
			t.Fatalf("DetectRoutingType(%v) = %s, want %s", tc.orders, got, tc.want)
		}
	}
}
