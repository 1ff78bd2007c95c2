// Package tickbitmap finds the next initialized tick in a sorted tick list,
// standing in for Uniswap V3's word-packed TickBitmap: this port walks a
// sorted []int64 via binary search instead of a real bitmap, since
// initialized ticks here come from a pool snapshot's explicit tick list
// rather than on-chain storage words.
package tickbitmap

import "sort"

// NextInitializedTick returns the next initialized tick strictly in the
// direction of lte (true = searching downward/equal, false = upward) from
// currentTick, among the sorted initializedTicks, and whether one was found
// within the list's bounds.
func NextInitializedTick(initializedTicks []int64, currentTick int64, lte bool) (int64, bool) {
	if len(initializedTicks) == 0 {
		return 0, false
	}

	if lte {
		idx := sort.Search(len(initializedTicks), func(i int) bool {
			return initializedTicks[i] > currentTick
		})
		if idx == 0 {
			return 0, false
		}
		return initializedTicks[idx-1], true
	}

	idx := sort.Search(len(initializedTicks), func(i int) bool {
		return initializedTicks[i] > currentTick
	})
	if idx >= len(initializedTicks) {
		return 0, false
	}
	return initializedTicks[idx], true
}
