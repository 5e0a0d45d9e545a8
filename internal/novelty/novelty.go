// Package novelty decides which items of a fetched feed have not been
// delivered yet for a subscription.
package novelty

import "rsscord/internal/model"

// Result of one detection pass.
type Result struct {
	// NewItems holds the undelivered items in oldest-first order, so
	// delivery matches real-world publish order.
	NewItems []model.Item
	// Marker is the item key to persist after the batch. Empty when
	// the fetch returned no items; in that case the stored marker must
	// stay untouched.
	Marker string
}

// Detect compares a fetched item list (newest-first) against the
// subscription's stored marker.
//
// An absent marker ("") yields no items: the marker is initialized
// from the current newest item instead of replaying the backlog. A
// marker that no longer appears in the list means the feed rotated
// its history; nothing is delivered and the marker snaps to the
// current newest item rather than reposting the whole feed.
func Detect(marker string, items []model.Item) Result {
	if len(items) == 0 {
		return Result{}
	}

	newest := items[0].Key

	if marker == "" {
		return Result{Marker: newest}
	}

	var collected []model.Item
	found := false
	for _, item := range items {
		if item.Key == marker {
			found = true
			break
		}
		collected = append(collected, item)
	}
	if !found {
		return Result{Marker: newest}
	}

	// Reverse into oldest-first delivery order.
	for i, j := 0, len(collected)-1; i < j; i, j = i+1, j-1 {
		collected[i], collected[j] = collected[j], collected[i]
	}

	return Result{NewItems: collected, Marker: newest}
}
