// Package level owns the instance databases fed to the streamer: one
// StaticManager per loaded level and one DynamicManager shared by every
// movable primitive. Both implement Aggregator.
package level

import (
	"math"

	"texstream/internal/instance"
	"texstream/internal/texture"
)

// Aggregator owns one instance database and hands views of it to the
// background worker.
type Aggregator interface {
	// CanManage reports whether p may be added to this aggregator.
	CanManage(p instance.Primitive) bool
	// Refresh updates a percentage of the bounds, in (0, 1].
	Refresh(percentage float32, removed *[]texture.Asset)
	Add(p instance.Primitive) error
	Remove(p instance.Primitive, removed *[]texture.Asset)
	// PrepareAsyncView requests a consistent snapshot for the next cycle.
	PrepareAsyncView()
	// AsyncView returns the snapshot prepared for the worker. With
	// createIfNil it builds one synchronously when none exists.
	AsyncView(createIfNil bool) *instance.View
}

func sliceCount(total int, percentage float32) int {
	if total == 0 || percentage <= 0 {
		return 0
	}
	n := int(math.Ceil(float64(total) * float64(percentage)))
	return min(max(n, 1), total)
}
