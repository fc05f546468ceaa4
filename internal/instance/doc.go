// Package instance is the spatial database of texture references used by the
// streamer: which primitive uses which texture, at what texel density, and
// where its bounds are.
//
// Files by concern:
//   - bounds.go: Bounds and the four-wide Bounds4 batch.
//   - primitive.go: the Primitive interface consumed from the scene.
//   - store.go: arena storage shared by State and View.
//   - state.go: State, the mutable database owned by the main goroutine.
//   - view.go: View snapshots, ViewBuilder and ViewContainer.
//   - async_view.go: AsyncView, per-cycle screen sizes computed by the worker.
package instance
