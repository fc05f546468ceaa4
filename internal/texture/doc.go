// Package texture holds the per-texture streaming record and the small
// algorithms that run on it: ideal mip computation, retention and load-order
// priorities, and the one-mip budget primitives used by the budget pass.
//
// Files by concern:
//   - group.go     (LOD groups)
//   - settings.go  (per-frame streaming settings)
//   - asset.go     (the external texture asset the record drives)
//   - record.go    (Record, static/dynamic refresh, state machine)
//   - wanted.go    (wanted mips from screen size)
//   - priority.go  (retention and load-order priorities)
//   - budget.go    (drop/keep primitives)
//   - stream.go    (stream in/out/cancel against the asset)
package texture
