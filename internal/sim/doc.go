// Package sim is a software stand-in for the engine around the streamer: a
// GPU texture pool with a fixed size, textures whose resizes complete after
// a bandwidth-bound delay, primitives with bounds and render times, and a
// scene that moves a camera along a path and marks what it draws.
//
// Files by concern:
//   - clock.go     (Clock: app and world time advanced per frame)
//   - gpu.go       (GPU: pool size and allocated bytes)
//   - texture.go   (Texture: texture.Asset with timed resizes)
//   - primitive.go (Primitive: instance.Primitive with motion)
//   - scene.go     (Scene: manifest to streamer wiring and the frame step)
package sim
