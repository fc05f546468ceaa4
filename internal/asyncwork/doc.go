// Package asyncwork holds the small set of primitives the streamer uses to
// move work off the main thread and collect it again exactly once.
//
// Files by concern:
//   - task.go  (Task: one-shot work/sync state machine, re-armable per frame)
//   - pool.go  (Pool: dispatches registered tasks onto background goroutines)
//   - job.go   (Job: a single schedulable unit with an abort flag)
//   - errors.go
package asyncwork
