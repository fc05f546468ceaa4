// Package streaming decides which texture mips should be resident and issues
// the resize requests that get them there.
//
// Manager is the orchestrator. Each frame the caller runs
// UpdateResourceStreaming; over FramesForFullUpdate frames the manager
// refreshes its texture records and instance data while a background
// budgetTask computes, on a copy of the records:
//
//   - the screen size of every instance bounds (AsyncData.UpdateBoundSizes)
//   - each texture's perfect wanted mips, with the unknown-ref heuristic
//   - the budget pass, dropping mips of the lowest retention priority
//     textures until the required memory fits the effective pool
//   - the load and cancel requests, bounded by the temp memory budget
//
// The final stage of a cycle merges the results back and issues the
// requests. Commands such as StreamOutTextureData or InvestigateTexture
// complete the running cycle first.
package streaming
