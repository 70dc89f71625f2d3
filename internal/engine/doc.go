// Package engine implements the star-state engine for a card-grid page.
//
// The engine owns everything mutable for one page load: the resolved
// identity, the star registry, the card index, and the pending frame
// mutations. Construct one per page; there is no package-level instance.
//
// ARCHITECTURE:
//
// Single-Writer Request Loop:
// All mutation happens in the Run loop goroutine. Toggle, State, and
// Settle enqueue requests and await replies; slot change events from the
// storage notifier are consumed by the same loop. This ensures:
// - Strictly FIFO toggles, no two interleave
// - Deterministic persistence and reorder timing
// - One goroutine to reason about for DOM mutation
//
// Request Processing Flow:
// 1. Requests enqueued to FIFO queue (toggle, state, settle)
// 2. Engine.Run() drains the queue one request at a time
// 3. Toggle handling mutates the registry, persists the snapshot, and
//    syncs star indicators before replying
// 4. Card repositions are deferred to the frame scheduler
// 5. When the queue goes idle, deferred mutations are flushed
//
// Ordering:
// Every toggle is stamped with a monotonic seq from the logical clock.
// Wall time never orders anything; the journal records it for audit only.
// When a journal is attached the clock resumes from its last seq, so
// transition order survives restarts.
//
// Failure policy is log-and-continue: a broken store, journal, or
// detached DOM node degrades that one operation and the loop keeps
// going. The only event that ends the loop early is a cross-tab
// identity conflict, which schedules a reload and spends the instance.
package engine
