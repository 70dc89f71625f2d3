// Package storage provides the key/value slots star state persists in.
//
// Two stores implement the KV interface:
//   - DirStore: durable, one file per slot under a directory. Writes go
//     through a temp file plus rename, so a concurrent reader never sees
//     a torn value.
//   - MemStore: in-process only, gone when the process exits. Used for
//     session-scoped identity slots.
//
// A Notifier watches a DirStore directory and emits a ChangeEvent per
// slot rewritten by another process. Rapid rewrites of the same slot
// coalesce into one event carrying the latest value; the engine's sync
// monitor only cares about the final state, not the intermediate ones.
//
// The Gateway wraps a KV with the contract the engine depends on:
//   - Load never fails. Absent slot, unreadable slot, malformed payload
//     and unknown schema version all yield the caller's fallback.
//   - Save never propagates errors. Failures are logged and dropped;
//     in-memory state stays authoritative for the session.
package storage
