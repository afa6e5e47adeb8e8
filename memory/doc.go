// Package memory persists conversation contexts between turns.
//
// Memory layers retention on top of a byte oriented Backend: every Put
// re-arms a per-key timer, and when the timer fires the context is deleted
// only if it was not overwritten in the meantime (by this node or another
// one sharing the backend). Conversations that expire while a parameter is
// being confirmed are reported as aborted and their skill's OnAbort hook
// runs once.
//
// Backends: the process local InMemoryBackend in this package, plus the
// durable memory/bolt and memory/sqlite packages. Select one at wiring
// time; Memory owns it and closes it on Close.
package memory
