// Package session holds the conversation data model: sessions, their ordered
// step traces, the in-memory registry that owns them, and the recorder that
// turns sampling loop callbacks into step records.
//
// A session is created pending, marked running when its loop invocation
// starts, and reaches completed or failed exactly once. Steps are append-only
// and keep insertion order, which is also chronological order. Sessions are
// never evicted for the lifetime of the process.
package session
