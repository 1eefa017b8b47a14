// Package journal implements the legacy per-entry journal protocol.
// Every collection is a journal, an append-only chain of entries where
// each entry names its predecessor; the sync cursor is the uid of the
// last entry seen. The server rejects an append whose chain does not
// start at its current head with HTTP 409.
package journal
