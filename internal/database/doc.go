// Package database provides the SQLite ledger behind the artifact cache.
//
// The ledger records every ready or failed artifact: which fingerprint and
// artifact kind it belongs to, where its payload lives, how large it is and
// when it was last served. Pending work is never written here; it lives in
// the cache's in-memory registry until it resolves.
//
// The database uses WAL mode so lookups from request handlers do not block
// on the writes issued by conversion jobs and sweeps.
package database
