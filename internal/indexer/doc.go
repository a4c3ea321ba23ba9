// Package indexer maintains the in-memory index of the document library.
//
// A scan walks the library root, skipping hidden entries and well-known
// build or dependency directories, keeps files whose extension is on the
// allow-list and fingerprints them with a pool of workers. The result is a
// flat file list keyed by logical id and a tree in which directories without
// documents do not appear. Every level of the tree is ordered the same way
// on every scan: directories first, then by case-insensitive name.
//
// Once a scan has been swapped in, the artifact cache is swept against the
// new (path, fingerprint) set and its size ceiling is enforced. Scans never
// overlap; a trigger that arrives while a scan runs waits for one follow-up
// scan that it shares with every other trigger arriving in the meantime.
//
// Scans are started by:
//   - Startup: the first scan, which also clears artifacts of files deleted
//     while the server was down
//   - Watcher: debounced filesystem events
//   - Periodic: a safety-net rescan on an interval
//   - Manual: the API
package indexer
