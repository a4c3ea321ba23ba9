/*
Package filesystem wraps the handful of filesystem operations deckview relies
on for correctness.

# NFS resilience

StatWithRetry and OpenWithRetry retry ESTALE (stale file handle) errors with
exponential backoff. Document libraries are often NFS or SMB mounts, and a
stale handle during a rescan would otherwise drop a file from the tree.
Other errors fail immediately.

	info, err := filesystem.StatWithRetry(path, filesystem.DefaultRetryConfig())

# Atomic writes

WriteFileAtomic and MoveFileAtomic write into a staging directory on the same
volume, fsync, then rename into place. A reader either sees the complete
payload or nothing.

# Confined removal

RemoveWithin deletes a path only when it resolves inside a given root. The
artifact cache routes every deletion through it so a bookkeeping bug can never
remove a source document.

# Metrics

Operations are reported through an Observer. The metrics package provides the
Prometheus implementation; startup installs it with SetObserver. Without an
observer nothing is recorded, which keeps tests free of global state.
*/
package filesystem
