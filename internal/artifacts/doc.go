// Package artifacts is the on-disk cache of derived documents: the PDF
// rendition of a source file and its page thumbnails.
//
// Entries are keyed by (fingerprint, kind). An entry is pending while a job
// produces it, then ready or failed. Pending entries exist only in the
// in-memory registry; ready and failed entries are recorded in the SQLite
// ledger and ready payloads are stored under the cache root:
//
//	<root>/<fp[:2]>/<fp>/pdf.pdf
//	<root>/<fp[:2]>/<fp>/thumb-3-medium-png.png
//	<root>/.tmp/                      staging area for atomic writes
//
// Producers follow a reservation protocol:
//
//	h, err := cache.Begin(ctx, key, sourcePath)
//	if errors.Is(err, artifacts.ErrAlreadyInFlight) || errors.Is(err, artifacts.ErrExists) {
//	    entry, err := cache.Await(ctx, key)
//	    ...
//	}
//	// produce, then exactly one of:
//	h.Commit(ctx, data)
//	h.Fail(ctx, reason)
//
// Failed entries are visible for a grace period so a broken file is not
// reconverted on every request; after it Begin is allowed again.
//
// Sweep deletes everything whose fingerprint is not in a live set. It never
// touches a fingerprint with pending work, and all deletions are confined to
// the cache root.
package artifacts
