/*
Package workers sizes the worker pools used by deckview.

Pool sizes derive from GOMAXPROCS rather than runtime.NumCPU, so a container
CPU limit is respected (Go 1.19+ sets GOMAXPROCS from the cgroup quota).

Two pools exist:

  - the scan pool, which stats and fingerprints files during a directory
    scan (I/O bound, overridable with INDEX_WORKERS)
  - the conversion pool, which bounds concurrent LibreOffice processes
    (CPU bound, overridable with CONVERSION_WORKERS)

Each helper accepts the name of the environment variable that may override
the computed value, and a limit capping the result (0 means no cap).
*/
package workers
