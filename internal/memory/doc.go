// Package memory sizes the Go heap for containers and pauses thumbnail
// rendering when the heap nears its limit.
//
// GOMEMLIMIT is not derived from cgroup limits the way GOMAXPROCS is, so
// [ConfigureFromEnv] computes it from MEMORY_LIMIT (usually injected through
// the Kubernetes Downward API) times MEMORY_RATIO. An explicit GOMEMLIMIT
// always wins. The ratio leaves headroom for memory Go does not see: libvips
// buffers and the LibreOffice processes the converter spawns.
//
//	env:
//	  - name: MEMORY_LIMIT
//	    valueFrom:
//	      resourceFieldRef:
//	        resource: limits.memory
//	  - name: MEMORY_RATIO
//	    value: "0.7"
//
// A [Monitor] samples heap allocation against the limit. Above the critical
// mark it forces a GC and reports paused until usage drops below the high
// mark; render jobs call [Monitor.WaitIfPaused] before decoding a page.
package memory
