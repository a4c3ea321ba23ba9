// Package watcher turns filesystem notifications into library rescans.
//
// fsnotify events for allowed documents and for directories are filtered
// into typed events and queued on a bounded channel. A single dispatcher
// loop debounces them: a rescan starts only after the library has been
// quiet for the debounce delay, so an editor that writes a file in several
// steps causes one rescan. Consecutive rescans are further spaced by a
// token-bucket limiter when the library keeps changing.
//
// A successful rescan publishes tree_changed on the hub. A failed one is
// logged and the watcher waits for the next event.
package watcher
