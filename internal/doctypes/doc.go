// Package doctypes classifies library files by extension.
//
// It is a dependency-free leaf so the indexer, watcher, converter and HTTP
// handlers can share one allow-list without import cycles.
//
//	kind := doctypes.KindForPath("talks/intro.pptx") // doctypes.KindSlideDeck
//	if kind.NeedsConversion() {
//	    // hand the file to the conversion gate
//	}
//
// Directory names in IgnoreDirs, and any entry whose name starts with a dot,
// are never part of the library.
package doctypes
