// Package handlers provides the HTTP API of the document viewer.
//
// It includes handlers for:
//   - The library tree, statistics and manual rescans
//   - File details, PDF renditions and page thumbnails
//   - Reading and saving Markdown notes
//   - Server-sent change events
//   - Health checks, version and cache statistics
//
// Conversion and rendering are reached through the PDFProvider and
// ThumbnailProvider interfaces, so handlers never block on work another
// request already started.
package handlers
