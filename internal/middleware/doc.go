// Package middleware provides HTTP middleware for the DeckView server.
//
// It includes:
//   - Request logging in W3C Extended Log Format
//   - Prometheus request metrics labelled by route template
//   - gzip compression for JSON and Markdown responses
//
// Event streams and ranged PDF reads bypass compression, and every response
// writer wrapper forwards Flush so change notifications reach viewers promptly.
package middleware
