// Package converter turns office documents into PDFs on demand.
//
// Gate is the entry point. For each (fingerprint, pdf) key at most one
// conversion runs at a time; concurrent callers wait on the same job and see
// the same outcome. Jobs run detached from the request that started them,
// bounded by a hard timeout, so a viewer closing the tab does not waste a
// half-finished conversion. Failures are remembered by the artifact cache for
// its grace period.
//
// The converter itself is a black box behind the Converter interface. The
// default implementation drives LibreOffice in headless mode.
package converter
