// Package fingerprint derives the identity of one version of a source file.
//
// A Fingerprint is a SHA-256 over the absolute path, size and modification
// time of a file, optionally extended with an xxhash64 of its content. Two
// observations of an unchanged file produce the same Fingerprint; a change in
// any input produces a different one. The artifact cache is keyed by it.
//
// A LogicalID is the stable, path-derived identifier the HTTP surface uses to
// refer to a file across versions. It is independent of the file's content.
package fingerprint
