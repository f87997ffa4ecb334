// Package normalisers extracts indexable plain text from structured file
// formats. Each normaliser handles a set of MIME types; a Registry maps a
// file's MIME type to the normaliser that reads it.
//
// Files without a registered normaliser are read as UTF-8 text.
package normalisers
