// Package fileextract turns uploaded statement files into page text or
// tabular rows. It is the boundary between raw files and the parsing engine;
// everything past here works on strings.
package fileextract

import "errors"

// ErrPasswordRequired means a protected file was uploaded without a usable
// password. Reported to the caller immediately, never retried.
var ErrPasswordRequired = errors.New("fileextract: document is password protected")

// ErrEmptyDocument means extraction succeeded but produced no usable content.
var ErrEmptyDocument = errors.New("fileextract: no text or rows could be extracted")
